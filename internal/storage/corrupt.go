package storage

import (
	"encoding/hex"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// IsCorrupt reports whether err is the storage engine's corruption signal:
// a malformed image or a file that is not a database at all.
func IsCorrupt(err error) bool {
	if err == nil {
		return false
	}
	if corruptCode(err) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database disk image is malformed") ||
		strings.Contains(msg, "file is not a database")
}

// QuarantineName returns the name a corrupted file is renamed to.
func QuarantineName(path string, at time.Time) string {
	return path + ".corrupt." + strconv.FormatInt(at.UnixMilli(), 10)
}

// quarantine renames path aside, together with its WAL sidecars, and returns
// the new name. The file is never deleted.
func quarantine(path string, at time.Time) (string, error) {
	target := QuarantineName(path, at)
	for {
		if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
			break
		}
		at = at.Add(time.Millisecond)
		target = QuarantineName(path, at)
	}
	if err := os.Rename(path, target); err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if _, err := os.Stat(path + suffix); err == nil {
			_ = os.Rename(path+suffix, target+suffix)
		}
	}
	return target, nil
}

// checksum is the hex blake3 digest of the file at path.
func checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

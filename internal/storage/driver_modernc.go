//go:build !cgo_sqlite

package storage

import (
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const (
	driverName = "sqlite"
	driverType = "purego"
)

func dsn(path string, busyTimeout time.Duration) string {
	return fmt.Sprintf("%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", path, busyTimeout.Milliseconds())
}

// corruptCode reports whether err carries SQLITE_CORRUPT or SQLITE_NOTADB,
// including their extended variants.
func corruptCode(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3lib.SQLITE_CORRUPT, sqlite3lib.SQLITE_NOTADB:
		return true
	}
	return false
}

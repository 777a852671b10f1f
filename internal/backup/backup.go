// Package backup snapshots every module file with VACUUM INTO.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"intratool/internal/storage"
)

var mon = monkit.Package()

// Error is the class of backup errors.
var Error = errs.Class("backup")

const stampLayout = "2006-01-02T15-04-05"

// File is one backed-up module file.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Set is one backup run: a directory holding a copy of each module file.
type Set struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Files     []File    `json:"files"`
}

// Service writes backup sets into a directory and keeps the newest
// retention of them.
type Service struct {
	log       *zap.Logger
	storage   *storage.Manager
	dir       string
	retention int
	now       func() time.Time

	mu sync.Mutex
}

// New returns a backup service writing into dir.
func New(log *zap.Logger, mgr *storage.Manager, dir string, retention int) *Service {
	return &Service{
		log:       log.Named("backup"),
		storage:   mgr,
		dir:       dir,
		retention: retention,
		now:       time.Now,
	}
}

// Run backs up every registered module whose file exists, then prunes old
// sets. Files are backed up one at a time through their shared handle.
func (s *Service) Run(ctx context.Context) (set Set, err error) {
	defer mon.Task()(&ctx)(&err)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Set{}, Error.New("create backup dir: %w", err)
	}

	stamp := s.now().Format(stampLayout)
	name := stamp
	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(s.dir, name)); os.IsNotExist(err) {
			break
		}
		name = fmt.Sprintf("%s-%d", stamp, counter)
	}
	target := filepath.Join(s.dir, name)
	if err := os.Mkdir(target, 0o755); err != nil {
		return Set{}, Error.Wrap(err)
	}
	defer func() {
		// a partial set must not be listed or count toward retention
		if err != nil {
			_ = os.RemoveAll(target)
			set = Set{}
		}
	}()

	set = Set{Name: name, CreatedAt: s.now()}
	for _, d := range s.storage.Registry().All() {
		if !s.storage.Exists(d.File) {
			continue
		}
		h, err := s.storage.Acquire(ctx, d.File)
		if err != nil {
			return set, Error.New("acquire %s: %w", d.File, err)
		}
		dest := filepath.Join(target, d.File)
		if _, err := h.DB().ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
			return set, Error.New("vacuum %s into %s: %w", d.File, dest, err)
		}
		fi, err := os.Stat(dest)
		if err != nil {
			return set, Error.Wrap(err)
		}
		set.Files = append(set.Files, File{Name: d.File, Size: fi.Size()})
	}
	s.log.Info("backup written", zap.String("set", name), zap.Int("files", len(set.Files)))

	if _, err := s.prune(); err != nil {
		s.log.Warn("pruning old backups", zap.Error(err))
	}
	return set, nil
}

// List returns every backup set, newest first.
func (s *Service) List() ([]Set, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Set{}, nil
		}
		return nil, Error.Wrap(err)
	}

	var sets []Set
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		created, err := time.ParseInLocation(stampLayout, stampOf(e.Name()), time.Local)
		if err != nil {
			continue
		}
		set := Set{Name: e.Name(), CreatedAt: created}
		files, err := os.ReadDir(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, Error.Wrap(err)
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || f.IsDir() {
				continue
			}
			set.Files = append(set.Files, File{Name: f.Name(), Size: info.Size()})
		}
		sets = append(sets, set)
	}

	sort.Slice(sets, func(i, j int) bool { return sets[i].Name > sets[j].Name })
	return sets, nil
}

// prune removes all but the newest retention sets. A retention of zero
// keeps everything.
func (s *Service) prune() (removed []string, err error) {
	if s.retention <= 0 {
		return nil, nil
	}
	sets, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(sets) <= s.retention {
		return nil, nil
	}

	var group errs.Group
	for _, set := range sets[s.retention:] {
		if err := os.RemoveAll(filepath.Join(s.dir, set.Name)); err != nil {
			group.Add(err)
			continue
		}
		s.log.Info("removed old backup", zap.String("set", set.Name))
		removed = append(removed, set.Name)
	}
	return removed, Error.Wrap(group.Err())
}

// Schedule runs a backup every day at hh:mm local time until ctx is done.
func (s *Service) Schedule(ctx context.Context, at string) error {
	hour, minute := 2, 0
	if at != "" {
		clock, err := time.Parse("15:04", at)
		if err != nil {
			return Error.New("backup time %q: %w", at, err)
		}
		hour, minute = clock.Hour(), clock.Minute()
	}

	go func() {
		for {
			now := s.now()
			next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
			if !next.After(now) {
				next = next.Add(24 * time.Hour)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Until(next)):
			}
			if _, err := s.Run(ctx); err != nil {
				s.log.Error("scheduled backup failed", zap.Error(err))
			}
		}
	}()
	return nil
}

// stampOf strips the collision counter from a set name.
func stampOf(name string) string {
	if len(name) > len(stampLayout) && strings.HasPrefix(name[len(stampLayout):], "-") {
		return name[:len(stampLayout)]
	}
	return name
}

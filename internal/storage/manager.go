// Package storage owns the process-wide set of open SQLite files: one handle
// per file, created on first use, initialized once, migrated on every open,
// and quarantined when the engine reports the file as corrupt.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intratool/internal/registry"
)

var mon = monkit.Package()

var (
	// Error is the class of storage errors.
	Error = errs.Class("storage")

	// ErrInvalidName is returned for file names that are not bare names
	// inside the storage directory.
	ErrInvalidName = errors.New("storage: invalid file name")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("storage: manager closed")
)

// Config configures a Manager.
type Config struct {
	Dir         string
	BusyTimeout time.Duration
	// JournalMode is the durability setting applied to every handle.
	JournalMode string
}

// DefaultJournalMode keeps readers unblocked by a single writer.
const DefaultJournalMode = "WAL"

// Manager caches one Handle per storage file name.
type Manager struct {
	log *zap.Logger
	cfg Config
	reg *registry.Registry
	now func() time.Time

	mu       sync.RWMutex
	handles  map[string]*Handle
	isClosed bool

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	statusMu sync.Mutex
	status   map[string]*Status

	listenersMu sync.RWMutex
	listeners   []Listener
}

// New returns a Manager for the files of reg inside cfg.Dir. Nothing is
// opened until the first Acquire.
func New(log *zap.Logger, cfg Config, reg *registry.Registry) *Manager {
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 10 * time.Second
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = DefaultJournalMode
	}
	return &Manager{
		log:     log.Named("storage"),
		cfg:     cfg,
		reg:     reg,
		now:     time.Now,
		handles: make(map[string]*Handle),
		locks:   make(map[string]*sync.Mutex),
		status:  make(map[string]*Status),
	}
}

// Registry returns the module registry the manager was built with.
func (m *Manager) Registry() *registry.Registry { return m.reg }

// Dir is the storage directory.
func (m *Manager) Dir() string { return m.cfg.Dir }

// Driver names the SQLite implementation compiled in.
func Driver() string { return driverName + " (" + driverType + ")" }

// DriverName is the database/sql driver handles are opened with.
func DriverName() string { return driverName }

// Path returns the on-disk location of file.
func (m *Manager) Path(file string) string { return filepath.Join(m.cfg.Dir, file) }

// Exists reports whether file is currently present on disk.
func (m *Manager) Exists(file string) bool {
	_, err := os.Stat(m.Path(file))
	return err == nil
}

// Acquire returns the open handle for file, opening, creating, initializing
// and migrating it first when needed.
func (m *Manager) Acquire(ctx context.Context, file string) (*Handle, error) {
	return m.acquire(ctx, file, false)
}

// Recreate deletes file from disk, together with everything stored in it,
// and acquires a freshly initialized replacement. Callers still holding the
// previous handle get errors from it afterwards. This cannot be undone.
func (m *Manager) Recreate(ctx context.Context, file string) (*Handle, error) {
	return m.acquire(ctx, file, true)
}

func (m *Manager) acquire(ctx context.Context, file string, force bool) (*Handle, error) {
	if err := validName(file); err != nil {
		return nil, err
	}

	if !force {
		m.mu.RLock()
		h, closed := m.handles[file], m.isClosed
		m.mu.RUnlock()
		if closed {
			return nil, ErrClosed
		}
		if h != nil && !h.Closed() {
			return h, nil
		}
	}

	lock := m.fileLock(file)
	lock.Lock()
	defer lock.Unlock()

	// another caller may have opened the file while we waited
	m.mu.Lock()
	if m.isClosed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	h := m.handles[file]
	evicted := false
	switch {
	case h == nil:
	case force:
		delete(m.handles, file)
	case h.Closed():
		delete(m.handles, file)
		evicted = true
	default:
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	if evicted {
		m.log.Info("evicting closed handle", zap.String("file", file))
		m.publish(EventEvicted, file, m.moduleID(file), "")
	}
	if force && h != nil {
		if err := h.close(); err != nil {
			m.log.Warn("closing handle before recreate", zap.String("file", file), zap.Error(err))
		}
	}

	h, err := m.open(ctx, file, force)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.isClosed {
		m.mu.Unlock()
		// Close ran while the file was being opened
		_ = h.close()
		return nil, ErrClosed
	}
	m.handles[file] = h
	m.mu.Unlock()
	return h, nil
}

// open runs the cold path for file. The caller holds the file's lock.
func (m *Manager) open(ctx context.Context, file string, force bool) (h *Handle, err error) {
	defer mon.Task()(&ctx)(&err)

	log := m.log.With(zap.String("file", file))
	desc, managed := m.reg.ByFile(file)
	st := Status{File: file}
	if managed {
		st.Module = desc.ID
		log = log.With(zap.String("module", desc.ID))
	}

	if err := os.MkdirAll(m.cfg.Dir, 0o755); err != nil {
		return nil, Error.New("create storage directory %s: %w", m.cfg.Dir, err)
	}

	path := m.Path(file)
	if force {
		if err := removeFiles(path); err != nil {
			return nil, Error.New("remove %s: %w", path, err)
		}
		log.Warn("storage file deleted for recreation")
		m.publish(EventRecreated, file, st.Module, "")
	}

	existed := hasContent(path)
	db, durability, err := m.openFile(ctx, path, log)
	if err != nil {
		if !IsCorrupt(err) {
			return nil, Error.New("open %s: %w", path, err)
		}
		moved, qerr := m.quarantine(path, err, log)
		if qerr != nil {
			return nil, Error.New("quarantine %s: %w", path, qerr)
		}
		st.Quarantined = moved
		m.publish(EventQuarantined, file, st.Module, moved)

		existed = false
		db, durability, err = m.openFile(ctx, path, log)
		if err != nil {
			return nil, Error.New("open %s after quarantine: %w", path, err)
		}
	}

	st.Created = !existed
	st.Durability = durability
	if st.Created {
		m.publish(EventCreated, file, st.Module, "")
	}

	if managed {
		if !existed && desc.Initialize != nil {
			if err := desc.Initialize(ctx, db); err != nil {
				_ = db.Close()
				// leave no half-initialized file behind, so the next acquire
				// initializes again
				_ = removeFiles(path)
				return nil, Error.New("initialize %s: %w", desc.ID, err)
			}
			st.Initialized = true
			log.Info("module initialized")
			m.publish(EventInitialized, file, desc.ID, "")
		}
		if desc.Migrate != nil {
			m.migrate(ctx, desc, db, &st, log)
		}
	}

	h = &Handle{
		file:       file,
		path:       path,
		db:         db,
		durability: durability,
		openedAt:   m.now(),
	}
	st.OpenedAt = h.openedAt
	m.recordStatus(st)
	m.publish(EventOpened, file, st.Module, durability)
	return h, nil
}

// migrate runs desc's migrator. Failures are logged and recorded, never
// returned: a stale schema still yields a usable handle.
func (m *Manager) migrate(ctx context.Context, desc registry.Descriptor, db *sql.DB, st *Status, log *zap.Logger) {
	applied, err := desc.Migrate(ctx, db)
	st.MigrationApplied = applied
	for _, change := range applied {
		log.Info("migration applied", zap.String("change", change))
	}
	if err != nil {
		st.MigrationError = err.Error()
		log.Error("migration failed", zap.Strings("applied", applied), zap.Error(err))
		mon.Counter("migration_failures").Inc(1)
		m.publish(EventMigrationFailed, st.File, desc.ID, err.Error())
		return
	}
	if len(applied) > 0 {
		m.publish(EventMigrated, st.File, desc.ID, strings.Join(applied, "; "))
	}
}

// openFile opens path, proves it is readable and applies the durability
// setting. A corruption signal from any of these steps is returned so the
// caller can quarantine; other durability failures are only logged.
func (m *Manager) openFile(ctx context.Context, path string, log *zap.Logger) (*sql.DB, string, error) {
	db, err := sql.Open(driverName, dsn(path, m.cfg.BusyTimeout))
	if err != nil {
		return nil, "", err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := checkReadable(ctx, db); err != nil {
		_ = db.Close()
		return nil, "", err
	}

	mode, err := applyJournalMode(ctx, db, m.cfg.JournalMode)
	if err != nil {
		if IsCorrupt(err) {
			_ = db.Close()
			return nil, "", err
		}
		log.Warn("durability setting not applied", zap.String("journal_mode", m.cfg.JournalMode), zap.Error(err))
		return db, "", nil
	}
	if !strings.EqualFold(mode, m.cfg.JournalMode) {
		log.Warn("durability setting not honoured",
			zap.String("requested", m.cfg.JournalMode), zap.String("journal_mode", mode))
	}
	return db, mode, nil
}

func checkReadable(ctx context.Context, db *sql.DB) error {
	if err := db.PingContext(ctx); err != nil {
		return err
	}
	var n int
	return db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master`).Scan(&n)
}

func applyJournalMode(ctx context.Context, db *sql.DB, mode string) (string, error) {
	var got string
	err := db.QueryRowContext(ctx, "PRAGMA journal_mode="+mode).Scan(&got)
	return strings.ToUpper(got), err
}

func (m *Manager) quarantine(path string, cause error, log *zap.Logger) (string, error) {
	moved, err := quarantine(path, m.now())
	if err != nil {
		return "", err
	}
	sum, serr := checksum(moved)
	if serr != nil {
		log.Warn("checksum of quarantined file", zap.Error(serr))
	}
	mon.Counter("quarantined_files").Inc(1)
	log.Error("corrupt database quarantined",
		zap.String("quarantined_as", moved),
		zap.String("blake3", sum),
		zap.NamedError("cause", cause))
	return moved, nil
}

// Warmup acquires every registered module concurrently so that initialization
// and migrations run before the first request.
func (m *Manager) Warmup(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, gctx := errgroup.WithContext(ctx)
	for _, d := range m.reg.All() {
		file := d.File
		group.Go(func() error {
			_, err := m.Acquire(gctx, file)
			return err
		})
	}
	return group.Wait()
}

// Close closes every open handle. Acquire fails afterwards.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isClosed = true

	var group errs.Group
	for file, h := range m.handles {
		group.Add(h.close())
		delete(m.handles, file)
	}
	return Error.Wrap(group.Err())
}

func (m *Manager) fileLock(file string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	l, ok := m.locks[file]
	if !ok {
		l = new(sync.Mutex)
		m.locks[file] = l
	}
	return l
}

func (m *Manager) moduleID(file string) string {
	if d, ok := m.reg.ByFile(file); ok {
		return d.ID
	}
	return ""
}

func validName(file string) error {
	if file == "" || file == "." || file == ".." || strings.ContainsAny(file, `/\`) || strings.ContainsRune(file, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidName, file)
	}
	return nil
}

// hasContent is false for missing and zero-length files; SQLite treats both
// as a new, empty database.
func hasContent(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Size() > 0
}

func removeFiles(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm", path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

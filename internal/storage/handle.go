package storage

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"
	"time"
)

// Handle is the single open connection to one storage file. It is owned by
// the Manager and shared by every caller in the process; callers borrow it
// and never close it.
//
// The underlying pool is capped at one connection, so session state such as
// ATTACH lives on the same connection as every statement issued through it.
type Handle struct {
	file       string
	path       string
	db         *sql.DB
	durability string
	openedAt   time.Time
	closed     atomic.Bool
}

// DB returns the database to issue statements against.
func (h *Handle) DB() *sql.DB { return h.db }

// File is the bare storage file name, e.g. "planner.db".
func (h *Handle) File() string { return h.file }

// Path is the file's location on disk.
func (h *Handle) Path() string { return h.path }

// Durability is the journal mode the file ended up in after open, or ""
// when it could not be applied.
func (h *Handle) Durability() string { return h.durability }

// OpenedAt is when the handle was opened.
func (h *Handle) OpenedAt() time.Time { return h.openedAt }

// Closed reports whether the handle has been closed, by the Manager or by a
// caller closing DB() directly.
func (h *Handle) Closed() bool {
	if h.closed.Load() {
		return true
	}
	// With a cancelled context database/sql reports a closed pool before it
	// would wait for a connection, so this never blocks behind a running
	// statement.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.db.PingContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		h.closed.Store(true)
		return true
	}
	return false
}

func (h *Handle) close() error {
	if h.closed.Swap(true) {
		return nil
	}
	return h.db.Close()
}

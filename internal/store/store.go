// Package store holds the typed read/write helpers the application uses on
// top of the storage manager. Every helper borrows the module's shared
// handle; none of them opens or closes a file.
package store

import (
	"context"

	"github.com/jmoiron/sqlx"

	"intratool/internal/storage"
)

const (
	mainFile          = "intratool.db"
	notificationsFile = "notifications.db"
	aiFile            = "ia.db"
)

// Store reaches module files through a storage.Manager.
type Store struct {
	storage *storage.Manager
}

// New returns a Store over mgr.
func New(mgr *storage.Manager) *Store {
	return &Store{storage: mgr}
}

func (s *Store) db(ctx context.Context, file string) (*sqlx.DB, error) {
	h, err := s.storage.Acquire(ctx, file)
	if err != nil {
		return nil, err
	}
	return sqlx.NewDb(h.DB(), storage.DriverName()), nil
}

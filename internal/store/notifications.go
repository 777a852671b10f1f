package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Notification is one message for a user on one channel.
type Notification struct {
	ID        string         `db:"id" json:"id"`
	UserID    int64          `db:"user_id" json:"user_id"`
	Channel   string         `db:"channel" json:"channel"`
	Severity  string         `db:"severity" json:"severity"`
	Title     string         `db:"title" json:"title"`
	Body      string         `db:"body" json:"body"`
	Module    string         `db:"module" json:"module"`
	RecordID  string         `db:"record_id" json:"record_id"`
	ReadAt    sql.NullString `db:"read_at" json:"-"`
	CreatedAt string         `db:"created_at" json:"created_at"`
}

// Notify stores n with a fresh id and returns it.
func (s *Store) Notify(ctx context.Context, n Notification) (string, error) {
	db, err := s.db(ctx, notificationsFile)
	if err != nil {
		return "", err
	}
	n.ID = uuid.NewString()
	if n.Channel == "" {
		n.Channel = "in_app"
	}
	if n.Severity == "" {
		n.Severity = "info"
	}
	_, err = db.NamedExecContext(ctx, `INSERT INTO notifications
		(id, user_id, channel, severity, title, body, module, record_id)
		VALUES (:id, :user_id, :channel, :severity, :title, :body, :module, :record_id)`, n)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

// Unread lists the unread notifications of userID, newest first.
func (s *Store) Unread(ctx context.Context, userID int64) ([]Notification, error) {
	db, err := s.db(ctx, notificationsFile)
	if err != nil {
		return nil, err
	}
	out := []Notification{}
	err = db.SelectContext(ctx, &out, `SELECT id, user_id, channel, severity, title,
		COALESCE(body, '') AS body, COALESCE(module, '') AS module, COALESCE(record_id, '') AS record_id,
		read_at, created_at
		FROM notifications WHERE user_id = ? AND read_at IS NULL
		ORDER BY created_at DESC, rowid DESC`, userID)
	return out, err
}

// MarkRead marks notification id as read. Marking it twice is harmless.
func (s *Store) MarkRead(ctx context.Context, id string) error {
	db, err := s.db(ctx, notificationsFile)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, CURRENT_TIMESTAMP) WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package store

import (
	"context"

	"github.com/google/uuid"
)

// Message is one turn of an assistant conversation.
type Message struct {
	ID             int64  `db:"id" json:"id"`
	ConversationID string `db:"conversation_id" json:"conversation_id"`
	Role           string `db:"role" json:"role"`
	Content        string `db:"content" json:"content"`
	Tokens         int    `db:"tokens" json:"tokens"`
	CreatedAt      string `db:"created_at" json:"created_at"`
}

// QueryLogEntry records one federated query issued by the assistant.
type QueryLogEntry struct {
	ConversationID string `db:"conversation_id" json:"conversation_id,omitempty"`
	SQL            string `db:"sql_text" json:"sql"`
	RowCount       int    `db:"row_count" json:"row_count"`
	DurationMs     int64  `db:"duration_ms" json:"duration_ms"`
	Error          string `db:"error" json:"error,omitempty"`
}

// StartConversation creates a conversation and returns its id.
func (s *Store) StartConversation(ctx context.Context, userID int64, title, model string) (string, error) {
	db, err := s.db(ctx, aiFile)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = db.ExecContext(ctx, `INSERT INTO conversations (id, user_id, title, model) VALUES (?, ?, ?, ?)`,
		id, userID, title, model)
	if err != nil {
		return "", err
	}
	return id, nil
}

// AddMessage appends a message to its conversation.
func (s *Store) AddMessage(ctx context.Context, m Message) (int64, error) {
	db, err := s.db(ctx, aiFile)
	if err != nil {
		return 0, err
	}
	res, err := db.NamedExecContext(ctx, `INSERT INTO messages (conversation_id, role, content, tokens)
		VALUES (:conversation_id, :role, :content, :tokens)`, m)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Messages returns the messages of a conversation in order.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	db, err := s.db(ctx, aiFile)
	if err != nil {
		return nil, err
	}
	out := []Message{}
	err = db.SelectContext(ctx, &out, `SELECT id, conversation_id, role, content, tokens, created_at
		FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	return out, err
}

// LogQuery appends e to the assistant's query log.
func (s *Store) LogQuery(ctx context.Context, e QueryLogEntry) error {
	db, err := s.db(ctx, aiFile)
	if err != nil {
		return err
	}
	_, err = db.NamedExecContext(ctx, `INSERT INTO query_log (conversation_id, sql_text, row_count, duration_ms, error)
		VALUES (NULLIF(:conversation_id, ''), :sql_text, :row_count, :duration_ms, :error)`, e)
	return err
}

// RecentQueries returns the last limit entries of the query log, newest first.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryLogEntry, error) {
	db, err := s.db(ctx, aiFile)
	if err != nil {
		return nil, err
	}
	out := []QueryLogEntry{}
	err = db.SelectContext(ctx, &out, `SELECT COALESCE(conversation_id, '') AS conversation_id, sql_text,
		row_count, duration_ms, COALESCE(error, '') AS error
		FROM query_log ORDER BY id DESC LIMIT ?`, limit)
	return out, err
}

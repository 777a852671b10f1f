package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intratool/internal/testutil"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(testutil.NewManager(t))
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	st, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "EUR", st.Currency)
	assert.Equal(t, "{}", st.SMTPConfig)

	st.CompanyName = "Officine Rossi"
	st.VATRate = 22
	require.NoError(t, s.SaveSettings(ctx, st))

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Officine Rossi", got.CompanyName)
	assert.Equal(t, 22.0, got.VATRate)
}

func TestDrafts(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.SaveDraft(ctx, Draft{Name: "Gate 3m", UserID: sql.NullInt64{Int64: 1, Valid: true}})
	require.NoError(t, err)
	require.NotZero(t, id)

	_, err = s.SaveDraft(ctx, Draft{ID: id, Name: "Gate 3.5m", Payload: `{"w":3.5}`, UserID: sql.NullInt64{Int64: 1, Valid: true}})
	require.NoError(t, err)

	drafts, err := s.Drafts(ctx, 1)
	require.NoError(t, err)
	require.Len(t, drafts, 1)
	assert.Equal(t, "Gate 3.5m", drafts[0].Name)
	assert.Equal(t, `{"w":3.5}`, drafts[0].Payload)

	none, err := s.Drafts(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = s.SaveDraft(ctx, Draft{ID: 999, Name: "ghost"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestNotifications(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	id, err := s.Notify(ctx, Notification{UserID: 5, Title: "Low stock", Module: "warehouse-management", RecordID: "BOLT-M6"})
	require.NoError(t, err)
	assert.Len(t, id, 36)

	unread, err := s.Unread(ctx, 5)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "in_app", unread[0].Channel)
	assert.Equal(t, "info", unread[0].Severity)

	require.NoError(t, s.MarkRead(ctx, id))
	require.NoError(t, s.MarkRead(ctx, id))
	unread, err = s.Unread(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, unread)

	assert.ErrorIs(t, s.MarkRead(ctx, "missing"), sql.ErrNoRows)

	// unknown channels are rejected by the foreign key
	_, err = s.Notify(ctx, Notification{UserID: 5, Title: "x", Channel: "pager"})
	assert.Error(t, err)
}

func TestConversationAndQueryLog(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	conv, err := s.StartConversation(ctx, 1, "stock by location", "local")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, Message{ConversationID: conv, Role: "user", Content: "how many bolts?", Tokens: 4})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, Message{ConversationID: conv, Role: "assistant", Content: "120"})
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, conv)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "user", msgs[0].Role)
	assert.Equal(t, 4, msgs[0].Tokens)

	require.NoError(t, s.LogQuery(ctx, QueryLogEntry{ConversationID: conv, SQL: "SELECT 1", RowCount: 1, DurationMs: 3}))
	require.NoError(t, s.LogQuery(ctx, QueryLogEntry{SQL: "SELEC 1", Error: "syntax error"}))

	recent, err := s.RecentQueries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "SELEC 1", recent[0].SQL)
	assert.Equal(t, "", recent[0].ConversationID)
	assert.Equal(t, conv, recent[1].ConversationID)
}

package modules

import (
	"context"
	"database/sql"

	"intratool/internal/schema"
)

const queryLogDDL = `CREATE TABLE IF NOT EXISTS query_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT,
	sql_text TEXT NOT NULL,
	row_count INTEGER DEFAULT 0,
	duration_ms INTEGER DEFAULT 0,
	error TEXT DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

var aiTables = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id INTEGER,
		title TEXT DEFAULT '',
		model TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK(role IN ('system','user','assistant','tool')),
		content TEXT NOT NULL,
		tokens INTEGER DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	)`,
	queryLogDDL,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
}

func initAI(ctx context.Context, db *sql.DB) error {
	return schema.Exec(ctx, db, aiTables...)
}

var aiMigration = schema.Migration{
	Guard: "conversations",
	Rules: []schema.Rule{
		schema.EnsureColumn("conversations", "model", "TEXT DEFAULT ''"),
		schema.EnsureColumn("messages", "tokens", "INTEGER DEFAULT 0"),
		schema.EnsureTable("query_log", queryLogDDL),
	},
}

package modules

import (
	"context"
	"database/sql"
	"fmt"

	"intratool/internal/auth"
	"intratool/internal/schema"
)

const quoteDraftsDDL = `CREATE TABLE IF NOT EXISTS quote_drafts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	customer_id INTEGER,
	payload TEXT NOT NULL DEFAULT '{}',
	user_id INTEGER REFERENCES users(id) ON DELETE SET NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

var mainTables = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		permissions TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		display_name TEXT DEFAULT '',
		email TEXT DEFAULT '',
		role TEXT NOT NULL DEFAULT 'operator' REFERENCES roles(id),
		active INTEGER DEFAULT 1,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS app_settings (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		company_name TEXT DEFAULT '',
		currency TEXT DEFAULT 'EUR',
		vat_rate REAL DEFAULT 0,
		smtp_config TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		vat_number TEXT DEFAULT '',
		email TEXT DEFAULT '',
		address TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS quotes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		number TEXT UNIQUE NOT NULL,
		customer_id INTEGER REFERENCES customers(id) ON DELETE SET NULL,
		status TEXT DEFAULT 'draft' CHECK(status IN ('draft','sent','accepted','rejected','expired')),
		total REAL DEFAULT 0,
		notes TEXT DEFAULT '',
		created_by INTEGER REFERENCES users(id) ON DELETE SET NULL,
		valid_until TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS quote_lines (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quote_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		qty REAL NOT NULL DEFAULT 1 CHECK(qty > 0),
		unit_price REAL NOT NULL DEFAULT 0 CHECK(unit_price >= 0),
		FOREIGN KEY (quote_id) REFERENCES quotes(id) ON DELETE CASCADE
	)`,
	quoteDraftsDDL,
	`CREATE INDEX IF NOT EXISTS idx_quotes_status ON quotes(status)`,
	`CREATE INDEX IF NOT EXISTS idx_quote_lines_quote_id ON quote_lines(quote_id)`,
}

var mainSeeds = []string{
	`INSERT OR IGNORE INTO roles (id, label, permissions) VALUES
		('admin', 'Administrator', '["*"]'),
		('manager', 'Manager', '["quotes","planner","requests","warehouse","reports"]'),
		('operator', 'Operator', '["planner","warehouse"]'),
		('viewer', 'Viewer', '[]')`,
	`INSERT OR IGNORE INTO app_settings (id) VALUES (1)`,
}

func initMain(ctx context.Context, db *sql.DB) error {
	if err := schema.Exec(ctx, db, append(mainTables, mainSeeds...)...); err != nil {
		return err
	}
	hash, err := auth.HashPassword(auth.DefaultAdminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (username, password_hash, display_name, role) VALUES (?, ?, ?, ?)`,
		"admin", hash, "Administrator", "admin")
	return err
}

var mainMigration = schema.Migration{
	Guard: "users",
	Rules: []schema.Rule{
		schema.EnsureColumn("users", "password_hash", "TEXT NOT NULL DEFAULT ''"),
		schema.EnsureColumn("users", "email", "TEXT DEFAULT ''"),
		schema.EnsureColumn("users", "active", "INTEGER DEFAULT 1"),
		schema.EnsureTable("quote_drafts", quoteDraftsDDL),
		schema.EnsureColumn("quote_drafts", "user_id", "INTEGER REFERENCES users(id) ON DELETE SET NULL"),
		schema.EnsureColumn("app_settings", "smtp_config", "TEXT NOT NULL DEFAULT '{}'"),
	},
	Backfills: []schema.Backfill{
		{Name: "users.password to password_hash", Run: moveLegacyPasswords},
		{Name: "users.password_hash bcrypt", Run: func(ctx context.Context, db *sql.DB) (int64, error) {
			return auth.RehashPlaintext(ctx, db, "users", "id", "password_hash")
		}},
	},
}

// moveLegacyPasswords moves the plaintext password column of old files into
// password_hash wherever the hash is still empty, then blanks the legacy
// column. The bcrypt backfill rewrites the moved values.
func moveLegacyPasswords(ctx context.Context, db *sql.DB) (moved int64, err error) {
	legacy, err := schema.ColumnExists(ctx, db, "users", "password")
	if err != nil || !legacy {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = password
		WHERE (password_hash IS NULL OR password_hash = '') AND password IS NOT NULL AND password <> ''`)
	if err != nil {
		return 0, err
	}
	if moved, err = res.RowsAffected(); err != nil {
		return 0, err
	}
	if _, err = tx.ExecContext(ctx, `UPDATE users SET password = '' WHERE password <> ''`); err != nil {
		return 0, err
	}
	return moved, tx.Commit()
}

package modules

import (
	"context"
	"database/sql"

	"intratool/internal/schema"
)

var costAssistantTables = []string{
	`CREATE TABLE IF NOT EXISTS cost_configs (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		config TEXT NOT NULL DEFAULT '{}',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS cost_estimates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		quote_id INTEGER,
		label TEXT NOT NULL,
		inputs TEXT NOT NULL DEFAULT '{}',
		material_cost REAL DEFAULT 0,
		labour_cost REAL DEFAULT 0,
		margin REAL DEFAULT 0,
		currency TEXT DEFAULT 'EUR',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`INSERT OR IGNORE INTO cost_configs (id, config) VALUES (1, '{}')`,
}

func initCostAssistant(ctx context.Context, db *sql.DB) error {
	return schema.Exec(ctx, db, costAssistantTables...)
}

var costAssistantMigration = schema.Migration{
	Guard: "cost_configs",
	Rules: []schema.Rule{
		schema.EnsureColumn("cost_estimates", "currency", "TEXT DEFAULT 'EUR'"),
		schema.EnsureColumn("cost_estimates", "margin", "REAL DEFAULT 0"),
	},
}

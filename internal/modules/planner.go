package modules

import (
	"context"
	"database/sql"

	"intratool/internal/schema"
)

const machinesDDL = `CREATE TABLE IF NOT EXISTS machines (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT UNIQUE NOT NULL,
	capacity_per_day REAL DEFAULT 8,
	active INTEGER DEFAULT 1
)`

var plannerTables = []string{
	`CREATE TABLE IF NOT EXISTS production_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference TEXT UNIQUE NOT NULL,
		quote_id INTEGER,
		product TEXT NOT NULL,
		qty REAL NOT NULL DEFAULT 1 CHECK(qty > 0),
		status TEXT DEFAULT 'planned' CHECK(status IN ('planned','in_progress','done','cancelled','on_hold')),
		priority INTEGER DEFAULT 0,
		due_date TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	machinesDDL,
	`CREATE TABLE IF NOT EXISTS planning_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		machine_id INTEGER REFERENCES machines(id) ON DELETE SET NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		notes TEXT DEFAULT '',
		FOREIGN KEY (order_id) REFERENCES production_orders(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS planner_settings (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		work_day_start TEXT DEFAULT '08:00',
		work_day_end TEXT DEFAULT '17:00',
		working_days TEXT NOT NULL DEFAULT '[1,2,3,4,5]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_planning_slots_order ON planning_slots(order_id)`,
	`CREATE INDEX IF NOT EXISTS idx_production_orders_status ON production_orders(status)`,
	`INSERT OR IGNORE INTO planner_settings (id) VALUES (1)`,
}

func initPlanner(ctx context.Context, db *sql.DB) error {
	return schema.Exec(ctx, db, plannerTables...)
}

var plannerMigration = schema.Migration{
	Guard: "production_orders",
	Rules: []schema.Rule{
		schema.EnsureColumn("production_orders", "priority", "INTEGER DEFAULT 0"),
		schema.EnsureColumn("production_orders", "due_date", "TEXT DEFAULT ''"),
		schema.EnsureTable("machines", machinesDDL),
		schema.EnsureColumn("planning_slots", "machine_id", "INTEGER REFERENCES machines(id) ON DELETE SET NULL"),
	},
}

package modules

import (
	"context"
	"database/sql"

	"intratool/internal/schema"
)

const cycleCountsDDL = `CREATE TABLE IF NOT EXISTS cycle_counts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	location_id INTEGER NOT NULL,
	counted_by TEXT DEFAULT '',
	counted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	discrepancies INTEGER DEFAULT 0,
	FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
)`

var warehouseTables = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		code TEXT UNIQUE NOT NULL,
		description TEXT DEFAULT '',
		kind TEXT DEFAULT 'shelf' CHECK(kind IN ('dock','shelf','bin','floor'))
	)`,
	`CREATE TABLE IF NOT EXISTS inventory (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		location_id INTEGER NOT NULL,
		sku TEXT NOT NULL,
		description TEXT DEFAULT '',
		qty REAL NOT NULL DEFAULT 0 CHECK(qty >= 0),
		lot_number TEXT DEFAULT '',
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(location_id, sku, lot_number),
		FOREIGN KEY (location_id) REFERENCES locations(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sku TEXT NOT NULL,
		from_location_id INTEGER REFERENCES locations(id) ON DELETE SET NULL,
		to_location_id INTEGER REFERENCES locations(id) ON DELETE SET NULL,
		qty REAL NOT NULL,
		reason TEXT DEFAULT '',
		reference TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	cycleCountsDDL,
	`CREATE INDEX IF NOT EXISTS idx_inventory_sku ON inventory(sku)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_sku ON stock_movements(sku)`,
	`INSERT OR IGNORE INTO locations (code, description, kind) VALUES ('RECEIVING', 'Goods-in dock', 'dock')`,
}

func initWarehouse(ctx context.Context, db *sql.DB) error {
	return schema.Exec(ctx, db, warehouseTables...)
}

var warehouseMigration = schema.Migration{
	Guard: "locations",
	Rules: []schema.Rule{
		schema.EnsureColumn("inventory", "lot_number", "TEXT DEFAULT ''"),
		schema.EnsureColumn("stock_movements", "reference", "TEXT DEFAULT ''"),
		schema.EnsureTable("cycle_counts", cycleCountsDDL),
	},
}

package modules

import (
	"context"
	"database/sql"

	"intratool/internal/schema"
)

// request_approvals used to be keyed by request alone, which allowed a
// single approver per request.
const requestApprovalsDDL = `CREATE TABLE IF NOT EXISTS request_approvals (
	request_id INTEGER NOT NULL,
	approver TEXT NOT NULL,
	decision TEXT DEFAULT 'pending' CHECK(decision IN ('pending','approved','rejected')),
	decided_at DATETIME,
	PRIMARY KEY (request_id, approver),
	FOREIGN KEY (request_id) REFERENCES purchase_requests(id) ON DELETE CASCADE
)`

var requestApprovalsColumns = []string{"request_id", "approver", "decision", "decided_at"}

var requestsTables = []string{
	`CREATE TABLE IF NOT EXISTS purchase_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		requested_by TEXT NOT NULL DEFAULT '',
		supplier TEXT DEFAULT '',
		status TEXT DEFAULT 'open' CHECK(status IN ('open','approved','ordered','received','rejected')),
		approved_by TEXT DEFAULT '',
		needed_by TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS request_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id INTEGER NOT NULL,
		description TEXT NOT NULL,
		qty REAL NOT NULL DEFAULT 1 CHECK(qty > 0),
		unit_cost REAL DEFAULT 0,
		FOREIGN KEY (request_id) REFERENCES purchase_requests(id) ON DELETE CASCADE
	)`,
	requestApprovalsDDL,
	`CREATE INDEX IF NOT EXISTS idx_request_items_request ON request_items(request_id)`,
}

func initRequests(ctx context.Context, db *sql.DB) error {
	return schema.Exec(ctx, db, requestsTables...)
}

var requestsMigration = schema.Migration{
	Guard: "purchase_requests",
	Rules: []schema.Rule{
		schema.EnsureColumn("purchase_requests", "approved_by", "TEXT DEFAULT ''"),
		schema.EnsureColumn("purchase_requests", "needed_by", "TEXT DEFAULT ''"),
		schema.EnsureTable("request_approvals", requestApprovalsDDL),
		schema.EnsurePrimaryKey("request_approvals", []string{"request_id", "approver"},
			requestApprovalsDDL, requestApprovalsColumns),
	},
}

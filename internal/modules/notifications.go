package modules

import (
	"context"
	"database/sql"

	"intratool/internal/schema"
)

var notificationsTables = []string{
	`CREATE TABLE IF NOT EXISTS notification_channels (
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		enabled INTEGER DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id INTEGER,
		channel TEXT NOT NULL DEFAULT 'in_app' REFERENCES notification_channels(id),
		severity TEXT DEFAULT 'info' CHECK(severity IN ('info','warning','critical')),
		title TEXT NOT NULL,
		body TEXT DEFAULT '',
		module TEXT DEFAULT '',
		record_id TEXT DEFAULT '',
		read_at DATETIME,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS notification_preferences (
		user_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		channel TEXT NOT NULL,
		enabled INTEGER DEFAULT 1,
		PRIMARY KEY (user_id, event_type, channel),
		FOREIGN KEY (channel) REFERENCES notification_channels(id) ON DELETE CASCADE
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_user_read ON notifications(user_id, read_at)`,
	`INSERT OR IGNORE INTO notification_channels (id, label) VALUES
		('in_app', 'In-app'), ('email', 'E-mail'), ('telegram', 'Telegram')`,
}

func initNotifications(ctx context.Context, db *sql.DB) error {
	return schema.Exec(ctx, db, notificationsTables...)
}

var notificationsMigration = schema.Migration{
	Guard: "notifications",
	Rules: []schema.Rule{
		schema.EnsureColumn("notifications", "channel", "TEXT NOT NULL DEFAULT 'in_app'"),
		schema.EnsureColumn("notifications", "read_at", "DATETIME"),
		schema.EnsureColumn("notifications", "severity", "TEXT DEFAULT 'info'"),
	},
}

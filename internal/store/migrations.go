package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for a queue database. Each statement uses
// IF NOT EXISTS for idempotency, matching the on-disk layout in spec
// section 6: a single tasks table plus a small meta table carrying
// queue-level state.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		app_name      TEXT NOT NULL,
		app_hash      TEXT NOT NULL DEFAULT '',
		kind          TEXT NOT NULL DEFAULT 'python',
		args_blob     BLOB,
		kwargs_blob   BLOB,
		deps          TEXT NOT NULL DEFAULT '[]',
		state         TEXT NOT NULL DEFAULT 'WAITING',
		result_blob   BLOB,
		errno         INTEGER NOT NULL DEFAULT 0,
		out           TEXT NOT NULL DEFAULT '',
		err           TEXT NOT NULL DEFAULT '',
		jobid         TEXT NOT NULL DEFAULT '',
		tm_config     BLOB,
		t_created     REAL NOT NULL,
		t_started     REAL,
		t_finished    REAL,
		t_heartbeat   REAL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_tasks_state ON tasks(state)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_app_name_state ON tasks(app_name, state)`,

	`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string
}{
	{
		table:    "tasks",
		column:   "tm_config_hash",
		alterSQL: "ALTER TABLE tasks ADD COLUMN tm_config_hash TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_tasks_tm_config_hash ON tasks(tm_config_hash)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and
// seeds the meta row that tracks queue state.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO meta (key, value) VALUES ('state', 'ACTIVE')`)
	return err
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) SchemaSQL() string { return sqliteSchemaSQL }

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// TimeParam stores timestamps in the format datetime('now') produces so
// that text comparison orders them.
func (d *SQLiteDialect) TimeParam(t time.Time) any {
	return t.UTC().Format("2006-01-02 15:04:05")
}

func (d *SQLiteDialect) IntervalDeleteExpr(createdAtCol string, pb ParamBuilder, days string) string {
	ph := pb.Add(days)
	return fmt.Sprintf("%s < datetime('now', '-' || %s || ' days')", createdAtCol, ph)
}

func (d *SQLiteDialect) SyncCommitOff() string { return "" }

const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS _console_activity (
    id           TEXT PRIMARY KEY,
    workspace    TEXT NOT NULL,
    operator     TEXT NOT NULL DEFAULT '',
    page         TEXT NOT NULL,
    action       TEXT NOT NULL,
    record_id    TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL,
    message      TEXT NOT NULL DEFAULT '',
    duration_ms  INTEGER NOT NULL DEFAULT 0,
    created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_console_activity_created ON _console_activity (created_at);
`

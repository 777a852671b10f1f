package schema

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Change is one additive correction planned against a Snapshot.
type Change interface {
	fmt.Stringer
	Apply(ctx context.Context, db *sql.DB) error
}

// AddColumn appends a column to an existing table.
type AddColumn struct {
	Table      string
	Column     string
	Definition string // type and constraints, e.g. "TEXT DEFAULT ''"
}

func (c AddColumn) String() string {
	return fmt.Sprintf("add column %s.%s", c.Table, c.Column)
}

// Apply runs ALTER TABLE ... ADD COLUMN.
func (c AddColumn) Apply(ctx context.Context, db *sql.DB) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", QuoteIdent(c.Table), QuoteIdent(c.Column), c.Definition)
	_, err := db.ExecContext(ctx, stmt)
	return err
}

// CreateTable creates a missing table.
type CreateTable struct {
	Table string
	DDL   string
}

func (c CreateTable) String() string { return "create table " + c.Table }

// Apply runs the table's DDL.
func (c CreateTable) Apply(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, c.DDL)
	return err
}

// RecreateTable rebuilds a table whose structure cannot be reached with
// ALTER TABLE, such as a different primary key. Rows are carried over for
// the listed columns. The whole rebuild is one transaction.
type RecreateTable struct {
	Table   string
	DDL     string   // creates Table with the new structure
	Columns []string // columns present in both the old and the new table
	After   []string // statements run after the copy, e.g. indexes
}

func (c RecreateTable) String() string { return "recreate table " + c.Table }

// Apply creates the new table under a scratch name, copies rows, drops the
// old table and renames the new one into place, so that foreign keys in
// other tables keep pointing at Table. Foreign key enforcement is off for
// the rebuild and checked before commit. A failure rolls everything back.
func (c RecreateTable) Apply(ctx context.Context, db *sql.DB) (err error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("recreate %s: %w", c.Table, err)
	}
	defer func() { _ = conn.Close() }()

	// foreign_keys cannot change inside a transaction
	var fk int
	if err := conn.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk); err != nil {
		return fmt.Errorf("recreate %s: %w", c.Table, err)
	}
	if fk == 1 {
		if _, err := conn.ExecContext(ctx, `PRAGMA foreign_keys = OFF`); err != nil {
			return fmt.Errorf("recreate %s: %w", c.Table, err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.WithoutCancel(ctx), `PRAGMA foreign_keys = ON`)
		}()
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin recreate %s: %w", c.Table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	scratch := c.Table + "__new"
	ddl, ok := renameCreate(c.DDL, c.Table, scratch)
	if !ok {
		return fmt.Errorf("recreate %s: DDL does not create %s", c.Table, c.Table)
	}
	if _, err = tx.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create %s: %w", scratch, err)
	}
	if len(c.Columns) > 0 {
		quoted := make([]string, len(c.Columns))
		for i, col := range c.Columns {
			quoted[i] = QuoteIdent(col)
		}
		cols := strings.Join(quoted, ", ")
		copyStmt := fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) SELECT %s FROM %s",
			QuoteIdent(scratch), cols, cols, QuoteIdent(c.Table))
		if _, err = tx.ExecContext(ctx, copyStmt); err != nil {
			return fmt.Errorf("copy %s: %w", c.Table, err)
		}
	}
	if _, err = tx.ExecContext(ctx, "DROP TABLE "+QuoteIdent(c.Table)); err != nil {
		return fmt.Errorf("drop %s: %w", c.Table, err)
	}
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteIdent(scratch), QuoteIdent(c.Table))); err != nil {
		return fmt.Errorf("rename %s: %w", scratch, err)
	}
	for _, stmt := range c.After {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("recreate %s: %w", c.Table, err)
		}
	}
	if fk == 1 {
		if err = foreignKeyCheck(ctx, tx); err != nil {
			return fmt.Errorf("recreate %s: %w", c.Table, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit recreate %s: %w", c.Table, err)
	}
	return nil
}

var createTablePattern = regexp.MustCompile(`(?is)^(\s*CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?)("[^"]+"|` + "`[^`]+`" + `|\[[^\]]+\]|[A-Za-z_][A-Za-z0-9_]*)`)

// renameCreate rewrites the table name of a CREATE TABLE statement for table.
func renameCreate(ddl, table, name string) (string, bool) {
	m := createTablePattern.FindStringSubmatchIndex(ddl)
	if m == nil {
		return "", false
	}
	got := strings.Trim(ddl[m[4]:m[5]], "\"`[]")
	if !strings.EqualFold(got, table) {
		return "", false
	}
	return ddl[:m[4]] + QuoteIdent(name) + ddl[m[5]:], true
}

// foreignKeyCheck fails when any foreign key in the database is violated.
func foreignKeyCheck(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	if rows.Next() {
		return errors.New("foreign key violations after rebuild")
	}
	return rows.Err()
}

// Rule inspects a snapshot and returns the changes it needs. Rules are pure:
// they never touch a database.
type Rule func(s Snapshot) []Change

// EnsureTable creates table when it is missing.
func EnsureTable(table, ddl string) Rule {
	return func(s Snapshot) []Change {
		if s.HasTable(table) {
			return nil
		}
		return []Change{CreateTable{Table: table, DDL: ddl}}
	}
}

// EnsureColumn adds column to table when the table exists without it.
// A missing table is left to EnsureTable or the initializer.
func EnsureColumn(table, column, definition string) Rule {
	return func(s Snapshot) []Change {
		if !s.HasTable(table) || s.HasColumn(table, column) {
			return nil
		}
		return []Change{AddColumn{Table: table, Column: column, Definition: definition}}
	}
}

// EnsurePrimaryKey rebuilds table when its primary key differs from pk.
// columns lists the columns of the new table; those also present in the old
// table are copied.
func EnsurePrimaryKey(table string, pk []string, ddl string, columns []string, after ...string) Rule {
	return func(s Snapshot) []Change {
		if !s.HasTable(table) || equalFold(s.PrimaryKey(table), pk) {
			return nil
		}
		var keep []string
		for _, col := range columns {
			if s.HasColumn(table, col) {
				keep = append(keep, col)
			}
		}
		return []Change{RecreateTable{Table: table, DDL: ddl, Columns: keep, After: after}}
	}
}

func equalFold(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

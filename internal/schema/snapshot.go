// Package schema inspects the tables of a SQLite file and plans additive
// changes against what the file actually contains. There is no version
// table: the current column and table set is the only schema state.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Column is one row of PRAGMA table_info.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	Default sql.NullString
	PK      int // 1-based position in the primary key, 0 when not part of it
}

// Table is a table and its columns in declaration order.
type Table struct {
	Name    string
	Columns []Column
}

// Snapshot is the introspected table set of one file.
type Snapshot struct {
	Tables map[string]Table
}

// NewSnapshot builds a snapshot from tables, mostly for tests of planning rules.
func NewSnapshot(tables ...Table) Snapshot {
	s := Snapshot{Tables: make(map[string]Table, len(tables))}
	for _, t := range tables {
		s.Tables[t.Name] = t
	}
	return s
}

// HasTable reports whether table exists.
func (s Snapshot) HasTable(table string) bool {
	_, ok := s.Tables[table]
	return ok
}

// HasColumn reports whether table exists and has column.
func (s Snapshot) HasColumn(table, column string) bool {
	t, ok := s.Tables[table]
	if !ok {
		return false
	}
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, column) {
			return true
		}
	}
	return false
}

// ColumnNames returns the column names of table in declaration order.
func (s Snapshot) ColumnNames(table string) []string {
	t := s.Tables[table]
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key columns of table in key order.
func (s Snapshot) PrimaryKey(table string) []string {
	t := s.Tables[table]
	var pk []Column
	for _, c := range t.Columns {
		if c.PK > 0 {
			pk = append(pk, c)
		}
	}
	sort.Slice(pk, func(i, j int) bool { return pk[i].PK < pk[j].PK })
	names := make([]string, len(pk))
	for i, c := range pk {
		names[i] = c.Name
	}
	return names
}

// TableNames returns all table names, sorted.
func (s Snapshot) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for n := range s.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Inspect reads the user tables of the database behind q.
func Inspect(ctx context.Context, q Querier) (Snapshot, error) {
	return InspectSchema(ctx, q, "main")
}

// InspectSchema is Inspect for an attached schema such as "warehouse_management".
func InspectSchema(ctx context.Context, q Querier, schemaName string) (Snapshot, error) {
	names, err := tableNames(ctx, q, schemaName)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Tables: make(map[string]Table, len(names))}
	for _, name := range names {
		cols, err := tableInfo(ctx, q, schemaName, name)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Tables[name] = Table{Name: name, Columns: cols}
	}
	return snap, nil
}

// TableExists reports whether table exists in the main schema.
func TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	return rows.Next(), rows.Err()
}

// ColumnExists reports whether table has column.
func ColumnExists(ctx context.Context, q Querier, table, column string) (bool, error) {
	cols, err := tableInfo(ctx, q, "main", table)
	if err != nil {
		return false, err
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, column) {
			return true, nil
		}
	}
	return false, nil
}

func tableNames(ctx context.Context, q Querier, schemaName string) ([]string, error) {
	query := fmt.Sprintf(`SELECT name FROM %s.sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name`, QuoteIdent(schemaName))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", schemaName, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func tableInfo(ctx context.Context, q Querier, schemaName, table string) ([]Column, error) {
	query := fmt.Sprintf(`PRAGMA %s.table_info(%s)`, QuoteIdent(schemaName), QuoteIdent(table))
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("table_info %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var (
			cid     int
			c       Column
			notnull int
		)
		if err := rows.Scan(&cid, &c.Name, &c.Type, &notnull, &c.Default, &c.PK); err != nil {
			return nil, fmt.Errorf("scan table_info %s: %w", table, err)
		}
		c.NotNull = notnull != 0
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// QuoteIdent quotes a SQL identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

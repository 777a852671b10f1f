package federation

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"intratool/internal/schema"
)

// TableInfo is one table visible to federated statements.
type TableInfo struct {
	Schema  string   `json:"schema"`
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// Qualified is the name statements use to reference the table.
func (t TableInfo) Qualified() string {
	if t.Schema == "main" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}

// Schema lists every table reachable from a federated statement: the main
// module's tables followed by those of each attached module.
func (e *Executor) Schema(ctx context.Context) (tables []TableInfo, err error) {
	defer mon.Task()(&ctx)(&err)

	err = e.session(ctx, func(ctx context.Context, conn *sql.Conn, aliases []string) error {
		for _, name := range append([]string{"main"}, aliases...) {
			snap, err := schema.InspectSchema(ctx, conn, name)
			if err != nil {
				return err
			}
			for _, table := range snap.TableNames() {
				tables = append(tables, TableInfo{
					Schema:  name,
					Name:    table,
					Columns: snap.ColumnNames(table),
				})
			}
		}
		return nil
	})
	return tables, Error.Wrap(err)
}

// Describe renders tables one per line as "schema.table(col, col)", the
// form handed to the text-to-SQL assistant.
func Describe(tables []TableInfo) string {
	var b strings.Builder
	for _, t := range tables {
		fmt.Fprintf(&b, "%s(%s)\n", t.Qualified(), strings.Join(t.Columns, ", "))
	}
	return b.String()
}

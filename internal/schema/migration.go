package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// Backfill is a one-off data transformation. Run must be self-terminating:
// once the condition it fixes no longer holds it changes nothing and
// returns 0.
type Backfill struct {
	Name string
	Run  func(ctx context.Context, db *sql.DB) (rows int64, err error)
}

// Migration is the forward-only, introspection-driven migration of one module.
type Migration struct {
	// Guard is the module's foundational table. While it is missing the file
	// has not been initialized and the migration does nothing.
	Guard     string
	Rules     []Rule
	Backfills []Backfill
}

// Plan returns the schema changes s needs, in rule order.
func (m Migration) Plan(s Snapshot) []Change {
	if m.Guard != "" && !s.HasTable(m.Guard) {
		return nil
	}
	var changes []Change
	for _, rule := range m.Rules {
		changes = append(changes, rule(s)...)
	}
	return changes
}

// Run inspects db, applies the planned changes and then the backfills.
// It stops at the first failure; changes applied before it stay applied.
func (m Migration) Run(ctx context.Context, db *sql.DB) (applied []string, err error) {
	snap, err := Inspect(ctx, db)
	if err != nil {
		return nil, err
	}
	if m.Guard != "" && !snap.HasTable(m.Guard) {
		return nil, nil
	}

	for _, c := range m.Plan(snap) {
		if err := c.Apply(ctx, db); err != nil {
			return applied, fmt.Errorf("%s: %w", c, err)
		}
		applied = append(applied, c.String())
	}

	for _, b := range m.Backfills {
		n, err := b.Run(ctx, db)
		if err != nil {
			return applied, fmt.Errorf("backfill %s: %w", b.Name, err)
		}
		if n > 0 {
			applied = append(applied, fmt.Sprintf("backfill %s (%d rows)", b.Name, n))
		}
	}
	return applied, nil
}

// Exec runs statements in order inside one transaction. Initializers use it
// for their CREATE TABLE IF NOT EXISTS and seed batches.
func Exec(ctx context.Context, db *sql.DB, stmts ...string) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, stmt := range stmts {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w\nSQL: %s", err, stmt)
		}
	}
	return tx.Commit()
}

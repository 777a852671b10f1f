// Package federation runs one ad-hoc statement across every module file by
// attaching the auxiliary files to the main module's connection for the
// duration of the call.
package federation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"time"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"intratool/internal/registry"
	"intratool/internal/schema"
	"intratool/internal/storage"
)

var mon = monkit.Package()

// Error is the class of federation errors.
var Error = errs.Class("federation")

// WriteResult is returned for statements that produce no rows.
type WriteResult struct {
	Changes         int64 `json:"changes"`
	LastInsertRowID int64 `json:"lastInsertRowid"`
}

// Result holds either the rows of a query or the outcome of a write.
type Result struct {
	Columns []string     `json:"columns,omitempty"`
	Rows    [][]any      `json:"rows,omitempty"`
	Write   *WriteResult `json:"write,omitempty"`
}

// IsWrite reports whether the statement produced no result set.
func (r *Result) IsWrite() bool { return r.Write != nil }

// Records returns the rows keyed by column name.
func (r *Result) Records() []map[string]any {
	out := make([]map[string]any, len(r.Rows))
	for i, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for j, col := range r.Columns {
			rec[col] = row[j]
		}
		out[i] = rec
	}
	return out
}

// Config configures an Executor.
type Config struct {
	SlowQuery   time.Duration
	ProfileSize int
}

// Executor federates the module files managed by a storage.Manager.
type Executor struct {
	log      *zap.Logger
	storage  *storage.Manager
	profiler *Profiler
}

// New returns an executor over the files of mgr.
func New(log *zap.Logger, mgr *storage.Manager, cfg Config) *Executor {
	log = log.Named("federation")
	return &Executor{
		log:      log,
		storage:  mgr,
		profiler: NewProfiler(log, cfg.SlowQuery, cfg.ProfileSize),
	}
}

// Profiler returns the executor's query profiler.
func (e *Executor) Profiler() *Profiler { return e.profiler }

// RunFederated executes sqlText against the main module with every existing
// auxiliary module attached under its alias, e.g. warehouse_management.
//
// sqlText is executed as-is, without parameter binding. Callers are
// responsible for having constrained it to what they intend to allow.
// Statement errors are logged with the SQL text and returned; attach and
// detach problems are logged and never returned.
func (e *Executor) RunFederated(ctx context.Context, sqlText string) (res *Result, err error) {
	defer mon.Task()(&ctx)(&err)
	return e.execute(ctx, sqlText, false)
}

// RunReadOnly is RunFederated for untrusted input. sqlText must pass
// ReadOnly, and it runs with query_only set on the connection so that no
// attached file can be changed by it.
func (e *Executor) RunReadOnly(ctx context.Context, sqlText string) (res *Result, err error) {
	defer mon.Task()(&ctx)(&err)
	if err := ReadOnly(sqlText); err != nil {
		return nil, err
	}
	return e.execute(ctx, sqlText, true)
}

func (e *Executor) execute(ctx context.Context, sqlText string, readOnly bool) (res *Result, err error) {
	start := time.Now()
	var attached []string
	err = e.session(ctx, func(ctx context.Context, conn *sql.Conn, aliases []string) error {
		attached = aliases
		if readOnly {
			if _, err := conn.ExecContext(ctx, `PRAGMA query_only = ON`); err != nil {
				return err
			}
			defer e.restoreWritable(context.WithoutCancel(ctx), conn)
		}
		var err error
		res, err = run(ctx, conn, sqlText)
		return err
	})

	profile := QueryProfile{
		Query:     sqlText,
		Duration:  time.Since(start),
		Timestamp: start,
		Attached:  attached,
	}
	if err != nil {
		profile.Error = err.Error()
		e.profiler.Record(profile)
		e.log.Error("federated statement failed", zap.String("sql", sqlText), zap.Error(err))
		return nil, Error.Wrap(err)
	}
	profile.Rows = len(res.Rows)
	if res.Write != nil {
		profile.Changes = res.Write.Changes
	}
	e.profiler.Record(profile)
	return res, nil
}

// session pins one connection of the main handle, attaches every existing
// auxiliary file to it, runs fn and detaches again. If an attachment
// survives the detach pass the connection is discarded rather than
// returned to the pool.
func (e *Executor) session(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn, aliases []string) error) error {
	reg := e.storage.Registry()
	main, err := e.storage.Acquire(ctx, reg.Main().File)
	if err != nil {
		return err
	}
	conn, err := main.DB().Conn(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	aliases := e.attach(ctx, conn, reg)
	defer e.detach(context.WithoutCancel(ctx), conn, aliases)

	return fn(ctx, conn, aliases)
}

func (e *Executor) attach(ctx context.Context, conn *sql.Conn, reg *registry.Registry) []string {
	var aliases []string
	for _, d := range reg.Auxiliaries() {
		if !e.storage.Exists(d.File) {
			continue
		}
		alias := d.Alias()
		// the path is bound, never spliced into the statement; it always
		// comes from the registry
		stmt := "ATTACH DATABASE ? AS " + schema.QuoteIdent(alias)
		if _, err := conn.ExecContext(ctx, stmt, e.storage.Path(d.File)); err != nil {
			e.log.Warn("attach failed", zap.String("module", d.ID), zap.String("alias", alias), zap.Error(err))
			continue
		}
		aliases = append(aliases, alias)
	}
	return aliases
}

func (e *Executor) detach(ctx context.Context, conn *sql.Conn, aliases []string) {
	// a transaction left open by the statement would block DETACH and
	// every later ATTACH on this connection
	_, _ = conn.ExecContext(ctx, "ROLLBACK")

	for _, alias := range aliases {
		if _, err := conn.ExecContext(ctx, "DETACH DATABASE "+schema.QuoteIdent(alias)); err != nil {
			e.log.Warn("detach failed", zap.String("alias", alias), zap.Error(err))
		}
	}

	left, err := attachedSchemas(ctx, conn)
	if err != nil || len(left) > 0 {
		e.log.Warn("discarding connection with attachments left over",
			zap.Strings("attached", left), zap.Error(err))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// restoreWritable clears query_only on conn. A connection that keeps it is
// discarded, otherwise every later write through the main handle would fail.
func (e *Executor) restoreWritable(ctx context.Context, conn *sql.Conn) {
	if _, err := conn.ExecContext(ctx, `PRAGMA query_only = OFF`); err != nil {
		e.log.Warn("discarding query-only connection", zap.Error(err))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// attachedSchemas lists every schema on conn besides main and temp.
func attachedSchemas(ctx context.Context, conn *sql.Conn) ([]string, error) {
	rows, err := conn.QueryContext(ctx, `PRAGMA database_list`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var (
			seq        int
			name, file sql.NullString
		)
		if err := rows.Scan(&seq, &name, &file); err != nil {
			return nil, err
		}
		if name.String != "main" && name.String != "temp" {
			names = append(names, name.String)
		}
	}
	return names, rows.Err()
}

// run executes sqlText on conn. A statement without result columns is a
// write; its outcome is read back from the same connection.
func run(ctx context.Context, conn *sql.Conn, sqlText string) (*Result, error) {
	var before int64
	if err := conn.QueryRowContext(ctx, `SELECT total_changes()`).Scan(&before); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, err
	}
	cols, err := rows.Columns()
	if err != nil {
		_ = rows.Close()
		return nil, err
	}

	res := &Result{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			_ = rows.Close()
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		res.Rows = append(res.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if len(cols) > 0 {
		return res, nil
	}

	var changes, total, lastID int64
	err = conn.QueryRowContext(ctx, `SELECT changes(), total_changes(), last_insert_rowid()`).Scan(&changes, &total, &lastID)
	if err != nil {
		return nil, err
	}
	if total == before {
		changes = 0
	}
	return &Result{Write: &WriteResult{Changes: changes, LastInsertRowID: lastID}}, nil
}

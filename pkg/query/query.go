// Package query executes SQL over exported traces using DuckDB.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/traceflow/traceflow/pkg/errors"
)

// Config controls the engine's DuckDB resources.
type Config struct {
	// MemoryLimit caps DuckDB memory, e.g. "4GB". Empty keeps the default.
	MemoryLimit string

	// Threads is the worker count; zero or negative means one per CPU.
	Threads int

	// TempDir is where DuckDB spills when over the memory limit.
	TempDir string
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{}
}

// settings renders the SET statements applied at engine startup.
func (c Config) settings() []string {
	threads := c.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	out := []string{fmt.Sprintf("SET threads=%d", threads)}
	if c.MemoryLimit != "" {
		out = append(out, fmt.Sprintf("SET memory_limit='%s'", strings.ReplaceAll(c.MemoryLimit, "'", "''")))
	}
	if c.TempDir != "" {
		out = append(out, fmt.Sprintf("SET temp_directory='%s'", strings.ReplaceAll(c.TempDir, "'", "''")))
	}
	return out
}

// Engine executes SQL queries using DuckDB over Parquet trace exports.
type Engine struct {
	db  *sql.DB
	cfg Config
}

// NewEngine creates a new query engine.
func NewEngine(cfg Config) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryInit, "failed to initialize DuckDB")
	}

	e := &Engine{db: db, cfg: cfg}
	for _, stmt := range cfg.settings() {
		if _, err := e.db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrap(err, errors.CodeQueryInit, "failed to apply engine setting").
				WithContext("statement", stmt)
		}
	}
	return e, nil
}

// Close closes the engine.
func (e *Engine) Close() error {
	return e.db.Close()
}

// RegisterEvents registers a Parquet trace export as the `events` view.
func (e *Engine) RegisterEvents(ctx context.Context, path string) error {
	query := fmt.Sprintf("CREATE OR REPLACE VIEW events AS SELECT * FROM read_parquet('%s')",
		strings.ReplaceAll(path, "'", "''"))
	if _, err := e.db.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, errors.CodeQueryInit, "failed to register events view").
			WithContext("path", path)
	}
	return nil
}

// Query executes a SQL query and returns results.
func (e *Engine) Query(ctx context.Context, sqlText string, args ...interface{}) (*Result, error) {
	start := time.Now()

	rows, err := e.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "query failed")
	}

	result := &Result{
		rows:     rows,
		duration: time.Since(start),
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.Wrap(err, errors.CodeQueryFailed, "failed to get columns")
	}
	result.columns = cols
	return result, nil
}

// GroupDurations returns per-group wall time over the events view: the
// span from the earliest member start to the latest member end.
func (e *Engine) GroupDurations(ctx context.Context) (*Result, error) {
	return e.Query(ctx, `
		SELECT group_id,
		       any_value(group_name) FILTER (group_name IS NOT NULL) AS name,
		       count(*) AS events,
		       max(start_ns + dur_ns) - min(start_ns) AS wall_ns
		FROM events
		WHERE group_id IS NOT NULL
		GROUP BY group_id
		ORDER BY group_id`)
}

// SlowestGroups returns the n groups with the largest wall time.
func (e *Engine) SlowestGroups(ctx context.Context, n int) (*Result, error) {
	return e.Query(ctx, `
		SELECT group_id,
		       any_value(group_name) FILTER (group_name IS NOT NULL) AS name,
		       max(start_ns + dur_ns) - min(start_ns) AS wall_ns
		FROM events
		WHERE group_id IS NOT NULL
		GROUP BY group_id
		ORDER BY wall_ns DESC
		LIMIT ?`, n)
}

// EagerTime returns total eager vs graph-executed time over the events view.
func (e *Engine) EagerTime(ctx context.Context) (*Result, error) {
	return e.Query(ctx, `
		SELECT is_eager, count(*) AS events, sum(dur_ns) AS total_ns
		FROM events
		GROUP BY is_eager
		ORDER BY is_eager`)
}

// Result represents query results.
type Result struct {
	rows     *sql.Rows
	columns  []string
	duration time.Duration
	rowCount int64
}

// Columns returns column names.
func (r *Result) Columns() []string {
	return r.columns
}

// Duration returns query duration.
func (r *Result) Duration() time.Duration {
	return r.duration
}

// Next advances to the next row.
func (r *Result) Next() bool {
	if r.rows.Next() {
		r.rowCount++
		return true
	}
	return false
}

// Scan scans the current row.
func (r *Result) Scan(dest ...interface{}) error {
	return r.rows.Scan(dest...)
}

// RowCount returns the number of rows read so far.
func (r *Result) RowCount() int64 {
	return r.rowCount
}

// Close releases the result.
func (r *Result) Close() error {
	return r.rows.Close()
}

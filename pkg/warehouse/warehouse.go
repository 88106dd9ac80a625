// Package warehouse provides the adapter the loader uses to talk to the
// analytical warehouse: table lifecycle, row inserts, batched loads and
// the promotion SQL. The SQL implementation runs on embedded engines
// (DuckDB or SQLite) behind database/sql.
package warehouse

import (
	"context"
	"fmt"
	"strings"
)

// Row is one record keyed by column name.
type Row = map[string]any

// TableID identifies a table within a dataset. Dataset may be empty for
// engines without schema support.
type TableID struct {
	Dataset string
	Table   string
}

func (t TableID) String() string {
	if t.Dataset == "" {
		return t.Table
	}
	return t.Dataset + "." + t.Table
}

// Job is a handle to an asynchronous load. Wait blocks until the load is
// durably committed or failed.
type Job interface {
	Wait(ctx context.Context) error
}

// Store is the narrow warehouse surface the loader needs. Implementations
// are constructed explicitly and injected; there are no package globals.
type Store interface {
	// CreateTable creates the table with the given schema if it does not
	// exist. An existing table is left untouched.
	CreateTable(ctx context.Context, table TableID, schema Schema) error

	// DeleteTable drops the table. Dropping a missing table is not an
	// error.
	DeleteTable(ctx context.Context, table TableID) error

	// TableExists reports whether the table exists.
	TableExists(ctx context.Context, table TableID) (bool, error)

	// InsertRows inserts rows one at a time, outside a transaction, so a
	// failing row never rolls back the others. Per-row failures are
	// collected into a *RowErrors.
	InsertRows(ctx context.Context, table TableID, rows []Row) error

	// Load starts an all-or-nothing batched load of rows and returns a
	// job handle. The rows are durably visible once Wait returns nil.
	Load(ctx context.Context, table TableID, schema Schema, rows []Row) (Job, error)

	// Query runs a statement returning rows as maps.
	Query(ctx context.Context, query string, args ...any) ([]Row, error)

	// Exec runs a statement and returns the affected row count.
	Exec(ctx context.Context, stmt string, args ...any) (int64, error)

	// RowCount returns the number of rows in the table.
	RowCount(ctx context.Context, table TableID) (int64, error)

	// Qualify renders the table identifier for this engine's dialect.
	Qualify(table TableID) string

	Close() error
}

// RowError records the failure of a single row insert.
type RowError struct {
	Index int
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Index, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// RowErrors aggregates per-row insert failures.
type RowErrors struct {
	Attempted int
	Errors    []RowError
}

func (e *RowErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no row errors"
	}
	return fmt.Sprintf("%d of %d rows failed, first: %v", len(e.Errors), e.Attempted, e.Errors[0])
}

// IsUniqueViolation reports whether err looks like a unique-constraint
// violation from either supported engine.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}

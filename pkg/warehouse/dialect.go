package warehouse

import (
	"context"
	"database/sql"
)

// dialect covers the differences between the supported engines: column
// type names, dataset handling and identifier qualification.
type dialect interface {
	columnType(t FieldType) string
	qualify(table TableID) string
	ensureDataset(ctx context.Context, db *sql.DB, dataset string) error
	existsQuery(table TableID) (query string, args []any)
}

// duckdbDialect maps datasets onto DuckDB schemas.
type duckdbDialect struct{}

func (duckdbDialect) columnType(t FieldType) string {
	switch t {
	case TypeInt64:
		return "BIGINT"
	case TypeFloat64:
		return "DOUBLE"
	case TypeBool:
		return "BOOLEAN"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		// STRING and JSON are stored as VARCHAR.
		return "VARCHAR"
	}
}

func (duckdbDialect) qualify(table TableID) string {
	if table.Dataset == "" {
		return quoteIdent(table.Table)
	}
	return quoteIdent(table.Dataset) + "." + quoteIdent(table.Table)
}

func (duckdbDialect) ensureDataset(ctx context.Context, db *sql.DB, dataset string) error {
	if dataset == "" {
		return nil
	}
	_, err := db.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quoteIdent(dataset))
	return err
}

func (duckdbDialect) existsQuery(table TableID) (string, []any) {
	schema := table.Dataset
	if schema == "" {
		schema = "main"
	}
	return "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = ? AND table_name = ?",
		[]any{schema, table.Table}
}

// sqliteDialect has no schema support: a dataset-qualified table becomes
// a single identifier containing a dot.
type sqliteDialect struct{}

func (sqliteDialect) columnType(t FieldType) string {
	switch t {
	case TypeInt64, TypeBool:
		return "INTEGER"
	case TypeFloat64:
		return "REAL"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (sqliteDialect) qualify(table TableID) string {
	return quoteIdent(flatName(table))
}

func (sqliteDialect) ensureDataset(context.Context, *sql.DB, string) error {
	return nil
}

func (sqliteDialect) existsQuery(table TableID) (string, []any) {
	return "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		[]any{flatName(table)}
}

func flatName(table TableID) string {
	if table.Dataset == "" {
		return table.Table
	}
	return table.Dataset + "." + table.Table
}

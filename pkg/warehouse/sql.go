package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/loaddock/loaddock/pkg/logging"
)

// Supported database/sql driver names.
const (
	DriverDuckDB  = "duckdb"
	DriverSQLite  = "sqlite3"
	DefaultDriver = DriverDuckDB
)

// insertBatchSize is the number of rows per multi-row INSERT statement
// during batched loads.
const insertBatchSize = 256

// Config holds configuration for the SQL warehouse.
type Config struct {
	// Driver selects the engine: "duckdb" (default) or "sqlite3".
	Driver string
	// Path is the database file. Empty means an in-memory database.
	Path string
}

// Validate checks configuration values.
func (c *Config) Validate() error {
	switch c.Driver {
	case "", DriverDuckDB, DriverSQLite:
	default:
		return fmt.Errorf("unknown warehouse driver %q: must be %s or %s", c.Driver, DriverDuckDB, DriverSQLite)
	}
	return nil
}

// SQLStore implements Store on an embedded SQL engine.
type SQLStore struct {
	db      *sql.DB
	dialect dialect

	// writeMu serializes write statements. Object decode runs in
	// parallel; loads against a single embedded engine do not.
	writeMu sync.Mutex
}

var _ Store = (*SQLStore)(nil)

// Open creates or opens the warehouse database.
func Open(cfg Config) (*SQLStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver
	}

	log := logging.WithStep("warehouse_open")

	var db *sql.DB
	var err error
	var d dialect

	switch driver {
	case DriverDuckDB:
		d = duckdbDialect{}
		db, err = sql.Open("duckdb", cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open duckdb database: %w", err)
		}

	case DriverSQLite:
		d = sqliteDialect{}
		dsn := cfg.Path
		if dsn == "" {
			dsn = ":memory:"
		} else {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if cfg.Path == "" {
			// Each pooled connection would otherwise get its own
			// private in-memory database.
			db.SetMaxOpenConns(1)
		} else {
			for _, pragma := range []string{
				"PRAGMA synchronous=NORMAL",
				"PRAGMA temp_store=MEMORY",
			} {
				if _, err := db.Exec(pragma); err != nil {
					db.Close()
					return nil, fmt.Errorf("execute pragma %q: %w", pragma, err)
				}
			}
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s database: %w", driver, err)
	}

	log.Info().
		Str("driver", driver).
		Str("path", cfg.Path).
		Msg("opened warehouse")

	return &SQLStore{db: db, dialect: d}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Qualify renders the table identifier for this engine's dialect.
func (s *SQLStore) Qualify(table TableID) string {
	return s.dialect.qualify(table)
}

// CreateTable creates the table with the given schema if it does not
// exist. The containing dataset is created first when the engine has
// schema support. An existing table is left untouched.
func (s *SQLStore) CreateTable(ctx context.Context, table TableID, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.dialect.ensureDataset(ctx, s.db, table.Dataset); err != nil {
		return fmt.Errorf("ensure dataset %q: %w", table.Dataset, err)
	}

	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		col := quoteIdent(f.Name) + " " + s.dialect.columnType(f.Type)
		if f.Required {
			col += " NOT NULL"
		}
		if f.Unique {
			col += " UNIQUE"
		}
		cols = append(cols, col)
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		s.dialect.qualify(table), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// DeleteTable drops the table. Dropping a missing table is not an error.
func (s *SQLStore) DeleteTable(ctx context.Context, table TableID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stmt := "DROP TABLE IF EXISTS " + s.dialect.qualify(table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

// TableExists reports whether the table exists.
func (s *SQLStore) TableExists(ctx context.Context, table TableID) (bool, error) {
	query, args := s.dialect.existsQuery(table)
	var n int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

// InsertRows inserts rows one at a time in autocommit mode, collecting
// per-row failures into a *RowErrors. A failing row never rolls back the
// others. The column set is taken from the existing table.
func (s *SQLStore) InsertRows(ctx context.Context, table TableID, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	cols, err := s.tableColumns(ctx, table)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stmt := insertSQL(s.dialect.qualify(table), cols, 1)
	args := make([]any, len(cols))

	var rowErrs []RowError
	for i, row := range rows {
		for j, col := range cols {
			args[j] = row[col]
		}
		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			rowErrs = append(rowErrs, RowError{Index: i, Err: err})
		}
	}

	if len(rowErrs) > 0 {
		return &RowErrors{Attempted: len(rows), Errors: rowErrs}
	}
	return nil
}

// Load starts an all-or-nothing batched load and returns a job handle.
func (s *SQLStore) Load(ctx context.Context, table TableID, schema Schema, rows []Row) (Job, error) {
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("load into %s: %w", table, err)
	}

	job := &loadJob{done: make(chan struct{})}
	go func() {
		defer close(job.done)
		job.err = s.loadRows(ctx, table, schema, rows)
	}()
	return job, nil
}

func (s *SQLStore) loadRows(ctx context.Context, table TableID, schema Schema, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load into %s: %w", table, err)
	}
	// No-op after a successful commit.
	defer tx.Rollback()

	cols := schema.Names()
	qualified := s.dialect.qualify(table)

	// Full batches as multi-row inserts, remainder one row at a time.
	batchStmt, err := tx.PrepareContext(ctx, insertSQL(qualified, cols, insertBatchSize))
	if err != nil {
		return fmt.Errorf("prepare batch insert for %s: %w", table, err)
	}
	defer batchStmt.Close()

	singleStmt, err := tx.PrepareContext(ctx, insertSQL(qualified, cols, 1))
	if err != nil {
		return fmt.Errorf("prepare insert for %s: %w", table, err)
	}
	defer singleStmt.Close()

	batchArgs := make([]any, 0, insertBatchSize*len(cols))
	i := 0
	for ; i+insertBatchSize <= len(rows); i += insertBatchSize {
		batchArgs = batchArgs[:0]
		for _, row := range rows[i : i+insertBatchSize] {
			for _, col := range cols {
				batchArgs = append(batchArgs, row[col])
			}
		}
		if _, err := batchStmt.ExecContext(ctx, batchArgs...); err != nil {
			return fmt.Errorf("load batch at row %d into %s: %w", i, table, err)
		}
	}

	args := make([]any, len(cols))
	for ; i < len(rows); i++ {
		for j, col := range cols {
			args[j] = rows[i][col]
		}
		if _, err := singleStmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("load row %d into %s: %w", i, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load into %s: %w", table, err)
	}
	return nil
}

// Query runs a statement returning rows as maps. []byte column values are
// converted to string.
func (s *SQLStore) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	var out []Row
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Exec runs a statement and returns the affected row count.
func (s *SQLStore) Exec(ctx context.Context, stmt string, args ...any) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("exec: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		// Not every statement reports a count; the statement itself
		// succeeded.
		return 0, nil
	}
	return n, nil
}

// RowCount returns the number of rows in the table.
func (s *SQLStore) RowCount(ctx context.Context, table TableID) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + s.dialect.qualify(table)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return n, nil
}

// tableColumns returns the column names of an existing table.
func (s *SQLStore) tableColumns(ctx context.Context, table TableID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+s.dialect.qualify(table)+" WHERE 1=0")
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("describe table %s: %w", table, err)
	}
	return cols, nil
}

// insertSQL builds an INSERT statement with n value tuples.
func insertSQL(qualified string, cols []string, n int) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	onePlaceholders := make([]string, len(cols))
	for i := range onePlaceholders {
		onePlaceholders[i] = "?"
	}
	oneRow := "(" + strings.Join(onePlaceholders, ", ") + ")"

	tuples := make([]string, n)
	for i := range tuples {
		tuples[i] = oneRow
	}

	return fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
		qualified, strings.Join(quoted, ", "), strings.Join(tuples, ", "))
}

// loadJob resolves when the background load commits or fails.
type loadJob struct {
	done chan struct{}
	err  error
}

func (j *loadJob) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

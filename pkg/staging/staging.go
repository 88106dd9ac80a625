// Package staging validates decoded records against the declared schema
// and loads them into the staging table. Loads are synchronous: when
// LoadBatch returns without error the rows are durably in the table.
package staging

import (
	"context"
	"fmt"

	"github.com/loaddock/loaddock/pkg/warehouse"
)

// Policy says what to do with records that fail schema validation.
// One policy is declared per run and applied to every format path.
type Policy int

const (
	// PolicyFailBatch rejects the whole object when any record fails
	// validation; nothing from that object is loaded.
	PolicyFailBatch Policy = iota
	// PolicySkipRows loads the records that validate and reports the
	// rest as rejected.
	PolicySkipRows
)

func (p Policy) String() string {
	switch p {
	case PolicyFailBatch:
		return "fail"
	case PolicySkipRows:
		return "skip"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

// ParsePolicy maps a flag value to a Policy. Empty selects PolicyFailBatch.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fail":
		return PolicyFailBatch, nil
	case "skip":
		return PolicySkipRows, nil
	}
	return 0, fmt.Errorf("unknown bad-row policy %q: must be fail or skip", s)
}

// RejectedRow describes one record that failed validation.
type RejectedRow struct {
	Index  int
	Reason string
}

// LoadResult reports what a LoadBatch call did.
type LoadResult struct {
	Accepted int
	Rejected []RejectedRow
}

// Error marks a staging failure for one batch.
type Error struct {
	Table warehouse.TableID
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("stage into %s: %v", e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// EnsureTable creates the staging table if it does not exist. An existing
// table is never altered; a schema drift surfaces later as load errors.
func EnsureTable(ctx context.Context, wh warehouse.Store, table warehouse.TableID, schema warehouse.Schema) error {
	if err := wh.CreateTable(ctx, table, schema); err != nil {
		return &Error{Table: table, Err: err}
	}
	return nil
}

// LoadBatch validates and coerces every record, then loads the accepted
// rows through the warehouse's batch load and waits for it to finish.
// Under PolicyFailBatch any rejected record fails the batch before
// anything is loaded. Under PolicySkipRows rejected records are reported
// in the result and the rest load normally.
func LoadBatch(ctx context.Context, wh warehouse.Store, table warehouse.TableID, schema warehouse.Schema, records []warehouse.Row, policy Policy) (LoadResult, error) {
	var res LoadResult
	if len(records) == 0 {
		return res, nil
	}

	rows := make([]warehouse.Row, 0, len(records))
	for i, rec := range records {
		row, err := coerceRecord(schema, rec)
		if err != nil {
			res.Rejected = append(res.Rejected, RejectedRow{Index: i, Reason: err.Error()})
			continue
		}
		rows = append(rows, row)
	}

	if policy == PolicyFailBatch && len(res.Rejected) > 0 {
		first := res.Rejected[0]
		return res, &Error{Table: table, Err: fmt.Errorf(
			"%d of %d records rejected, first: record %d: %s",
			len(res.Rejected), len(records), first.Index, first.Reason)}
	}

	if len(rows) == 0 {
		return res, nil
	}

	job, err := wh.Load(ctx, table, schema, rows)
	if err != nil {
		return res, &Error{Table: table, Err: err}
	}
	if err := job.Wait(ctx); err != nil {
		return res, &Error{Table: table, Err: err}
	}

	res.Accepted = len(rows)
	return res, nil
}

// coerceRecord maps one decoded record onto the schema. Unknown columns
// are an error; the schema is declared, not inferred.
func coerceRecord(schema warehouse.Schema, rec warehouse.Row) (warehouse.Row, error) {
	row := make(warehouse.Row, len(schema))
	for _, f := range schema {
		v, err := f.Coerce(rec[f.Name])
		if err != nil {
			return nil, err
		}
		if v == nil && f.Required {
			return nil, fmt.Errorf("field %q: required value is missing", f.Name)
		}
		row[f.Name] = v
	}

	// row already holds every schema name, so membership doubles as the
	// known-column check.
	for k := range rec {
		if _, known := row[k]; !known {
			return nil, fmt.Errorf("unknown column %q", k)
		}
	}
	return row, nil
}

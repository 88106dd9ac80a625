// Package ledger tracks which objects have been promoted. The table
// layout (archivos_procesados: nombre_archivo, fecha_carga) is a
// persisted contract shared with the warehouse's downstream consumers
// and must not change shape.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/loaddock/loaddock/pkg/warehouse"
)

// DefaultTable is the ledger table name.
const DefaultTable = "archivos_procesados"

// Schema returns the ledger table layout.
func Schema() warehouse.Schema {
	return warehouse.Schema{
		{Name: "nombre_archivo", Type: warehouse.TypeString, Required: true, Unique: true},
		{Name: "fecha_carga", Type: warehouse.TypeTimestamp, Required: true},
	}
}

// Error marks a ledger read or write failure.
type Error struct {
	Table warehouse.TableID
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Table, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Ensure creates the ledger table if it does not exist, so first runs
// work against a fresh dataset.
func Ensure(ctx context.Context, wh warehouse.Store, table warehouse.TableID) error {
	if err := wh.CreateTable(ctx, table, Schema()); err != nil {
		return &Error{Table: table, Err: err}
	}
	return nil
}

// Names returns the set of object names already recorded.
func Names(ctx context.Context, wh warehouse.Store, table warehouse.TableID) (map[string]struct{}, error) {
	rows, err := wh.Query(ctx, "SELECT nombre_archivo FROM "+wh.Qualify(table))
	if err != nil {
		return nil, &Error{Table: table, Err: err}
	}

	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		name, ok := row["nombre_archivo"].(string)
		if !ok {
			return nil, &Error{Table: table, Err: fmt.Errorf("nombre_archivo is %T, not a string", row["nombre_archivo"])}
		}
		set[name] = struct{}{}
	}
	return set, nil
}

// Record appends one entry per name with the current UTC time and
// returns how many entries were new. A name already present is benign:
// it means an earlier run promoted the object but died before or during
// ledgering, and the dedupe has already done its job.
func Record(ctx context.Context, wh warehouse.Store, table warehouse.TableID, names []string) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}

	now := time.Now().UTC()
	rows := make([]warehouse.Row, len(names))
	for i, name := range names {
		rows[i] = warehouse.Row{"nombre_archivo": name, "fecha_carga": now}
	}

	err := wh.InsertRows(ctx, table, rows)
	if err == nil {
		return len(names), nil
	}

	var rowErrs *warehouse.RowErrors
	if !errors.As(err, &rowErrs) {
		return 0, &Error{Table: table, Err: err}
	}
	for _, re := range rowErrs.Errors {
		if !warehouse.IsUniqueViolation(re.Err) {
			return 0, &Error{Table: table, Err: err}
		}
	}
	return len(names) - len(rowErrs.Errors), nil
}

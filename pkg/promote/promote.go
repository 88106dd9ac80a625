// Package promote moves staged rows into the final table. The staging
// table is dropped only after the copy is confirmed, so a failed or
// unverified copy always leaves the staged rows in place for inspection
// or re-promotion.
package promote

import (
	"context"
	"fmt"

	"github.com/loaddock/loaddock/pkg/warehouse"
)

// Result reports a completed promotion.
type Result struct {
	// RowsMoved is how many rows the final table gained.
	RowsMoved int64
}

// Error marks a promotion failure. Whenever Op is "copy" or "verify" the
// staging table still holds every staged row.
type Error struct {
	Staging warehouse.TableID
	Final   warehouse.TableID
	Op      string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("promote %s to %s: %s: %v", e.Staging, e.Final, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Run copies all staged rows into the final table, verifies the final
// table grew by exactly the staged count, then drops the staging table.
// A crash between copy and drop duplicates rows on the next promotion;
// that window is the accepted cost of never clearing an unconfirmed copy.
func Run(ctx context.Context, wh warehouse.Store, staging, final warehouse.TableID) (Result, error) {
	fail := func(op string, err error) (Result, error) {
		return Result{}, &Error{Staging: staging, Final: final, Op: op, Err: err}
	}

	staged, err := wh.RowCount(ctx, staging)
	if err != nil {
		return fail("count", err)
	}

	before, err := wh.RowCount(ctx, final)
	if err != nil {
		return fail("count", err)
	}

	copyStmt := fmt.Sprintf("INSERT INTO %s SELECT * FROM %s", wh.Qualify(final), wh.Qualify(staging))
	if _, err := wh.Exec(ctx, copyStmt); err != nil {
		return fail("copy", err)
	}

	// Verify by final-table growth, not driver-reported affected rows;
	// the two embedded drivers report those differently.
	after, err := wh.RowCount(ctx, final)
	if err != nil {
		return fail("verify", err)
	}
	moved := after - before
	if moved != staged {
		return fail("verify", fmt.Errorf("staged %d rows but final table grew by %d", staged, moved))
	}

	if err := wh.DeleteTable(ctx, staging); err != nil {
		// Rows are safely in the final table; the leftover staging
		// table needs a manual clean before the next run.
		return fail("clear", err)
	}

	return Result{RowsMoved: moved}, nil
}

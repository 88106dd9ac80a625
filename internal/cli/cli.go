// Package cli implements the command-line interface for loaddock.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/loaddock/loaddock/pkg/decode"
	"github.com/loaddock/loaddock/pkg/fileutil"
	"github.com/loaddock/loaddock/pkg/ledger"
	"github.com/loaddock/loaddock/pkg/logging"
	"github.com/loaddock/loaddock/pkg/objstore"
	"github.com/loaddock/loaddock/pkg/pipeline"
	"github.com/loaddock/loaddock/pkg/staging"
	"github.com/loaddock/loaddock/pkg/warehouse"
)

// Environment fallbacks for the connection flags.
const (
	envSrc = "LOADDOCK_SRC"
	envDB  = "LOADDOCK_DB"
)

// Run executes the CLI with the given arguments.
func Run(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: loaddock <command> [options]\ncommands: run, intake, load, ledger, clean")
	}

	switch args[0] {
	case "run":
		return runRun(args[1:])
	case "intake":
		return runIntake(args[1:])
	case "load":
		return runLoad(args[1:])
	case "ledger":
		return runLedger(args[1:])
	case "clean":
		return runClean(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// orEnv returns the flag value, falling back to the environment variable
// when the flag is empty. Flags take priority.
func orEnv(flagVal, envKey string) string {
	if flagVal != "" {
		return flagVal
	}
	return os.Getenv(envKey)
}

func closeStore(s objstore.Store) {
	if c, ok := s.(io.Closer); ok {
		c.Close()
	}
}

// runContext returns the context a command runs under, bounded by the
// timeout when one is set.
func runContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.WithCancel(context.Background())
}

// loadFlags holds the flags the run and load commands share.
type loadFlags struct {
	src          *string
	db           *string
	driver       *string
	dataset      *string
	stagingTable *string
	finalTable   *string
	ledgerTable  *string
	schemaPath   *string
	jsonMode     *string
	badRows      *string
	workers      *int
	partial      *bool
	debug        *bool
	human        *bool
}

func registerLoadFlags(fs *flag.FlagSet) *loadFlags {
	return &loadFlags{
		src:          fs.String("src", "", "source URI (s3://bucket/prefix or gs://bucket/prefix)"),
		db:           fs.String("db", "", "warehouse database file"),
		driver:       fs.String("driver", "", "warehouse driver: duckdb or sqlite3"),
		dataset:      fs.String("dataset", "", "dataset holding the tables"),
		stagingTable: fs.String("staging-table", "", "staging table name"),
		finalTable:   fs.String("final-table", "", "final table name"),
		ledgerTable:  fs.String("ledger-table", ledger.DefaultTable, "processed-objects table name"),
		schemaPath:   fs.String("schema", "", "path to the table schema JSON"),
		jsonMode:     fs.String("json-mode", "lines", "JSON payload layout: lines or array"),
		badRows:      fs.String("on-bad-rows", "fail", "bad row policy: fail or skip"),
		workers:      fs.Int("workers", pipeline.DefaultWorkers, "concurrent object loads"),
		partial:      fs.Bool("partial", false, "promote staged objects even when some failed"),
		debug:        fs.Bool("debug", false, "enable debug logging"),
		human:        fs.Bool("human", false, "human-friendly console output"),
	}
}

// buildRunner validates the flags, opens both backends and assembles the
// pipeline runner. The returned cleanup closes both backends.
func (f *loadFlags) buildRunner(ctx context.Context) (*pipeline.Runner, func(), error) {
	srcURI := orEnv(*f.src, envSrc)
	if srcURI == "" {
		return nil, nil, fmt.Errorf("--src is required (or set %s)", envSrc)
	}
	dbPath := orEnv(*f.db, envDB)
	if dbPath == "" {
		return nil, nil, fmt.Errorf("--db is required (or set %s)", envDB)
	}
	if *f.stagingTable == "" {
		return nil, nil, errors.New("--staging-table is required")
	}
	if *f.finalTable == "" {
		return nil, nil, errors.New("--final-table is required")
	}
	if *f.schemaPath == "" {
		return nil, nil, errors.New("--schema is required")
	}

	schema, err := warehouse.ParseSchemaFile(*f.schemaPath)
	if err != nil {
		return nil, nil, fmt.Errorf("--schema: %w", err)
	}
	mode, err := decode.ParseJSONMode(*f.jsonMode)
	if err != nil {
		return nil, nil, fmt.Errorf("--json-mode: %w", err)
	}
	policy, err := staging.ParsePolicy(*f.badRows)
	if err != nil {
		return nil, nil, fmt.Errorf("--on-bad-rows: %w", err)
	}

	store, bucket, prefix, err := objstore.Open(ctx, srcURI)
	if err != nil {
		return nil, nil, err
	}
	wh, err := warehouse.Open(warehouse.Config{Driver: *f.driver, Path: dbPath})
	if err != nil {
		closeStore(store)
		return nil, nil, err
	}

	r, err := pipeline.New(store, wh, pipeline.Config{
		Bucket:       bucket,
		Prefix:       prefix,
		Dataset:      *f.dataset,
		StagingTable: *f.stagingTable,
		FinalTable:   *f.finalTable,
		LedgerTable:  *f.ledgerTable,
		Schema:       schema,
		JSONMode:     mode,
		BadRows:      policy,
		Workers:      *f.workers,
		Partial:      *f.partial,
	})
	if err != nil {
		wh.Close()
		closeStore(store)
		return nil, nil, err
	}

	cleanup := func() {
		wh.Close()
		closeStore(store)
	}
	return r, cleanup, nil
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	f := registerLoadFlags(fs)
	timeout := fs.Duration("timeout", 0, "overall run timeout (0 means none)")
	reportPath := fs.String("report", "", "write the run report JSON to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*f.debug, *f.human)

	ctx, cancel := runContext(*timeout)
	defer cancel()

	r, cleanup, err := f.buildRunner(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, runErr := r.Run(ctx)
	if *reportPath != "" && rep != nil {
		if werr := writeReport(*reportPath, rep); werr != nil {
			if runErr == nil {
				return werr
			}
			logging.L().Error().Err(werr).Str("path", *reportPath).Msg("write report failed")
		}
	}
	if runErr != nil {
		return runErr
	}
	return failIfPartial(rep)
}

func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	f := registerLoadFlags(fs)
	timeout := fs.Duration("timeout", 0, "overall timeout (0 means none)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*f.debug, *f.human)

	names := fs.Args()
	if len(names) == 0 {
		return errors.New("at least one object name is required")
	}

	ctx, cancel := runContext(*timeout)
	defer cancel()

	r, cleanup, err := f.buildRunner(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	rep, err := r.LoadObjects(ctx, names)
	if err != nil {
		return err
	}
	return failIfPartial(rep)
}

func runIntake(args []string) error {
	fs := flag.NewFlagSet("intake", flag.ContinueOnError)
	src := fs.String("src", "", "source URI (s3://bucket/prefix or gs://bucket/prefix)")
	db := fs.String("db", "", "warehouse database file")
	driver := fs.String("driver", "", "warehouse driver: duckdb or sqlite3")
	dataset := fs.String("dataset", "", "dataset holding the tables")
	ledgerTable := fs.String("ledger-table", ledger.DefaultTable, "processed-objects table name")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly console output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*debug, *human)

	srcURI := orEnv(*src, envSrc)
	if srcURI == "" {
		return fmt.Errorf("--src is required (or set %s)", envSrc)
	}
	dbPath := orEnv(*db, envDB)
	if dbPath == "" {
		return fmt.Errorf("--db is required (or set %s)", envDB)
	}

	ctx := context.Background()
	store, bucket, prefix, err := objstore.Open(ctx, srcURI)
	if err != nil {
		return err
	}
	defer closeStore(store)

	wh, err := warehouse.Open(warehouse.Config{Driver: *driver, Path: dbPath})
	if err != nil {
		return err
	}
	defer wh.Close()

	r, err := pipeline.New(store, wh, pipeline.Config{
		Bucket:      bucket,
		Prefix:      prefix,
		Dataset:     *dataset,
		LedgerTable: *ledgerTable,
	})
	if err != nil {
		return err
	}
	res, err := r.Intake(ctx)
	if err != nil {
		return err
	}
	for _, ref := range res.New {
		fmt.Println(ref.Name)
	}
	return nil
}

func runLedger(args []string) error {
	fs := flag.NewFlagSet("ledger", flag.ContinueOnError)
	db := fs.String("db", "", "warehouse database file")
	driver := fs.String("driver", "", "warehouse driver: duckdb or sqlite3")
	dataset := fs.String("dataset", "", "dataset holding the tables")
	ledgerTable := fs.String("ledger-table", ledger.DefaultTable, "processed-objects table name")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly console output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*debug, *human)

	dbPath := orEnv(*db, envDB)
	if dbPath == "" {
		return fmt.Errorf("--db is required (or set %s)", envDB)
	}

	ctx := context.Background()
	wh, err := warehouse.Open(warehouse.Config{Driver: *driver, Path: dbPath})
	if err != nil {
		return err
	}
	defer wh.Close()

	table := warehouse.TableID{Dataset: *dataset, Table: *ledgerTable}
	if err := ledger.Ensure(ctx, wh, table); err != nil {
		return err
	}

	names := fs.Args()
	if len(names) == 0 {
		// Without names the command lists what the ledger holds.
		seen, err := ledger.Names(ctx, wh, table)
		if err != nil {
			return err
		}
		sorted := make([]string, 0, len(seen))
		for name := range seen {
			sorted = append(sorted, name)
		}
		sort.Strings(sorted)
		for _, name := range sorted {
			fmt.Println(name)
		}
		return nil
	}

	written, err := ledger.Record(ctx, wh, table, names)
	if err != nil {
		return err
	}
	logging.L().Info().
		Int("written", written).
		Int("already_present", len(names)-written).
		Msg("ledger updated")
	return nil
}

func runClean(args []string) error {
	fs := flag.NewFlagSet("clean", flag.ContinueOnError)
	db := fs.String("db", "", "warehouse database file")
	driver := fs.String("driver", "", "warehouse driver: duckdb or sqlite3")
	dataset := fs.String("dataset", "", "dataset holding the tables")
	stagingTable := fs.String("staging-table", "", "staging table name")
	debug := fs.Bool("debug", false, "enable debug logging")
	human := fs.Bool("human", false, "human-friendly console output")
	if err := fs.Parse(args); err != nil {
		return err
	}
	logging.Init(*debug, *human)

	dbPath := orEnv(*db, envDB)
	if dbPath == "" {
		return fmt.Errorf("--db is required (or set %s)", envDB)
	}
	if *stagingTable == "" {
		return errors.New("--staging-table is required")
	}

	ctx := context.Background()
	wh, err := warehouse.Open(warehouse.Config{Driver: *driver, Path: dbPath})
	if err != nil {
		return err
	}
	defer wh.Close()

	return pipeline.Clean(ctx, wh, warehouse.TableID{Dataset: *dataset, Table: *stagingTable})
}

// failIfPartial surfaces per-object failures after a partial run so the
// exit status reflects them even though promotion went ahead.
func failIfPartial(rep *pipeline.Report) error {
	if rep.Failed > 0 {
		return fmt.Errorf("%d of %d objects failed; staged objects were promoted", rep.Failed, rep.NewObjects)
	}
	return nil
}

func writeReport(path string, rep *pipeline.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	b = append(b, '\n')
	if err := fileutil.WriteAtomic(path, b); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

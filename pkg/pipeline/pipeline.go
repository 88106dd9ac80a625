// Package pipeline orchestrates a full intake run: list the source,
// diff against the ledger, decode and stage new objects on a bounded
// worker pool, promote staged rows, then record the ledger entries.
// Failed steps are never rolled back; recovery is the next run's
// idempotency checks (ledger diff, staging leftover warning).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/loaddock/loaddock/internal/logctx"
	"github.com/loaddock/loaddock/pkg/decode"
	"github.com/loaddock/loaddock/pkg/intake"
	"github.com/loaddock/loaddock/pkg/ledger"
	"github.com/loaddock/loaddock/pkg/logging"
	"github.com/loaddock/loaddock/pkg/objstore"
	"github.com/loaddock/loaddock/pkg/promote"
	"github.com/loaddock/loaddock/pkg/staging"
	"github.com/loaddock/loaddock/pkg/warehouse"
)

// Step names the phase a run is in. It appears in logs, errors and the
// run report.
type Step string

const (
	StepListing   Step = "listing"
	StepFiltering Step = "filtering"
	StepDecoding  Step = "decoding"
	StepStaging   Step = "staging"
	StepPromoting Step = "promoting"
	StepLedgering Step = "ledgering"
)

// StepError marks the step a run failed in.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// DefaultWorkers bounds the decode+stage pool when Config.Workers is
// zero.
const DefaultWorkers = 4

// Config holds one run's parameters.
type Config struct {
	// Bucket and Prefix select the source objects.
	Bucket string
	Prefix string

	// Dataset scopes all three tables.
	Dataset      string
	StagingTable string
	FinalTable   string
	// LedgerTable defaults to ledger.DefaultTable.
	LedgerTable string

	// Schema is the declared layout of staging and final tables.
	Schema warehouse.Schema
	// JSONMode selects the JSON payload layout for every JSON object.
	JSONMode decode.JSONMode
	// BadRows is the validation policy applied to every object.
	BadRows staging.Policy

	// Workers bounds the decode+stage pool.
	Workers int
	// Partial promotes successfully staged objects even when sibling
	// objects failed. Failures are still reported.
	Partial bool
}

// Validate checks the parameters every operation needs.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket is required")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.StagingTable != "" && c.StagingTable == c.FinalTable {
		return fmt.Errorf("staging and final tables must differ, both are %q", c.StagingTable)
	}
	return nil
}

// validateLoad checks the extra parameters staging and promotion need.
func (c *Config) validateLoad() error {
	if c.StagingTable == "" {
		return errors.New("staging table is required")
	}
	if c.FinalTable == "" {
		return errors.New("final table is required")
	}
	if len(c.Schema) == 0 {
		return errors.New("schema is required")
	}
	return c.Schema.Validate()
}

// Runner executes runs against one source and one warehouse. Both are
// injected; the runner owns neither.
type Runner struct {
	store objstore.Store
	wh    warehouse.Store
	cfg   Config
}

// New creates a runner. Worker count and ledger table name get their
// defaults here.
func New(store objstore.Store, wh warehouse.Store, cfg Config) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.LedgerTable == "" {
		cfg.LedgerTable = ledger.DefaultTable
	}
	return &Runner{store: store, wh: wh, cfg: cfg}, nil
}

func (r *Runner) stagingID() warehouse.TableID {
	return warehouse.TableID{Dataset: r.cfg.Dataset, Table: r.cfg.StagingTable}
}

func (r *Runner) finalID() warehouse.TableID {
	return warehouse.TableID{Dataset: r.cfg.Dataset, Table: r.cfg.FinalTable}
}

func (r *Runner) ledgerID() warehouse.TableID {
	return warehouse.TableID{Dataset: r.cfg.Dataset, Table: r.cfg.LedgerTable}
}

// IntakeResult reports what the listing and ledger diff found.
type IntakeResult struct {
	// Listed is how many objects the listing returned, markers included.
	Listed int
	// New are the objects the ledger has not seen, in listing order.
	New []objstore.ObjectRef
}

// Intake lists the source and returns the objects the ledger has not
// seen. The ledger table is created if this is the first run against
// the dataset.
func (r *Runner) Intake(ctx context.Context) (IntakeResult, error) {
	log := logctx.FromContext(ctx)

	start := time.Now()
	listed, err := r.store.List(ctx, r.cfg.Bucket, r.cfg.Prefix)
	if err != nil {
		return IntakeResult{}, &StepError{Step: StepListing, Err: err}
	}
	logging.StepComplete(log, string(StepListing), time.Since(start)).
		Int("objects", len(listed)).
		Log("listed source objects")

	start = time.Now()
	if err := ledger.Ensure(ctx, r.wh, r.ledgerID()); err != nil {
		return IntakeResult{}, &StepError{Step: StepFiltering, Err: err}
	}
	seen, err := ledger.Names(ctx, r.wh, r.ledgerID())
	if err != nil {
		return IntakeResult{}, &StepError{Step: StepFiltering, Err: err}
	}

	fresh := intake.NewObjects(listed, seen)
	logging.StepComplete(log, string(StepFiltering), time.Since(start)).
		Int("ledgered", len(seen)).
		Int("new", len(fresh)).
		Log("filtered against ledger")

	return IntakeResult{Listed: len(listed), New: fresh}, nil
}

// Run executes the full workflow. The returned report is always
// non-nil and describes the run whether it succeeded or not.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	if err := r.cfg.validateLoad(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	runID := uuid.New().String()
	ctx = logctx.WithRun(ctx, *logging.L(), runID)
	log := logctx.FromContext(ctx)

	started := time.Now()
	rep := newReport(runID, r.cfg, started)

	res, err := r.Intake(ctx)
	if err != nil {
		return rep.finishFailure(err, started), err
	}
	rep.Listed = res.Listed
	rep.NewObjects = len(res.New)

	if len(res.New) == 0 {
		log.Info().Int("listed", res.Listed).Msg("no new objects, nothing to do")
		return rep.finishSuccess(started), nil
	}

	return r.load(ctx, rep, res.New, started)
}

// LoadObjects stages and promotes the explicitly named objects,
// bypassing the listing and ledger diff. Names the ledger already holds
// load again; the caller asked for exactly these.
func (r *Runner) LoadObjects(ctx context.Context, names []string) (*Report, error) {
	if err := r.cfg.validateLoad(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(names) == 0 {
		return nil, errors.New("no object names given")
	}

	runID := uuid.New().String()
	ctx = logctx.WithRun(ctx, *logging.L(), runID)

	started := time.Now()
	rep := newReport(runID, r.cfg, started)
	rep.NewObjects = len(names)

	if err := ledger.Ensure(ctx, r.wh, r.ledgerID()); err != nil {
		serr := &StepError{Step: StepFiltering, Err: err}
		return rep.finishFailure(serr, started), serr
	}

	refs := make([]objstore.ObjectRef, len(names))
	for i, name := range names {
		refs[i] = objstore.ObjectRef{Name: name, Format: objstore.FormatForName(name)}
	}
	return r.load(ctx, rep, refs, started)
}

// load runs the staging pool, promotion and ledgering over refs.
func (r *Runner) load(ctx context.Context, rep *Report, refs []objstore.ObjectRef, started time.Time) (*Report, error) {
	log := logctx.FromContext(ctx)

	if err := r.prepareStaging(ctx); err != nil {
		return rep.finishFailure(err, started), err
	}

	rep.Objects = r.stagePool(ctx, refs)
	rep.tally()

	if rep.Failed > 0 && !r.cfg.Partial {
		err := &StepError{
			Step: firstFailureStep(rep.Objects),
			Err:  fmt.Errorf("%d of %d objects failed", rep.Failed, len(refs)),
		}
		return rep.finishFailure(err, started), err
	}

	start := time.Now()
	// First promotion against a fresh dataset creates the final table;
	// after that it only ever gains rows.
	if err := r.wh.CreateTable(ctx, r.finalID(), r.cfg.Schema); err != nil {
		serr := &StepError{Step: StepPromoting, Err: err}
		return rep.finishFailure(serr, started), serr
	}
	pres, err := promote.Run(ctx, r.wh, r.stagingID(), r.finalID())
	if err != nil {
		serr := &StepError{Step: StepPromoting, Err: err}
		return rep.finishFailure(serr, started), serr
	}
	rep.RowsMoved = pres.RowsMoved
	logging.StepComplete(log, string(StepPromoting), time.Since(start)).
		Count("rows_moved", pres.RowsMoved).
		Log("promoted staged rows")

	start = time.Now()
	written, err := ledger.Record(ctx, r.wh, r.ledgerID(), stagedNames(rep.Objects))
	if err != nil {
		serr := &StepError{Step: StepLedgering, Err: err}
		return rep.finishFailure(serr, started), serr
	}
	rep.Ledgered = written
	markPromoted(rep.Objects)
	logging.StepComplete(log, string(StepLedgering), time.Since(start)).
		Int("entries", written).
		Log("recorded processed objects")

	rep.finishSuccess(started)
	logging.RunComplete(log, time.Since(started)).
		Int("listed", rep.Listed).
		Int("new", rep.NewObjects).
		Int("staged", rep.Staged).
		Int("skipped", rep.SkippedEmpty+rep.SkippedUnsupported+rep.Rejected).
		Int("failed", rep.Failed).
		Count("rows_moved", rep.RowsMoved).
		Log("run complete")
	return rep, nil
}

// prepareStaging warns about leftover rows from an earlier run, then
// makes sure the staging table exists. Leftovers promote together with
// this run's rows; that is the documented at-least-once tradeoff.
func (r *Runner) prepareStaging(ctx context.Context) error {
	log := logctx.FromContext(ctx)
	table := r.stagingID()

	exists, err := r.wh.TableExists(ctx, table)
	if err != nil {
		return &StepError{Step: StepStaging, Err: err}
	}
	if exists {
		n, err := r.wh.RowCount(ctx, table)
		if err != nil {
			return &StepError{Step: StepStaging, Err: err}
		}
		if n > 0 {
			log.Warn().
				Str("table", table.String()).
				Int64("rows", n).
				Msg("staging table holds rows from an earlier run; they will promote with this run")
		}
	}

	if err := staging.EnsureTable(ctx, r.wh, table, r.cfg.Schema); err != nil {
		return &StepError{Step: StepStaging, Err: err}
	}
	return nil
}

// stagePool decodes and stages every object on a bounded pool. A failed
// object records its outcome and never cancels its siblings; only a
// canceled context stops the pool early.
func (r *Runner) stagePool(ctx context.Context, refs []objstore.ObjectRef) []ObjectReport {
	log := logctx.FromContext(ctx)
	outcomes := make([]ObjectReport, len(refs))
	tracker := logging.NewTracker(int64(len(refs)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)

	for i, ref := range refs {
		g.Go(func() error {
			outcomes[i] = r.stageObject(gctx, ref, tracker)
			return nil
		})
	}
	// Workers record failures in their outcome slot instead of
	// returning them.
	_ = g.Wait()

	logging.StepComplete(log, string(StepStaging), tracker.Elapsed()).
		FromTracker(tracker).
		Log("decode and stage complete")
	return outcomes
}

// stageObject reads, decodes and stages one object.
func (r *Runner) stageObject(ctx context.Context, ref objstore.ObjectRef, tracker *logging.Tracker) ObjectReport {
	ctx = logctx.WithObject(ctx, ref.Name)
	log := logctx.FromContext(ctx)
	start := time.Now()

	out := ObjectReport{Name: ref.Name, Format: ref.Format.String()}

	if ref.Format == objstore.FormatUnsupported {
		// Tagged at listing; skip before spending a read on it.
		tracker.RecordSkip()
		out.Outcome = OutcomeSkippedUnsupported
		log.Warn().Msg("skipping object with unsupported format")
		return out
	}

	payload, err := r.store.ReadBytes(ctx, r.cfg.Bucket, ref.Name)
	if err != nil {
		tracker.RecordFailure()
		out.fail(StepDecoding, err)
		log.Error().Err(err).Msg("read object failed")
		return out
	}

	recs, err := decode.Records(ref, payload, decode.Options{JSONMode: r.cfg.JSONMode})
	switch {
	case errors.Is(err, decode.ErrUnsupportedFormat):
		tracker.RecordSkip()
		out.Outcome = OutcomeSkippedUnsupported
		log.Warn().Msg("skipping object with unsupported format")
		return out
	case errors.Is(err, decode.ErrEmptyPayload):
		tracker.RecordSkip()
		out.Outcome = OutcomeSkippedEmpty
		log.Warn().Msg("skipping empty object")
		return out
	case err != nil:
		tracker.RecordFailure()
		out.fail(StepDecoding, err)
		log.Error().Err(err).Msg("decode failed")
		return out
	}

	res, err := staging.LoadBatch(ctx, r.wh, r.stagingID(), r.cfg.Schema, recs, r.cfg.BadRows)
	out.Records = res.Accepted
	out.Rejected = len(res.Rejected)
	if err != nil {
		tracker.RecordFailure()
		out.fail(StepStaging, err)
		log.Error().Err(err).Int("rejected", out.Rejected).Msg("stage failed")
		return out
	}
	if res.Accepted == 0 {
		// Every row was rejected under the skip policy. Nothing was
		// staged, so the object is not ledgered and resurfaces next run.
		tracker.RecordSkip()
		out.Outcome = OutcomeRejected
		log.Warn().Int("rejected", out.Rejected).Msg("all records rejected")
		return out
	}

	tracker.RecordStaged(time.Since(start))
	out.Outcome = OutcomeStaged
	logging.ObjectComplete(log, string(StepStaging), time.Since(start)).
		Bytes("size", int64(len(payload))).
		Int("records", res.Accepted).
		Int("rejected", out.Rejected).
		FromTracker(tracker).
		LogDebug("object staged")
	return out
}

// Clean drops a leftover staging table after a crashed run. Rows left
// there never promoted and their objects are not ledgered, so the next
// run re-stages them; dropping the stale copy keeps it from promoting
// twice.
func Clean(ctx context.Context, wh warehouse.Store, table warehouse.TableID) error {
	if table.Table == "" {
		return errors.New("staging table is required")
	}
	log := logctx.FromContext(ctx)

	exists, err := wh.TableExists(ctx, table)
	if err != nil {
		return fmt.Errorf("check staging table: %w", err)
	}
	if !exists {
		log.Info().Str("table", table.String()).Msg("staging table not present, nothing to clean")
		return nil
	}

	n, err := wh.RowCount(ctx, table)
	if err != nil {
		return fmt.Errorf("count staging rows: %w", err)
	}
	if err := wh.DeleteTable(ctx, table); err != nil {
		return fmt.Errorf("drop staging table: %w", err)
	}
	log.Info().Str("table", table.String()).Int64("rows_discarded", n).Msg("dropped staging table")
	return nil
}

func stagedNames(outcomes []ObjectReport) []string {
	names := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Outcome == OutcomeStaged {
			names = append(names, o.Name)
		}
	}
	return names
}

func markPromoted(outcomes []ObjectReport) {
	for i := range outcomes {
		if outcomes[i].Outcome == OutcomeStaged {
			outcomes[i].Outcome = OutcomePromoted
		}
	}
}

func firstFailureStep(outcomes []ObjectReport) Step {
	for _, o := range outcomes {
		if o.Outcome == OutcomeFailed && o.Step != "" {
			return Step(o.Step)
		}
	}
	return StepStaging
}

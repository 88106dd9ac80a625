package pipeline

import (
	"errors"
	"time"
)

// Run statuses as written to the report.
const (
	// StatusSucceeded means every new object promoted or skipped.
	StatusSucceeded = "succeeded"
	// StatusPartial means some objects failed but the rest promoted.
	StatusPartial = "partial"
	// StatusFailed means the run stopped before promotion completed.
	StatusFailed = "failed"
)

// Outcome classifies what happened to one object.
type Outcome string

const (
	// OutcomePromoted rows reached the final table and the object is
	// ledgered.
	OutcomePromoted Outcome = "promoted"
	// OutcomeStaged rows reached the staging table but the run ended
	// before ledgering. Only reports of failed runs carry it.
	OutcomeStaged Outcome = "staged"
	// OutcomeSkippedEmpty is a payload with no records.
	OutcomeSkippedEmpty Outcome = "skipped_empty"
	// OutcomeSkippedUnsupported is a format the decoder does not handle.
	OutcomeSkippedUnsupported Outcome = "skipped_unsupported"
	// OutcomeRejected means validation rejected every record under the
	// skip policy. The object is not ledgered and resurfaces next run.
	OutcomeRejected Outcome = "rejected"
	// OutcomeFailed is a read, decode or stage error.
	OutcomeFailed Outcome = "failed"
)

// ObjectReport is one object's line in the run report.
type ObjectReport struct {
	Name    string  `json:"name"`
	Format  string  `json:"format"`
	Outcome Outcome `json:"outcome"`

	// Step is set for failed objects only.
	Step string `json:"step,omitempty"`
	// Records is how many rows staged; Rejected how many validation
	// refused.
	Records  int    `json:"records,omitempty"`
	Rejected int    `json:"rejected,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (o *ObjectReport) fail(step Step, err error) {
	o.Outcome = OutcomeFailed
	o.Step = string(step)
	o.Error = err.Error()
}

// Report summarizes one run. Staged counts objects that reached the
// staging table this run, whether or not they later promoted.
type Report struct {
	RunID      string    `json:"run_id"`
	Bucket     string    `json:"bucket"`
	Prefix     string    `json:"prefix,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Status     string    `json:"status"`
	FailedStep string    `json:"failed_step,omitempty"`
	Error      string    `json:"error,omitempty"`

	Listed             int `json:"listed"`
	NewObjects         int `json:"new_objects"`
	Staged             int `json:"staged"`
	SkippedEmpty       int `json:"skipped_empty"`
	SkippedUnsupported int `json:"skipped_unsupported"`
	Rejected           int `json:"rejected"`
	Failed             int `json:"failed"`

	RowsStaged   int   `json:"rows_staged"`
	RowsRejected int   `json:"rows_rejected"`
	RowsMoved    int64 `json:"rows_moved"`
	Ledgered     int   `json:"ledgered"`

	Objects []ObjectReport `json:"objects,omitempty"`
}

func newReport(runID string, cfg Config, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		Bucket:    cfg.Bucket,
		Prefix:    cfg.Prefix,
		StartedAt: started.UTC(),
	}
}

// tally folds per-object outcomes into the summary counters.
func (r *Report) tally() {
	for _, o := range r.Objects {
		switch o.Outcome {
		case OutcomeStaged, OutcomePromoted:
			r.Staged++
		case OutcomeSkippedEmpty:
			r.SkippedEmpty++
		case OutcomeSkippedUnsupported:
			r.SkippedUnsupported++
		case OutcomeRejected:
			r.Rejected++
		case OutcomeFailed:
			r.Failed++
		}
		r.RowsStaged += o.Records
		r.RowsRejected += o.Rejected
	}
}

func (r *Report) finishFailure(err error, started time.Time) *Report {
	r.DurationMS = time.Since(started).Milliseconds()
	r.Status = StatusFailed
	r.Error = err.Error()
	var serr *StepError
	if errors.As(err, &serr) {
		r.FailedStep = string(serr.Step)
	}
	return r
}

func (r *Report) finishSuccess(started time.Time) *Report {
	r.DurationMS = time.Since(started).Milliseconds()
	if r.Failed > 0 {
		r.Status = StatusPartial
	} else {
		r.Status = StatusSucceeded
	}
	return r
}

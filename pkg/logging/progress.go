package logging

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/loaddock/loaddock/pkg/humanfmt"
	"github.com/rs/zerolog"
)

// Tracker tracks per-object progress for the staging phase with ETA
// calculation. It is safe for concurrent use by the staging workers.
type Tracker struct {
	total     int64
	completed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	startTime time.Time

	// Moving average of recent object durations for the ETA.
	mu              sync.Mutex
	recentDurations []time.Duration
	maxRecent       int
}

// NewTracker creates a tracker for a run staging total objects.
func NewTracker(total int64) *Tracker {
	return &Tracker{
		total:           total,
		startTime:       time.Now(),
		recentDurations: make([]time.Duration, 0, 10),
		maxRecent:       10,
	}
}

// RecordStaged records that an object was decoded and staged, with the
// time it took.
func (t *Tracker) RecordStaged(d time.Duration) {
	t.completed.Add(1)

	t.mu.Lock()
	if len(t.recentDurations) >= t.maxRecent {
		t.recentDurations = t.recentDurations[1:]
	}
	t.recentDurations = append(t.recentDurations, d)
	t.mu.Unlock()
}

// RecordSkip records that an object was skipped (unsupported format or
// empty payload).
func (t *Tracker) RecordSkip() {
	t.skipped.Add(1)
}

// RecordFailure records that an object failed to decode or stage.
func (t *Tracker) RecordFailure() {
	t.failed.Add(1)
}

// Progress returns the current counts.
func (t *Tracker) Progress() (completed, skipped, failed, total int64) {
	return t.completed.Load(), t.skipped.Load(), t.failed.Load(), t.total
}

// Remaining returns how many objects have not finished yet.
func (t *Tracker) Remaining() int64 {
	done := t.completed.Load() + t.skipped.Load() + t.failed.Load()
	return t.total - done
}

// Elapsed returns time since tracking started.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

// ETA returns the estimated time remaining based on recent object
// durations, falling back to the overall average rate.
func (t *Tracker) ETA() time.Duration {
	completed := t.completed.Load()
	if completed == 0 {
		return 0
	}

	remaining := t.Remaining()
	if remaining <= 0 {
		return 0
	}

	t.mu.Lock()
	var avg time.Duration
	if len(t.recentDurations) > 0 {
		var sum time.Duration
		for _, d := range t.recentDurations {
			sum += d
		}
		avg = sum / time.Duration(len(t.recentDurations))
	} else {
		avg = time.Since(t.startTime) / time.Duration(completed)
	}
	t.mu.Unlock()

	return avg * time.Duration(remaining)
}

// Event builds consistent completion log events for steps, objects and
// whole runs.
type Event struct {
	log     zerolog.Logger
	event   string
	step    string
	elapsed time.Duration
	fields  map[string]interface{}
}

// NewEvent creates a new completion event builder.
func NewEvent(log zerolog.Logger, event, step string, elapsed time.Duration) *Event {
	return &Event{
		log:     log,
		event:   event,
		step:    step,
		elapsed: elapsed,
		fields:  make(map[string]interface{}),
	}
}

// StepComplete builds a step completion event.
func StepComplete(log zerolog.Logger, step string, elapsed time.Duration) *Event {
	return NewEvent(log, "step_completed", step, elapsed)
}

// ObjectComplete builds an object completion event.
func ObjectComplete(log zerolog.Logger, step string, elapsed time.Duration) *Event {
	return NewEvent(log, "object_completed", step, elapsed)
}

// RunComplete builds a run completion event.
func RunComplete(log zerolog.Logger, elapsed time.Duration) *Event {
	return NewEvent(log, "run_completed", "run", elapsed)
}

// Str adds a string field.
func (e *Event) Str(key, val string) *Event {
	e.fields[key] = val
	return e
}

// Int adds an int field.
func (e *Event) Int(key string, val int) *Event {
	e.fields[key] = val
	return e
}

// Int64 adds an int64 field.
func (e *Event) Int64(key string, val int64) *Event {
	e.fields[key] = val
	return e
}

// Bytes adds a byte count with an optional human-readable companion.
func (e *Event) Bytes(key string, bytes int64) *Event {
	e.fields[key] = bytes
	if IsPrettyMode() {
		e.fields[key+"_h"] = humanfmt.Bytes(bytes)
	}
	return e
}

// Count adds a count with an optional human-readable companion.
func (e *Event) Count(key string, n int64) *Event {
	e.fields[key] = n
	if IsPrettyMode() {
		e.fields[key+"_h"] = humanfmt.Count(n)
	}
	return e
}

// Throughput adds throughput fields for the given byte volume.
func (e *Event) Throughput(bytes int64) *Event {
	if e.elapsed > 0 {
		bps := float64(bytes) / e.elapsed.Seconds()
		e.fields["throughput_bps"] = bps
		if IsPrettyMode() {
			e.fields["throughput_h"] = humanfmt.Throughput(bytes, e.elapsed)
		}
	}
	return e
}

// FromTracker adds progress fields from a Tracker.
func (e *Event) FromTracker(t *Tracker) *Event {
	completed, skipped, failed, total := t.Progress()
	done := completed + skipped + failed
	e.fields["staged"] = completed
	e.fields["skipped"] = skipped
	e.fields["failed"] = failed
	e.fields["total"] = total
	if total > 0 {
		e.fields["progress_pct"] = float64(done) * 100.0 / float64(total)
	}
	if eta := t.ETA(); eta > 0 {
		e.fields["eta_ms"] = eta.Milliseconds()
		if IsPrettyMode() {
			e.fields["eta_h"] = humanfmt.Duration(eta)
		}
	}
	return e
}

// Log emits the event at info level.
func (e *Event) Log(msg string) {
	e.emit(e.log.Info(), msg)
}

// LogDebug emits the event at debug level.
func (e *Event) LogDebug(msg string) {
	e.emit(e.log.Debug(), msg)
}

func (e *Event) emit(ev *zerolog.Event, msg string) {
	ev = ev.
		Str("event", e.event).
		Str("step", e.step).
		Int64("duration_ms", e.elapsed.Milliseconds())

	if IsPrettyMode() {
		ev = ev.Str("duration_h", humanfmt.Duration(e.elapsed))
	}

	for k, v := range e.fields {
		ev = ev.Interface(k, v)
	}

	ev.Msg(msg)
}

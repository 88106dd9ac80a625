package logging

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestTracker_BasicCounts(t *testing.T) {
	tr := NewTracker(10)

	tr.RecordStaged(100 * time.Millisecond)
	tr.RecordStaged(150 * time.Millisecond)
	tr.RecordSkip()
	tr.RecordFailure()

	completed, skipped, failed, total := tr.Progress()
	if completed != 2 {
		t.Errorf("expected staged=2, got %d", completed)
	}
	if skipped != 1 {
		t.Errorf("expected skipped=1, got %d", skipped)
	}
	if failed != 1 {
		t.Errorf("expected failed=1, got %d", failed)
	}
	if total != 10 {
		t.Errorf("expected total=10, got %d", total)
	}

	remaining := tr.Remaining()
	if remaining != 6 { // 10 - 2 - 1 - 1
		t.Errorf("expected remaining=6, got %d", remaining)
	}
}

func TestTracker_ETA(t *testing.T) {
	tr := NewTracker(10)

	tr.RecordStaged(100 * time.Millisecond)
	tr.RecordStaged(100 * time.Millisecond)

	eta := tr.ETA()
	// With 2 staged at 100ms each, 8 remaining should be ~800ms
	if eta < 700*time.Millisecond || eta > 900*time.Millisecond {
		t.Errorf("expected ETA ~800ms, got %v", eta)
	}
}

func TestTracker_ZeroTotal(t *testing.T) {
	tr := NewTracker(0)

	if eta := tr.ETA(); eta != 0 {
		t.Errorf("expected 0 ETA for zero total, got %v", eta)
	}
	if remaining := tr.Remaining(); remaining != 0 {
		t.Errorf("expected 0 remaining for zero total, got %d", remaining)
	}
}

func TestEvent_BasicFields(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	e := NewEvent(log, "test_event", "staging", 500*time.Millisecond)
	e.Str("object", "a.json").
		Int("rows", 42).
		Int64("bytes", 1000000).
		Log("test message")

	output := buf.String()

	if !strings.Contains(output, `"event":"test_event"`) {
		t.Errorf("expected event field, got: %s", output)
	}
	if !strings.Contains(output, `"step":"staging"`) {
		t.Errorf("expected step field, got: %s", output)
	}
	if !strings.Contains(output, `"duration_ms":500`) {
		t.Errorf("expected duration_ms field, got: %s", output)
	}
	if !strings.Contains(output, `"object":"a.json"`) {
		t.Errorf("expected object field, got: %s", output)
	}
	if !strings.Contains(output, `"rows":42`) {
		t.Errorf("expected rows field, got: %s", output)
	}
}

func TestEvent_BytesAndCounts(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(true)

	e := NewEvent(log, "test_event", "staging", 1*time.Second)
	e.Bytes("size", 1073741824). // 1 GiB
					Count("rows", 1500000).
					Log("test message")

	output := buf.String()

	// Raw fields
	if !strings.Contains(output, `"size":1073741824`) {
		t.Errorf("expected raw size field, got: %s", output)
	}
	if !strings.Contains(output, `"rows":1500000`) {
		t.Errorf("expected raw rows field, got: %s", output)
	}

	// Human-readable companions (pretty mode on)
	if !strings.Contains(output, `"size_h":"1.00 GiB"`) {
		t.Errorf("expected human size field, got: %s", output)
	}
	if !strings.Contains(output, `"rows_h":"1.50M"`) {
		t.Errorf("expected human rows field, got: %s", output)
	}

	SetPrettyMode(false)
}

func TestEvent_FromTracker(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	tr := NewTracker(100)
	tr.RecordStaged(100 * time.Millisecond)
	tr.RecordStaged(100 * time.Millisecond)
	tr.RecordSkip()
	tr.RecordFailure()

	e := NewEvent(log, "test_event", "staging", 1*time.Second)
	e.FromTracker(tr).Log("test message")

	output := buf.String()

	if !strings.Contains(output, `"staged":2`) {
		t.Errorf("expected staged field, got: %s", output)
	}
	if !strings.Contains(output, `"skipped":1`) {
		t.Errorf("expected skipped field, got: %s", output)
	}
	if !strings.Contains(output, `"failed":1`) {
		t.Errorf("expected failed field, got: %s", output)
	}
	if !strings.Contains(output, `"total":100`) {
		t.Errorf("expected total field, got: %s", output)
	}
	if !strings.Contains(output, `"progress_pct":4`) {
		t.Errorf("expected progress_pct field, got: %s", output)
	}
}

func TestEvent_Throughput(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(true)

	e := NewEvent(log, "test_event", "staging", 1*time.Second)
	e.Throughput(104857600). // 100 MiB in 1 second = 100 MiB/s
					Log("test message")

	output := buf.String()

	if !strings.Contains(output, `"throughput_bps":`) {
		t.Errorf("expected throughput_bps field, got: %s", output)
	}
	if !strings.Contains(output, `"throughput_h":"100.00 MiB/s"`) {
		t.Errorf("expected throughput_h field, got: %s", output)
	}

	SetPrettyMode(false)
}

func TestHelperConstructors(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	SetPrettyMode(false)

	StepComplete(log, "promoting", 1*time.Second).
		Int64("rows_moved", 5).
		Log("promotion done")

	output := buf.String()
	if !strings.Contains(output, `"event":"step_completed"`) {
		t.Errorf("expected step_completed event, got: %s", output)
	}
	if !strings.Contains(output, `"step":"promoting"`) {
		t.Errorf("expected step field, got: %s", output)
	}

	buf.Reset()
	ObjectComplete(log, "staging", 500*time.Millisecond).
		Str("object", "a.json").
		Log("object staged")

	output = buf.String()
	if !strings.Contains(output, `"event":"object_completed"`) {
		t.Errorf("expected object_completed event, got: %s", output)
	}

	buf.Reset()
	RunComplete(log, 2*time.Second).
		Int("attempted", 3).
		Log("run done")

	output = buf.String()
	if !strings.Contains(output, `"event":"run_completed"`) {
		t.Errorf("expected run_completed event, got: %s", output)
	}
}

func TestEvent_LogDebug(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	SetPrettyMode(false)

	// Temporarily lower global level to allow debug output
	oldLevel := zerolog.GlobalLevel()
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	defer zerolog.SetGlobalLevel(oldLevel)

	e := NewEvent(log, "test_event", "staging", 1*time.Second)
	e.LogDebug("debug message")

	output := buf.String()
	if !strings.Contains(output, `"level":"debug"`) {
		t.Errorf("expected debug level, got: %s", output)
	}
}

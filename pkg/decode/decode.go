// Package decode turns raw object payloads into flat records ready for
// staging. The format is taken from the object's tag assigned at listing
// time, never sniffed from payload bytes. JSON objects come in two layouts
// (newline-delimited and root array) selected by the caller up front.
package decode

import (
	"errors"
	"fmt"

	"github.com/loaddock/loaddock/pkg/objstore"
)

// Record is one decoded row: column name to value. Values are the plain
// Go forms the staging coercion layer understands (string, bool, int64,
// float64, json.Number, time.Time, nested maps and slices).
type Record = map[string]any

// JSONMode selects the JSON payload layout.
type JSONMode string

const (
	// ModeLines treats the payload as newline-delimited JSON objects.
	ModeLines JSONMode = "lines"
	// ModeArray treats the payload as a single root array of objects.
	ModeArray JSONMode = "array"
)

// ParseJSONMode maps a flag value to a JSONMode. Empty selects ModeLines.
func ParseJSONMode(s string) (JSONMode, error) {
	switch s {
	case "", string(ModeLines):
		return ModeLines, nil
	case string(ModeArray):
		return ModeArray, nil
	}
	return "", fmt.Errorf("unknown json mode %q: must be %s or %s", s, ModeLines, ModeArray)
}

// Options configures decoding.
type Options struct {
	// JSONMode is the layout for JSON payloads. Zero value is ModeLines.
	JSONMode JSONMode
}

// Sentinel causes distinguished by the pipeline: unsupported formats and
// empty objects are skipped with a warning, not failed.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrEmptyPayload      = errors.New("empty payload")
)

// Error wraps a decode failure with the object it came from.
type Error struct {
	Object string
	Format objstore.FormatTag
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decode %s (%s): %v", e.Object, e.Format, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Records decodes the payload according to the ref's format tag. A payload
// with no bytes or no records yields ErrEmptyPayload; a format outside the
// supported set yields ErrUnsupportedFormat. Both are wrapped in *Error.
func Records(ref objstore.ObjectRef, payload []byte, opts Options) ([]Record, error) {
	wrap := func(err error) error {
		return &Error{Object: ref.Name, Format: ref.Format, Err: err}
	}

	if ref.Format == objstore.FormatUnsupported {
		return nil, wrap(ErrUnsupportedFormat)
	}
	if len(payload) == 0 {
		return nil, wrap(ErrEmptyPayload)
	}

	var (
		recs []Record
		err  error
	)
	switch ref.Format {
	case objstore.FormatJSON:
		mode := opts.JSONMode
		if mode == "" {
			mode = ModeLines
		}
		recs, err = decodeJSON(payload, mode)
	case objstore.FormatParquet:
		recs, err = decodeParquet(payload)
	case objstore.FormatPickle:
		recs, err = decodePickle(payload)
	default:
		return nil, wrap(ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, wrap(err)
	}
	if len(recs) == 0 {
		return nil, wrap(ErrEmptyPayload)
	}
	return recs, nil
}

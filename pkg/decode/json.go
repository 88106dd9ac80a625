package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

func decodeJSON(payload []byte, mode JSONMode) ([]Record, error) {
	switch mode {
	case ModeLines:
		return decodeJSONLines(payload)
	case ModeArray:
		return decodeJSONArray(payload)
	}
	return nil, fmt.Errorf("unknown json mode %q", mode)
}

// decodeJSONLines reads a stream of whitespace-separated JSON objects,
// one record each. Numbers stay json.Number so integer columns do not
// go through float64.
func decodeJSONLines(payload []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var recs []Record
	for {
		var v any
		err := dec.Decode(&v)
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(recs), err)
		}
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d: top-level value is %s, not an object", len(recs), jsonKind(v))
		}
		recs = append(recs, obj)
	}
}

// decodeJSONArray reads a single root array whose elements are objects.
func decodeJSONArray(payload []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after root array")
	}

	arr, ok := root.([]any)
	if !ok {
		return nil, fmt.Errorf("root value is %s, not an array", jsonKind(root))
	}

	recs := make([]Record, 0, len(arr))
	for i, v := range arr {
		obj, ok := v.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("element %d: %s, not an object", i, jsonKind(v))
		}
		recs = append(recs, obj)
	}
	return recs, nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case map[string]any:
		return "an object"
	case []any:
		return "an array"
	case string:
		return "a string"
	case json.Number:
		return "a number"
	case bool:
		return "a bool"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

package warehouse

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"
)

// FieldType is the declared type of a staged column.
type FieldType string

const (
	TypeString    FieldType = "STRING"
	TypeInt64     FieldType = "INT64"
	TypeFloat64   FieldType = "FLOAT64"
	TypeBool      FieldType = "BOOL"
	TypeTimestamp FieldType = "TIMESTAMP"
	TypeJSON      FieldType = "JSON"
)

// Field describes one column of a staged table.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required,omitempty"`
	Unique   bool      `json:"unique,omitempty"`
}

// Schema is the explicit column list for a staged table. There is no
// inference: callers supply the schema, usually from a JSON file.
type Schema []Field

// Validate checks that the schema is non-empty with unique, typed fields.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("schema has no fields")
	}
	seen := make(map[string]struct{}, len(s))
	for i, f := range s {
		if f.Name == "" {
			return fmt.Errorf("field %d: name is required", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("field %q: duplicate name", f.Name)
		}
		seen[f.Name] = struct{}{}
		switch f.Type {
		case TypeString, TypeInt64, TypeFloat64, TypeBool, TypeTimestamp, TypeJSON:
		default:
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// Names returns the column names in declaration order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// ParseSchema parses a JSON field list:
//
//	[{"name":"id","type":"INT64","required":true},
//	 {"name":"note","type":"STRING"}]
func ParseSchema(b []byte) (Schema, error) {
	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ParseSchemaFile reads and parses a schema file.
func ParseSchemaFile(path string) (Schema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return ParseSchema(b)
}

// Timestamp layouts accepted by Coerce, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Coerce converts a decoded value into the driver value for this field.
// Nil passes through; the staging validator enforces required fields.
func (f Field) Coerce(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	switch f.Type {
	case TypeString:
		switch x := v.(type) {
		case string:
			return x, nil
		case []byte:
			return string(x), nil
		}
		return nil, fmt.Errorf("field %q: cannot use %T as STRING", f.Name, v)

	case TypeInt64:
		switch x := v.(type) {
		case int:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("field %q: %d overflows INT64", f.Name, x)
			}
			return int64(x), nil
		case float64:
			if x != math.Trunc(x) {
				return nil, fmt.Errorf("field %q: %v is not an integer", f.Name, x)
			}
			return int64(x), nil
		case json.Number:
			n, err := x.Int64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %q is not an INT64", f.Name, x.String())
			}
			return n, nil
		}
		return nil, fmt.Errorf("field %q: cannot use %T as INT64", f.Name, v)

	case TypeFloat64:
		switch x := v.(type) {
		case float32:
			return float64(x), nil
		case float64:
			return x, nil
		case int:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case json.Number:
			n, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %q is not a FLOAT64", f.Name, x.String())
			}
			return n, nil
		}
		return nil, fmt.Errorf("field %q: cannot use %T as FLOAT64", f.Name, v)

	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("field %q: cannot use %T as BOOL", f.Name, v)

	case TypeTimestamp:
		switch x := v.(type) {
		case time.Time:
			return x.UTC(), nil
		case string:
			for _, layout := range timestampLayouts {
				if ts, err := time.Parse(layout, x); err == nil {
					return ts.UTC(), nil
				}
			}
			return nil, fmt.Errorf("field %q: cannot parse %q as TIMESTAMP", f.Name, x)
		case json.Number:
			// Epoch seconds, possibly fractional.
			sec, err := x.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %q is not a TIMESTAMP", f.Name, x.String())
			}
			return epochToTime(sec), nil
		case int64:
			return time.Unix(x, 0).UTC(), nil
		case float64:
			return epochToTime(x), nil
		}
		return nil, fmt.Errorf("field %q: cannot use %T as TIMESTAMP", f.Name, v)

	case TypeJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: cannot encode %T as JSON: %w", f.Name, v, err)
		}
		return string(b), nil
	}

	return nil, fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
}

func epochToTime(sec float64) time.Time {
	s := int64(sec)
	ns := int64((sec - float64(s)) * float64(time.Second))
	return time.Unix(s, ns).UTC()
}

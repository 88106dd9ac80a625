package decode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// parquetColumn maps a leaf column index to its name and value converter.
type parquetColumn struct {
	name string
	conv func(parquet.Value) any
}

// decodeParquet reads every row group of a flat parquet payload into
// records. Nested and repeated schemas are rejected; the files this tool
// moves are tabular exports.
func decodeParquet(payload []byte) ([]Record, error) {
	file, err := parquet.OpenFile(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return nil, fmt.Errorf("open parquet payload: %w", err)
	}

	cols, err := parquetColumns(file.Schema())
	if err != nil {
		return nil, err
	}

	recs := make([]Record, 0, file.NumRows())
	buf := make([]parquet.Row, 1024)

	for _, rg := range file.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				recs = append(recs, rowToRecord(row, cols))
			}
			if err != nil {
				rows.Close()
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("read parquet rows: %w", err)
			}
			if n == 0 {
				rows.Close()
				break
			}
		}
	}
	return recs, nil
}

// parquetColumns builds the per-column converters from the file schema.
func parquetColumns(schema *parquet.Schema) ([]parquetColumn, error) {
	fields := schema.Fields()
	cols := make([]parquetColumn, 0, len(fields))

	for _, f := range fields {
		if !f.Leaf() {
			return nil, fmt.Errorf("column %q: nested parquet schemas are not supported", f.Name())
		}
		if f.Repeated() {
			return nil, fmt.Errorf("column %q: repeated parquet columns are not supported", f.Name())
		}
		conv, err := converterFor(f)
		if err != nil {
			return nil, err
		}
		cols = append(cols, parquetColumn{name: f.Name(), conv: conv})
	}
	return cols, nil
}

func converterFor(f parquet.Field) (func(parquet.Value) any, error) {
	typ := f.Type()

	// Timestamp and date columns carry their resolution in the logical
	// type; convert here so downstream coercion never guesses units.
	if lt := typ.LogicalType(); lt != nil {
		switch {
		case lt.Timestamp != nil:
			unit := time.Nanosecond
			switch {
			case lt.Timestamp.Unit.Millis != nil:
				unit = time.Millisecond
			case lt.Timestamp.Unit.Micros != nil:
				unit = time.Microsecond
			}
			return func(v parquet.Value) any {
				return time.Unix(0, v.Int64()*int64(unit)).UTC()
			}, nil
		case lt.Date != nil:
			return func(v parquet.Value) any {
				return time.Unix(int64(v.Int32())*86400, 0).UTC()
			}, nil
		}
	}

	switch typ.Kind() {
	case parquet.Boolean:
		return func(v parquet.Value) any { return v.Boolean() }, nil
	case parquet.Int32:
		return func(v parquet.Value) any { return int64(v.Int32()) }, nil
	case parquet.Int64:
		return func(v parquet.Value) any { return v.Int64() }, nil
	case parquet.Float:
		return func(v parquet.Value) any { return float64(v.Float()) }, nil
	case parquet.Double:
		return func(v parquet.Value) any { return v.Double() }, nil
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return func(v parquet.Value) any { return v.String() }, nil
	}
	return nil, fmt.Errorf("column %q: unsupported parquet type %s", f.Name(), typ)
}

func rowToRecord(row parquet.Row, cols []parquetColumn) Record {
	rec := make(Record, len(cols))
	for _, val := range row {
		if val.IsNull() {
			continue
		}
		idx := val.Column()
		if idx < 0 || idx >= len(cols) {
			continue
		}
		rec[cols[idx].name] = cols[idx].conv(val)
	}
	return rec
}

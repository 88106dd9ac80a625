package decode

import (
	"bytes"
	"fmt"

	"github.com/nlpodyssey/gopickle/pickle"
	"github.com/nlpodyssey/gopickle/types"
)

// decodePickle reads plain-container pickles: a list of dicts (one record
// per dict) or a dict of equal-length column lists. Pickles that need
// Python class resolution are a decode error, not a skip; they indicate a
// producer writing objects this tool was never meant to move. Pickle
// input is only expected from the operator's own producers.
func decodePickle(payload []byte) ([]Record, error) {
	u := pickle.NewUnpickler(bytes.NewReader(payload))
	root, err := u.Load()
	if err != nil {
		return nil, fmt.Errorf("parse pickle: %w", err)
	}

	switch x := root.(type) {
	case *types.List:
		return pickleRows(x)
	case *types.Dict:
		return pickleColumns(x)
	}
	return nil, fmt.Errorf("pickle root is %T: need a list of dicts or a dict of column lists", root)
}

// pickleRows converts a pickled list of dicts.
func pickleRows(list *types.List) ([]Record, error) {
	recs := make([]Record, 0, list.Len())
	for i, item := range *list {
		d, ok := item.(*types.Dict)
		if !ok {
			return nil, fmt.Errorf("list element %d is %T, not a dict", i, item)
		}
		rec, err := dictToRecord(d)
		if err != nil {
			return nil, fmt.Errorf("list element %d: %w", i, err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// pickleColumns converts a pickled dict of column lists. All columns must
// have the same length.
func pickleColumns(dict *types.Dict) ([]Record, error) {
	names := make([]string, 0, dict.Len())
	columns := make([][]any, 0, dict.Len())
	length := -1

	for _, entry := range *dict {
		name, ok := entry.Key.(string)
		if !ok {
			return nil, fmt.Errorf("column key is %T, not a string", entry.Key)
		}

		var values []any
		switch col := entry.Value.(type) {
		case *types.List:
			values = *col
		case *types.Tuple:
			values = *col
		default:
			return nil, fmt.Errorf("column %q is %T, not a list", name, entry.Value)
		}

		if length < 0 {
			length = len(values)
		} else if len(values) != length {
			return nil, fmt.Errorf("column %q has %d values, others have %d", name, len(values), length)
		}

		names = append(names, name)
		columns = append(columns, values)
	}

	if length <= 0 {
		return nil, nil
	}

	recs := make([]Record, length)
	for i := range recs {
		rec := make(Record, len(names))
		for j, name := range names {
			v, err := pickleValue(columns[j][i])
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, i, err)
			}
			rec[name] = v
		}
		recs[i] = rec
	}
	return recs, nil
}

func dictToRecord(d *types.Dict) (Record, error) {
	rec := make(Record, d.Len())
	for _, entry := range *d {
		name, ok := entry.Key.(string)
		if !ok {
			return nil, fmt.Errorf("key is %T, not a string", entry.Key)
		}
		v, err := pickleValue(entry.Value)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", name, err)
		}
		rec[name] = v
	}
	return rec, nil
}

// pickleValue normalizes an unpickled value into the forms the coercion
// layer understands. Containers recurse so JSON columns can hold them.
func pickleValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, int, int64, float64, []byte:
		return x, nil
	case *types.List:
		out := make([]any, 0, x.Len())
		for _, item := range *x {
			c, err := pickleValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case *types.Tuple:
		out := make([]any, 0, x.Len())
		for _, item := range *x {
			c, err := pickleValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		return out, nil
	case *types.Dict:
		out := make(map[string]any, x.Len())
		for _, entry := range *x {
			name, ok := entry.Key.(string)
			if !ok {
				return nil, fmt.Errorf("nested key is %T, not a string", entry.Key)
			}
			c, err := pickleValue(entry.Value)
			if err != nil {
				return nil, err
			}
			out[name] = c
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported pickle value type %T", v)
}

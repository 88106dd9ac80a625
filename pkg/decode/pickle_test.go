package decode

import (
	"encoding/binary"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/loaddock/loaddock/pkg/objstore"
)

// Pickle protocol 2 opcode builders. Hand-assembled payloads keep the
// fixtures free of a Python toolchain.

func pickleProto(parts ...[]byte) []byte {
	out := []byte{0x80, 2}
	for _, p := range parts {
		out = append(out, p...)
	}
	return append(out, '.')
}

func pStr(s string) []byte {
	out := []byte{'X', 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(out[1:], uint32(len(s)))
	return append(out, s...)
}

func pInt(n int32) []byte {
	var b [5]byte
	b[0] = 'J'
	binary.LittleEndian.PutUint32(b[1:], uint32(n))
	return b[:]
}

func pFloat(f float64) []byte {
	var b [9]byte
	b[0] = 'G'
	binary.BigEndian.PutUint64(b[1:], math.Float64bits(f))
	return b[:]
}

func pBool(v bool) []byte {
	if v {
		return []byte{0x88}
	}
	return []byte{0x89}
}

func pNone() []byte {
	return []byte{'N'}
}

func pList(items ...[]byte) []byte {
	out := []byte{']'}
	if len(items) == 0 {
		return out
	}
	out = append(out, '(')
	for _, it := range items {
		out = append(out, it...)
	}
	return append(out, 'e')
}

// pDict takes alternating key, value parts.
func pDict(pairs ...[]byte) []byte {
	out := []byte{'}'}
	if len(pairs) == 0 {
		return out
	}
	out = append(out, '(')
	for _, p := range pairs {
		out = append(out, p...)
	}
	return append(out, 'u')
}

func pickleRef(name string) objstore.ObjectRef {
	return objstore.ObjectRef{Name: name, Format: objstore.FormatPickle}
}

func TestPickleRowForm(t *testing.T) {
	payload := pickleProto(pList(
		pDict(
			pStr("name"), pStr("widget"),
			pStr("n"), pInt(5),
			pStr("price"), pFloat(9.99),
			pStr("active"), pBool(true),
			pStr("note"), pNone(),
		),
		pDict(
			pStr("name"), pStr("gadget"),
			pStr("n"), pInt(-3),
			pStr("price"), pFloat(0.5),
			pStr("active"), pBool(false),
			pStr("note"), pNone(),
		),
	))

	recs, err := Records(pickleRef("d.pkl"), payload, Options{})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	if recs[0]["name"] != "widget" {
		t.Errorf("name = %v, want widget", recs[0]["name"])
	}
	if recs[0]["n"] != 5 {
		t.Errorf("n = %v (%T), want 5", recs[0]["n"], recs[0]["n"])
	}
	if recs[0]["price"] != 9.99 {
		t.Errorf("price = %v, want 9.99", recs[0]["price"])
	}
	if recs[1]["active"] != false {
		t.Errorf("active = %v, want false", recs[1]["active"])
	}
	if recs[1]["n"] != -3 {
		t.Errorf("n = %v, want -3", recs[1]["n"])
	}
	if v, present := recs[0]["note"]; !present || v != nil {
		t.Errorf("note = %v (present=%v), want explicit nil", v, present)
	}
}

func TestPickleColumnForm(t *testing.T) {
	payload := pickleProto(pDict(
		pStr("name"), pList(pStr("a"), pStr("b")),
		pStr("n"), pList(pInt(1), pInt(2)),
	))

	recs, err := Records(pickleRef("d.pkl"), payload, Options{})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0]["name"] != "a" || recs[0]["n"] != 1 {
		t.Errorf("record 0 = %v", recs[0])
	}
	if recs[1]["name"] != "b" || recs[1]["n"] != 2 {
		t.Errorf("record 1 = %v", recs[1])
	}
}

func TestPickleNestedContainers(t *testing.T) {
	payload := pickleProto(pList(
		pDict(
			pStr("name"), pStr("a"),
			pStr("tags"), pList(pStr("x"), pStr("y")),
			pStr("meta"), pDict(pStr("k"), pInt(1)),
		),
	))

	recs, err := Records(pickleRef("d.pkl"), payload, Options{})
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if !reflect.DeepEqual(recs[0]["tags"], []any{"x", "y"}) {
		t.Errorf("tags = %#v, want [x y]", recs[0]["tags"])
	}
	if !reflect.DeepEqual(recs[0]["meta"], map[string]any{"k": 1}) {
		t.Errorf("meta = %#v, want map[k:1]", recs[0]["meta"])
	}
}

func TestPickleEmpty(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty_list", pickleProto(pList())},
		{"empty_dict", pickleProto(pDict())},
		{"empty_columns", pickleProto(pDict(pStr("name"), pList()))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Records(pickleRef("d.pkl"), tt.payload, Options{})
			if !errors.Is(err, ErrEmptyPayload) {
				t.Errorf("err = %v, want ErrEmptyPayload", err)
			}
		})
	}
}

func TestPickleRejections(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{"root_scalar", pickleProto(pInt(5))},
		{"root_string", pickleProto(pStr("hello"))},
		{"list_of_scalars", pickleProto(pList(pInt(1), pInt(2)))},
		{"ragged_columns", pickleProto(pDict(
			pStr("a"), pList(pInt(1)),
			pStr("b"), pList(pInt(1), pInt(2)),
		))},
		{"non_string_key", pickleProto(pList(pDict(pInt(1), pStr("v"))))},
		{"garbage", []byte("not a pickle")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Records(pickleRef("d.pkl"), tt.payload, Options{})
			if err == nil {
				t.Fatal("expected error, got none")
			}
			if errors.Is(err, ErrEmptyPayload) || errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("rejection mapped to a skip sentinel: %v", err)
			}
		})
	}
}

package intake

import (
	"testing"

	"github.com/loaddock/loaddock/pkg/benchutil"
	"github.com/loaddock/loaddock/pkg/objstore"
)

func refs(names ...string) []objstore.ObjectRef {
	out := make([]objstore.ObjectRef, len(names))
	for i, n := range names {
		out[i] = objstore.ObjectRef{Name: n, Format: objstore.FormatForName(n)}
	}
	return out
}

func names(refs []objstore.ObjectRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Name
	}
	return out
}

func set(names ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		out[n] = struct{}{}
	}
	return out
}

func TestNewObjects(t *testing.T) {
	listed := refs("data/", "data/a.json", "data/b.json", "data/c.parquet", "data/d.pkl")
	ledgered := set("data/b.json")

	got := NewObjects(listed, ledgered)
	want := []string{"data/a.json", "data/c.parquet", "data/d.pkl"}

	gotNames := names(got)
	if len(gotNames) != len(want) {
		t.Fatalf("got %v, want %v", gotNames, want)
	}
	for i := range want {
		if gotNames[i] != want[i] {
			t.Errorf("index %d: got %q, want %q", i, gotNames[i], want[i])
		}
	}
}

func TestNewObjectsPreservesListingOrder(t *testing.T) {
	// The store lists lexicographically; the result must not re-sort.
	listed := refs("z.json", "a.json", "m.json")
	got := names(NewObjects(listed, nil))
	want := []string{"z.json", "a.json", "m.json"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order changed: got %v, want %v", got, want)
		}
	}
}

func TestNewObjectsKeepsFormatTags(t *testing.T) {
	got := NewObjects(refs("a.json", "b.parquet"), nil)
	if got[0].Format != objstore.FormatJSON {
		t.Errorf("a.json tag = %v, want FormatJSON", got[0].Format)
	}
	if got[1].Format != objstore.FormatParquet {
		t.Errorf("b.parquet tag = %v, want FormatParquet", got[1].Format)
	}
}

func TestNewObjectsEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		listed   []objstore.ObjectRef
		ledgered map[string]struct{}
		want     int
	}{
		{"empty_listing", nil, set("a.json"), 0},
		{"all_ledgered", refs("a.json", "b.json"), set("a.json", "b.json"), 0},
		{"nil_ledger", refs("a.json"), nil, 1},
		{"only_markers", refs("data/", "more/"), nil, 0},
		{"marker_named_like_file", refs("weird.json/"), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewObjects(tt.listed, tt.ledgered)
			if len(got) != tt.want {
				t.Errorf("got %d objects (%v), want %d", len(got), names(got), tt.want)
			}
			if got == nil {
				t.Error("result is nil, want empty slice")
			}
		})
	}
}

func BenchmarkNewObjects(b *testing.B) {
	listed := refs(benchutil.ObjectNames(10000)...)
	ledgered := make(map[string]struct{}, len(listed)/2)
	for i, ref := range listed {
		if i%2 == 0 {
			ledgered[ref.Name] = struct{}{}
		}
	}
	b.ReportAllocs()
	for range b.N {
		NewObjects(listed, ledgered)
	}
}

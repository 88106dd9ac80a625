package decode

import (
	"fmt"
	"testing"

	"github.com/loaddock/loaddock/pkg/benchutil"
	"github.com/loaddock/loaddock/pkg/objstore"
)

func BenchmarkJSONLines(b *testing.B) {
	ref := objstore.ObjectRef{Name: "bench.json", Format: objstore.FormatJSON}
	payload := benchutil.NDJSON(10000)

	b.ReportAllocs()
	b.SetBytes(int64(len(payload)))
	for i := 0; i < b.N; i++ {
		if _, err := Records(ref, payload, Options{}); err != nil {
			b.Fatalf("Records failed: %v", err)
		}
	}
}

func BenchmarkJSONLinesScaling(b *testing.B) {
	benchutil.SkipIfNoLongBench(b)

	ref := objstore.ObjectRef{Name: "bench.json", Format: objstore.FormatJSON}
	for _, size := range benchutil.Sizes {
		payload := benchutil.NDJSON(size)
		b.Run(fmt.Sprintf("N=%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(payload)))
			for i := 0; i < b.N; i++ {
				if _, err := Records(ref, payload, Options{}); err != nil {
					b.Fatalf("Records failed: %v", err)
				}
			}
		})
	}
}

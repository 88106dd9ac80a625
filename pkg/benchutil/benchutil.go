// Package benchutil provides deterministic synthetic data for benchmarks:
// bucket listings shaped like date-partitioned exports and NDJSON payloads
// of a given row count.
package benchutil

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"testing"
)

// Seed feeds every generator so benchmark runs compare like with like.
const Seed = 42

// Sizes are the standard listing sizes for quick benchmark runs.
var Sizes = []int{1000, 10000, 100000}

// SkipIfNoLongBench skips benchmarks gated behind LOADDOCK_LONG_BENCH.
func SkipIfNoLongBench(b *testing.B) {
	if os.Getenv("LOADDOCK_LONG_BENCH") == "" {
		b.Skip("set LOADDOCK_LONG_BENCH=1 to run scaling benchmark")
	}
}

// ObjectNames returns n synthetic object names laid out like a
// date-partitioned bucket export: mostly decodable suffixes with some
// foreign files and directory markers mixed in.
func ObjectNames(n int) []string {
	rng := rand.New(rand.NewSource(Seed))
	names := make([]string, n)

	prefixes := []string{"data", "exports", "raw", "backfill"}
	exts := []string{".json", ".json", ".parquet", ".pkl", ".csv", ".txt"}

	for i := range names {
		if rng.Intn(50) == 0 {
			names[i] = fmt.Sprintf("%s/%d/%02d/",
				prefixes[rng.Intn(len(prefixes))], 2020+rng.Intn(5), 1+rng.Intn(12))
			continue
		}
		names[i] = fmt.Sprintf("%s/%d/%02d/%02d/part_%08x%s",
			prefixes[rng.Intn(len(prefixes))],
			2020+rng.Intn(5), 1+rng.Intn(12), 1+rng.Intn(28),
			rng.Uint32(), exts[rng.Intn(len(exts))])
	}
	return names
}

// NDJSON returns a payload of n newline-delimited records with a small
// fixed column set.
func NDJSON(n int) []byte {
	rng := rand.New(rand.NewSource(Seed))
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf, `{"id":%d,"name":"rec_%06d","amount":%.2f,"active":%t}`,
			i, i, rng.Float64()*1000, rng.Intn(2) == 0)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

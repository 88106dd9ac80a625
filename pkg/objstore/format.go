package objstore

import "strings"

// FormatTag identifies how an object's payload is decoded. The decoder
// matches on the tag exhaustively; nothing downstream re-inspects the
// object name.
type FormatTag int

const (
	// FormatUnsupported marks objects the loader skips.
	FormatUnsupported FormatTag = iota
	// FormatJSON covers newline-delimited and array payloads; the two
	// sub-modes are selected by the caller, never sniffed.
	FormatJSON
	// FormatParquet is a parquet file with a flat schema.
	FormatParquet
	// FormatPickle is a pickled table: a list of dicts or a dict of
	// column lists.
	FormatPickle
)

func (f FormatTag) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	case FormatPickle:
		return "pickle"
	default:
		return "unsupported"
	}
}

// FormatForName resolves the format tag from an object name suffix.
// Unknown suffixes (and directory markers) map to FormatUnsupported.
func FormatForName(name string) FormatTag {
	if strings.HasSuffix(name, "/") {
		return FormatUnsupported
	}
	switch {
	case strings.HasSuffix(name, ".json"),
		strings.HasSuffix(name, ".jsonl"),
		strings.HasSuffix(name, ".ndjson"):
		return FormatJSON
	case strings.HasSuffix(name, ".parquet"):
		return FormatParquet
	case strings.HasSuffix(name, ".pkl"):
		return FormatPickle
	default:
		return FormatUnsupported
	}
}

// Package intake selects which listed objects still need processing.
// It is a pure set difference against the ledger: no I/O, no policy
// about formats or contents.
package intake

import (
	"strings"

	"github.com/loaddock/loaddock/pkg/objstore"
)

// NewObjects returns the listed objects whose names are not in the
// ledgered set, preserving listing order. Directory markers (names
// ending in "/") are excluded before the difference; they are synthetic
// zero-byte entries, not loadable files.
func NewObjects(listed []objstore.ObjectRef, ledgered map[string]struct{}) []objstore.ObjectRef {
	out := make([]objstore.ObjectRef, 0, len(listed))
	for _, ref := range listed {
		if strings.HasSuffix(ref.Name, "/") {
			continue
		}
		if _, done := ledgered[ref.Name]; done {
			continue
		}
		out = append(out, ref)
	}
	return out
}

// Package objstore abstracts the bucket listing and object reads the
// loader performs against an object store. Backends exist for S3 and GCS;
// both are constructed explicitly and injected into the run.
package objstore

import (
	"context"
	"fmt"
	"unicode/utf8"
)

// ObjectRef identifies one stored object. It is produced by List and
// treated as immutable downstream: the format tag is resolved exactly once,
// from the name suffix, at listing time.
type ObjectRef struct {
	Name   string
	Format FormatTag
	Size   int64
}

// Store is the narrow surface the loader needs from an object store.
type Store interface {
	// List returns refs for every object under prefix, in the store's
	// listing order. Directory marker entries (names ending in "/") are
	// returned as-is; the intake filter excludes them.
	List(ctx context.Context, bucket, prefix string) ([]ObjectRef, error)

	// ReadBytes returns the full payload of one object.
	ReadBytes(ctx context.Context, bucket, name string) ([]byte, error)

	// ReadText returns the payload decoded as UTF-8 text.
	ReadText(ctx context.Context, bucket, name string) (string, error)
}

// asText validates that a payload is UTF-8 and returns it as a string.
func asText(name string, b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("object %s: payload is not valid UTF-8", name)
	}
	return string(b), nil
}

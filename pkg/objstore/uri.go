package objstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Provider names an object store backend.
type Provider string

const (
	ProviderS3  Provider = "s3"
	ProviderGCS Provider = "gcs"
)

// ParseURI parses a source URI (s3://bucket/prefix or gs://bucket/prefix)
// into its provider, bucket and prefix components. The prefix may be empty.
func ParseURI(uri string) (provider Provider, bucket, prefix string, err error) {
	var rest string
	switch {
	case strings.HasPrefix(uri, "s3://"):
		provider = ProviderS3
		rest = strings.TrimPrefix(uri, "s3://")
	case strings.HasPrefix(uri, "gs://"):
		provider = ProviderGCS
		rest = strings.TrimPrefix(uri, "gs://")
	default:
		return "", "", "", fmt.Errorf("invalid source URI %q: must start with s3:// or gs://", uri)
	}

	parts := strings.SplitN(rest, "/", 2)
	if len(parts) < 1 || parts[0] == "" {
		return "", "", "", errors.New("invalid source URI: missing bucket name")
	}

	bucket = parts[0]
	if len(parts) == 2 {
		prefix = parts[1]
	}

	return provider, bucket, prefix, nil
}

// Open parses the source URI and constructs the matching backend with
// its default client configuration. Returns the store plus the bucket and
// prefix extracted from the URI.
func Open(ctx context.Context, uri string) (Store, string, string, error) {
	provider, bucket, prefix, err := ParseURI(uri)
	if err != nil {
		return nil, "", "", err
	}

	var store Store
	switch provider {
	case ProviderS3:
		store, err = NewS3(ctx, S3Options{})
	case ProviderGCS:
		store, err = NewGCS(ctx, GCSOptions{})
	}
	if err != nil {
		return nil, "", "", err
	}

	return store, bucket, prefix, nil
}

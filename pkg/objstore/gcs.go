package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSOptions tunes the GCS backend. The zero value uses application
// default credentials.
type GCSOptions struct {
	// CredentialsFile points at a service account key file. Empty means
	// application default credentials.
	CredentialsFile string
}

// GCSStore reads from Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCS creates a GCS backend.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCSStore, error) {
	var clientOpts []option.ClientOption
	if opts.CredentialsFile != "" {
		clientOpts = append(clientOpts,
			option.WithAuthCredentialsFile(option.ServiceAccount, opts.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

// List returns refs for all objects under prefix, in GCS's name order.
func (g *GCSStore) List(ctx context.Context, bucket, prefix string) ([]ObjectRef, error) {
	var refs []ObjectRef

	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list gs://%s/%s: %w", bucket, prefix, err)
		}
		refs = append(refs, ObjectRef{
			Name:   attrs.Name,
			Format: FormatForName(attrs.Name),
			Size:   attrs.Size,
		})
	}

	return refs, nil
}

// ReadBytes downloads the whole object.
func (g *GCSStore) ReadBytes(ctx context.Context, bucket, name string) ([]byte, error) {
	rc, err := g.client.Bucket(bucket).Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object gs://%s/%s: %w", bucket, name, err)
	}
	defer rc.Close()

	b, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object gs://%s/%s: %w", bucket, name, err)
	}
	return b, nil
}

// ReadText downloads the object and validates it as UTF-8 text.
func (g *GCSStore) ReadText(ctx context.Context, bucket, name string) (string, error) {
	b, err := g.ReadBytes(ctx, bucket, name)
	if err != nil {
		return "", err
	}
	return asText(name, b)
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

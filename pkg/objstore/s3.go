package objstore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Options tunes the S3 backend. The zero value uses the default AWS
// configuration chain.
type S3Options struct {
	// Endpoint overrides the S3 endpoint, for S3-compatible stores.
	// Path-style addressing is enabled when set.
	Endpoint string

	// DownloadConcurrency is the number of concurrent range parts per
	// object read. Defaults to the SDK's download manager default.
	DownloadConcurrency int
}

// S3Store reads from S3 (or an S3-compatible store) using the AWS SDK.
type S3Store struct {
	client     *s3.Client
	downloader *manager.Downloader
}

// NewS3 creates an S3 backend using the default AWS configuration chain.
func NewS3(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return NewS3FromConfig(cfg, opts), nil
}

// NewS3FromConfig creates an S3 backend from an existing AWS config.
func NewS3FromConfig(cfg aws.Config, opts S3Options) *S3Store {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	downloader := manager.NewDownloader(client, func(d *manager.Downloader) {
		if opts.DownloadConcurrency > 0 {
			d.Concurrency = opts.DownloadConcurrency
		}
	})

	return &S3Store{client: client, downloader: downloader}
}

// List returns refs for all objects under prefix, in S3's key order.
func (s *S3Store) List(ctx context.Context, bucket, prefix string) ([]ObjectRef, error) {
	var refs []ObjectRef

	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			refs = append(refs, ObjectRef{
				Name:   name,
				Format: FormatForName(name),
				Size:   aws.ToInt64(obj.Size),
			})
		}
	}

	return refs, nil
}

// ReadBytes downloads the whole object through the download manager,
// which fetches large objects as parallel range parts.
func (s *S3Store) ReadBytes(ctx context.Context, bucket, name string) ([]byte, error) {
	buf := manager.NewWriteAtBuffer(nil)
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("get object s3://%s/%s: %w", bucket, name, err)
	}
	return buf.Bytes(), nil
}

// ReadText downloads the object and validates it as UTF-8 text.
func (s *S3Store) ReadText(ctx context.Context, bucket, name string) (string, error) {
	b, err := s.ReadBytes(ctx, bucket, name)
	if err != nil {
		return "", err
	}
	return asText(name, b)
}

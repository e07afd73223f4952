// Package blob moves published files between the private and public object
// storage buckets.
package blob

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchLimit is the S3 DeleteObjects key limit per request.
const deleteBatchLimit = 1000

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store copies objects from a private bucket to a public bucket and prunes
// public prefixes.
type Store struct {
	client        S3API
	privateBucket string
	publicBucket  string
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithS3Client sets a custom S3 client (useful for testing).
func WithS3Client(c S3API) Option {
	return func(s *Store) { s.client = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New creates a Store over the two buckets.
func New(ctx context.Context, privateBucket, publicBucket string, opts ...Option) (*Store, error) {
	if privateBucket == "" || publicBucket == "" {
		return nil, fmt.Errorf("private and public bucket names required")
	}
	s := &Store{
		privateBucket: privateBucket,
		publicBucket:  publicBucket,
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg)
	}
	return s, nil
}

// CopyToPublic copies the private object at src to dst in the public bucket,
// overwriting any existing object.
func (s *Store) CopyToPublic(ctx context.Context, src, dst string) error {
	src = strings.TrimLeft(src, "/")
	dst = strings.TrimLeft(dst, "/")
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.publicBucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(s.privateBucket, src)),
	})
	if err != nil {
		return fmt.Errorf("copying %q to public %q: %w", src, dst, err)
	}
	return nil
}

// DeletePublicPrefix removes every public object under prefix and returns
// the number deleted. An empty prefix is rejected.
func (s *Store) DeletePublicPrefix(ctx context.Context, prefix string) (int, error) {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix == "" {
		return 0, fmt.Errorf("refusing to delete the whole public bucket")
	}

	var (
		deleted int
		token   *string
	)
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.publicBucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return deleted, fmt.Errorf("listing public objects under %q: %w", prefix, err)
		}

		ids := make([]s3types.ObjectIdentifier, 0, len(out.Contents))
		for _, obj := range out.Contents {
			ids = append(ids, s3types.ObjectIdentifier{Key: obj.Key})
		}
		n, err := s.deleteObjects(ctx, ids)
		deleted += n
		if err != nil {
			return deleted, fmt.Errorf("deleting public objects under %q: %w", prefix, err)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if deleted > 0 {
		s.logger.InfoContext(ctx, "deleted public objects", "prefix", prefix, "count", deleted)
	}
	return deleted, nil
}

func (s *Store) deleteObjects(ctx context.Context, ids []s3types.ObjectIdentifier) (int, error) {
	var deleted int
	for start := 0; start < len(ids); start += deleteBatchLimit {
		end := min(start+deleteBatchLimit, len(ids))
		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.publicBucket),
			Delete: &s3types.Delete{Objects: ids[start:end], Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, err
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted + (end - start - len(out.Errors)), fmt.Errorf("%d objects not deleted, first %q: %s",
				len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
		deleted += end - start
	}
	return deleted, nil
}

func copySource(bucket, key string) string {
	segs := strings.Split(key, "/")
	for i, seg := range segs {
		segs[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segs, "/")
}

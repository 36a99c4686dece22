// Package s3 provides an S3-backed backing store. Objects fetched from
// the bucket are written through the daemon's local store so that repeated
// requests, including from other mounts sharing this store, are served
// from local disk.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/driftfs/internal/logger"
	"github.com/marmos91/driftfs/pkg/store"
)

// Config holds configuration for the S3 backing store.
type Config struct {
	// Bucket is the S3 bucket name; it doubles as the store identifier.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services).
	Endpoint string

	// KeyPrefix is prepended to all object keys. Should end with "/" if
	// non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey select static credentials. When
	// empty the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
}

// Store is an S3-backed implementation of store.BackingStore.
type Store struct {
	client    *awss3.Client
	local     *store.LocalStore
	bucket    string
	keyPrefix string

	mu     sync.RWMutex
	closed bool
}

// New creates an S3 backing store with an existing client.
func New(client *awss3.Client, local *store.LocalStore, config Config) *Store {
	return &Store{
		client:    client,
		local:     local,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
	}
}

// NewFromConfig creates an S3 backing store, building the client from the
// ambient AWS configuration plus the given overrides.
func NewFromConfig(ctx context.Context, local *store.LocalStore, config Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*awss3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *awss3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(awss3.NewFromConfig(awsCfg, s3Opts...), local, config), nil
}

// Kind returns "s3".
func (s *Store) Kind() string { return "s3" }

// Name returns the bucket name.
func (s *Store) Name() string { return s.bucket }

func (s *Store) cacheKey(id string) []byte {
	return []byte("s3:" + s.bucket + ":" + id)
}

// GetObject fetches the object with the given content identifier,
// consulting the local store before the bucket.
func (s *Store) GetObject(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, store.ErrStoreClosed
	}
	s.mu.RUnlock()

	if s.local != nil {
		if data, err := s.local.Get(ctx, s.cacheKey(id)); err == nil {
			return data, nil
		} else if !errors.Is(err, store.ErrObjectNotFound) {
			logger.Warn("local store read failed, falling through to s3",
				"store_name", s.bucket, "object_id", id, "error", err)
		}
	}

	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.keyPrefix + id),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, store.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 get object %s: %w", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read object %s: %w", id, err)
	}

	if s.local != nil {
		if err := s.local.Put(ctx, s.cacheKey(id), data); err != nil {
			// Caching is best effort; the fetched data is still valid.
			logger.Warn("failed to cache object locally",
				"store_name", s.bucket, "object_id", id, "error", err)
		}
	}

	return data, nil
}

// Close marks the store closed. The S3 client holds no resources needing
// explicit release; the local store is owned by the server and closed
// separately.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

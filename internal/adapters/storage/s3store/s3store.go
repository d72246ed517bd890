// Package s3store implements storage.Stager on top of an S3 bucket.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	model "github.com/okian/gradeetl/internal/domain/model"
	"github.com/okian/gradeetl/pkg/logger"
)

const defaultRegion = "us-east-1"

// API is the subset of the S3 client the store uses.
type API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Store lists, fetches and uploads objects under an optional key prefix.
// Names handed to callers are relative to that prefix.
type Store struct {
	client   API
	bucket   string
	prefix   string
	region   string
	endpoint string
	logger   logger.Logger
}

// New creates a Store for bucket. Without WithClient the default AWS
// credential chain is used.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	s := &Store{
		bucket: bucket,
		region: defaultRegion,
		logger: logger.Get().Named("s3store"),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(s.region))
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if s.endpoint != "" {
				o.BaseEndpoint = aws.String(s.endpoint)
				o.UsePathStyle = true
			}
		})
	}
	return s, nil
}

// Bucket returns the bucket name.
func (s *Store) Bucket() string { return s.bucket }

// List returns object names in key order, skipping folder placeholders.
func (s *Store) List(ctx context.Context) ([]string, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	if s.prefix != "" {
		in.Prefix = aws.String(s.prefix)
	}

	var names []string
	p := s3.NewListObjectsV2Paginator(s.client, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, &model.StorageError{Op: "list", Key: s.bucket, Err: classify(err)}
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			names = append(names, strings.TrimPrefix(key, s.prefix))
		}
	}

	s.logger.Debug(ctx, "listed bucket", logger.String("bucket", s.bucket), logger.Int("objects", len(names)))
	return names, nil
}

// Fetch downloads name into memory.
func (s *Store) Fetch(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		return nil, &model.StorageError{Op: "fetch", Key: name, Err: classify(err)}
	}
	defer func() {
		if cerr := out.Body.Close(); cerr != nil {
			s.logger.Warn(ctx, "failed to close object body", logger.String("key", name), logger.Error(cerr))
		}
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &model.StorageError{Op: "fetch", Key: name, Err: fmt.Errorf("%w: %w", model.ErrIO, err)}
	}
	return data, nil
}

// Put uploads data under name.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(name)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return &model.StorageError{Op: "put", Key: name, Err: classify(err)}
	}
	s.logger.Info(ctx, "uploaded object", logger.String("key", s.key(name)), logger.Int("bytes", len(data)))
	return nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return &model.StorageError{Op: "head", Key: s.bucket, Err: classify(err)}
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != defaultRegion {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, in); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return &model.StorageError{Op: "create", Key: s.bucket, Err: classify(err)}
	}
	s.logger.Info(ctx, "created bucket", logger.String("bucket", s.bucket), logger.String("region", s.region))
	return nil
}

func (s *Store) key(name string) string {
	return s.prefix + name
}

func classify(err error) error {
	var nsk *types.NoSuchKey
	var nsb *types.NoSuchBucket
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nsb) || errors.As(err, &nf) {
		return fmt.Errorf("%w: %w", model.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", model.ErrIO, err)
}

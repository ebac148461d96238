package objstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store implements Store on an S3 bucket. Partition-object keys map
// directly to S3 keys, so external tooling that inspects the bucket sees the
// documented rrweb/recordings/sessionId=... layout.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store wraps an existing client; used by tests and custom wiring.
func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

// OpenS3Store builds a client from the ambient AWS configuration chain.
func OpenS3Store(ctx context.Context, bucket, region string) (*S3Store, error) {
	if bucket == "" {
		return nil, errors.New("objstore: s3 bucket is required")
	}
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: loading aws config: %w", err)
	}
	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Put implements Store. S3 object puts are atomic by contract.
func (s *S3Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/jsonl+json"),
	})
	if err != nil {
		return fmt.Errorf("objstore: put %s: %w", key, err)
	}
	return nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("objstore: get %s: %w", key, err)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("objstore: reading %s: %w", key, err)
	}
	return body, nil
}

// List implements Store using ListObjectsV2 continuation tokens.
func (s *S3Store) List(ctx context.Context, prefix, pageToken string, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = 1000
	}
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(pageSize)),
	}
	if pageToken != "" {
		in.ContinuationToken = aws.String(pageToken)
	}
	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return Page{}, fmt.Errorf("objstore: list %s: %w", prefix, err)
	}
	page := Page{Keys: make([]string, 0, len(out.Contents))}
	for _, item := range out.Contents {
		page.Keys = append(page.Keys, aws.ToString(item.Key))
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

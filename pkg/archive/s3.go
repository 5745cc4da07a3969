package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Mindburn-Labs/remedy/pkg/canon"
)

// S3Store keeps evidence blobs in an S3 bucket under their content handle.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures the S3 backend. Endpoint supports MinIO and
// LocalStack deployments.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Store builds an S3-backed evidence store.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *S3Store) key(hex string) string {
	return s.prefix + hex + ".blob"
}

// Store uploads data under its content handle. Existing objects are left
// untouched.
func (s *S3Store) Store(ctx context.Context, data []byte) (string, error) {
	handle := canon.HashBytes(data)
	hex, err := rawHex(handle)
	if err != nil {
		return "", err
	}

	if exists, err := s.headObject(ctx, s.key(hex)); err == nil && exists {
		return handle, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key(hex)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("archive: s3 put: %w", err)
	}
	return handle, nil
}

// Get downloads a blob by handle.
func (s *S3Store) Get(ctx context.Context, handle string) ([]byte, error) {
	hex, err := rawHex(handle)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hex)),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: s3 get %s: %w", handle, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: s3 read %s: %w", handle, err)
	}
	return data, nil
}

// Exists checks for a blob by handle.
func (s *S3Store) Exists(ctx context.Context, handle string) (bool, error) {
	hex, err := rawHex(handle)
	if err != nil {
		return false, err
	}
	return s.headObject(ctx, s.key(hex))
}

// Delete removes a blob. Missing objects are not an error.
func (s *S3Store) Delete(ctx context.Context, handle string) error {
	hex, err := rawHex(handle)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(hex)),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 delete %s: %w", handle, err)
	}
	return nil
}

func (s *S3Store) headObject(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("archive: s3 head: %w", err)
	}
	return true, nil
}

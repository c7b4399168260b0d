package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/regdesk/backend/pkg/logger"
)

// S3Store stores objects in an AWS S3 bucket.
type S3Store struct {
	client        *s3.Client
	bucket        string
	prefix        string
	region        string
	endpoint      string
	publicBaseURL string
	timeout       time.Duration
}

type S3OptionFunc func(*S3Store)

func WithS3Bucket(bucket string) S3OptionFunc {
	return func(s *S3Store) { s.bucket = bucket }
}

func WithS3Prefix(prefix string) S3OptionFunc {
	return func(s *S3Store) { s.prefix = prefix }
}

func WithS3Region(region string) S3OptionFunc {
	return func(s *S3Store) { s.region = region }
}

// WithS3Endpoint points the client at an S3 compatible service such as minio.
func WithS3Endpoint(endpoint string) S3OptionFunc {
	return func(s *S3Store) { s.endpoint = endpoint }
}

// WithS3PublicBaseURL overrides the virtual-hosted bucket URL, e.g. for a CDN.
func WithS3PublicBaseURL(base string) S3OptionFunc {
	return func(s *S3Store) { s.publicBaseURL = base }
}

func WithS3Client(client *s3.Client) S3OptionFunc {
	return func(s *S3Store) { s.client = client }
}

func NewS3Store(ctx context.Context, opts ...S3OptionFunc) (*S3Store, error) {
	s := &S3Store{timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucket == "" {
		return nil, errors.New("s3 blob: bucket not set")
	}

	if s.client == nil {
		loadCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(loadCtx)
		if err != nil {
			return nil, fmt.Errorf("s3 blob: load default AWS config: %w", err)
		}
		if s.region != "" {
			awsCfg.Region = s.region
		}
		s.region = awsCfg.Region
		s.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			if s.endpoint != "" {
				o.BaseEndpoint = aws.String(s.endpoint)
				o.UsePathStyle = true
			}
		})
	}

	logger.Infof("[Storage] S3 blob store ready: bucket=%s region=%s", s.bucket, s.region)
	return s, nil
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return joinURL(s.prefix, key)
}

func (s *S3Store) objectURL(key string) string {
	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, key)
	}
	if s.region == "" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func (s *S3Store) Put(ctx context.Context, data []byte, folder, filename, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	key := s.fullKey(ObjectKey(folder, filename))
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		logger.Errorf("[Storage] s3 put %q failed: %v", key, err)
		return "", fmt.Errorf("s3 put %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *S3Store) Close() error { return nil }

package storage

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"github.com/regdesk/backend/pkg/logger"
	"google.golang.org/api/option"
)

// GCSStore stores objects in a Google Cloud Storage bucket.
type GCSStore struct {
	client          *gcs.Client
	bucket          *gcs.BucketHandle
	bucketName      string
	prefix          string
	credentialsFile string
	publicBaseURL   string
}

type GCSOptionFunc func(*GCSStore)

func WithGCSBucket(bucket string) GCSOptionFunc {
	return func(s *GCSStore) { s.bucketName = bucket }
}

func WithGCSPrefix(prefix string) GCSOptionFunc {
	return func(s *GCSStore) { s.prefix = prefix }
}

func WithGCSCredentialsFile(path string) GCSOptionFunc {
	return func(s *GCSStore) { s.credentialsFile = path }
}

func WithGCSPublicBaseURL(base string) GCSOptionFunc {
	return func(s *GCSStore) { s.publicBaseURL = base }
}

func NewGCSStore(ctx context.Context, opts ...GCSOptionFunc) (*GCSStore, error) {
	s := &GCSStore{}
	for _, opt := range opts {
		opt(s)
	}
	if s.bucketName == "" {
		return nil, errors.New("gcs blob: bucket not set")
	}

	clientOpts := []option.ClientOption{gcs.WithDisabledClientMetrics()}
	if s.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(s.credentialsFile))
	}
	client, err := gcs.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcs blob: create client: %w", err)
	}
	s.client = client
	s.bucket = client.Bucket(s.bucketName)

	logger.Infof("[Storage] GCS blob store ready: bucket=%s", s.bucketName)
	return s, nil
}

func (s *GCSStore) objectURL(key string) string {
	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, key)
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.bucketName, key)
}

func (s *GCSStore) Put(ctx context.Context, data []byte, folder, filename, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}
	key := ObjectKey(folder, filename)
	if s.prefix != "" {
		key = joinURL(s.prefix, key)
	}

	w := s.bucket.Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		logger.Errorf("[Storage] gcs write %q failed: %v", key, err)
		return "", fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		logger.Errorf("[Storage] gcs close %q failed: %v", key, err)
		return "", fmt.Errorf("gcs close %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *GCSStore) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

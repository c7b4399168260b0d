package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/regdesk/backend/internal/config"
)

// Logical folders used by the application.
const (
	FolderQRCodes       = "qr-codes"
	FolderPaymentProofs = "payment-proofs"
	FolderDocuments     = "documents"
)

var ErrEmptyObject = errors.New("storage: empty object")

// BlobStore persists binary artifacts and returns a stable public URL.
// Every Put writes a new object; keys never collide.
type BlobStore interface {
	Put(ctx context.Context, data []byte, folder, filename, contentType string) (string, error)
	Close() error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectKey builds "<folder>/<uuid>-<filename>" with the filename sanitized.
func ObjectKey(folder, filename string) string {
	name := unsafeChars.ReplaceAllString(path.Base(filename), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "blob"
	}
	folder = strings.Trim(folder, "/")
	key := uuid.NewString() + "-" + name
	if folder == "" {
		return key
	}
	return folder + "/" + key
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}

// New builds the blob store selected by cfg.Driver.
func New(ctx context.Context, cfg *config.StorageConfig) (BlobStore, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStore(cfg.Dir, cfg.PublicBaseURL)
	case "s3":
		return NewS3Store(ctx,
			WithS3Bucket(cfg.Bucket),
			WithS3Prefix(cfg.Prefix),
			WithS3Region(cfg.Region),
			WithS3Endpoint(cfg.Endpoint),
			WithS3PublicBaseURL(cfg.PublicBaseURL),
		)
	case "gcs":
		return NewGCSStore(ctx,
			WithGCSBucket(cfg.Bucket),
			WithGCSPrefix(cfg.Prefix),
			WithGCSCredentialsFile(cfg.CredentialsFile),
			WithGCSPublicBaseURL(cfg.PublicBaseURL),
		)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", cfg.Driver)
	}
}

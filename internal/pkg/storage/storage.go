// Package storage provides object storage for generated artifacts such as
// application exports, behind a driver-agnostic interface (S3, GCS, MinIO).
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrMissingSigner indicates signed URL support is not configured.
var ErrMissingSigner = errors.New("storage: signed url signer not configured")

// Storage covers the two operations export flows need: write an artifact,
// then hand out a short-lived download link for it.
type Storage interface {
	io.Closer

	PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) (ObjectInfo, error)
	PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
}

// PutOptions configures an upload.
type PutOptions struct {
	Size        int64             // expected content length, 0 when unknown
	ContentType string            // MIME type for the object
	Metadata    map[string]string // user-defined key/value metadata
}

// ObjectInfo describes a stored object. Drivers fill in what their backend
// reports; absent fields stay zero.
type ObjectInfo struct {
	Bucket      string
	Key         string
	Size        int64
	ETag        string
	ContentType string
	Metadata    map[string]string
	UpdatedAt   time.Time
}

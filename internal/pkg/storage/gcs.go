package storage

import (
	"context"
	"errors"
	"io"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSOptions configures GCS client initialization. When Client is nil a
// client is created from ambient credentials.
type GCSOptions struct {
	Client *gcs.Client

	// GoogleAccessID and PrivateKey enable signed URL generation. Both must
	// be set; PresignGet fails with ErrMissingSigner otherwise.
	GoogleAccessID string
	PrivateKey     []byte
}

// GCS implements Storage on Google Cloud Storage.
type GCS struct {
	client *gcs.Client

	signAs  string
	signKey []byte
}

// NewGCS constructs a GCS adapter with optional signing support.
func NewGCS(ctx context.Context, opts GCSOptions) (*GCS, error) {
	client := opts.Client
	if client == nil {
		created, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		client = created
	}

	g := &GCS{client: client}
	if opts.GoogleAccessID != "" && len(opts.PrivateKey) > 0 {
		g.signAs = opts.GoogleAccessID
		g.signKey = opts.PrivateKey
	}

	return g, nil
}

// PutObject uploads data and returns the metadata the server reported.
func (g *GCS) PutObject(ctx context.Context, bucket, key string, r io.Reader, opts PutOptions) (ObjectInfo, error) {
	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	if opts.ContentType != "" {
		w.ContentType = opts.ContentType
	}
	if len(opts.Metadata) > 0 {
		w.Metadata = opts.Metadata
	}

	if _, err := io.Copy(w, r); err != nil {
		if cerr := w.Close(); cerr != nil {
			return ObjectInfo{}, errors.Join(err, cerr)
		}

		return ObjectInfo{}, err
	}

	if err := w.Close(); err != nil {
		return ObjectInfo{}, err
	}

	// Attrs is only populated after a successful Close.
	attrs := w.Attrs()
	if attrs == nil {
		return ObjectInfo{
			Bucket:      bucket,
			Key:         key,
			Size:        opts.Size,
			ContentType: opts.ContentType,
			Metadata:    opts.Metadata,
		}, nil
	}

	return ObjectInfo{
		Bucket:      attrs.Bucket,
		Key:         attrs.Name,
		Size:        attrs.Size,
		ETag:        attrs.Etag,
		ContentType: attrs.ContentType,
		Metadata:    attrs.Metadata,
		UpdatedAt:   attrs.Updated,
	}, nil
}

// PresignGet returns a time-limited download URL signed with the configured
// service account key.
func (g *GCS) PresignGet(_ context.Context, bucket, key string, expiry time.Duration) (string, error) {
	if g.signAs == "" {
		return "", ErrMissingSigner
	}

	return gcs.SignedURL(bucket, key, &gcs.SignedURLOptions{
		Method:         "GET",
		Expires:        time.Now().Add(expiry),
		GoogleAccessID: g.signAs,
		PrivateKey:     g.signKey,
	})
}

// Close closes the underlying GCS client.
func (g *GCS) Close() error {
	return g.client.Close()
}

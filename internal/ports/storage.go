package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey    string
	ContentType  string
	CacheControl string
	Reader       io.Reader
	Size         int64
}

type PutObjectOutput struct {
	// ObjectKey is the key later Get/Delete calls accept. For localfs and gcs
	// it is the input key; for gdrive it is the Drive file id.
	ObjectKey string
	Size      int64
	// PublicURL is the canonical URL the object is reachable at.
	PublicURL string
}

// StorageProvider is a durable object store: localfs, gcs, gdrive.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)
	DeleteObject(ctx context.Context, objectKey string) error

	// PublicURL joins the provider's base URL with objectKey.
	PublicURL(objectKey string) string
}

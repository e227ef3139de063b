// Package gcs stores objects in a Google Cloud Storage bucket through the
// JSON API.
package gcs

import (
	"context"
	"io"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
	storage "google.golang.org/api/storage/v1"

	"postcraft/internal/adapters/storage/gcperr"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/ports"
)

// DefaultBaseURL is the canonical public endpoint of GCS objects.
const DefaultBaseURL = "https://storage.googleapis.com"

// Client implements ports.StorageProvider for one bucket.
type Client struct {
	svc     *storage.Service
	bucket  string
	baseURL string
	// publicRead sets the publicRead ACL on upload. Leave it off for
	// buckets with uniform bucket-level access.
	publicRead bool
}

type Options struct {
	Bucket     string
	BaseURL    string
	PublicRead bool
}

func NewClient(svc *storage.Service, opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Client{svc: svc, bucket: opts.Bucket, baseURL: base, publicRead: opts.PublicRead}
}

func (c *Client) Provider() string { return "gcs" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "gcs.put"
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}

	obj := &storage.Object{
		Name:         in.ObjectKey,
		ContentType:  in.ContentType,
		CacheControl: in.CacheControl,
	}

	call := c.svc.Objects.Insert(c.bucket, obj)
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}
	if c.publicRead {
		call = call.PredefinedAcl("publicRead")
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, gcperr.Classify(err, op, "gcs upload failed")
	}

	size := in.Size
	if created.Size > 0 {
		size = int64(created.Size)
	}
	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: size, PublicURL: c.PublicURL(in.ObjectKey)}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.svc.Objects.Get(c.bucket, objectKey).Context(ctx).Download()
	if err != nil {
		return nil, "", 0, gcperr.Classify(err, "gcs.get", "gcs download failed")
	}
	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.svc.Objects.Delete(c.bucket, objectKey).Context(ctx).Do()
	return gcperr.Classify(err, "gcs.delete", "gcs delete failed")
}

// PublicURL is {base}/{bucket}/{key} with each key segment escaped.
func (c *Client) PublicURL(objectKey string) string {
	parts := strings.Split(objectKey, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + c.bucket + "/" + strings.Join(parts, "/")
}

package gdrive

import (
	"context"
	"io"
	"net/url"
	"path"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"postcraft/internal/adapters/storage/gcperr"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/ports"
)

const viewURL = "https://drive.google.com/uc?export=view&id="

// Client implements ports.StorageProvider backed by Google Drive.
// The returned ObjectKey is the Drive file id; the object key passed in
// becomes the file name. Drive has no cache headers, so CacheControl is
// ignored.
type Client struct {
	srv      *drive.Service
	folderID string
	// public grants anyone-with-link read access after upload.
	public bool
}

func NewClient(srv *drive.Service, folderID string, public bool) *Client {
	return &Client{srv: srv, folderID: folderID, public: public}
}

func (c *Client) Provider() string { return "gdrive" }

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "gdrive.put"
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, errors.ValidationField("object_key", "object_key is required")
	}

	file := &drive.File{
		Name:        path.Base(in.ObjectKey),
		Description: in.ObjectKey,
		MimeType:    in.ContentType,
	}
	if c.folderID != "" {
		file.Parents = []string{c.folderID}
	}

	call := c.srv.Files.Create(file).SupportsAllDrives(true).Fields("id", "size")
	if in.ContentType != "" {
		call = call.Media(in.Reader, googleapi.ContentType(in.ContentType))
	} else {
		call = call.Media(in.Reader)
	}

	created, err := call.Context(ctx).Do()
	if err != nil {
		return ports.PutObjectOutput{}, gcperr.Classify(err, op, "drive upload failed")
	}

	if c.public {
		perm := &drive.Permission{Type: "anyone", Role: "reader"}
		if _, err := c.srv.Permissions.Create(created.Id, perm).SupportsAllDrives(true).Context(ctx).Do(); err != nil {
			return ports.PutObjectOutput{}, gcperr.Classify(err, op, "share drive file")
		}
	}

	size := in.Size
	if created.Size > 0 {
		size = created.Size
	}
	return ports.PutObjectOutput{ObjectKey: created.Id, Size: size, PublicURL: c.PublicURL(created.Id)}, nil
}

func (c *Client) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	resp, err := c.srv.Files.Get(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, "", 0, gcperr.Classify(err, "gdrive.get", "drive download failed")
	}

	contentType = resp.Header.Get("Content-Type")
	size = resp.ContentLength
	return resp.Body, contentType, size, nil
}

func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	err := c.srv.Files.Delete(objectKey).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	return gcperr.Classify(err, "gdrive.delete", "drive delete failed")
}

// PublicURL takes a Drive file id, not a path.
func (c *Client) PublicURL(fileID string) string {
	return viewURL + url.QueryEscape(fileID)
}

// Package publisher uploads rendered images to durable storage under a
// day-partitioned path and reports the public URL or a typed error.
package publisher

import (
	"bytes"
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/ports"
	"postcraft/internal/raster"
)

const (
	DefaultCacheControl = "public, max-age=31536000"
	maxNameLen          = 100
)

// Destination is where and how images are stored.
type Destination struct {
	Folder       string
	CacheControl string
}

// Result is the outcome of one upload. Exactly one of URL or Err is set.
type Result struct {
	ItemID      string `json:"item_id"`
	URL         string `json:"url,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
	Err         error  `json:"-"`
}

// OK reports whether the upload produced a URL.
func (r Result) OK() bool { return r.Err == nil && r.URL != "" }

type Publisher struct {
	sp   ports.StorageProvider
	dest Destination
	now  func() time.Time
	log  *logger.Logger
}

type Option func(*Publisher)

// WithClock overrides the time source used for path partitioning.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) { p.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(p *Publisher) { p.log = l }
}

// New fails with DESTINATION_NOT_CONFIGURED when there is nowhere to upload.
func New(sp ports.StorageProvider, dest Destination, opts ...Option) (*Publisher, error) {
	if sp == nil {
		return nil, notConfigured("storage provider is not configured")
	}
	dest.Folder = strings.Trim(dest.Folder, "/ ")
	if dest.Folder == "" {
		return nil, notConfigured("destination folder is empty")
	}
	if dest.CacheControl == "" {
		dest.CacheControl = DefaultCacheControl
	}

	p := &Publisher{sp: sp, dest: dest, now: time.Now, log: logger.Discard()}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.WithComponent("publisher")
	return p, nil
}

func notConfigured(msg string) error {
	e := errors.New(errors.CodeDestinationNotConfigured, msg)
	e.Op = "publisher.new"
	return e
}

// Provider names the backing store.
func (p *Publisher) Provider() string { return p.sp.Provider() }

// Publish uploads img under a path derived from nameHint. It never panics
// or returns a bare error; failures are carried in Result.Err.
func (p *Publisher) Publish(ctx context.Context, img raster.Image, nameHint string) Result {
	const op = "publisher.publish"
	res := Result{ItemID: img.ItemID}

	if len(img.Bytes) == 0 {
		res.Err = errors.New(errors.CodePublish, "image has no bytes").WithField("item_id", img.ItemID)
		return res
	}

	ext := img.Ext
	if ext == "" {
		ext = raster.ExtJPEG
	}
	key := StoragePath(p.dest.Folder, p.now(), nameHint, ext)

	start := time.Now()
	out, err := p.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:    key,
		ContentType:  img.MimeType,
		CacheControl: p.dest.CacheControl,
		Reader:       bytes.NewReader(img.Bytes),
		Size:         int64(len(img.Bytes)),
	})
	if err != nil {
		res.Err = errors.WrapWithCode(err, errors.CodePublish, op, "upload failed").
			WithField("cause", errors.GetCode(err)).
			WithField("path", key)
		p.log.Debug("upload failed", "item_id", img.ItemID, "path", key, "error", err.Error())
		return res
	}

	res.StoragePath = key
	res.URL = out.PublicURL
	if res.URL == "" {
		res.URL = p.sp.PublicURL(out.ObjectKey)
	}
	p.log.Debug("uploaded",
		"item_id", img.ItemID,
		"path", key,
		"bytes", out.Size,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

// Probe writes and removes a small object to confirm the destination
// accepts writes.
func (p *Publisher) Probe(ctx context.Context) error {
	key := p.dest.Folder + "/_health/probe_" + uuid.NewString() + ".txt"
	out, err := p.sp.PutObject(ctx, ports.PutObjectInput{
		ObjectKey:   key,
		ContentType: "text/plain",
		Reader:      strings.NewReader("ok"),
		Size:        2,
	})
	if err != nil {
		return errors.Wrap(err, "publisher.probe", "write probe object")
	}
	if err := p.sp.DeleteObject(ctx, out.ObjectKey); err != nil {
		return errors.Wrap(err, "publisher.probe", "delete probe object")
	}
	return nil
}

// StoragePath builds {folder}/{YYYY-MM-DD}/{HH-MM-SS}_{name}.{ext} in UTC.
func StoragePath(folder string, t time.Time, nameHint, ext string) string {
	t = t.UTC()
	return folder + "/" + t.Format("2006-01-02") + "/" + t.Format("15-04-05") + "_" + Sanitize(nameHint) + "." + ext
}

// Sanitize lowercases name and replaces every non-alphanumeric rune with
// '_'. Non-ASCII letters are replaced too so keys stay URL-safe.
func Sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}

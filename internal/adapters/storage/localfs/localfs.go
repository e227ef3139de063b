package localfs

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"postcraft/internal/pkg/errors"
	"postcraft/internal/ports"
)

// LocalFS implements ports.StorageProvider using the local filesystem.
// Objects live under root; their public URL is baseURL joined with the key.
type LocalFS struct {
	root    string
	baseURL string
}

func New(root, baseURL string) *LocalFS {
	return &LocalFS{root: root, baseURL: strings.TrimRight(baseURL, "/")}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	const op = "localfs.put"

	dst, err := l.resolve(in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	if err := ctx.Err(); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeCanceled, op, "upload aborted")
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, op, "create directory")
	}

	// Write to a sibling temp file so readers never see a partial image.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, op, "create file")
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, in.Reader)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, op, "write file")
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return ports.PutObjectOutput{}, errors.WrapWithCode(err, errors.CodeUnavailable, op, "commit file")
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n, PublicURL: l.PublicURL(in.ObjectKey)}, nil
}

func (l *LocalFS) GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error) {
	p, err := l.resolve(objectKey)
	if err != nil {
		return nil, "", 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", 0, errors.NotFound("object", objectKey)
		}
		return nil, "", 0, errors.WrapWithCode(err, errors.CodeUnavailable, "localfs.get", "open file")
	}

	st, statErr := f.Stat()
	if statErr == nil {
		size = st.Size()
	}

	// Prefer extension-based type. If empty, sniff first bytes.
	contentType = mime.TypeByExtension(filepath.Ext(p))
	if contentType == "" {
		buf := make([]byte, 512)
		n, _ := f.Read(buf)
		_, _ = f.Seek(0, 0)
		contentType = http.DetectContentType(buf[:n])
	}

	return f, contentType, size, nil
}

func (l *LocalFS) DeleteObject(ctx context.Context, objectKey string) error {
	p, err := l.resolve(objectKey)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errors.NotFound("object", objectKey)
		}
		return errors.WrapWithCode(err, errors.CodeUnavailable, "localfs.delete", "remove file")
	}
	return nil
}

// PublicURL returns baseURL/key, or a file:// URL when no base is set.
func (l *LocalFS) PublicURL(objectKey string) string {
	if l.baseURL == "" {
		abs, err := filepath.Abs(filepath.Join(l.root, filepath.FromSlash(objectKey)))
		if err != nil {
			abs = filepath.Join(l.root, filepath.FromSlash(objectKey))
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	}
	return l.baseURL + "/" + escapePath(objectKey)
}

// resolve maps a key to a path under root, rejecting keys that escape it.
func (l *LocalFS) resolve(objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.ValidationField("object_key", "object_key is required")
	}
	clean := path.Clean("/" + objectKey)
	if clean == "/" || strings.Contains(objectKey, "..") {
		return "", errors.ValidationField("object_key", "invalid object key").WithField("key", objectKey)
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

func escapePath(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

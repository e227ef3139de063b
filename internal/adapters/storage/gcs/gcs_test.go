package gcs

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"google.golang.org/api/option"
	storage "google.golang.org/api/storage/v1"

	"postcraft/internal/pkg/errors"
	"postcraft/internal/ports"
)

type fakeGCS struct {
	mu       sync.Mutex
	status   int
	requests []*http.Request
	bodies   [][]byte
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, body)
	status := f.status
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 && status != http.StatusOK {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": status, "message": "denied"},
		})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"name":   r.URL.Query().Get("name"),
		"bucket": "test-bucket",
		"size":   "4",
	})
}

func newTestClient(t *testing.T, fake *fakeGCS, publicRead bool) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := storage.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("storage.NewService: %v", err)
	}
	return NewClient(svc, Options{Bucket: "test-bucket", PublicRead: publicRead})
}

func TestPutObjectUploadsWithMetadata(t *testing.T) {
	fake := &fakeGCS{}
	c := newTestClient(t, fake, true)

	key := "facebook-captions/2024-05-01/10-00-00_caption_1.jpg"
	out, err := c.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey:    key,
		ContentType:  "image/jpeg",
		CacheControl: "public, max-age=31536000",
		Reader:       bytes.NewReader([]byte("jpeg")),
		Size:         4,
	})
	if err != nil {
		t.Fatalf("PutObject: %v", err)
	}
	if want := "https://storage.googleapis.com/test-bucket/" + key; out.PublicURL != want {
		t.Errorf("expected %q, got %q", want, out.PublicURL)
	}
	if out.Size != 4 {
		t.Errorf("expected size 4, got %d", out.Size)
	}

	if len(fake.requests) != 1 {
		t.Fatalf("expected one request, got %d", len(fake.requests))
	}
	req := fake.requests[0]
	if !strings.Contains(req.URL.Path, "/b/test-bucket/o") {
		t.Errorf("unexpected path %s", req.URL.Path)
	}
	if got := req.URL.Query().Get("predefinedAcl"); got != "publicRead" {
		t.Errorf("expected publicRead acl, got %q", got)
	}
	body := string(fake.bodies[0])
	if !strings.Contains(body, `"cacheControl":"public, max-age=31536000"`) {
		t.Errorf("expected cache control in metadata part, body=%s", body)
	}
	if !strings.Contains(body, "jpeg") {
		t.Error("expected media bytes in body")
	}
}

func TestPutObjectClassifiesAPIErrors(t *testing.T) {
	fake := &fakeGCS{status: http.StatusForbidden}
	c := newTestClient(t, fake, false)

	_, err := c.PutObject(context.Background(), ports.PutObjectInput{
		ObjectKey:   "a.jpg",
		ContentType: "image/jpeg",
		Reader:      bytes.NewReader([]byte("x")),
	})
	if !errors.IsCode(err, errors.CodeForbidden) {
		t.Errorf("expected FORBIDDEN, got %v", err)
	}
	if got := errors.GetFields(err)["status"]; got != http.StatusForbidden {
		t.Errorf("expected status field 403, got %v", got)
	}
}

func TestPublicURLEscapesSegments(t *testing.T) {
	c := NewClient(nil, Options{Bucket: "b", BaseURL: "https://cdn.example.com/"})
	if got := c.PublicURL("dir/a b.jpg"); got != "https://cdn.example.com/b/dir/a%20b.jpg" {
		t.Errorf("unexpected url %q", got)
	}
}

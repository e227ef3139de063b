package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
)

func bufferLogger(buf *bytes.Buffer, level string) *logger.Logger {
	return logger.New(logger.Config{Level: level, Format: "json", Output: buf})
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(logger.RequestIDKey).(string)
	}))

	t.Run("mints an id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		id := rec.Header().Get(RequestIDHeader)
		if len(id) != 36 {
			t.Errorf("expected uuid request id, got %q", id)
		}
		if seen != id {
			t.Errorf("context id %q does not match header %q", seen, id)
		}
	})

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
			t.Errorf("expected abc-123, got %q", got)
		}
	})
}

func TestLoggingLevels(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{200, "INFO"},
		{302, "INFO"},
		{409, "WARN"},
		{503, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			handler := Logging(bufferLogger(&buf, "debug"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/batches", nil))

			out := buf.String()
			for _, want := range []string{"request completed", tt.level, "/batches", "duration_ms"} {
				if !strings.Contains(out, want) {
					t.Errorf("expected %q in log, got: %s", want, out)
				}
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	var buf bytes.Buffer
	handler := Recovery(bufferLogger(&buf, "info"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected panic value in log, got %s", buf.String())
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := record(httptest.NewRecorder())
	_, _ = rec.Write([]byte("hello world"))
	rec.WriteHeader(http.StatusTeapot)

	if rec.status != http.StatusOK {
		t.Errorf("expected implicit 200 to stick, got %d", rec.status)
	}
	if rec.size != 11 {
		t.Errorf("expected size 11, got %d", rec.size)
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	var ok bool
	handler := Timeout(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = r.Context().Deadline()
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !ok {
		t.Error("expected request context to carry a deadline")
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	handler := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	if readErr == nil {
		t.Error("expected oversized body to fail")
	}
}

func TestWrapWritesErrors(t *testing.T) {
	var buf bytes.Buffer
	log := bufferLogger(&buf, "info")

	tests := []struct {
		name   string
		err    error
		status int
		code   errors.Code
	}{
		{"not found", errors.NotFound("run", "42"), http.StatusNotFound, errors.CodeNotFound},
		{"validation", errors.ValidationField("items", "too many"), http.StatusBadRequest, errors.CodeValidation},
		{"empty manifest", errors.New(errors.CodeManifestEmpty, "nothing published"), http.StatusConflict, errors.CodeManifestEmpty},
		{"destination", errors.New(errors.CodeDestinationNotConfigured, "no storage"), http.StatusServiceUnavailable, errors.CodeDestinationNotConfigured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Wrap(log, func(w http.ResponseWriter, r *http.Request) error { return tt.err })
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Code != tt.code {
				t.Errorf("expected code %s, got %s", tt.code, body.Error.Code)
			}
		})
	}
}

func TestWriteErrorResponseEscapes(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorResponse(rec, errors.CodeValidation, "bad \"quote\"\n", map[string]any{"field": "text", "limit": 2000})

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid json: %v (%s)", err, rec.Body.String())
	}
	if body.Error.Message != "bad \"quote\"\n" {
		t.Errorf("message mangled: %q", body.Error.Message)
	}
	if body.Error.Details["limit"] != "2000" {
		t.Errorf("expected stringified detail, got %v", body.Error.Details)
	}
}

// Package httpkit holds small HTTP helpers shared by the API handlers.
package httpkit

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"postcraft/internal/pkg/errors"
)

// DecodeJSON decodes the request body into v, rejecting unknown fields and
// trailing data. Failures are VALIDATION_ERROR.
func DecodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if stderrors.As(err, &tooBig) {
			return errors.Newf(errors.CodeValidation, "request body exceeds %d bytes", tooBig.Limit)
		}
		if stderrors.Is(err, io.EOF) {
			return errors.Validation("request body is empty")
		}
		return errors.WrapWithCode(err, errors.CodeValidation, "httpkit.decode", "invalid json body")
	}
	if dec.More() {
		return errors.Validation("unexpected data after json body")
	}
	return nil
}

func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// WriteBytes writes a binary body with an explicit type and length.
func WriteBytes(w http.ResponseWriter, status int, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// QueryInt parses an integer query parameter clamped to [lo, hi].
func QueryInt(r *http.Request, key string, def, lo, hi int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.ValidationField(key, "must be an integer")
	}
	return max(lo, min(n, hi)), nil
}

package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// GetFile streams a published object. Mounted only for the local provider,
// whose public URLs point back at this server.
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) error {
	rc, contentType, size, err := h.files.GetObject(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		return err
	}
	defer rc.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=31536000")
	_, _ = io.Copy(w, rc)
	return nil
}

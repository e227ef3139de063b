package handlers

import (
	"net/http"

	"postcraft/internal/batch"
	"postcraft/internal/httpkit"
)

type previewRequest struct {
	batch.ItemInput
	Normalize bool `json:"normalize,omitempty"`
}

// PostPreview renders one caption and returns the JPEG without publishing.
func (h *Handler) PostPreview(w http.ResponseWriter, r *http.Request) error {
	var req previewRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}
	img, err := h.batches.Preview(req.ItemInput, req.Normalize)
	if err != nil {
		return err
	}
	w.Header().Set("Cache-Control", "no-store")
	httpkit.WriteBytes(w, http.StatusOK, img.MimeType, img.Bytes)
	return nil
}

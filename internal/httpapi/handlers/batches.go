package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"postcraft/internal/batch"
	"postcraft/internal/httpkit"
	"postcraft/internal/manifest"
	"postcraft/internal/models"
	"postcraft/internal/pipeline"
	"postcraft/internal/worker/queue"
)

type batchSummary struct {
	ID         string           `json:"id"`
	Status     models.RunStatus `json:"status"`
	Items      int              `json:"items"`
	Summary    pipeline.Summary `json:"summary"`
	ErrorCode  string           `json:"error_code,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

func summarize(run models.Run) batchSummary {
	return batchSummary{
		ID:         run.ID,
		Status:     run.Status,
		Items:      len(run.Items),
		Summary:    run.Summary,
		ErrorCode:  run.ErrorCode,
		CreatedAt:  run.CreatedAt,
		FinishedAt: run.FinishedAt,
	}
}

// PostBatch accepts a batch and answers 202 with the queued run.
func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) error {
	var req batch.Request
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return err
	}
	run, err := h.batches.Submit(r.Context(), req)
	if err != nil {
		return err
	}
	w.Header().Set("Location", "/batches/"+run.ID)
	httpkit.WriteJSON(w, http.StatusAccepted, map[string]any{"batch": summarize(*run)})
	return nil
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) error {
	limit, err := httpkit.QueryInt(r, "limit", 20, 1, 100)
	if err != nil {
		return err
	}
	runs, err := h.batches.List(r.Context(), limit)
	if err != nil {
		return err
	}
	out := make([]batchSummary, len(runs))
	for i, run := range runs {
		out[i] = summarize(run)
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"batches": out})
	return nil
}

// GetBatch returns the recorded run, plus live progress while it is still
// executing on a worker.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	run, err := h.batches.Get(ctx, chi.URLParam(r, "batchId"))
	if err != nil {
		return err
	}

	body := map[string]any{"batch": run}
	if !run.Terminal() && h.progress != nil {
		snap, ok, err := h.progress.Load(ctx, run.ID)
		if err != nil {
			h.log.FromContext(ctx).Warn("progress unavailable", "batch_id", run.ID, "error", err.Error())
		}
		if ok {
			body["progress"] = snap
		} else {
			body["progress"] = queue.Snapshot{}
		}
	}
	httpkit.WriteJSON(w, http.StatusOK, body)
	return nil
}

// GetManifest downloads the publishing CSV of a finished run.
func (h *Handler) GetManifest(w http.ResponseWriter, r *http.Request) error {
	data, err := h.batches.Manifest(r.Context(), chi.URLParam(r, "batchId"))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+manifest.FileName(h.now())+`"`)
	httpkit.WriteBytes(w, http.StatusOK, "text/csv; charset=utf-8", data)
	return nil
}

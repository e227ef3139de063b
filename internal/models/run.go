package models

import (
	"time"

	"postcraft/internal/caption"
	"postcraft/internal/pipeline"
)

type RunStatus string

const (
	RunQueued  RunStatus = "queued"
	RunRunning RunStatus = "running"
	RunDone    RunStatus = "done"
	// RunFailed means the batch stopped on a batch-fatal error. A batch whose
	// items all failed individually is still RunDone.
	RunFailed   RunStatus = "failed"
	RunCanceled RunStatus = "canceled"
)

// Run is one batch as persisted in history.
type Run struct {
	ID         string           `json:"id"`
	Status     RunStatus        `json:"status"`
	Items      []caption.Item   `json:"items"`
	Normalized bool             `json:"normalized"`
	Results    []ItemRecord     `json:"results,omitempty"`
	Summary    pipeline.Summary `json:"summary"`
	ErrorCode  string           `json:"error_code,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	StartedAt  *time.Time       `json:"started_at,omitempty"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

// ItemRecord is the persisted outcome of one item; image bytes are never
// stored.
type ItemRecord struct {
	ItemID      string         `json:"item_id"`
	Position    int            `json:"position"`
	Background  int            `json:"background"`
	FontSizePx  float64        `json:"font_size_px,omitempty"`
	Lines       int            `json:"lines,omitempty"`
	URL         string         `json:"url,omitempty"`
	StoragePath string         `json:"storage_path,omitempty"`
	Stage       pipeline.Stage `json:"stage,omitempty"`
	ErrorCode   string         `json:"error_code,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Published reports whether the item has a public URL.
func (r ItemRecord) Published() bool { return r.URL != "" }

// Terminal reports whether the run will not change anymore.
func (r *Run) Terminal() bool {
	switch r.Status {
	case RunDone, RunFailed, RunCanceled:
		return true
	}
	return false
}

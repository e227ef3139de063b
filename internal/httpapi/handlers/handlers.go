package handlers

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"postcraft/internal/batch"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/ports"
	"postcraft/internal/worker/queue"
)

// ProgressReader returns live progress for an in-flight run.
type ProgressReader interface {
	Load(ctx context.Context, runID string) (queue.Snapshot, bool, error)
}

// Prober confirms the publish destination accepts writes.
type Prober interface {
	Provider() string
	Probe(ctx context.Context) error
}

type Deps struct {
	Batches  *batch.Service
	Progress ProgressReader
	// Storage is nil when no destination is configured.
	Storage Prober
	// Files serves published objects back over HTTP; set for localfs only.
	Files ports.StorageProvider
	Pool  *pgxpool.Pool
	RDB   *redis.Client
	Log   *logger.Logger
	Clock func() time.Time
}

type Handler struct {
	batches  *batch.Service
	progress ProgressReader
	storage  Prober
	files    ports.StorageProvider
	pool     *pgxpool.Pool
	rdb      *redis.Client
	log      *logger.Logger
	now      func() time.Time
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	return &Handler{
		batches:  d.Batches,
		progress: d.Progress,
		storage:  d.Storage,
		files:    d.Files,
		pool:     d.Pool,
		rdb:      d.RDB,
		log:      log,
		now:      now,
	}
}

// Log is the logger handlers report errors through.
func (h *Handler) Log() *logger.Logger { return h.log }

// ServesFiles reports whether GET /files/* should be mounted.
func (h *Handler) ServesFiles() bool { return h.files != nil }

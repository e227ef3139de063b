package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"postcraft/internal/httpapi/handlers"
	"postcraft/internal/httpkit"
	"postcraft/internal/pkg/middleware"
)

const (
	maxBodyBytes   = 4 << 20
	requestTimeout = 2 * time.Minute
)

type Options struct {
	CORSOrigins []string
}

func NewRouter(h *handlers.Handler, opt Options) http.Handler {
	log := h.Log()
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{
		AllowedOrigins: opt.CORSOrigins,
		ExposedHeaders: []string{"Content-Disposition", "Location", middleware.RequestIDHeader},
	}))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.MaxBody(maxBodyBytes))

	wrap := func(fn middleware.HandlerFunc) http.HandlerFunc { return middleware.Wrap(log, fn) }

	r.Get("/health", h.Health)

	r.Post("/batches", wrap(h.PostBatch))
	r.Get("/batches", wrap(h.ListBatches))
	r.Get("/batches/{batchId}", wrap(h.GetBatch))
	r.Get("/batches/{batchId}/manifest.csv", wrap(h.GetManifest))

	r.Post("/previews", wrap(h.PostPreview))

	if h.ServesFiles() {
		r.Get("/files/*", wrap(h.GetFile))
	}

	return r
}

// Package batch runs caption batches end to end: render, publish, export,
// and record the run in history.
package batch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"postcraft/internal/caption"
	"postcraft/internal/config"
	"postcraft/internal/history"
	"postcraft/internal/manifest"
	"postcraft/internal/models"
	"postcraft/internal/pipeline"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/publisher"
	"postcraft/internal/raster"
)

// progressTimeout bounds one progress write so a stalled store cannot hold
// up the batch.
const progressTimeout = 2 * time.Second

// Enqueuer hands a run id to a worker.
type Enqueuer interface {
	Push(ctx context.Context, runID string) error
}

// ProgressSink receives live progress for a run.
type ProgressSink interface {
	Report(ctx context.Context, runID string, p pipeline.Progress) error
}

type Deps struct {
	Config   config.Config
	Renderer pipeline.Renderer
	// Uploader is nil when no destination is configured; DestinationErr
	// then explains why.
	Uploader       pipeline.Uploader
	DestinationErr error
	History        history.Store
	// Queue is optional. Without it runs execute in-process, one at a time.
	Queue    Enqueuer
	Progress ProgressSink
	Log      *logger.Logger
	Clock    func() time.Time
	// Context is the parent of in-process runs; canceling it stops them.
	// Defaults to context.Background.
	Context context.Context
}

type Service struct {
	cfg      config.Config
	renderer pipeline.Renderer
	uploader pipeline.Uploader
	destErr  error
	history  history.Store
	queue    Enqueuer
	local    *localRunner
	progress ProgressSink
	exporter *manifest.Exporter
	log      *logger.Logger
	now      func() time.Time
}

func NewService(d Deps) *Service {
	log := d.Log
	if log == nil {
		log = logger.Discard()
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	hist := d.History
	if hist == nil {
		hist = history.NewMemory()
	}
	s := &Service{
		cfg:      d.Config,
		renderer: d.Renderer,
		uploader: d.Uploader,
		destErr:  d.DestinationErr,
		history:  hist,
		queue:    d.Queue,
		progress: d.Progress,
		exporter: manifest.New(manifest.Defaults{
			IncludeLink:  d.Config.Manifest.IncludeLink,
			PostType:     d.Config.Manifest.PostType,
			Link:         d.Config.Manifest.Link,
			FirstComment: d.Config.Manifest.FirstComment,
		}),
		log: log.WithComponent("batch"),
		now: now,
	}
	if s.queue == nil {
		parent := d.Context
		if parent == nil {
			parent = context.Background()
		}
		s.local = newLocalRunner(parent, s.runLocal)
		s.queue = s.local
	}
	return s
}

// Close stops in-process execution and waits for accepted runs to be
// recorded. It is a no-op when runs go through an external queue.
func (s *Service) Close(ctx context.Context) error {
	if s.local == nil {
		return nil
	}
	return s.local.Close(ctx)
}

func (s *Service) runLocal(ctx context.Context, runID string) {
	ctx = logger.ContextWithBatchID(ctx, runID)
	if _, err := s.Execute(ctx, runID); err != nil {
		s.log.WithBatchID(runID).Error("in-process run failed", "error", err.Error())
	}
}

// DestinationError is the batch-fatal error every publish attempt would
// hit, or nil when a destination is configured.
func (s *Service) DestinationError() error {
	if s.uploader != nil {
		return nil
	}
	if s.destErr != nil && errors.IsBatchFatal(s.destErr) {
		return s.destErr
	}
	e := errors.New(errors.CodeDestinationNotConfigured, "no publish destination configured")
	e.Op = "batch"
	if s.destErr != nil {
		e.Err = s.destErr
	}
	return e
}

// Submit validates req, records a queued run and hands it to the queue.
// It fails fast when there is nowhere to publish.
func (s *Service) Submit(ctx context.Context, req Request) (*models.Run, error) {
	if err := s.DestinationError(); err != nil {
		return nil, err
	}
	run, err := s.newRun(req)
	if err != nil {
		return nil, err
	}
	if err := s.history.Set(ctx, run); err != nil {
		return nil, errors.Wrap(err, "batch.submit", "record run")
	}

	if err := s.queue.Push(ctx, run.ID); err != nil {
		code := errors.GetCode(err)
		if code == errors.CodeInternal {
			code = errors.CodeUnavailable
		}
		e := errors.WrapWithCode(err, code, "batch.submit", "enqueue run")
		// the queued record would otherwise never leave queued
		finished := s.now().UTC()
		run.Status, run.ErrorCode, run.Error, run.FinishedAt = models.RunFailed, string(code), e.Error(), &finished
		if err := s.history.Set(context.WithoutCancel(ctx), run); err != nil {
			s.log.WithBatchID(run.ID).Warn("could not record rejected run", "error", err.Error())
		}
		return nil, e
	}
	s.log.WithBatchID(run.ID).Info("batch queued", "items", len(run.Items), "in_process", s.local != nil)
	return run, nil
}

// RunNow executes req synchronously and records it. Used by the CLI.
func (s *Service) RunNow(ctx context.Context, req Request) (*models.Run, error) {
	run, err := s.newRun(req)
	if err != nil {
		return nil, err
	}
	ctx = logger.ContextWithBatchID(ctx, run.ID)
	s.process(ctx, run)
	if err := s.history.Set(context.WithoutCancel(ctx), run); err != nil {
		return run, errors.Wrap(err, "batch.run", "record run")
	}
	return run, runError(run)
}

// Execute loads a queued run once, processes it and writes it back once.
// Runs already finished are returned unchanged, so redelivery is harmless.
func (s *Service) Execute(ctx context.Context, runID string) (*models.Run, error) {
	run, err := s.history.Get(context.WithoutCancel(ctx), runID)
	if err != nil {
		return nil, err
	}
	if run.Terminal() {
		s.log.WithBatchID(runID).Info("run already finished, skipping", "status", string(run.Status))
		return run, nil
	}

	s.process(ctx, run)
	if err := s.history.Set(context.WithoutCancel(ctx), run); err != nil {
		return run, errors.Wrap(err, "batch.execute", "record run")
	}
	return run, runError(run)
}

func (s *Service) newRun(req Request) (*models.Run, error) {
	items, err := req.ToItems()
	if err != nil {
		return nil, err
	}
	return &models.Run{
		ID:         uuid.NewString(),
		Status:     models.RunQueued,
		Items:      items,
		Normalized: req.Normalize,
		CreatedAt:  s.now().UTC(),
	}, nil
}

func (s *Service) orchestrator(runID string) *pipeline.Orchestrator {
	cfg := pipeline.Config{
		RunID:  runID,
		Layout: s.cfg.LayoutOptions(),
		Width:  s.cfg.Canvas.Width,
		Height: s.cfg.Canvas.Height,
		Publish: pipeline.PublishPolicy{
			Concurrency: s.cfg.Publish.Concurrency,
			Delay:       s.cfg.Publish.Delay,
			Timeout:     s.cfg.Publish.Timeout,
		},
		Log: s.log.WithBatchID(runID),
	}
	if s.progress != nil && runID != "" {
		cfg.OnProgress = func(p pipeline.Progress) {
			ctx, cancel := context.WithTimeout(context.Background(), progressTimeout)
			defer cancel()
			if err := s.progress.Report(ctx, runID, p); err != nil {
				s.log.WithBatchID(runID).Warn("progress report failed", "error", err.Error())
			}
		}
	}
	return pipeline.New(s.renderer, cfg)
}

// process mutates run in memory only.
func (s *Service) process(ctx context.Context, run *models.Run) {
	log := s.log.WithBatchID(run.ID)
	started := s.now().UTC()
	run.StartedAt = &started
	run.Status = models.RunRunning

	defer func() {
		finished := s.now().UTC()
		run.FinishedAt = &finished
	}()

	fail := func(err error) {
		run.Status = models.RunFailed
		run.ErrorCode = string(errors.GetCode(err))
		run.Error = err.Error()
		log.Error("batch failed before start", "error", err.Error())
	}

	if err := s.DestinationError(); err != nil {
		fail(err)
		return
	}
	results, sum, err := s.orchestrator(run.ID).Run(ctx, run.Items, s.uploader)
	if err != nil {
		fail(err)
		return
	}

	run.Results = toRecords(results)
	run.Summary = sum
	run.Status = models.RunDone
	if ctx.Err() != nil {
		run.Status = models.RunCanceled
	}
	log.Info("batch recorded",
		"status", string(run.Status),
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
	)
}

func runError(run *models.Run) error {
	if run.Status != models.RunFailed {
		return nil
	}
	return errors.New(errors.Code(run.ErrorCode), run.Error)
}

func toRecords(results []pipeline.ItemResult) []models.ItemRecord {
	out := make([]models.ItemRecord, len(results))
	for i, r := range results {
		rec := models.ItemRecord{
			ItemID:      r.Item.ID,
			Position:    r.Item.Position,
			Background:  r.Background,
			FontSizePx:  r.FontSizePx,
			Lines:       r.Lines,
			URL:         r.Publish.URL,
			StoragePath: r.Publish.StoragePath,
			Stage:       r.Stage,
		}
		if r.Err != nil {
			rec.ErrorCode = string(errors.GetCode(r.Err))
			rec.Error = r.Err.Error()
		}
		out[i] = rec
	}
	return out
}

// Get returns a recorded run.
func (s *Service) Get(ctx context.Context, runID string) (*models.Run, error) {
	return s.history.Get(ctx, runID)
}

// List returns recent runs, newest first.
func (s *Service) List(ctx context.Context, limit int) ([]models.Run, error) {
	return s.history.List(ctx, limit)
}

// Manifest exports the CSV for a finished run. MANIFEST_EMPTY means no item
// of the run was published.
func (s *Service) Manifest(ctx context.Context, runID string) ([]byte, error) {
	run, err := s.history.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Terminal() {
		return nil, errors.New(errors.CodeConflict, "run has not finished").WithField("status", string(run.Status))
	}
	return s.exporter.CSV(ManifestRecords(run))
}

// ManifestRecords projects a run onto exporter records.
func ManifestRecords(run *models.Run) []manifest.Record {
	byID := make(map[string]caption.Item, len(run.Items))
	for _, it := range run.Items {
		byID[it.ID] = it
	}
	out := make([]manifest.Record, len(run.Results))
	for i, r := range run.Results {
		it, ok := byID[r.ItemID]
		if !ok {
			it = caption.Item{ID: r.ItemID, Position: r.Position}
		}
		out[i] = manifest.Record{
			Item:    it,
			Publish: publisher.Result{ItemID: r.ItemID, URL: r.URL, StoragePath: r.StoragePath},
		}
	}
	return out
}

// Preview renders one item without publishing or recording it.
func (s *Service) Preview(in ItemInput, normalizeText bool) (raster.Image, error) {
	items, err := Request{Items: []ItemInput{in}, Normalize: normalizeText}.ToItems()
	if err != nil {
		return raster.Image{}, err
	}
	out := s.orchestrator("").RenderOne(items[0])
	if out.Err != nil {
		return raster.Image{}, out.Err
	}
	return out.Image, nil
}

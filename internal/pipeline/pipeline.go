// Package pipeline runs a batch of caption items through layout, raster and
// publish. Items are processed in input order; a failure is recorded on the
// item and never stops the batch. Cancelling the context stops new items
// from starting: the item in flight finishes and every remaining item is
// reported as CANCELED, so N inputs always yield N outcomes.
package pipeline

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"postcraft/internal/caption"
	"postcraft/internal/layout"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/publisher"
	"postcraft/internal/raster"
)

// Renderer measures text and paints canvases. *raster.Rasterizer satisfies it.
type Renderer interface {
	Measure(text string, fontSizePx float64) float64
	Rasterize(bg caption.BackgroundSpec, lay layout.Result, width, height int) (raster.Image, error)
}

// Uploader publishes one image. *publisher.Publisher satisfies it.
type Uploader interface {
	Publish(ctx context.Context, img raster.Image, nameHint string) publisher.Result
}

type Stage string

const (
	StageRender  Stage = "render"
	StagePublish Stage = "publish"
)

// Progress is reported once per finished item and stage. Completed never
// decreases within a stage and never exceeds Total.
type Progress struct {
	Stage     Stage  `json:"stage"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	ItemID    string `json:"item_id"`
	Failed    bool   `json:"failed"`
}

type ProgressFunc func(Progress)

// PublishPolicy throttles uploads. Concurrency 1 keeps at most one upload
// in flight, in input order. Higher values may complete out of order; the
// results are still listed by position.
type PublishPolicy struct {
	Concurrency int
	// Delay is waited after each upload before its slot is released.
	Delay time.Duration
	// Timeout bounds one upload. A timed out upload fails that item only.
	Timeout time.Duration
}

type Config struct {
	// RunID scopes published object names to the run.
	RunID   string
	Catalog caption.Catalog
	Layout  layout.Options
	Width   int
	Height  int
	Publish PublishPolicy
	// OnProgress is called synchronously; keep it fast.
	OnProgress ProgressFunc
	Log        *logger.Logger
}

// Outcome is the render result of one item. Exactly one of Image or Err
// is meaningful.
type Outcome struct {
	Item       caption.Item
	Background int
	Layout     layout.Result
	Image      raster.Image
	Err        error
}

// OK reports whether the item rendered.
func (o Outcome) OK() bool { return o.Err == nil }

// ItemResult is the final outcome of one item across both stages.
type ItemResult struct {
	Item       caption.Item
	Background int
	FontSizePx float64
	Lines      int
	Publish    publisher.Result
	// Stage is where the item failed; empty on success.
	Stage Stage
	Err   error
}

func (r ItemResult) OK() bool { return r.Err == nil && r.Publish.URL != "" }

type Orchestrator struct {
	r   Renderer
	cfg Config
	log *logger.Logger
}

func New(r Renderer, cfg Config) *Orchestrator {
	if len(cfg.Catalog) == 0 {
		cfg.Catalog = caption.DefaultCatalog()
	}
	if cfg.Publish.Concurrency < 1 {
		cfg.Publish.Concurrency = 1
	}
	if cfg.Publish.Timeout <= 0 {
		cfg.Publish.Timeout = 60 * time.Second
	}
	log := cfg.Log
	if log == nil {
		log = logger.Discard()
	}
	return &Orchestrator{r: r, cfg: cfg, log: log.WithComponent("pipeline")}
}

// Render returns a lazy sequence of render outcomes keyed by item id. Each
// range over the sequence is a fresh run. Breaking out of the loop stops
// rendering.
func (o *Orchestrator) Render(ctx context.Context, items []caption.Item) iter.Seq2[string, Outcome] {
	return func(yield func(string, Outcome) bool) {
		total := len(items)
		for i, it := range items {
			var out Outcome
			if err := ctx.Err(); err != nil {
				out = Outcome{Item: it, Background: -1, Err: canceled(it, err)}
			} else {
				out = o.renderOne(it)
			}

			o.report(Progress{Stage: StageRender, Completed: i + 1, Total: total, ItemID: it.ID, Failed: !out.OK()})
			if !yield(it.ID, out) {
				return
			}
		}
	}
}

// RenderAll drains Render into a slice ordered like items.
func (o *Orchestrator) RenderAll(ctx context.Context, items []caption.Item) []Outcome {
	outs := make([]Outcome, 0, len(items))
	for _, out := range o.Render(ctx, items) {
		outs = append(outs, out)
	}
	return outs
}

// RenderOne renders a single item outside of any batch.
func (o *Orchestrator) RenderOne(it caption.Item) Outcome {
	return o.renderOne(it)
}

func (o *Orchestrator) renderOne(it caption.Item) (out Outcome) {
	log := o.log.WithItemID(it.ID, it.Position)
	out = Outcome{Item: it, Background: o.cfg.Catalog.Resolve(it)}

	defer func() {
		if rec := recover(); rec != nil {
			e := errors.Newf(errors.CodeRaster, "render panicked: %v", rec)
			e.Op = "pipeline.render"
			out.Err = e.WithField("item_id", it.ID)
			log.Error("render panicked", "panic", fmt.Sprint(rec))
		}
	}()

	lay, err := layout.Fit(it.Text, o.cfg.Layout, o.r.Measure)
	if err != nil {
		out.Err = err
		log.Warn("layout failed", "error", err.Error())
		return out
	}
	out.Layout = lay

	img, err := o.r.Rasterize(o.cfg.Catalog[out.Background], lay, o.cfg.Width, o.cfg.Height)
	if err != nil {
		out.Err = err
		log.Warn("rasterize failed", "error", err.Error())
		return out
	}
	img.ItemID = it.ID
	out.Image = img

	log.Debug("rendered",
		"background", out.Background,
		"font_size_px", lay.FontSizePx,
		"lines", len(lay.Lines),
		"bytes", len(img.Bytes),
	)
	return out
}

// Publish uploads every successful outcome under the publish policy and
// returns one ItemResult per outcome, in the same order. Failed renders are
// carried through untouched.
func (o *Orchestrator) Publish(ctx context.Context, outcomes []Outcome, up Uploader) []ItemResult {
	results := make([]ItemResult, len(outcomes))
	pending := make([]int, 0, len(outcomes))
	for i, out := range outcomes {
		results[i] = ItemResult{
			Item:       out.Item,
			Background: out.Background,
			FontSizePx: out.Layout.FontSizePx,
			Lines:      len(out.Layout.Lines),
			Publish:    publisher.Result{ItemID: out.Item.ID},
		}
		if out.Err != nil {
			results[i].Stage = StageRender
			results[i].Err = out.Err
			continue
		}
		pending = append(pending, i)
	}

	var (
		mu        sync.Mutex
		completed int
	)
	done := func(idx int, res publisher.Result) {
		mu.Lock()
		defer mu.Unlock()
		results[idx].Publish = res
		if res.Err != nil {
			results[idx].Stage = StagePublish
			results[idx].Err = res.Err
		}
		completed++
		o.report(Progress{
			Stage:     StagePublish,
			Completed: completed,
			Total:     len(pending),
			ItemID:    res.ItemID,
			Failed:    res.Err != nil,
		})
	}

	policy := o.cfg.Publish
	g := new(errgroup.Group)
	g.SetLimit(policy.Concurrency)

	for n, idx := range pending {
		out := outcomes[idx]
		last := n == len(pending)-1
		// Go blocks while all slots are busy; the stop check runs inside so
		// it sees a stop raised while the previous upload was in flight.
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				done(idx, publisher.Result{ItemID: out.Item.ID, Err: canceled(out.Item, err)})
				return nil
			}
			res := o.publishOne(ctx, up, out)
			done(idx, res)
			if !last && policy.Delay > 0 {
				wait(ctx, policy.Delay)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// publishOne detaches the upload from cancellation so a started upload can
// finish, bounded by the per-call timeout.
func (o *Orchestrator) publishOne(ctx context.Context, up Uploader, out Outcome) (res publisher.Result) {
	it := out.Item
	defer func() {
		if rec := recover(); rec != nil {
			e := errors.Newf(errors.CodePublish, "publish panicked: %v", rec)
			e.Op = "pipeline.publish"
			res = publisher.Result{ItemID: it.ID, Err: e}
		}
	}()

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Publish.Timeout)
	defer cancel()

	res = up.Publish(callCtx, out.Image, it.NameHint(o.cfg.RunID))
	res.ItemID = it.ID
	if res.Err == nil && res.URL == "" {
		res.Err = errors.New(errors.CodePublish, "upload returned no url")
	}
	if res.Err != nil && callCtx.Err() == context.DeadlineExceeded {
		res.Err = errors.WrapWithCode(res.Err, errors.CodePublish, "pipeline.publish", "upload timed out").
			WithField("cause", errors.CodeTimeout).
			WithField("timeout", o.cfg.Publish.Timeout.String())
	}
	if res.Err != nil {
		o.log.WithItemID(it.ID, it.Position).Warn("publish failed", "error", res.Err.Error())
	}
	return res
}

// Run renders then publishes. The only returned error is batch-fatal and is
// raised before any item is touched.
func (o *Orchestrator) Run(ctx context.Context, items []caption.Item, up Uploader) ([]ItemResult, Summary, error) {
	if up == nil {
		e := errors.New(errors.CodeDestinationNotConfigured, "no publish destination configured")
		e.Op = "pipeline.run"
		return nil, Summary{}, e
	}

	start := time.Now()
	results := o.Publish(ctx, o.RenderAll(ctx, items), up)
	sum := Summarize(results)

	o.log.Info("batch finished",
		"total", sum.Total,
		"succeeded", sum.Succeeded,
		"failed", sum.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, sum, nil
}

func (o *Orchestrator) report(p Progress) {
	if o.cfg.OnProgress != nil {
		o.cfg.OnProgress(p)
	}
}

func canceled(it caption.Item, cause error) error {
	e := errors.WrapWithCode(cause, errors.CodeCanceled, "pipeline", "batch stopped before item started")
	return e.WithField("item_id", it.ID)
}

func wait(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

package batch

import (
	"context"
	"encoding/csv"
	"strings"
	"sync"
	"testing"
	"time"

	"postcraft/internal/caption"
	"postcraft/internal/config"
	"postcraft/internal/history"
	"postcraft/internal/layout"
	"postcraft/internal/models"
	"postcraft/internal/pipeline"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/publisher"
	"postcraft/internal/raster"
)

type stubRenderer struct {
	mu    sync.Mutex
	calls int
}

func (s *stubRenderer) Measure(text string, size float64) float64 {
	return layout.MonospaceMeasure(0.5)(text, size)
}

func (s *stubRenderer) Rasterize(bg caption.BackgroundSpec, lay layout.Result, w, h int) (raster.Image, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return raster.Image{Bytes: []byte("jpeg"), MimeType: raster.MimeJPEG, Ext: raster.ExtJPEG, Width: w, Height: h}, nil
}

type stubUploader struct {
	fail map[string]bool
}

func (u *stubUploader) Publish(ctx context.Context, img raster.Image, nameHint string) publisher.Result {
	if u.fail[img.ItemID] {
		return publisher.Result{ItemID: img.ItemID, Err: errors.New(errors.CodePublish, "denied")}
	}
	return publisher.Result{ItemID: img.ItemID, URL: "https://cdn.test/" + nameHint + ".jpg", StoragePath: nameHint + ".jpg"}
}

// countingStore wraps a store and counts writes.
type countingStore struct {
	history.Store
	mu   sync.Mutex
	sets int
	gets int
}

func (c *countingStore) Set(ctx context.Context, r *models.Run) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, r)
}

func (c *countingStore) Get(ctx context.Context, id string) (*models.Run, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Store.Get(ctx, id)
}

type stubQueue struct {
	ids []string
}

func (q *stubQueue) Push(ctx context.Context, id string) error {
	q.ids = append(q.ids, id)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []pipeline.Progress
}

func (r *recordingSink) Report(ctx context.Context, runID string, p pipeline.Progress) error {
	r.mu.Lock()
	r.events = append(r.events, p)
	r.mu.Unlock()
	return nil
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Publish.Delay = 0
	return cfg
}

func texts(ss ...string) Request {
	req := Request{}
	for _, s := range ss {
		req.Items = append(req.Items, ItemInput{Text: s})
	}
	return req
}

func TestRunNowPartialSuccessAndManifest(t *testing.T) {
	svc := NewService(Deps{
		Config:   testConfig(),
		Renderer: &stubRenderer{},
		Uploader: &stubUploader{fail: map[string]bool{"3": true}},
	})

	run, err := svc.RunNow(context.Background(), texts("a", "b", "c", "d", "e"))
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunDone {
		t.Fatalf("expected done, got %s", run.Status)
	}
	if run.Summary.Succeeded != 4 || run.Summary.Failed != 1 {
		t.Errorf("unexpected summary %+v", run.Summary)
	}
	failed := run.Results[2]
	if failed.Published() || failed.ErrorCode != string(errors.CodePublish) || failed.Stage != pipeline.StagePublish {
		t.Errorf("unexpected failed record %+v", failed)
	}

	out, err := svc.Manifest(context.Background(), run.ID)
	if err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 5 {
		t.Fatalf("expected header + 4 rows, got %d", len(rows))
	}
	for _, row := range rows[1:] {
		if strings.HasSuffix(row[2], "_3.jpg") {
			t.Error("failed item exported")
		}
	}
}

func TestRunNowEmptyBatch(t *testing.T) {
	svc := NewService(Deps{Config: testConfig(), Renderer: &stubRenderer{}, Uploader: &stubUploader{}})
	run, err := svc.RunNow(context.Background(), Request{})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunDone || len(run.Results) != 0 {
		t.Errorf("expected empty finished run, got %+v", run)
	}
	if _, err := svc.Manifest(context.Background(), run.ID); !errors.IsCode(err, errors.CodeManifestEmpty) {
		t.Errorf("expected MANIFEST_EMPTY, got %v", err)
	}
}

func TestMissingDestinationIsFatal(t *testing.T) {
	r := &stubRenderer{}
	store := &countingStore{Store: history.NewMemory()}
	svc := NewService(Deps{
		Config:         testConfig(),
		Renderer:       r,
		History:        store,
		DestinationErr: errors.New(errors.CodeDestinationNotConfigured, "no storage provider configured"),
	})

	if _, err := svc.Submit(context.Background(), texts("a")); !errors.IsBatchFatal(err) {
		t.Errorf("expected Submit to fail fast, got %v", err)
	}
	if store.sets != 0 {
		t.Errorf("nothing may be recorded on fatal submit, got %d writes", store.sets)
	}

	run, err := svc.RunNow(context.Background(), texts("a", "b"))
	if !errors.IsBatchFatal(err) {
		t.Fatalf("expected DESTINATION_NOT_CONFIGURED, got %v", err)
	}
	if run.Status != models.RunFailed || run.ErrorCode != string(errors.CodeDestinationNotConfigured) {
		t.Errorf("unexpected run %+v", run)
	}
	if r.calls != 0 {
		t.Errorf("no item may render, got %d", r.calls)
	}
}

func TestSubmitThenExecuteWritesHistoryOnce(t *testing.T) {
	store := &countingStore{Store: history.NewMemory()}
	q := &stubQueue{}
	sink := &recordingSink{}
	svc := NewService(Deps{
		Config:   testConfig(),
		Renderer: &stubRenderer{},
		Uploader: &stubUploader{},
		History:  store,
		Queue:    q,
		Progress: sink,
		Clock:    func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) },
	})
	ctx := context.Background()

	queued, err := svc.Submit(ctx, texts("a", "b"))
	if err != nil {
		t.Fatal(err)
	}
	if queued.Status != models.RunQueued || len(q.ids) != 1 || q.ids[0] != queued.ID {
		t.Fatalf("expected run queued, got %+v / %v", queued, q.ids)
	}

	store.sets, store.gets = 0, 0
	run, err := svc.Execute(ctx, queued.ID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunDone || run.Summary.Succeeded != 2 {
		t.Errorf("unexpected run %+v", run)
	}
	if store.gets != 1 || store.sets != 1 {
		t.Errorf("expected one load and one write per run, got %d/%d", store.gets, store.sets)
	}
	if len(sink.events) != 4 {
		t.Errorf("expected 2 render + 2 publish progress events, got %d", len(sink.events))
	}

	again, err := svc.Execute(ctx, queued.ID)
	if err != nil {
		t.Fatal(err)
	}
	if store.sets != 1 || again.Status != models.RunDone {
		t.Errorf("finished runs must not be reprocessed")
	}
}

func TestManifestRequiresFinishedRun(t *testing.T) {
	svc := NewService(Deps{Config: testConfig(), Renderer: &stubRenderer{}, Uploader: &stubUploader{}, Queue: &stubQueue{}})
	run, err := svc.Submit(context.Background(), texts("a"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Manifest(context.Background(), run.ID); !errors.IsCode(err, errors.CodeConflict) {
		t.Errorf("expected CONFLICT for queued run, got %v", err)
	}
	if _, err := svc.Manifest(context.Background(), "nope"); !errors.IsNotFound(err) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	svc := NewService(Deps{Config: testConfig(), Renderer: &stubRenderer{}})
	img, err := svc.Preview(ItemInput{Text: "**hello**", Background: "dark"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if img.MimeType != raster.MimeJPEG || img.ItemID != "1" {
		t.Errorf("unexpected image %+v", img)
	}
}

func TestToItems(t *testing.T) {
	req := Request{
		Normalize: true,
		Items: []ItemInput{
			{Text: "**Bold** 🔥", Background: "pink blue"},
			{ID: "custom", Text: "plain", Background: "Neon"},
			{Text: "x"},
		},
	}
	items, err := req.ToItems()
	if err != nil {
		t.Fatal(err)
	}
	if items[0].ID != "1" || items[0].Text != "Bold" || items[0].Background != caption.LabelPinkBlue {
		t.Errorf("unexpected first item %+v", items[0])
	}
	if items[1].ID != "custom" || items[1].Background != caption.Label("Neon") || items[1].Position != 1 {
		t.Errorf("unexpected second item %+v", items[1])
	}
	if items[2].ID != "3" || items[2].Background != caption.LabelNone {
		t.Errorf("unexpected third item %+v", items[2])
	}
}

func TestToItemsValidation(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"duplicate ids", Request{Items: []ItemInput{{ID: "a"}, {ID: "a"}}}},
		{"implicit id clash", Request{Items: []ItemInput{{ID: "2"}, {}}}},
		{"text too long", Request{Items: []ItemInput{{Text: strings.Repeat("x", MaxTextRunes+1)}}}},
		{"too many items", Request{Items: make([]ItemInput, MaxItems+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.req.ToItems(); !errors.IsCode(err, errors.CodeValidation) {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

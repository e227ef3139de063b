package app

import (
	"context"
	"path/filepath"
	"testing"

	"postcraft/internal/batch"
	"postcraft/internal/config"
	"postcraft/internal/history"
	"postcraft/internal/models"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
)

func TestBuildWithoutDestination(t *testing.T) {
	cfg := config.Default()
	a, err := Build(context.Background(), Options{Config: cfg, Log: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Publisher != nil || a.Storage != nil {
		t.Error("expected no destination")
	}
	if !errors.IsBatchFatal(a.DestinationErr) {
		t.Errorf("expected DESTINATION_NOT_CONFIGURED, got %v", a.DestinationErr)
	}
	if _, ok := a.History.(*history.Memory); !ok {
		t.Errorf("expected memory history, got %T", a.History)
	}
	if a.RDB != nil || a.Pool != nil {
		t.Error("expected no network clients without queue or remote history")
	}
	if _, err := a.Batches.Submit(context.Background(), batch.Request{}); !errors.IsBatchFatal(err) {
		t.Errorf("expected Submit to report the missing destination, got %v", err)
	}
}

func TestBuildLocalDestinationRunsBatch(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Provider = "localfs"
	cfg.Storage.LocalRoot = t.TempDir()
	cfg.Publish.Delay = 0

	a, err := Build(context.Background(), Options{Config: cfg, Log: logger.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	run, err := a.Batches.RunNow(context.Background(), batch.Request{Items: []batch.ItemInput{{Text: "hello world"}}})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != models.RunDone || !run.Results[0].Published() {
		t.Fatalf("unexpected run %+v", run)
	}
	if filepath.IsAbs(run.Results[0].StoragePath) {
		t.Errorf("storage path must be relative, got %s", run.Results[0].StoragePath)
	}
}

func TestBuildRejectsMissingFont(t *testing.T) {
	cfg := config.Default()
	cfg.Canvas.FontPath = filepath.Join(t.TempDir(), "missing.ttf")
	if _, err := Build(context.Background(), Options{Config: cfg, Log: logger.Discard()}); !errors.IsCode(err, errors.CodeRaster) {
		t.Errorf("expected RASTER_ERROR, got %v", err)
	}
}

func TestBuildPostgresNeedsURL(t *testing.T) {
	cfg := config.Default()
	cfg.History.Backend = "postgres"
	if _, err := Build(context.Background(), Options{Config: cfg, Log: logger.Discard()}); !errors.IsCode(err, errors.CodeValidation) {
		t.Errorf("expected VALIDATION_ERROR, got %v", err)
	}
}

// Command captions renders, publishes and exports a batch from a JSON file
// in one go.
//
//	captions -in items.json -out manifest.csv [-config postcraft.yaml] [-normalize]
//
// The input is either a JSON array of {"id","text","background"} objects or
// an object with an "items" array. Interrupting the command stops the batch:
// the upload in progress finishes, remaining items are reported as canceled
// and the manifest still lists everything published so far.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"postcraft/internal/app"
	"postcraft/internal/batch"
	"postcraft/internal/config"
	"postcraft/internal/manifest"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	in := flag.String("in", "", "input JSON file (required)")
	out := flag.String("out", "", "manifest CSV path (default: content_studio_export_<date>.csv)")
	configPath := flag.String("config", config.Env("CONFIG_PATH", ""), "YAML config file")
	normalizeText := flag.Bool("normalize", false, "clean markdown, emoji and calls to action from captions")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.Format = config.Env("LOG_FORMAT", "text")
	logCfg.Output = os.Stderr
	logCfg.ServiceName = "postcraft-cli"
	log := logger.New(logCfg)

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(log, *in, *out, *configPath, *normalizeText); err != nil {
		log.LogFatal("batch failed", err, "code", string(errors.GetCode(err)))
	}
}

func run(log *logger.Logger, inPath, outPath, configPath string, normalizeText bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	// runs are not shared with other processes
	cfg.History.Backend = "memory"

	req, err := readRequest(inPath)
	if err != nil {
		return err
	}
	req.Normalize = req.Normalize || normalizeText

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, app.Options{Config: cfg, Log: log})
	if err != nil {
		return err
	}
	defer a.Close()

	r, err := a.Batches.RunNow(ctx, req)
	if err != nil {
		return err
	}
	s := r.Summary
	log.Info("batch finished", "status", string(r.Status), "total", s.Total, "succeeded", s.Succeeded, "failed", s.Failed)
	for _, f := range s.Failures {
		log.Warn("item failed", "item_id", f.ItemID, "stage", string(f.Stage), "code", string(f.Code), "error", f.Message)
	}

	csv, err := a.Batches.Manifest(context.WithoutCancel(ctx), r.ID)
	if err != nil {
		return err
	}
	if outPath == "" {
		outPath = manifest.FileName(r.CreatedAt)
	}
	if err := os.WriteFile(outPath, csv, 0o644); err != nil {
		return errors.Wrap(err, "cli.write", "write manifest")
	}
	fmt.Println(outPath)
	return nil
}

func readRequest(path string) (batch.Request, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return batch.Request{}, errors.Wrap(err, "cli.read", "read input")
	}
	raw = bytes.TrimSpace(raw)

	var req batch.Request
	if len(raw) > 0 && raw[0] == '[' {
		err = json.Unmarshal(raw, &req.Items)
	} else {
		err = json.Unmarshal(raw, &req)
	}
	if err != nil {
		return batch.Request{}, errors.WrapWithCode(err, errors.CodeValidation, "cli.read", "invalid input json")
	}
	return req, nil
}

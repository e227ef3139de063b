package main

import (
	"context"
	stderrors "errors"
	"flag"
	"time"

	"github.com/joho/godotenv"

	"postcraft/internal/app"
	"postcraft/internal/config"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/pkg/shutdown"
	"postcraft/internal/worker"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", config.Env("CONFIG_PATH", ""), "YAML config file")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "postcraft-worker"
	log := logger.New(logCfg)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	// Publish.Timeout bounds the upload still in flight when the stop
	// signal arrives.
	mgr := shutdown.NewManager(log, cfg.Publish.Timeout+10*time.Second)
	ctx := context.Background()

	a, err := app.Build(ctx, app.Options{Config: cfg, Log: log, UseQueue: true, Shutdown: mgr})
	if err != nil {
		log.LogFatal("startup failed", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		err := worker.Run(mgr.Context(), worker.Deps{Queue: a.Queue, Executor: a.Batches, Log: log})
		if err != nil && !stderrors.Is(err, context.Canceled) {
			log.Error("worker stopped", "error", err.Error())
		}
		go mgr.Shutdown()
	}()
	mgr.Register("worker", func(ctx context.Context) error {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	log.Info("worker started", "queue", cfg.Queue.Name)
	if err := mgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
}

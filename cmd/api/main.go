package main

import (
	"context"
	"flag"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"postcraft/internal/app"
	"postcraft/internal/config"
	"postcraft/internal/httpapi"
	"postcraft/internal/httpapi/handlers"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/pkg/shutdown"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", config.Env("CONFIG_PATH", ""), "YAML config file")
	inProcess := flag.Bool("inprocess", config.BoolEnv("RUN_IN_PROCESS", false), "execute batches in the API process instead of queueing them")
	flag.Parse()

	logCfg := logger.DefaultConfig()
	logCfg.ServiceName = "postcraft-api"
	log := logger.New(logCfg)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.LogFatal("invalid configuration", err)
	}

	// in-process runs may still have one upload in flight at shutdown
	mgr := shutdown.NewManager(log, cfg.Publish.Timeout+30*time.Second)
	ctx := context.Background()

	a, err := app.Build(ctx, app.Options{
		Config:   cfg,
		Log:      log,
		UseQueue: !*inProcess,
		Shutdown: mgr,
	})
	if err != nil {
		log.LogFatal("startup failed", err)
	}

	hd := handlers.Deps{
		Batches: a.Batches,
		Pool:    a.Pool,
		RDB:     a.RDB,
		Log:     log,
	}
	if a.Progress != nil {
		hd.Progress = a.Progress
	}
	if a.Publisher != nil {
		hd.Storage = a.Publisher
		if a.Storage.Provider() == "localfs" {
			hd.Files = a.Storage
		}
	}

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.HTTP.Port,
		Handler:      httpapi.NewRouter(handlers.New(hd), httpapi.Options{CORSOrigins: cfg.HTTP.CORSOrigins}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	mgr.Register("http-server", server.Shutdown)

	go func() {
		log.Info("http server listening", "addr", server.Addr, "queue", !*inProcess)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogFatal("http server failed", err)
		}
	}()

	if err := mgr.Wait(ctx); err != nil {
		log.Error("shutdown finished with errors", "error", err.Error())
	}
}

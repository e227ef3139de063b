// Package app wires configuration into the long-lived pieces shared by the
// API server, the worker and the CLI.
package app

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"postcraft/internal/batch"
	"postcraft/internal/config"
	"postcraft/internal/history"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/pkg/logger"
	"postcraft/internal/pkg/shutdown"
	"postcraft/internal/publisher"
	"postcraft/internal/raster"
	"postcraft/internal/storage"
	"postcraft/internal/worker/queue"
)

// drainGrace is added to the publish timeout when waiting for in-process
// runs to be recorded.
const drainGrace = 5 * time.Second

type Options struct {
	Config config.Config
	Log    *logger.Logger
	// UseQueue routes submitted runs through Redis to a worker. Without it
	// runs execute inside the calling process.
	UseQueue bool
	// Shutdown, when set, receives close hooks for every opened resource.
	Shutdown *shutdown.Manager
}

type App struct {
	Config config.Config
	Log    *logger.Logger

	Pool     *pgxpool.Pool
	RDB      *redis.Client
	Queue    *queue.RedisQueue
	Progress *queue.RedisProgress

	// Storage and Publisher are nil when no destination is configured;
	// DestinationErr then says why.
	Storage        storage.Provider
	Publisher      *publisher.Publisher
	DestinationErr error

	Rasterizer *raster.Rasterizer
	History    history.Store
	Batches    *batch.Service

	closers []func()
}

// Build opens what opts.Config asks for. A missing publish destination is
// not fatal here: the service reports it when a batch is submitted.
func Build(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	log := opts.Log
	if log == nil {
		log = logger.NewDefault()
	}
	a := &App{Config: cfg, Log: log}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	if err := a.openRedis(ctx, opts.UseQueue || cfg.History.Backend == "redis"); err != nil {
		return nil, err
	}
	if err := a.openPostgres(ctx); err != nil {
		return nil, err
	}
	if err := a.openHistory(ctx); err != nil {
		return nil, err
	}
	a.openDestination(ctx)

	r, err := newRasterizer(cfg.Canvas)
	if err != nil {
		return nil, err
	}
	a.Rasterizer = r
	a.closers = append(a.closers, func() { _ = r.Close() })

	deps := batch.Deps{
		Config:         cfg,
		Renderer:       r,
		DestinationErr: a.DestinationErr,
		History:        a.History,
		Log:            log,
	}
	// assigned only when set so the interfaces stay nil otherwise
	if a.Publisher != nil {
		deps.Uploader = a.Publisher
	}
	if opts.UseQueue {
		deps.Queue = a.Queue
		deps.Progress = a.Progress
	}
	if opts.Shutdown != nil {
		deps.Context = opts.Shutdown.Context()
	}
	a.Batches = batch.NewService(deps)
	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Publish.Timeout+drainGrace)
		defer cancel()
		if err := a.Batches.Close(ctx); err != nil {
			log.Warn("in-process runs did not drain", "error", err.Error())
		}
	})

	if opts.Shutdown != nil {
		opts.Shutdown.RegisterFunc("resources", a.Close)
		// registered last so it runs before resources are closed
		opts.Shutdown.Register("batches", a.Batches.Close)
	}
	ok = true
	return a, nil
}

func (a *App) openRedis(ctx context.Context, needed bool) error {
	if !needed {
		return nil
	}
	if a.Config.Queue.RedisAddr == "" {
		return errors.ValidationField("queue.redis_addr", "redis address required for queue or redis history")
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.Config.Queue.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.redis", "ping redis")
	}
	a.RDB = rdb
	a.Queue = queue.NewRedisQueue(rdb, a.Config.Queue.Name)
	a.Progress = queue.NewRedisProgress(rdb, a.Config.Queue.Name, 0)
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	a.Log.Info("redis connected", "addr", a.Config.Queue.RedisAddr)
	return nil
}

func (a *App) openPostgres(ctx context.Context) error {
	if a.Config.History.Backend != "postgres" {
		return nil
	}
	if a.Config.DatabaseURL == "" {
		return errors.ValidationField("database_url", "DATABASE_URL required for postgres history")
	}
	pool, err := pgxpool.New(ctx, a.Config.DatabaseURL)
	if err != nil {
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return errors.WrapWithCode(err, errors.CodeUnavailable, "app.postgres", "ping")
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)
	a.Log.Info("postgres connected")
	return nil
}

func (a *App) openHistory(ctx context.Context) error {
	switch a.Config.History.Backend {
	case "redis":
		a.History = history.NewRedis(a.RDB, "postcraft", a.Config.History.TTL)
	case "postgres":
		repo := history.NewPostgres(a.Pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		a.History = repo
	default:
		a.History = history.NewMemory()
	}
	a.Log.Info("history store ready", "backend", a.Config.History.Backend)
	return nil
}

func (a *App) openDestination(ctx context.Context) {
	sp, err := storage.NewProvider(ctx, a.Config.Storage)
	if err != nil {
		a.DestinationErr = err
		a.Log.Warn("publishing disabled", "error", err.Error())
		return
	}
	pub, err := publisher.New(sp, publisher.Destination{
		Folder:       a.Config.Publish.Folder,
		CacheControl: a.Config.Publish.CacheControl,
	}, publisher.WithLogger(a.Log))
	if err != nil {
		a.DestinationErr = err
		a.Log.Warn("publishing disabled", "error", err.Error())
		return
	}
	a.Storage = sp
	a.Publisher = pub
	a.Log.Info("publish destination ready", "provider", sp.Provider(), "folder", a.Config.Publish.Folder)
}

func newRasterizer(c config.CanvasConfig) (*raster.Rasterizer, error) {
	opts := raster.Options{Quality: c.JPEGQuality}
	if c.FontPath != "" {
		ttf, err := os.ReadFile(c.FontPath)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeRaster, "app.font", "read font file")
		}
		opts.FontTTF = ttf
	}
	return raster.New(opts)
}

// Close releases resources in reverse order of opening. Safe to call twice.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

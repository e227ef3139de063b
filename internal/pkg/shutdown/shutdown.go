// Package shutdown coordinates stopping a process: the stop signal cancels
// the root context, then cleanup hooks run newest first within a deadline.
package shutdown

import (
	"context"
	stderrors "errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"postcraft/internal/pkg/logger"
)

const defaultTimeout = 30 * time.Second

// Hook is one named cleanup step.
type Hook struct {
	Name    string
	Cleanup func(ctx context.Context) error
}

// Manager owns the root context of a process.
type Manager struct {
	log     *logger.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	hooks []Hook
	once  sync.Once
	err   error
	done  chan struct{}
}

// NewManager returns a Manager whose Context is canceled on Shutdown.
func NewManager(log *logger.Logger, timeout time.Duration) *Manager {
	if log == nil {
		log = logger.Discard()
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		log:     log.WithComponent("shutdown"),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Context is canceled as soon as shutdown begins. Long-running work such as
// a batch run treats it as its stop signal.
func (m *Manager) Context() context.Context { return m.ctx }

// Register adds a hook. Hooks run in reverse registration order, so register
// resources before the things that use them.
func (m *Manager) Register(name string, cleanup func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, Hook{Name: name, Cleanup: cleanup})
}

// RegisterFunc adds a hook that cannot fail.
func (m *Manager) RegisterFunc(name string, cleanup func()) {
	m.Register(name, func(context.Context) error {
		cleanup()
		return nil
	})
}

// Wait blocks until SIGINT/SIGTERM or until ctx is done, then shuts down.
func (m *Manager) Wait(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		m.log.Info("stop signal received")
	case <-m.ctx.Done():
	}
	return m.Shutdown()
}

// Shutdown cancels Context and runs every hook once. Later calls return the
// first result.
func (m *Manager) Shutdown() error {
	m.once.Do(func() {
		m.cancel()

		m.mu.Lock()
		hooks := append([]Hook(nil), m.hooks...)
		m.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		m.log.Info("shutting down", "hooks", len(hooks), "timeout", m.timeout.String())
		var errs []error
		for i := len(hooks) - 1; i >= 0; i-- {
			h := hooks[i]
			if ctx.Err() != nil {
				m.log.Warn("shutdown deadline exceeded, skipping hook", "name", h.Name)
				errs = append(errs, ctx.Err())
				continue
			}
			start := time.Now()
			if err := h.Cleanup(ctx); err != nil {
				m.log.Error("shutdown hook failed", "name", h.Name, "error", err.Error())
				errs = append(errs, err)
				continue
			}
			m.log.Debug("shutdown hook done", "name", h.Name, "duration_ms", time.Since(start).Milliseconds())
		}
		m.err = stderrors.Join(errs...)
		close(m.done)
	})
	<-m.done
	return m.err
}

// Done is closed once every hook has run.
func (m *Manager) Done() <-chan struct{} { return m.done }

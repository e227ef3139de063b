package batch

import (
	"context"
	"sync"

	"postcraft/internal/pkg/errors"
)

const localBacklog = 256

// localRunner executes submitted runs one at a time on a single goroutine,
// so a process without a queue still has at most one batch publishing.
// Canceling its parent stops the current run; runs still waiting are then
// executed with the canceled context and recorded as canceled.
type localRunner struct {
	ctx    context.Context
	cancel context.CancelFunc
	ids    chan string
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newLocalRunner(parent context.Context, exec func(ctx context.Context, runID string)) *localRunner {
	ctx, cancel := context.WithCancel(parent)
	l := &localRunner{
		ctx:    ctx,
		cancel: cancel,
		ids:    make(chan string, localBacklog),
		done:   make(chan struct{}),
	}
	go l.loop(exec)
	return l
}

func (l *localRunner) loop(exec func(ctx context.Context, runID string)) {
	defer close(l.done)
	for {
		select {
		case id := <-l.ids:
			exec(l.ctx, id)
		case <-l.ctx.Done():
			for {
				select {
				case id := <-l.ids:
					exec(l.ctx, id)
				default:
					return
				}
			}
		}
	}
}

func (l *localRunner) Push(_ context.Context, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.ctx.Err() != nil {
		return errors.New(errors.CodeUnavailable, "batch runner is shutting down")
	}
	select {
	case l.ids <- runID:
		return nil
	default:
		return errors.Newf(errors.CodeResourceExhaust, "%d batches already waiting", localBacklog)
	}
}

// Close stops accepting runs, cancels the current one and waits until every
// accepted run has been recorded or ctx expires.
func (l *localRunner) Close(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.cancel()

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return errors.WrapWithCode(ctx.Err(), errors.CodeTimeout, "batch.close", "runs still recording")
	}
}

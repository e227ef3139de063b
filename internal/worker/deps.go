package worker

import (
	"context"
	"time"

	"postcraft/internal/models"
	"postcraft/internal/pkg/logger"
)

// Popper yields queued run ids. An empty id with a nil error means the wait
// elapsed.
type Popper interface {
	Pop(ctx context.Context, wait time.Duration) (string, error)
}

// Executor runs one recorded batch.
type Executor interface {
	Execute(ctx context.Context, runID string) (*models.Run, error)
}

type Deps struct {
	Queue    Popper
	Executor Executor
	Log      *logger.Logger
	// PopWait bounds each blocking pop so the loop notices ctx promptly.
	PopWait time.Duration
	// RetryDelay is the pause after a queue error.
	RetryDelay time.Duration
}

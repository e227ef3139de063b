// Package worker drains the batch queue and executes each run.
package worker

import (
	"context"
	"time"

	"postcraft/internal/pkg/logger"
)

// Run processes one run at a time until ctx is canceled. Canceling ctx
// while a run is executing is that run's stop signal: items not yet started
// are recorded as canceled and the in-flight upload is allowed to finish.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	wait := d.PopWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	retry := d.RetryDelay
	if retry <= 0 {
		retry = time.Second
	}

	for {
		if ctx.Err() != nil {
			log.Info("worker stopping")
			return ctx.Err()
		}

		runID, err := d.Queue.Pop(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return ctx.Err()
			}
			log.Warn("queue pop failed, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
			case <-time.After(retry):
			}
			continue
		}
		if runID == "" {
			continue
		}

		runLog := log.WithBatchID(runID)
		runLog.Info("processing batch")
		start := time.Now()

		run, err := d.Executor.Execute(logger.ContextWithBatchID(ctx, runID), runID)
		switch {
		case err != nil:
			runLog.Error("batch failed", "error", err.Error(), "duration_ms", time.Since(start).Milliseconds())
		case run != nil:
			runLog.Info("batch finished",
				"status", string(run.Status),
				"succeeded", run.Summary.Succeeded,
				"failed", run.Summary.Failed,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
	}
}

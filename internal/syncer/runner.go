// Package syncer contains the engine that runs property syncs: the retrying
// runner around each source, the consolidator that merges sources, and the
// orchestrator that schedules properties through the queue.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/stayloop/availsync/internal/availsync"
)

// SourceResult is what one source's extraction produced.
type SourceResult struct {
	Records  []availsync.AvailabilityRecord
	Strategy string // which extraction strategy delivered, when scraping
}

// Op is one full extraction attempt. Each retry re-executes the whole op
// from scratch; there is no partial-state resume.
type Op func(ctx context.Context) (SourceResult, error)

// RunnerConfig tunes the retry loop.
type RunnerConfig struct {
	// MaxRetries is the total number of op invocations.
	MaxRetries int
	// RetryDelay is the fixed sleep between attempts.
	RetryDelay time.Duration
}

// Runner wraps one source's extraction in bounded retries and owns the
// attempt log's state machine: PENDING -> STARTED -> terminal, exactly once.
type Runner struct {
	logs availsync.LogRepo
	cfg  RunnerConfig
}

func NewRunner(logs availsync.LogRepo, cfg RunnerConfig) *Runner {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &Runner{logs: logs, cfg: cfg}
}

// Run executes op with retries and records the attempt series. The returned
// error, if any, carries the taxonomy kind that decided the terminal status.
func (r *Runner) Run(ctx context.Context, propertyID string, source availsync.Source, op Op) (SourceResult, error) {
	logRow, err := r.logs.InsertLog(ctx, availsync.SyncAttemptLog{
		PropertyID: propertyID,
		SourceKind: source,
		Status:     availsync.StatusPending,
		StartedAt:  time.Now().UTC(),
	})
	if err != nil {
		return SourceResult{}, fmt.Errorf("error creating attempt log: %s", err)
	}

	var (
		attempts int
		result   SourceResult
	)
	backoff := retry.WithMaxRetries(uint64(r.cfg.MaxRetries-1), retry.NewConstant(r.cfg.RetryDelay))

	runErr := retry.Do(ctx, backoff, func(ctx context.Context) error {
		// Cooperative cancellation checkpoint: nothing new starts once the
		// sync has been cancelled.
		if err := ctx.Err(); err != nil {
			return availsync.NewSyncError(availsync.KindCancelled, "sync cancelled", err)
		}

		attempts++
		if attempts == 1 {
			if err := r.logs.MarkStarted(ctx, logRow.ID); err != nil {
				return fmt.Errorf("error marking attempt started: %s", err)
			}
		}

		res, err := op(ctx)
		if err != nil {
			if se, ok := availsync.AsSyncError(err); ok && !se.Retryable() {
				return err // non-retryable kinds end the series immediately
			}
			return retry.RetryableError(err)
		}

		result = res
		return nil
	})

	status, message := terminalFor(runErr, attempts)
	if err := r.logs.FinishLog(context.WithoutCancel(ctx), logRow.ID, status, attempts, message); err != nil {
		return SourceResult{}, fmt.Errorf("error finishing attempt log: %s", err)
	}

	return result, runErr
}

// terminalFor maps the retry loop's outcome onto the log state machine.
func terminalFor(runErr error, attempts int) (availsync.SyncStatus, string) {
	if runErr == nil {
		return availsync.StatusSuccess, fmt.Sprintf("succeeded after %d attempt(s)", attempts)
	}

	kind := availsync.KindOf(runErr)
	if errors.Is(runErr, context.Canceled) || kind == availsync.KindCancelled {
		return availsync.StatusCancelled, "sync cancelled before completion"
	}
	if kind == availsync.KindNotFound {
		return availsync.StatusCriticalError, runErr.Error()
	}
	return availsync.StatusError, runErr.Error()
}

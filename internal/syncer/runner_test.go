package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayloop/availsync/internal/availsync"
)

func testRunner(store *memStore) *Runner {
	return NewRunner(store, RunnerConfig{MaxRetries: 3, RetryDelay: time.Millisecond})
}

func singleLog(t *testing.T, store *memStore, source availsync.Source) availsync.SyncAttemptLog {
	t.Helper()
	logs := store.logsFor("prop-1", source)
	require.Len(t, logs, 1)
	return logs[0]
}

func TestRunnerSuccessFirstAttempt(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	calls := 0
	res, err := r.Run(context.Background(), "prop-1", availsync.SourceFeed, func(context.Context) (SourceResult, error) {
		calls++
		return SourceResult{Records: []availsync.AvailabilityRecord{{Date: "2024-06-10"}}}, nil
	})
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, calls)

	log := singleLog(t, store, availsync.SourceFeed)
	assert.Equal(t, availsync.StatusSuccess, log.Status)
	assert.Equal(t, 1, log.AttemptNumber)
	assert.NotNil(t, log.CompletedAt)
}

func TestRunnerRetriesThenSucceeds(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	calls := 0
	_, err := r.Run(context.Background(), "prop-1", availsync.SourceScraping, func(context.Context) (SourceResult, error) {
		calls++
		if calls < 2 {
			return SourceResult{}, availsync.NewSyncError(availsync.KindTransport, "flaky network", nil)
		}
		return SourceResult{Records: []availsync.AvailabilityRecord{{Date: "2024-06-10"}}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	log := singleLog(t, store, availsync.SourceScraping)
	assert.Equal(t, availsync.StatusSuccess, log.Status)
	assert.Equal(t, 2, log.AttemptNumber)
}

func TestRunnerExhaustsRetries(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	calls := 0
	_, err := r.Run(context.Background(), "prop-1", availsync.SourceScraping, func(context.Context) (SourceResult, error) {
		calls++
		return SourceResult{}, availsync.NewSyncError(availsync.KindTransport, "host unreachable", nil)
	})
	require.Error(t, err)
	// MaxRetries bounds total invocations, not re-invocations.
	assert.Equal(t, 3, calls)

	log := singleLog(t, store, availsync.SourceScraping)
	assert.Equal(t, availsync.StatusError, log.Status)
	assert.Equal(t, 3, log.AttemptNumber)
}

func TestRunnerNonRetryableStopsImmediately(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	calls := 0
	_, err := r.Run(context.Background(), "prop-1", availsync.SourceFeed, func(context.Context) (SourceResult, error) {
		calls++
		return SourceResult{}, availsync.NewSyncError(availsync.KindMalformedFeed, "no calendar markers", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	log := singleLog(t, store, availsync.SourceFeed)
	assert.Equal(t, availsync.StatusError, log.Status)
}

func TestRunnerNotFoundIsCritical(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	_, err := r.Run(context.Background(), "prop-1", availsync.SourceScraping, func(context.Context) (SourceResult, error) {
		return SourceResult{}, availsync.NewSyncError(availsync.KindNotFound, "property vanished", nil)
	})
	require.Error(t, err)

	log := singleLog(t, store, availsync.SourceScraping)
	assert.Equal(t, availsync.StatusCriticalError, log.Status)
}

func TestRunnerCancelledBeforeStart(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := r.Run(ctx, "prop-1", availsync.SourceFeed, func(context.Context) (SourceResult, error) {
		calls++
		return SourceResult{}, nil
	})
	require.Error(t, err)
	assert.Zero(t, calls)

	log := singleLog(t, store, availsync.SourceFeed)
	assert.Equal(t, availsync.StatusCancelled, log.Status)
}

func TestRunnerCancelledBetweenAttempts(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := r.Run(ctx, "prop-1", availsync.SourceScraping, func(context.Context) (SourceResult, error) {
		calls++
		cancel()
		return SourceResult{}, availsync.NewSyncError(availsync.KindTransport, "flaky", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	log := singleLog(t, store, availsync.SourceScraping)
	assert.Equal(t, availsync.StatusCancelled, log.Status)
}

func TestRunnerTerminalTransitionHappensOnce(t *testing.T) {
	store := newMemStore()
	r := testRunner(store)

	_, err := r.Run(context.Background(), "prop-1", availsync.SourceFeed, func(context.Context) (SourceResult, error) {
		return SourceResult{Records: []availsync.AvailabilityRecord{{Date: "2024-06-10"}}}, nil
	})
	require.NoError(t, err)

	log := singleLog(t, store, availsync.SourceFeed)
	finishErr := store.FinishLog(context.Background(), log.ID, availsync.StatusError, 1, "late overwrite")
	assert.True(t, errors.Is(finishErr, availsync.ErrConflict))
}

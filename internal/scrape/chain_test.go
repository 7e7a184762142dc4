package scrape

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stayloop/availsync/internal/availsync"
)

// stubStrategy returns a canned outcome and records how often it ran.
type stubStrategy struct {
	name     string
	priority int
	outcome  Outcome
	calls    int
}

func (s *stubStrategy) Name() string           { return s.name }
func (s *stubStrategy) Priority() int          { return s.priority }
func (s *stubStrategy) Timeout() time.Duration { return time.Second }

func (s *stubStrategy) Extract(context.Context, *Session, PropertyContext) Outcome {
	s.calls++
	return s.outcome
}

func days(from string, n int, available bool) []availsync.AvailabilityRecord {
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		panic(err)
	}

	out := make([]availsync.AvailabilityRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, availsync.AvailabilityRecord{
			PropertyID:  "prop-1",
			Date:        start.AddDate(0, 0, i).Format("2006-01-02"),
			IsAvailable: available,
			Source:      availsync.SourceScraping,
		})
	}
	return out
}

var testProp = PropertyContext{PropertyID: "prop-1", Platform: "airbnb", PageURL: "https://example.com/rooms/1"}

func TestChainStopsAtThreshold(t *testing.T) {
	first := &stubStrategy{name: "first", priority: 1, outcome: Success(days("2024-06-01", 5, true))}
	second := &stubStrategy{name: "second", priority: 2, outcome: Success(days("2024-07-01", 40, true))}
	third := &stubStrategy{name: "third", priority: 3, outcome: Success(days("2024-09-01", 10, true))}

	chain := NewChainWith(30, first, second, third)

	records, last, err := chain.Run(context.Background(), nil, testProp)
	require.NoError(t, err)

	assert.Len(t, records, 45)
	assert.Equal(t, "second", last)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 1, second.calls)
	assert.Zero(t, third.calls, "threshold met, third strategy never runs")
}

func TestChainRunsInPriorityOrder(t *testing.T) {
	// Registered out of order; priority decides execution order.
	low := &stubStrategy{name: "low", priority: 4, outcome: Success(days("2024-06-01", 40, true))}
	high := &stubStrategy{name: "high", priority: 1, outcome: Success(days("2024-06-01", 40, false))}

	chain := NewChainWith(30, low, high)

	records, last, err := chain.Run(context.Background(), nil, testProp)
	require.NoError(t, err)

	assert.Equal(t, "high", last)
	assert.Zero(t, low.calls)
	for _, r := range records {
		assert.False(t, r.IsAvailable)
	}
}

func TestChainDedupsKeepFirst(t *testing.T) {
	first := &stubStrategy{name: "first", priority: 1, outcome: Success(days("2024-06-01", 5, false))}
	// Overlapping dates with the opposite value; the earlier strategy wins.
	second := &stubStrategy{name: "second", priority: 2, outcome: Success(days("2024-06-01", 10, true))}

	chain := NewChainWith(30, first, second)

	records, _, err := chain.Run(context.Background(), nil, testProp)
	require.NoError(t, err)
	require.Len(t, records, 10)

	byDate := map[string]bool{}
	for _, r := range records {
		byDate[r.Date] = r.IsAvailable
	}
	assert.False(t, byDate["2024-06-03"], "first strategy's value kept")
	assert.True(t, byDate["2024-06-08"], "dates only the second produced pass through")
}

func TestChainSortsAscending(t *testing.T) {
	scattered := Success([]availsync.AvailabilityRecord{
		{PropertyID: "prop-1", Date: "2024-08-01"},
		{PropertyID: "prop-1", Date: "2024-06-15"},
		{PropertyID: "prop-1", Date: "2024-07-04"},
	})
	chain := NewChainWith(30, &stubStrategy{name: "only", priority: 1, outcome: scattered})

	records, _, err := chain.Run(context.Background(), nil, testProp)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "2024-06-15", records[0].Date)
	assert.Equal(t, "2024-07-04", records[1].Date)
	assert.Equal(t, "2024-08-01", records[2].Date)
}

func TestChainSkipsInvalidDates(t *testing.T) {
	mixed := Success([]availsync.AvailabilityRecord{
		{PropertyID: "prop-1", Date: "2024-06-15"},
		{PropertyID: "prop-1", Date: "garbage"},
		{PropertyID: "prop-1", Date: "2024-06-16"},
	})
	chain := NewChainWith(30, &stubStrategy{name: "only", priority: 1, outcome: mixed})

	records, _, err := chain.Run(context.Background(), nil, testProp)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestChainAllEmptyOrFailedIsNoData(t *testing.T) {
	chain := NewChainWith(30,
		&stubStrategy{name: "fails", priority: 1, outcome: Failed("browser crashed")},
		&stubStrategy{name: "empty", priority: 2, outcome: Empty()},
	)

	_, last, err := chain.Run(context.Background(), nil, testProp)
	require.Error(t, err)
	assert.Equal(t, availsync.KindNoData, availsync.KindOf(err))
	assert.Empty(t, last)
}

func TestChainFailureThenSuccess(t *testing.T) {
	failing := &stubStrategy{name: "failing", priority: 1, outcome: Failed("timeout")}
	working := &stubStrategy{name: "working", priority: 2, outcome: Success(days("2024-06-01", 31, true))}

	chain := NewChainWith(30, failing, working)

	records, last, err := chain.Run(context.Background(), nil, testProp)
	require.NoError(t, err)
	assert.Len(t, records, 31)
	assert.Equal(t, "working", last)
}

func TestChainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strat := &stubStrategy{name: "never", priority: 1, outcome: Success(days("2024-06-01", 31, true))}
	chain := NewChainWith(30, strat)

	_, _, err := chain.Run(ctx, nil, testProp)
	require.Error(t, err)
	assert.Equal(t, availsync.KindCancelled, availsync.KindOf(err))
	assert.Zero(t, strat.calls)
}

package scrape

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/dates"
)

// DefaultSuccessThreshold is how many distinct dates end the chain early.
// A vendor calendar month is ~30 days, so one solid month is enough.
const DefaultSuccessThreshold = 30

// ChainConfig tunes a strategy chain.
type ChainConfig struct {
	// SuccessThreshold is the distinct-date count at which the chain stops
	// trying lower-priority strategies. Zero means DefaultSuccessThreshold.
	SuccessThreshold int
	// StrategyTimeout is each strategy's individual deadline.
	StrategyTimeout time.Duration
}

// Chain tries strategies in ascending priority order, accumulating valid
// deduplicated records, and stops early once the success threshold is met.
type Chain struct {
	strategies []Strategy
	threshold  int
}

// NewChain builds the per-platform chain with all four strategies.
func NewChain(platform string, cfg ChainConfig) *Chain {
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.StrategyTimeout <= 0 {
		cfg.StrategyTimeout = 45 * time.Second
	}

	profile := profileFor(platform)
	return NewChainWith(cfg.SuccessThreshold,
		newStructuredData(profile, cfg.StrategyTimeout),
		newAPIIntercept(profile, cfg.StrategyTimeout),
		newCalendarPage(profile, cfg.StrategyTimeout),
		newMarkupScan(cfg.StrategyTimeout),
	)
}

// NewChainWith builds a chain over explicit strategies. Used directly by
// tests and by callers that need a trimmed-down chain.
func NewChainWith(threshold int, strategies ...Strategy) *Chain {
	sorted := make([]Strategy, len(strategies))
	copy(sorted, strategies)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Chain{strategies: sorted, threshold: threshold}
}

// Run executes the chain. It returns the accumulated records sorted
// ascending by date, the name of the last strategy that contributed, and a
// no_data error when every strategy came up empty or failed. Strategy
// failures are swallowed and logged; only the empty end state is an error.
func (c *Chain) Run(ctx context.Context, sess *Session, prop PropertyContext) ([]availsync.AvailabilityRecord, string, error) {
	var (
		seen         = make(map[string]struct{})
		collected    []availsync.AvailabilityRecord
		lastStrategy string
	)

	for _, strat := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, lastStrategy, availsync.NewSyncError(availsync.KindCancelled, "chain cancelled", err)
		}

		outcome := strat.Extract(ctx, sess, prop)
		switch outcome.Status {
		case OutcomeFailed:
			slog.Warn("extraction strategy failed",
				"strategy", strat.Name(),
				"property_id", prop.PropertyID,
				"reason", outcome.Reason,
			)
			continue
		case OutcomeEmpty:
			slog.Debug("extraction strategy returned no records",
				"strategy", strat.Name(),
				"property_id", prop.PropertyID,
			)
			continue
		}

		added := 0
		for _, rec := range outcome.Records {
			day, err := dates.Normalize(rec.Date)
			if err != nil {
				continue
			}
			if _, dup := seen[day]; dup {
				continue
			}
			seen[day] = struct{}{}
			rec.Date = day
			collected = append(collected, rec)
			added++
		}
		if added > 0 {
			lastStrategy = strat.Name()
		}

		slog.Info("extraction strategy succeeded",
			"strategy", strat.Name(),
			"property_id", prop.PropertyID,
			"records", added,
			"total", len(collected),
		)

		if len(collected) >= c.threshold {
			break
		}
	}

	if len(collected) == 0 {
		return nil, "", availsync.NewSyncError(availsync.KindNoData,
			"no strategy extracted any valid records", nil)
	}

	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Date < collected[j].Date
	})
	return collected, lastStrategy, nil
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/feed"
	"github.com/stayloop/availsync/internal/scrape"
	"github.com/stayloop/availsync/logger"
)

// Recorder observes sync outcomes for metrics. The orchestrator never
// depends on a concrete metrics backend.
type Recorder interface {
	ObserveSync(source, result string, elapsed time.Duration)
	AddConflicts(n int)
	AddRecords(source string, n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveSync(string, string, time.Duration) {}
func (nopRecorder) AddConflicts(int)                          {}
func (nopRecorder) AddRecords(string, int)                    {}

// Config tunes the orchestrator. Zero values fall back to the defaults
// noted on each field.
type Config struct {
	MaxParallelSyncs int           // 5
	InterBatchDelay  time.Duration // 2s
	SyncTimeout      time.Duration // 15m, per property
	StaleAfter       time.Duration // 24h, queue eligibility cutoff
	Policy           Policy        // scraping_priority
	MaxRetries       int           // 3
	RetryDelay       time.Duration // 5s
	FeedTimeout      time.Duration // 30s
	ChainThreshold   int           // scrape.DefaultSuccessThreshold
	StrategyTimeout  time.Duration
	Session          scrape.SessionConfig
}

func (c Config) withDefaults() Config {
	if c.MaxParallelSyncs <= 0 {
		c.MaxParallelSyncs = 5
	}
	if c.InterBatchDelay <= 0 {
		c.InterBatchDelay = 2 * time.Second
	}
	if c.SyncTimeout <= 0 {
		c.SyncTimeout = 15 * time.Minute
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 24 * time.Hour
	}
	if !ValidPolicy(c.Policy) {
		c.Policy = PolicyScrapingPriority
	}
	if c.FeedTimeout <= 0 {
		c.FeedTimeout = 30 * time.Second
	}
	return c
}

// sourceFn fetches one source's calendar. The orchestrator swaps these for
// fakes in tests; production wiring drives a browser session or the feed
// ingestor.
type sourceFn func(ctx context.Context, prop availsync.Property) (SourceResult, error)

// Orchestrator drives full sync runs: it scores and queues properties, pulls
// both sources per property with bounded parallelism, consolidates, and
// persists the outcome.
type Orchestrator struct {
	props    availsync.PropertyRepo
	records  availsync.RecordRepo
	queue    availsync.QueueRepo
	logs     availsync.LogRepo
	runner   *Runner
	registry *Registry
	recorder Recorder
	cfg      Config
	now      func() time.Time
	ingestor *feed.Ingestor

	scrapeSource sourceFn
	feedSource   sourceFn
}

type OrchestratorOption func(*Orchestrator)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithSources overrides the per-source fetchers.
func WithSources(scrapeFn, feedFn sourceFn) OrchestratorOption {
	return func(o *Orchestrator) {
		o.scrapeSource = scrapeFn
		o.feedSource = feedFn
	}
}

func NewOrchestrator(
	props availsync.PropertyRepo,
	records availsync.RecordRepo,
	queue availsync.QueueRepo,
	logs availsync.LogRepo,
	registry *Registry,
	cfg Config,
	opts ...OrchestratorOption,
) *Orchestrator {
	cfg = cfg.withDefaults()
	o := &Orchestrator{
		props:    props,
		records:  records,
		queue:    queue,
		logs:     logs,
		runner:   NewRunner(logs, RunnerConfig{MaxRetries: cfg.MaxRetries, RetryDelay: cfg.RetryDelay}),
		registry: registry,
		recorder: nopRecorder{},
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	o.scrapeSource = o.browserScrape
	o.feedSource = o.ingestFeed

	for _, opt := range opts {
		opt(o)
	}
	o.ingestor = feed.NewIngestor(cfg.FeedTimeout, feed.WithNow(o.now))
	return o
}

// browserScrape launches a fresh browser session and runs the strategy
// chain. Each retry gets its own session so a wedged browser cannot poison
// the next attempt.
func (o *Orchestrator) browserScrape(ctx context.Context, prop availsync.Property) (SourceResult, error) {
	sess, err := scrape.NewSession(ctx, o.cfg.Session)
	if err != nil {
		return SourceResult{}, availsync.NewSyncError(availsync.KindTransport, "launching browser", err)
	}
	defer sess.Close()

	chain := scrape.NewChain(prop.Platform, scrape.ChainConfig{
		SuccessThreshold: o.cfg.ChainThreshold,
		StrategyTimeout:  o.cfg.StrategyTimeout,
	})
	records, strategy, err := chain.Run(ctx, sess, scrape.PropertyContext{
		PropertyID: prop.ID,
		Platform:   prop.Platform,
		PageURL:    *prop.VendorPageURL,
	})
	if err != nil {
		return SourceResult{}, err
	}
	return SourceResult{Records: records, Strategy: strategy}, nil
}

func (o *Orchestrator) ingestFeed(ctx context.Context, prop availsync.Property) (SourceResult, error) {
	res, err := o.ingestor.Fetch(ctx, prop.ID, *prop.FeedURL)
	if err != nil {
		return SourceResult{}, err
	}
	return SourceResult{Records: res.Records}, nil
}

// platformBonus holds platforms whose listings get a scheduling boost.
var platformBonus = map[string]bool{
	"airbnb": true,
	"vrbo":   true,
}

// scoreProperty computes the staleness score used for queue priority.
func scoreProperty(p availsync.Property, now time.Time) int {
	score := 0
	switch {
	case p.LastSynced == nil:
		score += 3
	case now.Sub(*p.LastSynced) > 48*time.Hour:
		score += 2
	case now.Sub(*p.LastSynced) > 24*time.Hour:
		score++
	}
	if len(p.Sources()) > 1 {
		score++
	}
	if platformBonus[p.Platform] {
		score++
	}
	return score
}

func priorityFor(score int) availsync.Priority {
	switch {
	case score >= 4:
		return availsync.PriorityHigh
	case score >= 2:
		return availsync.PriorityNormal
	}
	return availsync.PriorityLow
}

var priorityRank = map[availsync.Priority]int{
	availsync.PriorityHigh:   0,
	availsync.PriorityNormal: 1,
	availsync.PriorityLow:    2,
}

// queued pairs a property with its pending queue item for the run.
type queued struct {
	prop availsync.Property
	item availsync.SyncQueueItem
}

// buildQueue selects the properties due for a sync, scores them, and
// persists one pending queue item each. Properties with no configured source
// or an already-live queue item are skipped.
func (o *Orchestrator) buildQueue(ctx context.Context, forceAll bool) ([]queued, error) {
	now := o.now()

	var (
		props []availsync.Property
		err   error
	)
	if forceAll {
		props, err = o.props.AllProperties(ctx)
	} else {
		props, err = o.props.PropertiesNeedingSync(ctx, now.Add(-o.cfg.StaleAfter))
	}
	if err != nil {
		return nil, fmt.Errorf("error selecting properties: %s", err)
	}

	var (
		out   []queued
		items []availsync.SyncQueueItem
	)
	for _, p := range props {
		if len(p.Sources()) == 0 {
			slog.DebugContext(ctx, "skipping property with no sources", "property_id", p.ID)
			continue
		}
		if _, err := o.queue.LiveItemForProperty(ctx, p.ID); err == nil {
			slog.DebugContext(ctx, "skipping property with live queue item", "property_id", p.ID)
			continue
		} else if !errors.Is(err, availsync.ErrNotFound) {
			return nil, fmt.Errorf("error checking live queue item: %s", err)
		}

		item := availsync.SyncQueueItem{
			ID:         uuid.NewString() + "-sq",
			PropertyID: p.ID,
			Priority:   priorityFor(scoreProperty(p, now)),
			Status:     availsync.QueuePending,
			CreatedAt:  now,
		}
		items = append(items, item)
		out = append(out, queued{prop: p, item: item})
	}

	if len(items) > 0 {
		if err := o.queue.EnqueueItems(ctx, items); err != nil {
			return nil, fmt.Errorf("error enqueueing items: %s", err)
		}
	}

	// HIGH before NORMAL before LOW; within a band, stalest first.
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := priorityRank[out[i].item.Priority], priorityRank[out[j].item.Priority]
		if pi != pj {
			return pi < pj
		}
		return stalerThan(out[i].prop, out[j].prop)
	})
	return out, nil
}

func stalerThan(a, b availsync.Property) bool {
	switch {
	case a.LastSynced == nil:
		return b.LastSynced != nil
	case b.LastSynced == nil:
		return false
	}
	return a.LastSynced.Before(*b.LastSynced)
}

// RunStats summarizes one full sync run.
type RunStats struct {
	Queued     int            `json:"queued"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Cancelled  int            `json:"cancelled"`
	Conflicts  int            `json:"conflicts"`
	Records    int            `json:"records"`
	ByPriority map[string]int `json:"by_priority"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// SyncReport is the outcome of syncing a single property.
type SyncReport struct {
	PropertyID string                    `json:"property_id"`
	Sources    []availsync.Source        `json:"sources"`
	Strategy   string                    `json:"strategy,omitempty"`
	Unified    int                       `json:"unified"`
	Conflicts  []availsync.ConflictEntry `json:"conflicts,omitempty"`
}

// SyncAll runs syncs for every due property in batches of MaxParallelSyncs,
// sleeping InterBatchDelay between batches. A cancelled parent context stops
// scheduling new batches; in-flight syncs wind down on their own contexts.
func (o *Orchestrator) SyncAll(ctx context.Context, forceAll bool) (RunStats, error) {
	stats := RunStats{StartedAt: o.now(), ByPriority: map[string]int{}}

	work, err := o.buildQueue(ctx, forceAll)
	if err != nil {
		return stats, err
	}
	stats.Queued = len(work)
	for _, w := range work {
		stats.ByPriority[string(w.item.Priority)]++
	}
	slog.InfoContext(ctx, "sync run starting", "queued", len(work), "force_all", forceAll)

	var mu sync.Mutex
	for start := 0; start < len(work); start += o.cfg.MaxParallelSyncs {
		if ctx.Err() != nil {
			o.markRemainingCancelled(work[start:])
			stats.Cancelled += len(work[start:])
			break
		}

		end := min(start+o.cfg.MaxParallelSyncs, len(work))
		var wg sync.WaitGroup
		for _, w := range work[start:end] {
			wg.Add(1)
			go func(w queued) {
				defer wg.Done()
				report, err := o.syncOne(ctx, w.prop, w.item.ID)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					stats.Succeeded++
					stats.Conflicts += len(report.Conflicts)
					stats.Records += report.Unified
				case errors.Is(err, context.Canceled) || availsync.KindOf(err) == availsync.KindCancelled:
					stats.Cancelled++
				default:
					stats.Failed++
				}
			}(w)
		}
		wg.Wait()

		if end < len(work) {
			select {
			case <-ctx.Done():
			case <-time.After(o.cfg.InterBatchDelay):
			}
		}
	}

	stats.FinishedAt = o.now()
	slog.InfoContext(ctx, "sync run finished",
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"cancelled", stats.Cancelled,
		"conflicts", stats.Conflicts,
	)
	return stats, nil
}

func (o *Orchestrator) markRemainingCancelled(work []queued) {
	ctx := context.Background()
	for _, w := range work {
		if err := o.queue.UpdateQueueItem(ctx, w.item.ID, availsync.QueueCancelled, nil); err != nil {
			slog.Error("error cancelling queue item", "queue_item_id", w.item.ID, "err", err)
		}
	}
}

// SyncProperty syncs a single property on demand at HIGH priority.
func (o *Orchestrator) SyncProperty(ctx context.Context, propertyID string) (SyncReport, error) {
	prop, err := o.props.Property(ctx, propertyID)
	if err != nil {
		if errors.Is(err, availsync.ErrNotFound) {
			return SyncReport{}, availsync.NewSyncError(availsync.KindNotFound, "property not found", err)
		}
		return SyncReport{}, fmt.Errorf("error loading property: %s", err)
	}
	if len(prop.Sources()) == 0 {
		return SyncReport{}, availsync.NewSyncError(availsync.KindNoData, "property has no sync sources configured", nil)
	}

	item := availsync.SyncQueueItem{
		ID:         uuid.NewString() + "-sq",
		PropertyID: prop.ID,
		Priority:   availsync.PriorityHigh,
		Status:     availsync.QueuePending,
		CreatedAt:  o.now(),
	}
	if err := o.queue.EnqueueItems(ctx, []availsync.SyncQueueItem{item}); err != nil {
		return SyncReport{}, fmt.Errorf("error enqueueing item: %s", err)
	}

	return o.syncOne(ctx, prop, item.ID)
}

// syncOne pulls every configured source concurrently, consolidates, and
// persists. It owns the queue item's terminal transition and the property's
// registry handle.
func (o *Orchestrator) syncOne(ctx context.Context, prop availsync.Property, queueItemID string) (SyncReport, error) {
	sources := prop.Sources()
	report := SyncReport{PropertyID: prop.ID, Sources: sources}

	ctx = logger.Ctx(ctx, slog.String("property_id", prop.ID))
	syncCtx, cancel := context.WithTimeout(ctx, o.cfg.SyncTimeout)
	defer cancel()

	token, ok := o.registry.Add(prop.ID, sources, cancel)
	if !ok {
		msg := "sync already in flight for property"
		o.failQueueItem(queueItemID, msg)
		return report, availsync.NewSyncError(availsync.KindTransport, msg, availsync.ErrConflict)
	}
	defer o.registry.Remove(prop.ID, token)

	if err := o.queue.UpdateQueueItem(syncCtx, queueItemID, availsync.QueueProcessing, nil); err != nil {
		return report, fmt.Errorf("error marking queue item processing: %s", err)
	}

	start := o.now()
	var (
		scrapeRes, feedRes SourceResult
		scrapeErr, feedErr error
	)

	var g errgroup.Group
	if hasSource(sources, availsync.SourceScraping) {
		g.Go(func() error {
			scrapeRes, scrapeErr = o.runner.Run(syncCtx, prop.ID, availsync.SourceScraping, func(ctx context.Context) (SourceResult, error) {
				return o.scrapeSource(ctx, prop)
			})
			o.recorder.ObserveSync(string(availsync.SourceScraping), resultLabel(scrapeErr), o.now().Sub(start))
			return nil
		})
	}
	if hasSource(sources, availsync.SourceFeed) {
		g.Go(func() error {
			feedRes, feedErr = o.runner.Run(syncCtx, prop.ID, availsync.SourceFeed, func(ctx context.Context) (SourceResult, error) {
				return o.feedSource(ctx, prop)
			})
			o.recorder.ObserveSync(string(availsync.SourceFeed), resultLabel(feedErr), o.now().Sub(start))
			return nil
		})
	}
	_ = g.Wait() // goroutines report through scrapeErr and feedErr

	// Cancellation and timeout are decided off the sync context, not the
	// per-source errors, so a race between the two sources cannot mislabel
	// the queue item.
	if err := syncCtx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			msg := fmt.Sprintf("sync timed out after %s", o.cfg.SyncTimeout)
			o.failQueueItem(queueItemID, msg)
			return report, availsync.NewSyncError(availsync.KindTimeout, msg, err)
		}
		if err := o.queue.UpdateQueueItem(context.Background(), queueItemID, availsync.QueueCancelled, nil); err != nil {
			slog.Error("error cancelling queue item", "queue_item_id", queueItemID, "err", err)
		}
		return report, availsync.NewSyncError(availsync.KindCancelled, "sync cancelled", context.Canceled)
	}

	if scrapeErr != nil {
		slog.WarnContext(ctx, "scraping source failed", "err", scrapeErr)
	}
	if feedErr != nil {
		slog.WarnContext(ctx, "feed source failed", "err", feedErr)
	}

	if len(scrapeRes.Records) == 0 && len(feedRes.Records) == 0 {
		msg := "no data extracted from any source"
		o.failQueueItem(queueItemID, msg)
		return report, availsync.NewSyncError(availsync.KindNoData, msg, errors.Join(scrapeErr, feedErr))
	}

	unified, conflicts := Consolidate(scrapeRes.Records, feedRes.Records, o.cfg.Policy, o.now())
	report.Strategy = scrapeRes.Strategy
	report.Unified = len(unified)
	report.Conflicts = conflicts
	o.recorder.AddConflicts(len(conflicts))

	if err := o.persist(syncCtx, prop, scrapeRes.Records, feedRes.Records, unified, scrapeErr, feedErr); err != nil {
		o.failQueueItem(queueItemID, err.Error())
		return report, err
	}

	if err := o.queue.UpdateQueueItem(syncCtx, queueItemID, availsync.QueueCompleted, nil); err != nil {
		return report, fmt.Errorf("error completing queue item: %s", err)
	}

	slog.InfoContext(ctx, "property synced",
		"unified_records", len(unified),
		"conflicts", len(conflicts),
		"strategy", scrapeRes.Strategy,
	)
	return report, nil
}

func (o *Orchestrator) persist(
	ctx context.Context,
	prop availsync.Property,
	scraped, fed, unified []availsync.AvailabilityRecord,
	scrapeErr, feedErr error,
) error {
	if len(scraped) > 0 {
		if err := o.records.UpsertRecords(ctx, scraped); err != nil {
			return fmt.Errorf("error upserting scraped records: %s", err)
		}
		o.recorder.AddRecords(string(availsync.SourceScraping), len(scraped))
	}
	if len(fed) > 0 {
		if err := o.records.UpsertRecords(ctx, fed); err != nil {
			return fmt.Errorf("error upserting feed records: %s", err)
		}
		o.recorder.AddRecords(string(availsync.SourceFeed), len(fed))
	}
	// An empty unified set never clobbers a previous calendar.
	if len(unified) > 0 {
		if err := o.records.ReplaceUnified(ctx, prop.ID, unified); err != nil {
			return fmt.Errorf("error replacing unified records: %s", err)
		}
		o.recorder.AddRecords(string(availsync.SourceUnified), len(unified))
	}

	var okSources []availsync.Source
	if len(scraped) > 0 && scrapeErr == nil {
		okSources = append(okSources, availsync.SourceScraping)
	}
	if len(fed) > 0 && feedErr == nil {
		okSources = append(okSources, availsync.SourceFeed)
	}
	if err := o.props.StampSynced(ctx, prop.ID, o.now(), okSources); err != nil {
		return fmt.Errorf("error stamping property synced: %s", err)
	}
	return nil
}

func (o *Orchestrator) failQueueItem(id, msg string) {
	if err := o.queue.UpdateQueueItem(context.Background(), id, availsync.QueueFailed, &msg); err != nil {
		slog.Error("error failing queue item", "queue_item_id", id, "err", err)
	}
}

// CancelSync cancels the in-flight sync for a property, if any. The worker
// observes the cancellation and marks its own queue item.
func (o *Orchestrator) CancelSync(propertyID string) bool {
	return o.registry.Cancel(propertyID)
}

// ActiveSyncs lists the in-flight syncs.
func (o *Orchestrator) ActiveSyncs() []ActiveSync {
	return o.registry.List()
}

// Stats aggregates attempt outcomes over the trailing window.
func (o *Orchestrator) Stats(ctx context.Context, days int) (availsync.LogStats, error) {
	if days <= 0 {
		days = 7
	}
	return o.logs.LogStats(ctx, o.now().AddDate(0, 0, -days))
}

func hasSource(sources []availsync.Source, want availsync.Source) bool {
	for _, s := range sources {
		if s == want {
			return true
		}
	}
	return false
}

func resultLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(availsync.KindOf(err))
}

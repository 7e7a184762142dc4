package syncer

import (
	"context"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/feed"
)

// Service is the command surface exposed over HTTP and the periodic loop.
// It delegates to the orchestrator and keeps a probe ingestor for URL tests.
type Service struct {
	orch  *Orchestrator
	probe *feed.Ingestor
}

func NewService(orch *Orchestrator) *Service {
	return &Service{
		orch:  orch,
		probe: feed.NewIngestor(15 * time.Second),
	}
}

// SyncProperty runs an on-demand sync for one property.
func (s *Service) SyncProperty(ctx context.Context, propertyID string) (SyncReport, error) {
	return s.orch.SyncProperty(ctx, propertyID)
}

// SyncAllUnified runs a full sync pass. With forceAll every property is
// synced regardless of staleness.
func (s *Service) SyncAllUnified(ctx context.Context, forceAll bool) (RunStats, error) {
	return s.orch.SyncAll(ctx, forceAll)
}

// TestResult is the outcome of probing a source URL without persisting
// anything.
type TestResult struct {
	URL     string `json:"url"`
	OK      bool   `json:"ok"`
	Events  int    `json:"events"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// TestSourceURL fetches a feed URL and reports what it would yield. Parse
// and transport failures come back in the result rather than as an error so
// callers can surface them verbatim.
func (s *Service) TestSourceURL(ctx context.Context, rawURL string) TestResult {
	res, err := s.probe.Fetch(ctx, "probe", rawURL)
	if err != nil {
		return TestResult{URL: rawURL, Error: err.Error()}
	}
	return TestResult{
		URL:     rawURL,
		OK:      true,
		Events:  len(res.Events),
		Records: len(res.Records),
	}
}

// CancelSync cancels an in-flight sync. Returns false when none is running
// for the property.
func (s *Service) CancelSync(propertyID string) bool {
	return s.orch.CancelSync(propertyID)
}

// ActiveSyncs lists in-flight syncs.
func (s *Service) ActiveSyncs() []ActiveSync {
	return s.orch.ActiveSyncs()
}

// Stats returns the rolling attempt-log aggregates.
func (s *Service) Stats(ctx context.Context, days int) (availsync.LogStats, error) {
	return s.orch.Stats(ctx, days)
}

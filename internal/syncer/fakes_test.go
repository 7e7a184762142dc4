package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
)

// memStore is an in-memory implementation of the persistence interfaces,
// shared by the runner and orchestrator tests.
type memStore struct {
	mu sync.Mutex

	props   map[string]availsync.Property
	records map[string][]availsync.AvailabilityRecord // keyed property/source
	logs    map[string]*availsync.SyncAttemptLog
	queue   map[string]*availsync.SyncQueueItem

	logSeq int
}

func newMemStore(props ...availsync.Property) *memStore {
	s := &memStore{
		props:   map[string]availsync.Property{},
		records: map[string][]availsync.AvailabilityRecord{},
		logs:    map[string]*availsync.SyncAttemptLog{},
		queue:   map[string]*availsync.SyncQueueItem{},
	}
	for _, p := range props {
		s.props[p.ID] = p
	}
	return s
}

func recKey(propertyID string, source availsync.Source) string {
	return propertyID + "/" + string(source)
}

func (s *memStore) Property(_ context.Context, id string) (availsync.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.props[id]
	if !ok {
		return availsync.Property{}, availsync.ErrNotFound
	}
	return p, nil
}

func (s *memStore) PropertyByExternalID(_ context.Context, externalID string) (availsync.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.props {
		if p.ExternalID != nil && *p.ExternalID == externalID {
			return p, nil
		}
	}
	return availsync.Property{}, availsync.ErrNotFound
}

func (s *memStore) AllProperties(context.Context) ([]availsync.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]availsync.Property, 0, len(s.props))
	for _, p := range s.props {
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) PropertiesNeedingSync(_ context.Context, cutoff time.Time) ([]availsync.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []availsync.Property
	for _, p := range s.props {
		if p.LastSynced == nil || p.LastSynced.Before(cutoff) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *memStore) StampSynced(_ context.Context, id string, at time.Time, sources []availsync.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.props[id]
	if !ok {
		return availsync.ErrNotFound
	}
	p.LastSynced = &at
	s.props[id] = p
	return nil
}

func (s *memStore) UpsertRecords(_ context.Context, records []availsync.AvailabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		key := recKey(rec.PropertyID, rec.Source)
		replaced := false
		for i, existing := range s.records[key] {
			if existing.Date == rec.Date {
				s.records[key][i] = rec
				replaced = true
				break
			}
		}
		if !replaced {
			s.records[key] = append(s.records[key], rec)
		}
	}
	return nil
}

func (s *memStore) ReplaceUnified(_ context.Context, propertyID string, records []availsync.AvailabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recKey(propertyID, availsync.SourceUnified)] = append([]availsync.AvailabilityRecord(nil), records...)
	return nil
}

func (s *memStore) RecordsBySource(_ context.Context, propertyID string, source availsync.Source) ([]availsync.AvailabilityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]availsync.AvailabilityRecord(nil), s.records[recKey(propertyID, source)]...), nil
}

func (s *memStore) InsertLog(_ context.Context, log availsync.SyncAttemptLog) (availsync.SyncAttemptLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logSeq++
	log.ID = fmt.Sprintf("log-%d", s.logSeq)
	s.logs[log.ID] = &log
	stored := log
	return stored, nil
}

func (s *memStore) MarkStarted(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return availsync.ErrNotFound
	}
	if log.Status != availsync.StatusPending {
		return fmt.Errorf("log %s is not pending: %w", id, availsync.ErrConflict)
	}
	log.Status = availsync.StatusStarted
	return nil
}

func (s *memStore) FinishLog(_ context.Context, id string, status availsync.SyncStatus, attempts int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log, ok := s.logs[id]
	if !ok {
		return availsync.ErrNotFound
	}
	if log.Status.Terminal() {
		return fmt.Errorf("log %s already terminal: %w", id, availsync.ErrConflict)
	}
	now := time.Now().UTC()
	log.Status = status
	log.AttemptNumber = attempts
	log.Message = message
	log.CompletedAt = &now
	return nil
}

func (s *memStore) LogStats(_ context.Context, since time.Time) (availsync.LogStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := availsync.LogStats{
		ByStatus:    map[string]int{},
		BySource:    map[string]int{},
		WindowStart: since,
	}
	for _, log := range s.logs {
		if log.StartedAt.Before(since) {
			continue
		}
		stats.Total++
		stats.ByStatus[string(log.Status)]++
		stats.BySource[string(log.SourceKind)]++
	}
	return stats, nil
}

func (s *memStore) EnqueueItems(_ context.Context, items []availsync.SyncQueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		stored := item
		s.queue[item.ID] = &stored
	}
	return nil
}

func (s *memStore) UpdateQueueItem(_ context.Context, id string, status availsync.QueueStatus, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.queue[id]
	if !ok {
		return availsync.ErrNotFound
	}
	item.Status = status
	if errMsg != nil {
		item.ErrorMessage = errMsg
	}
	return nil
}

func (s *memStore) LiveItemForProperty(_ context.Context, propertyID string) (availsync.SyncQueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.queue {
		if item.PropertyID != propertyID {
			continue
		}
		if item.Status == availsync.QueuePending || item.Status == availsync.QueueProcessing {
			return *item, nil
		}
	}
	return availsync.SyncQueueItem{}, availsync.ErrNotFound
}

// queueItemFor fetches the single queue item for a property, any status.
func (s *memStore) queueItemFor(propertyID string) (availsync.SyncQueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.queue {
		if item.PropertyID == propertyID {
			return *item, true
		}
	}
	return availsync.SyncQueueItem{}, false
}

// logsFor returns the attempt logs for a property and source.
func (s *memStore) logsFor(propertyID string, source availsync.Source) []availsync.SyncAttemptLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []availsync.SyncAttemptLog
	for _, log := range s.logs {
		if log.PropertyID == propertyID && log.SourceKind == source {
			out = append(out, *log)
		}
	}
	return out
}

func strptr(s string) *string { return &s }

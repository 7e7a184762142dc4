// Package availsync holds the core domain types for the availability
// synchronization engine: per-day availability records, sync attempt logs,
// the sync queue, and the persistence surfaces the engine talks to.
package availsync

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConflict = errors.New("resource already exists")
	ErrNotFound = errors.New("resource not found")
)

// Source identifies where an availability value came from.
type Source string

const (
	SourceScraping Source = "scraping"
	SourceFeed     Source = "feed"
	SourceUnified  Source = "unified"
)

// Provenance marks how a unified value was derived during consolidation.
type Provenance string

const (
	ProvenanceScraping     Provenance = "scraping"
	ProvenanceFeed         Provenance = "feed"
	ProvenanceBoth         Provenance = "both"
	ProvenanceConsolidated Provenance = "consolidated"
)

type (
	// Property is the root entity everything keys off of. It is owned by the
	// listing store; the engine only reads it and stamps last_synced.
	Property struct {
		ID              string     `db:"id"`
		ExternalID      *string    `db:"external_id"`
		Platform        string     `db:"platform"`
		VendorPageURL   *string    `db:"vendor_page_url"`
		FeedURL         *string    `db:"feed_url"`
		LastSynced      *time.Time `db:"last_synced"`
		LastSyncSources *string    `db:"last_sync_sources"`
	}

	// AvailabilityRecord is one calendar day's availability for a property,
	// as reported by a single source. At most one record exists per
	// (property, date, source).
	AvailabilityRecord struct {
		PropertyID  string           `db:"property_id"`
		Date        string           `db:"date"` // YYYY-MM-DD
		IsAvailable bool             `db:"is_available"`
		Source      Source           `db:"source"`
		Provenance  Provenance       `db:"provenance"`
		Price       *decimal.Decimal `db:"price"`
		MinStay     *int             `db:"min_stay"`
		MaxStay     *int             `db:"max_stay"`
		LastUpdated time.Time        `db:"last_updated"`
	}

	// SyncAttemptLog records one retry series against one source. It is
	// created PENDING and transitions exactly once to a terminal status.
	SyncAttemptLog struct {
		ID            string     `db:"id"`
		PropertyID    string     `db:"property_id"`
		SourceKind    Source     `db:"source_kind"`
		AttemptNumber int        `db:"attempt_number"`
		Status        SyncStatus `db:"status"`
		Message       string     `db:"message"`
		StartedAt     time.Time  `db:"started_at"`
		CompletedAt   *time.Time `db:"completed_at"`
	}

	// ConflictEntry is one date where scraping and feed disagreed, with both
	// raw values and the resolved outcome. Immutable after creation.
	ConflictEntry struct {
		Date          string `json:"date"`
		ScrapingValue bool   `json:"scraping_value"`
		FeedValue     bool   `json:"feed_value"`
		ResolvedValue bool   `json:"resolved_value"`
		Strategy      string `json:"strategy"`
	}

	// SyncQueueItem tracks one property through a sync run. There is at most
	// one live (non-terminal) item per property at a time.
	SyncQueueItem struct {
		ID           string      `db:"id"`
		PropertyID   string      `db:"property_id"`
		Priority     Priority    `db:"priority"`
		Status       QueueStatus `db:"status"`
		StartedAt    *time.Time  `db:"started_at"`
		CompletedAt  *time.Time  `db:"completed_at"`
		ErrorMessage *string     `db:"error_message"`
		CreatedAt    time.Time   `db:"created_at"`
	}
)

// SyncStatus is the state machine for one attempt series.
type SyncStatus string

const (
	StatusPending       SyncStatus = "PENDING"
	StatusStarted       SyncStatus = "STARTED"
	StatusSuccess       SyncStatus = "SUCCESS"
	StatusError         SyncStatus = "ERROR"
	StatusCriticalError SyncStatus = "CRITICAL_ERROR"
	StatusCancelled     SyncStatus = "CANCELLED"
)

// Terminal reports whether the status ends the attempt series.
func (s SyncStatus) Terminal() bool {
	switch s {
	case StatusSuccess, StatusError, StatusCriticalError, StatusCancelled:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
	QueueCancelled  QueueStatus = "cancelled"
)

// Sources available for a property, derived from which URLs are configured.
func (p Property) Sources() []Source {
	var out []Source
	if p.VendorPageURL != nil && *p.VendorPageURL != "" {
		out = append(out, SourceScraping)
	}
	if p.FeedURL != nil && *p.FeedURL != "" {
		out = append(out, SourceFeed)
	}
	return out
}

type (
	// PropertyRepo is the read surface onto the listing store.
	PropertyRepo interface {
		Property(ctx context.Context, id string) (Property, error)
		PropertyByExternalID(ctx context.Context, externalID string) (Property, error)
		AllProperties(ctx context.Context) ([]Property, error)
		// PropertiesNeedingSync returns properties whose last_synced is null
		// or older than the cutoff.
		PropertiesNeedingSync(ctx context.Context, cutoff time.Time) ([]Property, error)
		StampSynced(ctx context.Context, id string, at time.Time, sources []Source) error
	}

	// RecordRepo is the persistence sink for availability records.
	RecordRepo interface {
		UpsertRecords(ctx context.Context, records []AvailabilityRecord) error
		// ReplaceUnified deletes every unified record for the property and
		// inserts the new set in one transaction.
		ReplaceUnified(ctx context.Context, propertyID string, records []AvailabilityRecord) error
		RecordsBySource(ctx context.Context, propertyID string, source Source) ([]AvailabilityRecord, error)
	}

	// LogRepo owns SyncAttemptLog rows.
	LogRepo interface {
		InsertLog(ctx context.Context, log SyncAttemptLog) (SyncAttemptLog, error)
		// FinishLog applies the one allowed terminal transition.
		FinishLog(ctx context.Context, id string, status SyncStatus, attempts int, message string) error
		MarkStarted(ctx context.Context, id string) error
		// LogStats aggregates attempt outcomes since the given time.
		LogStats(ctx context.Context, since time.Time) (LogStats, error)
	}

	// QueueRepo owns SyncQueueItem rows.
	QueueRepo interface {
		EnqueueItems(ctx context.Context, items []SyncQueueItem) error
		UpdateQueueItem(ctx context.Context, id string, status QueueStatus, errMsg *string) error
		LiveItemForProperty(ctx context.Context, propertyID string) (SyncQueueItem, error)
	}
)

// LogStats is the rolling historical view over persisted attempt logs.
type LogStats struct {
	Total       int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	BySource    map[string]int `json:"by_source"`
	WindowStart time.Time      `json:"window_start"`
}

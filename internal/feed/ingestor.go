package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/dates"
)

const (
	// userAgent identifies us to feed hosts.
	userAgent = "availsync/1.0 (+https://github.com/stayloop/availsync)"

	// maxRedirects bounds how many 3xx hops a fetch will follow.
	maxRedirects = 5

	// maxBodyBytes caps how much feed body is read.
	maxBodyBytes = 5 << 20

	// horizonMonths is how far forward availability is derived.
	horizonMonths = 12
)

// ParseResult is the outcome of one feed fetch.
type ParseResult struct {
	Events  []Event
	Records []availsync.AvailabilityRecord
}

// Ingestor fetches iCal feeds and derives day-level availability.
type Ingestor struct {
	client *http.Client
	cache  *expirable.LRU[string, []Event]

	// now anchors the forward horizon; injectable so derivation is
	// deterministic under test.
	now func() time.Time
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithNow overrides the "today" anchor.
func WithNow(now func() time.Time) Option {
	return func(i *Ingestor) { i.now = now }
}

// WithCacheTTL overrides how long parsed events are reused for a URL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(i *Ingestor) {
		i.cache = expirable.NewLRU[string, []Event](256, nil, ttl)
	}
}

// NewIngestor creates an Ingestor with a bounded-redirect client and a short
// parse cache so a queued sync and a test fetch don't hammer the same host.
func NewIngestor(timeout time.Duration, opts ...Option) *Ingestor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ing := &Ingestor{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		cache: expirable.NewLRU[string, []Event](256, nil, 2*time.Minute),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(ing)
	}
	return ing
}

// Fetch downloads and parses a calendar feed, then derives one availability
// record per day for the forward horizon: available unless a booking
// interval covers the day.
func (i *Ingestor) Fetch(ctx context.Context, propertyID, rawURL string) (ParseResult, error) {
	if err := validateURL(rawURL); err != nil {
		return ParseResult{}, err
	}

	events, ok := i.cache.Get(rawURL)
	if !ok {
		var err error
		events, err = i.fetchEvents(ctx, rawURL)
		if err != nil {
			return ParseResult{}, err
		}
		i.cache.Add(rawURL, events)
	}

	return ParseResult{
		Events:  events,
		Records: i.deriveRecords(propertyID, events),
	}, nil
}

func (i *Ingestor) fetchEvents(ctx context.Context, rawURL string) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, availsync.NewSyncError(availsync.KindInvalidURL, "building request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/calendar, text/plain, */*")

	resp, err := i.client.Do(req)
	if err != nil {
		return nil, availsync.NewSyncError(availsync.KindTransport, "fetching feed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, availsync.NewSyncError(availsync.KindTransport,
			fmt.Sprintf("feed returned status %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, availsync.NewSyncError(availsync.KindTransport, "reading feed body", err)
	}

	text := string(body)
	if !strings.Contains(text, beginCalendar) || !strings.Contains(text, endCalendar) {
		return nil, availsync.NewSyncError(availsync.KindMalformedFeed,
			"response is missing calendar markers", nil)
	}

	return parseEvents(strings.NewReader(text))
}

// deriveRecords marks every day in [start, end) of each event unavailable,
// then emits one record per day out to the horizon.
func (i *Ingestor) deriveRecords(propertyID string, events []Event) []availsync.AvailabilityRecord {
	unavailable := make(map[string]struct{})
	for _, ev := range events {
		for _, day := range dates.DaysBetween(ev.Start, ev.End) {
			unavailable[day] = struct{}{}
		}
	}

	var (
		now     = i.now()
		today   = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		horizon = today.AddDate(0, horizonMonths, 0)
	)

	records := make([]availsync.AvailabilityRecord, 0, int(horizon.Sub(today).Hours()/24))
	for d := today; d.Before(horizon); d = d.AddDate(0, 0, 1) {
		day := dates.Day(d)
		_, booked := unavailable[day]
		records = append(records, availsync.AvailabilityRecord{
			PropertyID:  propertyID,
			Date:        day,
			IsAvailable: !booked,
			Source:      availsync.SourceFeed,
			Provenance:  availsync.ProvenanceFeed,
			LastUpdated: now,
		})
	}
	return records
}

func validateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return availsync.NewSyncError(availsync.KindInvalidURL, "unparsable url", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return availsync.NewSyncError(availsync.KindInvalidURL,
			fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return availsync.NewSyncError(availsync.KindInvalidURL, "missing host", nil)
	}
	return nil
}

package scrape

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/dates"
)

// rawDay is the loose shape strategies read out of vendor payloads. Vendors
// disagree on key names, so several aliases map onto each field.
type rawDay struct {
	Date      string
	Day       string
	Available *bool
	Bookable  *bool
	Blocked   *bool
	Price     string
	MinNights int
	MaxNights int
}

func (d rawDay) date() string {
	if d.Date != "" {
		return d.Date
	}
	return d.Day
}

// available resolves the aliases; ok is false when the payload carried no
// availability signal at all.
func (d rawDay) available() (value, ok bool) {
	switch {
	case d.Available != nil:
		return *d.Available, true
	case d.Bookable != nil:
		return *d.Bookable, true
	case d.Blocked != nil:
		return !*d.Blocked, true
	}
	return false, false
}

// toRecord validates a raw day into an AvailabilityRecord.
func (d rawDay) toRecord(propertyID string, now time.Time) (availsync.AvailabilityRecord, bool) {
	day, err := dates.Normalize(d.date())
	if err != nil {
		return availsync.AvailabilityRecord{}, false
	}
	avail, ok := d.available()
	if !ok {
		return availsync.AvailabilityRecord{}, false
	}

	rec := availsync.AvailabilityRecord{
		PropertyID:  propertyID,
		Date:        day,
		IsAvailable: avail,
		Source:      availsync.SourceScraping,
		Provenance:  availsync.ProvenanceScraping,
		LastUpdated: now,
	}
	if p := parsePrice(d.Price); p != nil {
		rec.Price = p
	}
	if d.MinNights > 0 {
		min := d.MinNights
		rec.MinStay = &min
	}
	if d.MaxNights > 0 {
		max := d.MaxNights
		rec.MaxStay = &max
	}
	return rec, true
}

func parsePrice(s string) *decimal.Decimal {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}

// parseCalendarPayload walks an arbitrary JSON document looking for objects
// that carry both a date and an availability signal. Vendor calendar APIs
// nest these under wildly different envelopes; walking is cheaper than
// modelling each one.
func parseCalendarPayload(body []byte, propertyID string, now time.Time) []availsync.AvailabilityRecord {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil
	}

	var out []availsync.AvailabilityRecord
	walkJSON(doc, func(obj map[string]any) {
		if rec, ok := dayFromObject(obj, propertyID, now); ok {
			out = append(out, rec)
		}
	})
	return out
}

// dayFromObject reads one JSON object's date/availability signal, tolerating
// the key spellings seen across vendors.
func dayFromObject(obj map[string]any, propertyID string, now time.Time) (availsync.AvailabilityRecord, bool) {
	d := rawDay{}

	for _, key := range []string{"date", "day", "calendarDate"} {
		if s, ok := obj[key].(string); ok && s != "" {
			d.Date = s
			break
		}
	}
	for _, key := range []string{"available", "availableForCheckin", "isAvailable"} {
		if b, ok := obj[key].(bool); ok {
			b := b
			d.Available = &b
			break
		}
	}
	if d.Available == nil {
		for _, key := range []string{"bookable", "blocked", "isBlocked"} {
			if b, ok := obj[key].(bool); ok {
				b := b
				if key == "bookable" {
					d.Bookable = &b
				} else {
					d.Blocked = &b
				}
				break
			}
		}
	}
	switch p := obj["price"].(type) {
	case string:
		d.Price = p
	case map[string]any:
		if s, ok := p["amount"].(string); ok {
			d.Price = s
		}
	}
	for _, key := range []string{"minNights", "min_nights", "minStay"} {
		if n, ok := obj[key].(float64); ok {
			d.MinNights = int(n)
			break
		}
	}
	for _, key := range []string{"maxNights", "max_nights", "maxStay"} {
		if n, ok := obj[key].(float64); ok {
			d.MaxNights = int(n)
			break
		}
	}

	return d.toRecord(propertyID, now)
}

func walkJSON(node any, visit func(map[string]any)) {
	switch v := node.(type) {
	case map[string]any:
		visit(v)
		for _, child := range v {
			walkJSON(child, visit)
		}
	case []any:
		for _, child := range v {
			walkJSON(child, visit)
		}
	}
}

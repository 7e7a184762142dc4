package scrape

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/microcosm-cc/bluemonday"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/dates"
)

// Inline calendar-state fragments, e.g. "2024-06-10":{"available":false}
// or {"date":"2024-06-10","available":true}.
var (
	keyedDayRe  = regexp.MustCompile(`"(\d{4}-\d{2}-\d{2})"\s*:\s*\{[^{}]*?"(?:available|bookable)"\s*:\s*(true|false)`)
	inlineDayRe = regexp.MustCompile(`"date"\s*:\s*"(\d{4}-\d{2}-\d{2})"[^{}]*?"(?:available|bookable)"\s*:\s*(true|false)`)
	// Plain-text booked ranges like "Booked: 2024-06-10 - 2024-06-13".
	bookedRangeRe = regexp.MustCompile(`(?i)(?:booked|unavailable|blocked)[:\s]+(\d{4}-\d{2}-\d{2})\s*(?:-|–|to)\s*(\d{4}-\d{2}-\d{2})`)
)

var stripPolicy = bluemonday.StrictPolicy()

// markupScan is the last-resort strategy: pull the whole document and
// pattern-scan it for calendar state. No structure assumed beyond "the dates
// are in there somewhere".
type markupScan struct {
	timeout time.Duration
}

func newMarkupScan(timeout time.Duration) *markupScan {
	return &markupScan{timeout: timeout}
}

func (s *markupScan) Name() string           { return "markup_scan" }
func (s *markupScan) Priority() int          { return 4 }
func (s *markupScan) Timeout() time.Duration { return s.timeout }

func (s *markupScan) Extract(ctx context.Context, sess *Session, prop PropertyContext) Outcome {
	if err := sess.Wait(ctx, prop.PageURL); err != nil {
		return Failed(fmt.Sprintf("rate limit wait: %s", err))
	}

	tabCtx, cancel := sess.NewTab(s.timeout)
	defer cancel()

	if err := sess.Prepare(tabCtx); err != nil {
		return Failed(fmt.Sprintf("session setup: %s", err))
	}

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(prop.PageURL),
		chromedp.Sleep(3*time.Second),
		chromedp.OuterHTML("html", &html),
	); err != nil {
		return Failed(fmt.Sprintf("fetching markup: %s", err))
	}

	now := time.Now().UTC()
	records := ScanMarkup(html, prop.PropertyID, now)
	return Success(records)
}

// ScanMarkup runs the pattern scan over raw markup. Split out so it can be
// exercised without a browser.
func ScanMarkup(html, propertyID string, now time.Time) []availsync.AvailabilityRecord {
	var (
		seen = make(map[string]struct{})
		out  []availsync.AvailabilityRecord
	)

	add := func(day string, available bool) {
		normalized, err := dates.Normalize(day)
		if err != nil {
			return
		}
		if _, dup := seen[normalized]; dup {
			return
		}
		seen[normalized] = struct{}{}
		out = append(out, availsync.AvailabilityRecord{
			PropertyID:  propertyID,
			Date:        normalized,
			IsAvailable: available,
			Source:      availsync.SourceScraping,
			Provenance:  availsync.ProvenanceScraping,
			LastUpdated: now,
		})
	}

	for _, re := range []*regexp.Regexp{keyedDayRe, inlineDayRe} {
		for _, m := range re.FindAllStringSubmatch(html, -1) {
			add(m[1], m[2] == "true")
		}
	}

	// Fall back to visible text when the JSON fragments came up dry: strip
	// the markup and look for announced booked ranges.
	if len(out) == 0 {
		text := stripPolicy.Sanitize(html)
		for _, m := range bookedRangeRe.FindAllStringSubmatch(text, -1) {
			start, errS := dates.Parse(m[1])
			end, errE := dates.Parse(m[2])
			if errS != nil || errE != nil {
				continue
			}
			for _, day := range dates.DaysBetween(start, end) {
				add(day, false)
			}
		}
	}

	return out
}

package syncer

import (
	"sort"
	"time"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/dates"
)

// Policy decides which source wins when scraping and feed disagree on a date.
type Policy string

const (
	PolicyScrapingPriority    Policy = "scraping_priority"
	PolicyFeedPriority        Policy = "feed_priority"
	PolicyAvailablePriority   Policy = "available_priority"
	PolicyUnavailablePriority Policy = "unavailable_priority"
)

// ValidPolicy reports whether p names a known consolidation policy.
func ValidPolicy(p Policy) bool {
	switch p {
	case PolicyScrapingPriority, PolicyFeedPriority, PolicyAvailablePriority, PolicyUnavailablePriority:
		return true
	}
	return false
}

// Consolidate merges per-source availability into a unified calendar. It is a
// pure function of its inputs: no I/O, deterministic regardless of input
// order. Dates present in only one source pass through with that source's
// provenance; dates present in both resolve per the policy, producing a
// ConflictEntry whenever the sources disagreed.
func Consolidate(scraping, feed []availsync.AvailabilityRecord, policy Policy, now time.Time) ([]availsync.AvailabilityRecord, []availsync.ConflictEntry) {
	scrapeByDate := byDate(scraping)
	feedByDate := byDate(feed)

	seen := map[string]struct{}{}
	var allDates []string
	for d := range scrapeByDate {
		seen[d] = struct{}{}
		allDates = append(allDates, d)
	}
	for d := range feedByDate {
		if _, ok := seen[d]; !ok {
			allDates = append(allDates, d)
		}
	}
	sort.Strings(allDates)

	var (
		unified   []availsync.AvailabilityRecord
		conflicts []availsync.ConflictEntry
	)
	for _, d := range allDates {
		s, hasScrape := scrapeByDate[d]
		f, hasFeed := feedByDate[d]

		switch {
		case hasScrape && !hasFeed:
			unified = append(unified, unifiedFrom(s, s.IsAvailable, availsync.ProvenanceScraping, now))
		case hasFeed && !hasScrape:
			unified = append(unified, unifiedFrom(f, f.IsAvailable, availsync.ProvenanceFeed, now))
		default:
			resolved := resolve(policy, s.IsAvailable, f.IsAvailable)
			provenance := availsync.ProvenanceBoth
			if s.IsAvailable != f.IsAvailable {
				provenance = availsync.ProvenanceConsolidated
				conflicts = append(conflicts, availsync.ConflictEntry{
					Date:          d,
					ScrapingValue: s.IsAvailable,
					FeedValue:     f.IsAvailable,
					ResolvedValue: resolved,
					Strategy:      string(policy),
				})
			}
			// The scraping record is the richer payload (price, stay rules),
			// so it carries through regardless of which value won.
			unified = append(unified, unifiedFrom(s, resolved, provenance, now))
		}
	}

	return unified, conflicts
}

func resolve(policy Policy, scraping, feed bool) bool {
	switch policy {
	case PolicyFeedPriority:
		return feed
	case PolicyAvailablePriority:
		return scraping || feed
	case PolicyUnavailablePriority:
		return scraping && feed
	default: // scraping_priority
		return scraping
	}
}

func unifiedFrom(base availsync.AvailabilityRecord, available bool, prov availsync.Provenance, now time.Time) availsync.AvailabilityRecord {
	return availsync.AvailabilityRecord{
		PropertyID:  base.PropertyID,
		Date:        base.Date,
		IsAvailable: available,
		Source:      availsync.SourceUnified,
		Provenance:  prov,
		Price:       base.Price,
		MinStay:     base.MinStay,
		MaxStay:     base.MaxStay,
		LastUpdated: now,
	}
}

// byDate keys records by normalized date. Duplicate dates within one source
// keep the first occurrence, matching the chain's dedup behavior.
func byDate(records []availsync.AvailabilityRecord) map[string]availsync.AvailabilityRecord {
	out := make(map[string]availsync.AvailabilityRecord, len(records))
	for _, r := range records {
		d, err := dates.Normalize(r.Date)
		if err != nil {
			continue
		}
		if _, ok := out[d]; !ok {
			r.Date = d
			out[d] = r
		}
	}
	return out
}

package scrape

import (
	"context"
	"time"
)

// PropertyContext is what a strategy needs to know about the listing it is
// extracting availability for.
type PropertyContext struct {
	PropertyID string
	Platform   string
	PageURL    string
}

// Strategy is one vendor-specific extraction routine. Strategies are tried in
// ascending Priority order and each runs under its own Timeout.
type Strategy interface {
	Name() string
	Priority() int
	Timeout() time.Duration
	Extract(ctx context.Context, sess *Session, prop PropertyContext) Outcome
}

// platformProfile holds the per-vendor selectors and URL patterns the
// strategies key off of. Vendor markup shifts constantly; these are the
// knobs that get touched when it does.
type platformProfile struct {
	// Substrings that identify calendar API responses worth intercepting.
	calendarAPIPatterns []string
	// Selector for a rendered calendar day cell.
	dayCellSelector string
	// Attribute on a day cell holding its date.
	dayDateAttr string
	// Attribute marking a day cell blocked.
	dayBlockedAttr string
	// Selector for the next-month control.
	nextMonthSelector string
	// Script-tag id/type hints for embedded bootstrap data.
	bootstrapHints []string
}

var platformProfiles = map[string]platformProfile{
	"airbnb": {
		calendarAPIPatterns: []string{"PdpAvailabilityCalendar", "/calendar/", "merchandising_pricing"},
		dayCellSelector:     `[data-testid="calendar-day"]`,
		dayDateAttr:         "data-testid-date",
		dayBlockedAttr:      "data-is-day-blocked",
		nextMonthSelector:   `[aria-label="Move forward to switch to the next month."]`,
		bootstrapHints:      []string{"data-deferred-state", "application/json"},
	},
	"vrbo": {
		calendarAPIPatterns: []string{"availability", "rateSummary"},
		dayCellSelector:     `td[data-day]`,
		dayDateAttr:         "data-day",
		dayBlockedAttr:      "aria-disabled",
		nextMonthSelector:   `button[data-testid="date-picker-next"]`,
		bootstrapHints:      []string{"__INITIAL_STATE__", "application/json"},
	},
	"booking": {
		calendarAPIPatterns: []string{"availability_calendar", "/dml/graphql"},
		dayCellSelector:     `td[data-date]`,
		dayDateAttr:         "data-date",
		dayBlockedAttr:      "data-disabled",
		nextMonthSelector:   `button[aria-label="Next month"]`,
		bootstrapHints:      []string{"window.booking.env", "application/json"},
	},
}

// profileFor returns the platform's profile, defaulting to airbnb's shape
// for unknown platforms so the chain still has something to try.
func profileFor(platform string) platformProfile {
	if p, ok := platformProfiles[platform]; ok {
		return p
	}
	return platformProfiles["airbnb"]
}

package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/stayloop/availsync/internal/availsync"
)

// structuredData reads the vendor's embedded bootstrap JSON straight out of
// the DOM. Cheapest strategy when the payload is present, so it runs first.
type structuredData struct {
	profile platformProfile
	timeout time.Duration
}

func newStructuredData(profile platformProfile, timeout time.Duration) *structuredData {
	return &structuredData{profile: profile, timeout: timeout}
}

func (s *structuredData) Name() string           { return "structured_data" }
func (s *structuredData) Priority() int          { return 1 }
func (s *structuredData) Timeout() time.Duration { return s.timeout }

func (s *structuredData) Extract(ctx context.Context, sess *Session, prop PropertyContext) Outcome {
	if err := sess.Wait(ctx, prop.PageURL); err != nil {
		return Failed(fmt.Sprintf("rate limit wait: %s", err))
	}

	tabCtx, cancel := sess.NewTab(s.timeout)
	defer cancel()

	if err := sess.Prepare(tabCtx); err != nil {
		return Failed(fmt.Sprintf("session setup: %s", err))
	}

	// Collect the text of every script tag matching the platform's
	// bootstrap hints. The payloads are JSON blobs with the calendar
	// buried somewhere inside.
	script := fmt.Sprintf(`((hints) => {
		const out = [];
		for (const s of document.querySelectorAll('script')) {
			const id = (s.id || '') + '|' + (s.type || '') + '|' + (s.textContent || '').slice(0, 200);
			if (!hints.some(h => id.includes(h))) continue;
			const text = s.textContent || '';
			if (text.includes('date') || text.includes('calendar')) out.push(text);
		}
		return out;
	})(%s);`, jsStringArray(s.profile.bootstrapHints))

	var blobs []string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(prop.PageURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(script, &blobs),
	)
	if err != nil {
		return Failed(fmt.Sprintf("reading bootstrap data: %s", err))
	}

	now := time.Now().UTC()
	var records []availsync.AvailabilityRecord
	for _, blob := range blobs {
		records = append(records, parseCalendarPayload([]byte(blob), prop.PropertyID, now)...)
	}

	return Success(records)
}

// jsStringArray renders a Go string slice as a JS array literal.
func jsStringArray(items []string) string {
	quoted := make([]string, 0, len(items))
	for _, item := range items {
		quoted = append(quoted, fmt.Sprintf("%q", item))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

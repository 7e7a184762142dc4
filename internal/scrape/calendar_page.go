package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/stayloop/availsync/internal/availsync"
	"github.com/stayloop/availsync/internal/dates"
)

// maxCalendarMonths bounds how far the paging strategy clicks ahead.
const maxCalendarMonths = 6

// calendarPage reads the rendered calendar widget cell by cell, clicking
// through months. Slow and brittle against re-renders, but it works when the
// vendor stops embedding calendar data anywhere readable.
type calendarPage struct {
	profile platformProfile
	timeout time.Duration
}

func newCalendarPage(profile platformProfile, timeout time.Duration) *calendarPage {
	return &calendarPage{profile: profile, timeout: timeout}
}

func (s *calendarPage) Name() string           { return "calendar_page" }
func (s *calendarPage) Priority() int          { return 3 }
func (s *calendarPage) Timeout() time.Duration { return s.timeout }

func (s *calendarPage) Extract(ctx context.Context, sess *Session, prop PropertyContext) Outcome {
	if err := sess.Wait(ctx, prop.PageURL); err != nil {
		return Failed(fmt.Sprintf("rate limit wait: %s", err))
	}

	tabCtx, cancel := sess.NewTab(s.timeout)
	defer cancel()

	if err := sess.Prepare(tabCtx); err != nil {
		return Failed(fmt.Sprintf("session setup: %s", err))
	}

	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(prop.PageURL),
		chromedp.Sleep(4*time.Second),
	); err != nil {
		return Failed(fmt.Sprintf("navigation: %s", err))
	}

	readCells := fmt.Sprintf(`(() => {
		const out = [];
		for (const cell of document.querySelectorAll(%q)) {
			const date = cell.getAttribute(%q) || (cell.dataset ? cell.dataset.date : '') || '';
			if (!date) continue;
			const blockedAttr = (cell.getAttribute(%q) || '').toLowerCase();
			const blocked = blockedAttr === 'true' || blockedAttr === 'disabled' ||
				cell.classList.contains('blocked') || cell.classList.contains('unavailable');
			out.push({ date: date, blocked: blocked });
		}
		return out;
	})();`, s.profile.dayCellSelector, s.profile.dayDateAttr, s.profile.dayBlockedAttr)

	clickNext := fmt.Sprintf(`(() => {
		const btn = document.querySelector(%q);
		if (!btn || btn.disabled) return false;
		btn.click();
		return true;
	})();`, s.profile.nextMonthSelector)

	var (
		now  = time.Now().UTC()
		seen = make(map[string]struct{})
		out  []availsync.AvailabilityRecord
	)
	for month := 0; month < maxCalendarMonths; month++ {
		var cells []struct {
			Date    string `json:"date"`
			Blocked bool   `json:"blocked"`
		}
		if err := chromedp.Run(tabCtx, chromedp.Evaluate(readCells, &cells)); err != nil {
			return Failed(fmt.Sprintf("reading calendar cells: %s", err))
		}

		for _, cell := range cells {
			day, err := dates.Normalize(cell.Date)
			if err != nil {
				continue
			}
			if _, dup := seen[day]; dup {
				continue
			}
			seen[day] = struct{}{}
			out = append(out, availsync.AvailabilityRecord{
				PropertyID:  prop.PropertyID,
				Date:        day,
				IsAvailable: !cell.Blocked,
				Source:      availsync.SourceScraping,
				Provenance:  availsync.ProvenanceScraping,
				LastUpdated: now,
			})
		}

		var moved bool
		if err := chromedp.Run(tabCtx,
			chromedp.Evaluate(clickNext, &moved),
			chromedp.Sleep(1200*time.Millisecond),
		); err != nil {
			break
		}
		if !moved {
			break
		}
	}

	return Success(out)
}

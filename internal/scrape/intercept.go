package scrape

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/stayloop/availsync/internal/availsync"
)

// apiIntercept navigates the listing page and captures the vendor's own
// calendar API responses off the wire. The page does the hard work of
// authenticating and shaping the request; we just read the answer.
type apiIntercept struct {
	profile platformProfile
	timeout time.Duration
}

func newAPIIntercept(profile platformProfile, timeout time.Duration) *apiIntercept {
	return &apiIntercept{profile: profile, timeout: timeout}
}

func (s *apiIntercept) Name() string           { return "api_intercept" }
func (s *apiIntercept) Priority() int          { return 2 }
func (s *apiIntercept) Timeout() time.Duration { return s.timeout }

func (s *apiIntercept) Extract(ctx context.Context, sess *Session, prop PropertyContext) Outcome {
	if err := sess.Wait(ctx, prop.PageURL); err != nil {
		return Failed(fmt.Sprintf("rate limit wait: %s", err))
	}

	tabCtx, cancel := sess.NewTab(s.timeout)
	defer cancel()

	if err := sess.Prepare(tabCtx); err != nil {
		return Failed(fmt.Sprintf("session setup: %s", err))
	}

	// Matching response bodies land on a bounded channel; the parse loop
	// below races them against the tab deadline.
	payloads := make(chan []byte, 8)
	chromedp.ListenTarget(tabCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok || !s.matches(resp.Response.URL) {
			return
		}
		reqID := resp.RequestID
		go func() {
			c := chromedp.FromContext(tabCtx)
			body, err := network.GetResponseBody(reqID).Do(cdp.WithExecutor(tabCtx, c.Target))
			if err != nil {
				return
			}
			select {
			case payloads <- body:
			default: // channel full, drop
			}
		}()
	})

	if err := chromedp.Run(tabCtx,
		network.Enable(),
		chromedp.Navigate(prop.PageURL),
	); err != nil {
		return Failed(fmt.Sprintf("navigation: %s", err))
	}

	// Nudge the page so lazy calendars issue their requests.
	_ = chromedp.Run(tabCtx,
		chromedp.Sleep(2*time.Second),
		chromedp.Evaluate(`window.scrollBy(0, Math.max(900, window.innerHeight));`, nil),
	)

	now := time.Now().UTC()
	var collected []availsync.AvailabilityRecord
	for {
		select {
		case body := <-payloads:
			records := parseCalendarPayload(body, prop.PropertyID, now)
			collected = append(collected, records...)
			// One good payload usually carries the whole calendar.
			if len(collected) >= 28 {
				return Success(collected)
			}
		case <-tabCtx.Done():
			if len(collected) > 0 {
				return Success(collected)
			}
			return Empty()
		}
	}
}

func (s *apiIntercept) matches(respURL string) bool {
	for _, pattern := range s.profile.calendarAPIPatterns {
		if strings.Contains(respURL, pattern) {
			return true
		}
	}
	return false
}

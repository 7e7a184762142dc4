package scrape

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// stealthScript runs before any page script on every new document and hides
// the usual automation tells.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
window.chrome = window.chrome || { runtime: {} };
`

// SessionConfig tunes the shared browser session.
type SessionConfig struct {
	Headless       bool
	UserAgent      string
	RatePerSecond  float64
	RateBurst      int
	ViewportWidth  int
	ViewportHeight int
}

// Session is one headless browser shared by the strategies of a sync run.
// Tabs are cheap; the browser is not, so strategies open tabs off the shared
// browser context and the anti-fingerprint setup runs once per session.
type Session struct {
	allocCtx      context.Context
	browserCtx    context.Context
	cancelAlloc   context.CancelFunc
	cancelBrowser context.CancelFunc

	cfg SessionConfig

	setupOnce sync.Once
	setupErr  error

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewSession launches the browser. Close must be called when the sync run is
// done with it.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 2
	}
	if cfg.ViewportWidth <= 0 || cfg.ViewportHeight <= 0 {
		cfg.ViewportWidth, cfg.ViewportHeight = 1366, 850
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Spin the browser up eagerly so a broken chrome install fails here
	// instead of inside the first strategy.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("error starting browser: %s", err)
	}

	return &Session{
		allocCtx:      allocCtx,
		browserCtx:    browserCtx,
		cancelAlloc:   cancelAlloc,
		cancelBrowser: cancelBrowser,
		cfg:           cfg,
		limiters:      make(map[string]*rate.Limiter),
	}, nil
}

// Close tears the browser down.
func (s *Session) Close() {
	s.cancelBrowser()
	s.cancelAlloc()
}

// NewTab opens a fresh tab with its own deadline. The returned cancel closes
// the tab.
func (s *Session) NewTab(timeout time.Duration) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(s.browserCtx)
	timed, cancelTimed := context.WithTimeout(tabCtx, timeout)
	return timed, func() {
		cancelTimed()
		cancelTab()
	}
}

// Prepare applies the anti-fingerprint setup: extra headers, viewport, and
// navigator shims. Idempotent; strategies may all call it, only the first
// does work.
func (s *Session) Prepare(tabCtx context.Context) error {
	s.setupOnce.Do(func() {
		s.setupErr = chromedp.Run(tabCtx,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{
				"Accept-Language": "en-US,en;q=0.9",
			}),
			chromedp.EmulateViewport(int64(s.cfg.ViewportWidth), int64(s.cfg.ViewportHeight)),
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
				return err
			}),
		)
	})
	return s.setupErr
}

// Wait blocks until the per-domain rate limiter admits a navigation to the
// given URL.
func (s *Session) Wait(ctx context.Context, pageURL string) error {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("missing host in %q", pageURL)
	}
	domain := strings.ToLower(u.Host)

	s.mu.Lock()
	limiter, ok := s.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst)
		s.limiters[domain] = limiter
	}
	s.mu.Unlock()

	return limiter.Wait(ctx)
}

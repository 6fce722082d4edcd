package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"ratewatch/internal/config"
	"ratewatch/internal/domain"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Rotated when no USER_AGENT is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// session owns one isolated browser context for exactly one scrape
// attempt. Sessions are never reused across scrapes; close releases the
// whole browser process.
type session struct {
	ctx     context.Context
	cancels []context.CancelFunc
}

// newSession launches an isolated browsing context per the scrape
// configuration. The caller must invoke close on every exit path.
func newSession(parent context.Context, cfg *config.Config) *session {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgents[rand.Intn(len(defaultUserAgents))]
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(ua),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	timedCtx, cancelTimeout := context.WithTimeout(taskCtx, cfg.ScrapeTimeout())

	return &session{
		ctx:     timedCtx,
		cancels: []context.CancelFunc{cancelAlloc, cancelTask, cancelTimeout},
	}
}

// close releases all browser resources. Leaked Chrome processes across
// repeated scrapes are the principal correctness risk of this subsystem,
// so close must run on every exit path.
func (s *session) close() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

// navigate opens the listing page and waits for the document body to
// render. A timeout, transport failure or non-success HTTP status here is
// the only fatal condition in the pipeline. The status has to be read off
// the CDP event stream: an HTTP error page still renders a body, so the
// navigation action alone reports nothing.
func (s *session) navigate(url, acceptLanguage string) error {
	var mu sync.Mutex
	var docStatus int64
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		e, ok := ev.(*network.EventResponseReceived)
		if !ok || e.Type != network.ResourceTypeDocument {
			return
		}
		mu.Lock()
		if docStatus == 0 {
			docStatus = e.Response.Status
		}
		mu.Unlock()
	})

	err := chromedp.Run(s.ctx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage}),
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNavigation, err)
	}

	mu.Lock()
	status := docStatus
	mu.Unlock()
	return navigationStatusError(status)
}

// navigationStatusError classifies the main document's HTTP status.
// Redirects are fine, the browser follows them; 4xx/5xx means the page is
// dead and nothing downstream may overwrite previously good data. Zero
// means no document response was observed, which only happens for
// non-network schemes the navigation action already vetted.
func navigationStatusError(status int64) error {
	if status >= 400 {
		return fmt.Errorf("%w: page returned HTTP %d", domain.ErrNavigation, status)
	}
	return nil
}

// outerHTML snapshots the rendered document.
func (s *session) outerHTML() (string, error) {
	var html string
	err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

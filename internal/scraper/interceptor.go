package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ratewatch/internal/domain"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// graceWindow is how long after page load the interceptor waits for the
// site's own availability call before falling back to a manual replay.
const graceWindow = 5 * time.Second

// interceptor captures the page's internal availability API responses.
// The hook only records request ids on the browser's event dispatch
// goroutine and hands body fetching off to separate goroutines, so it
// never stalls the page's request pipeline.
type interceptor struct {
	mu      sync.Mutex
	pending map[network.RequestID]struct{}
	bodyCh  chan []byte
}

func newInterceptor() *interceptor {
	return &interceptor{
		pending: make(map[network.RequestID]struct{}),
		bodyCh:  make(chan []byte, 4),
	}
}

// attach registers the response hook on the session. Must be called
// before navigation so early responses are not missed.
func (ic *interceptor) attach(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventResponseReceived:
			if !strings.Contains(e.Response.URL, calendarAPIPath) {
				return
			}
			ic.mu.Lock()
			ic.pending[e.RequestID] = struct{}{}
			ic.mu.Unlock()

		case *network.EventLoadingFinished:
			ic.mu.Lock()
			_, matched := ic.pending[e.RequestID]
			delete(ic.pending, e.RequestID)
			ic.mu.Unlock()
			if !matched {
				return
			}
			// The body is only retrievable once loading finished; fetch it
			// off the event goroutine.
			go ic.fetchBody(ctx, e.RequestID)
		}
	})
}

func (ic *interceptor) fetchBody(ctx context.Context, id network.RequestID) {
	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
	if err != nil {
		return
	}
	select {
	case ic.bodyCh <- body:
	default:
	}
}

// wait blocks up to grace for an intercepted calendar payload. A nil
// return means the hook never fired in time.
func (ic *interceptor) wait(ctx context.Context, grace time.Duration) []byte {
	select {
	case body := <-ic.bodyCh:
		return body
	case <-time.After(grace):
		return nil
	case <-ctx.Done():
		return nil
	}
}

// replayCalendar reconstructs the availability API call manually and
// issues it from within the page context so it carries the page's session
// cookies. Requires the listing's external identifier.
func replayCalendar(ctx context.Context, externalID string, months int) ([]byte, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: no external identifier", domain.ErrReplay)
	}

	u := fmt.Sprintf("/%s?hotel_id=%s&start_date=%s&months=%d",
		calendarAPIPath, externalID, time.Now().Format("2006-01-02"), months)
	script := fmt.Sprintf(
		`fetch(%q, {credentials: "include"}).then(r => { if (!r.ok) { throw new Error("status " + r.status); } return r.text(); })`,
		u)

	var body string
	err := chromedp.Run(ctx, chromedp.Evaluate(script, &body,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrReplay, err)
	}
	return []byte(body), nil
}

// Package scraper implements the price-extraction pipeline: one headless
// browser session per listing, a three-tier availability acquisition
// strategy (intercept, replay, DOM), and reconciliation of the result
// against the persistence sink.
package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ratewatch/internal/config"
	"ratewatch/internal/domain"
	"ratewatch/internal/listing"
	"ratewatch/internal/monitoring"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Sink is the persistence boundary the pipeline writes through. The
// pipeline owns ScrapeOutcome construction; the sink owns listing and
// price-point rows.
type Sink interface {
	UpsertListing(ctx context.Context, url string) (domain.Listing, bool, error)
	ApplyScrapeResult(ctx context.Context, listingID int64, snap *domain.ListingSnapshot) error
	MarkScrapeFailed(ctx context.Context, listingID int64, reason string) error
}

// Deduper tracks recently scraped URLs and per-URL retry counters.
// Satisfied by storage.RedisStore.
type Deduper interface {
	IsRecentlyScraped(ctx context.Context, url string) (bool, error)
	MarkScraped(ctx context.Context, url string, ttl time.Duration) error
	IncrementRetryCount(ctx context.Context, url string) (int64, error)
	ClearRetryCount(ctx context.Context, url string) error
}

// Scraper manages the worker pool and scraping tasks. Each task owns one
// browser session exclusively; tasks for different listings may run
// concurrently with no ordering guarantee.
type Scraper struct {
	config    *config.Config
	sink      Sink
	dedupe    Deduper
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	limiter   *rate.Limiter
	taskQueue chan domain.ScrapeTask
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

func NewScraper(cfg *config.Config, sink Sink, dedupe Deduper, m *monitoring.Metrics, l *zap.Logger) *Scraper {
	return &Scraper{
		config:    cfg,
		sink:      sink,
		dedupe:    dedupe,
		metrics:   m,
		logger:    l,
		limiter:   rate.NewLimiter(rate.Every(time.Duration(cfg.NavRateEveryMs)*time.Millisecond), 1),
		taskQueue: make(chan domain.ScrapeTask, cfg.ScrapeWorkers*2),
		stopChan:  make(chan struct{}),
	}
}

func (s *Scraper) Start() {
	for i := 0; i < s.config.ScrapeWorkers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
}

func (s *Scraper) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

// Submit enqueues a scrape task. Fire-and-forget: the caller gets no
// handle to await or cancel it.
func (s *Scraper) Submit(task domain.ScrapeTask) {
	select {
	case <-s.stopChan:
	case s.taskQueue <- task:
	}
}

func (s *Scraper) worker() {
	defer s.wg.Done()
	for {
		select {
		case task := <-s.taskQueue:
			s.processTask(task)
		case <-s.stopChan:
			return
		}
	}
}

func (s *Scraper) processTask(task domain.ScrapeTask) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ScrapeTimeout()+10*time.Second)
	defer cancel()

	if !task.Force {
		recent, err := s.dedupe.IsRecentlyScraped(ctx, task.URL)
		if err != nil {
			s.logger.Error("failed to check redis for scraped status", zap.String("url", task.URL), zap.Error(err))
		}
		if recent {
			s.logger.Info("skipping recently scraped listing", zap.String("url", task.URL))
			return
		}
	}

	outcome := s.scrape(ctx, task.URL)
	s.metrics.IncScrapesTotal()
	s.completeTask(ctx, task, outcome)
}

// completeTask applies a background scrape outcome. A rejected write gets
// the same treatment as a failed scrape: retry with backoff, then a
// visible error marker once retries are exhausted. The sink's transaction
// guarantees prior rows survive either way.
func (s *Scraper) completeTask(ctx context.Context, task domain.ScrapeTask, outcome domain.ScrapeOutcome) {
	if !outcome.Success {
		s.handleFailure(ctx, task, outcome.Message)
		return
	}

	if err := s.sink.ApplyScrapeResult(ctx, task.ListingID, outcome.Snapshot); err != nil {
		s.logger.Error("error saving scrape result", zap.String("url", task.URL), zap.Error(err))
		s.metrics.IncErrorsTotal("db_save_failed")
		s.handleFailure(ctx, task, "persisting scrape result failed, prior data preserved")
		return
	}

	s.logger.Info("successfully scraped and saved",
		zap.String("url", task.URL),
		zap.Int("days", len(outcome.Snapshot.Days)))
	ttl := time.Duration(s.config.DeduplicationHours) * time.Hour
	s.dedupe.MarkScraped(ctx, task.URL, ttl)
	s.dedupe.ClearRetryCount(ctx, task.URL)
}

func (s *Scraper) handleFailure(ctx context.Context, task domain.ScrapeTask, reason string) {
	s.logger.Warn("failed to scrape", zap.String("url", task.URL), zap.String("reason", reason))
	s.metrics.IncErrorsTotal("scrape_failed")

	retryCount, err := s.dedupe.IncrementRetryCount(ctx, task.URL)
	if err != nil {
		s.logger.Error("failed to increment retry count", zap.String("url", task.URL), zap.Error(err))
		return
	}

	if retryCount >= int64(s.config.MaxRetries) {
		s.logger.Error("max retries reached, marking listing as failed", zap.String("url", task.URL))
		if err := s.sink.MarkScrapeFailed(ctx, task.ListingID, reason); err != nil {
			s.logger.Error("failed to mark listing as failed", zap.String("url", task.URL), zap.Error(err))
		}
		return
	}

	// Linear backoff before the task re-enters the queue.
	task.Attempt++
	delay := time.Duration(task.Attempt) * 5 * time.Second
	s.logger.Info("listing will be retried",
		zap.String("url", task.URL), zap.Int64("attempt", retryCount), zap.Duration("delay", delay))
	time.AfterFunc(delay, func() { s.Submit(task) })
}

// Rescrape runs one synchronous scrape attempt for an already-registered
// listing and persists the result before returning.
func (s *Scraper) Rescrape(ctx context.Context, l domain.Listing) domain.ScrapeOutcome {
	outcome := s.scrape(ctx, l.URL)
	s.metrics.IncScrapesTotal()
	return s.reconcile(ctx, l.ID, l.URL, outcome)
}

// reconcile applies a scrape outcome to the sink. A failed attempt marks
// the listing with a visible error indicator but leaves prior data
// untouched; a rejected write turns the outcome into a failure while the
// sink's transaction guarantees the prior price set survives.
func (s *Scraper) reconcile(ctx context.Context, listingID int64, url string, outcome domain.ScrapeOutcome) domain.ScrapeOutcome {
	if !outcome.Success {
		s.metrics.IncErrorsTotal("scrape_failed")
		if err := s.sink.MarkScrapeFailed(ctx, listingID, outcome.Message); err != nil {
			s.logger.Error("failed to mark listing as failed", zap.String("url", url), zap.Error(err))
		}
		return outcome
	}

	if err := s.sink.ApplyScrapeResult(ctx, listingID, outcome.Snapshot); err != nil {
		s.logger.Error("error saving scrape result", zap.String("url", url), zap.Error(err))
		s.metrics.IncErrorsTotal("db_save_failed")
		return domain.ScrapeOutcome{
			Success:  false,
			Message:  "persisting scrape result failed, prior data preserved",
			Snapshot: outcome.Snapshot,
		}
	}

	ttl := time.Duration(s.config.DeduplicationHours) * time.Hour
	s.dedupe.MarkScraped(ctx, url, ttl)
	return outcome
}

// scrape performs one full pipeline run for a single listing URL. Only
// navigation failures are fatal; every other condition degrades to an
// emptier-than-ideal but still valid snapshot.
func (s *Scraper) scrape(ctx context.Context, url string) domain.ScrapeOutcome {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.ScrapeOutcome{Success: false, Message: err.Error()}
	}

	sess := newSession(ctx, s.config)
	defer sess.close()

	ic := newInterceptor()
	ic.attach(sess.ctx)

	if err := sess.navigate(url, s.config.AcceptLanguage); err != nil {
		return domain.ScrapeOutcome{Success: false, Message: err.Error()}
	}

	snap := domain.ListingSnapshot{CapturedAt: time.Now()}
	html, err := sess.outerHTML()
	if err != nil {
		s.logger.Warn("could not snapshot page markup", zap.String("url", url), zap.Error(err))
	} else if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(html)); derr == nil {
		snap = extractMetadata(doc, s.config.MaxAmenities)
		snap.CapturedAt = time.Now()
	}
	if snap.Name == "" {
		s.logger.Warn("no hotel name found on page", zap.String("url", url))
	}
	snap.ExternalID = listing.ExtractIdentifier(url)

	days, currency, acquiredBy := s.collectCalendar(sess.ctx, ic, replayCalendar, sess.outerHTML, snap.ExternalID)
	snap.Days = days
	if currency == "" {
		currency = s.config.FallbackCurrency
	}
	snap.Currency = currency
	s.metrics.IncTierTotal(acquiredBy.String())

	return domain.ScrapeOutcome{
		Success:  true,
		Message:  fmt.Sprintf("scraped %d calendar days via %s", len(days), acquiredBy),
		Snapshot: &snap,
	}
}

// bodySource yields availability payloads captured off the wire, nil once
// the grace window closes with nothing pending. Satisfied by interceptor.
type bodySource interface {
	wait(ctx context.Context, grace time.Duration) []byte
}

// replayFunc reissues the availability API call from page context.
type replayFunc func(ctx context.Context, externalID string, months int) ([]byte, error)

// htmlFunc snapshots the rendered document markup.
type htmlFunc func() (string, error)

// collectCalendar walks the acquisition tiers in priority order:
// intercepted response, manual replay, DOM scraping. A tier is consulted
// only after every prior tier produced nothing usable; an empty result is
// a valid outcome meaning no availability data could be obtained.
func (s *Scraper) collectCalendar(ctx context.Context, captured bodySource, replay replayFunc, markup htmlFunc, externalID string) ([]domain.CalendarDay, string, tier) {
	// A matching response with an unusable body does not end the grace
	// window; keep draining captures until it expires.
	deadline := time.Now().Add(graceWindow)
	for remaining := graceWindow; remaining > 0; remaining = time.Until(deadline) {
		body := captured.wait(ctx, remaining)
		if body == nil {
			break
		}
		if days, currency := parseCalendarPayload(body); len(days) > 0 {
			return days, currency, tierIntercept
		}
	}

	body, err := replay(ctx, externalID, s.config.ScrapeMonths)
	if err != nil {
		s.logger.Debug("availability replay failed", zap.Error(err))
	} else if days, currency := parseCalendarPayload(body); len(days) > 0 {
		return days, currency, tierReplay
	}

	html, err := markup()
	if err != nil {
		return nil, "", tierNone
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, "", tierNone
	}
	if days, currency := parseCalendarDOM(doc); len(days) > 0 {
		return days, currency, tierDOM
	}
	return nil, "", tierNone
}

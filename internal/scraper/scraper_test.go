package scraper

import (
	"context"
	"sync"
	"testing"
	"time"

	"ratewatch/internal/config"
	"ratewatch/internal/domain"
	"ratewatch/internal/monitoring"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Prometheus collectors register against the default registry, so the
// test binary builds them exactly once.
var testMetrics = monitoring.NewMetrics()

// fakeSink mirrors the persistence adapter's reconciliation contract in
// memory: full price-set replacement on success, status-only updates on
// failure.
type fakeSink struct {
	mu       sync.Mutex
	listings map[int64]*domain.Listing
	prices   map[int64][]domain.PricePoint
	failNext bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		listings: make(map[int64]*domain.Listing),
		prices:   make(map[int64][]domain.PricePoint),
	}
}

func (f *fakeSink) UpsertListing(_ context.Context, url string) (domain.Listing, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listings {
		if l.URL == url {
			return *l, false, nil
		}
	}
	id := int64(len(f.listings) + 1)
	l := &domain.Listing{ID: id, URL: url, Status: domain.StatusPending}
	f.listings[id] = l
	return *l, true, nil
}

func (f *fakeSink) ApplyScrapeResult(_ context.Context, listingID int64, snap *domain.ListingSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return domain.ErrPersistence
	}
	l, ok := f.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	if snap.Name != "" {
		l.Name = snap.Name
	}
	if snap.Location != "" {
		l.Location = snap.Location
	}
	if snap.Currency != "" {
		l.Currency = snap.Currency
	}
	if snap.Rating != nil {
		l.Rating = snap.Rating
	}
	l.Status = domain.StatusOK
	l.FailReason = ""

	rows := make([]domain.PricePoint, 0, len(snap.Days))
	for _, d := range snap.Days {
		rows = append(rows, domain.PricePoint{
			ListingID:  listingID,
			Checkin:    d.Checkin,
			Price:      d.Price,
			Available:  d.Available,
			MinStay:    d.MinStay,
			CapturedAt: snap.CapturedAt,
		})
	}
	f.prices[listingID] = rows // delete-then-insert
	return nil
}

func (f *fakeSink) MarkScrapeFailed(_ context.Context, listingID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[listingID]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = domain.StatusError
	l.FailReason = reason
	return nil
}

// fakeDeduper stands in for the redis adapter. retries, when set, is the
// counter value IncrementRetryCount reports back.
type fakeDeduper struct{ retries int64 }

func (fakeDeduper) IsRecentlyScraped(context.Context, string) (bool, error) { return false, nil }
func (fakeDeduper) MarkScraped(context.Context, string, time.Duration) error {
	return nil
}
func (f fakeDeduper) IncrementRetryCount(context.Context, string) (int64, error) {
	if f.retries != 0 {
		return f.retries, nil
	}
	return 1, nil
}
func (fakeDeduper) ClearRetryCount(context.Context, string) error { return nil }

func testConfig() *config.Config {
	return &config.Config{
		ScrapeWorkers:      1,
		ScrapeTimeoutMs:    30000,
		ScrapeMonths:       2,
		MaxRetries:         2,
		DeduplicationHours: 1,
		FallbackCurrency:   "EUR",
		MaxAmenities:       10,
		NavRateEveryMs:     1,
	}
}

func testScraper(sink Sink) *Scraper {
	return NewScraper(testConfig(), sink, fakeDeduper{}, testMetrics, zap.NewNop())
}

func successOutcome(days []domain.CalendarDay, name string) domain.ScrapeOutcome {
	return domain.ScrapeOutcome{
		Success: true,
		Message: "ok",
		Snapshot: &domain.ListingSnapshot{
			Name:       name,
			Currency:   "EUR",
			Days:       days,
			CapturedAt: time.Now(),
		},
	}
}

// A later capture for the same date supersedes the earlier one; reading
// back yields exactly one row per distinct check-in date.
func TestReconcileSupersedesPriorPrices(t *testing.T) {
	sink := newFakeSink()
	s := testScraper(sink)
	l, _, err := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/1-a.html")
	require.NoError(t, err)

	first := successOutcome([]domain.CalendarDay{
		{Checkin: "2024-01-01", Price: 150, Available: true},
		{Checkin: "2024-01-02", Price: 1200, Available: false},
	}, "Grand Plaza")
	out := s.reconcile(context.Background(), l.ID, l.URL, first)
	require.True(t, out.Success)

	second := successOutcome([]domain.CalendarDay{
		{Checkin: "2024-01-02", Price: 999, Available: true},
		{Checkin: "2024-01-03", Price: 80, Available: true},
	}, "Grand Plaza")
	out = s.reconcile(context.Background(), l.ID, l.URL, second)
	require.True(t, out.Success)

	rows := sink.prices[l.ID]
	require.Len(t, rows, 2)
	seen := map[string]domain.PricePoint{}
	for _, r := range rows {
		_, dup := seen[r.Checkin]
		require.False(t, dup, "duplicate row for %s", r.Checkin)
		seen[r.Checkin] = r
	}
	assert.NotContains(t, seen, "2024-01-01")
	assert.Equal(t, 999.0, seen["2024-01-02"].Price)
	assert.True(t, seen["2024-01-02"].Available)
	assert.Equal(t, 80.0, seen["2024-01-03"].Price)
}

// A failed scrape marks the listing but never removes previously stored
// name, ratings or price rows.
func TestReconcileFailurePreservesPriorData(t *testing.T) {
	sink := newFakeSink()
	s := testScraper(sink)
	l, _, _ := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/2-b.html")

	good := successOutcome([]domain.CalendarDay{{Checkin: "2024-01-01", Price: 150, Available: true}}, "Hotel Sol")
	require.True(t, s.reconcile(context.Background(), l.ID, l.URL, good).Success)

	failed := domain.ScrapeOutcome{Success: false, Message: "navigation failed: timeout"}
	out := s.reconcile(context.Background(), l.ID, l.URL, failed)
	assert.False(t, out.Success)

	assert.Equal(t, domain.StatusError, sink.listings[l.ID].Status)
	assert.Equal(t, "navigation failed: timeout", sink.listings[l.ID].FailReason)
	assert.Equal(t, "Hotel Sol", sink.listings[l.ID].Name)
	require.Len(t, sink.prices[l.ID], 1)
	assert.Equal(t, 150.0, sink.prices[l.ID][0].Price)
}

// A rejected write surfaces as a failed outcome while prior rows survive.
func TestReconcilePersistenceErrorPreservesPriorData(t *testing.T) {
	sink := newFakeSink()
	s := testScraper(sink)
	l, _, _ := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/3-c.html")

	good := successOutcome([]domain.CalendarDay{{Checkin: "2024-01-01", Price: 150, Available: true}}, "Hof")
	require.True(t, s.reconcile(context.Background(), l.ID, l.URL, good).Success)

	sink.failNext = true
	next := successOutcome([]domain.CalendarDay{{Checkin: "2024-01-05", Price: 60, Available: true}}, "Hof")
	out := s.reconcile(context.Background(), l.ID, l.URL, next)

	assert.False(t, out.Success)
	require.Len(t, sink.prices[l.ID], 1)
	assert.Equal(t, "2024-01-01", sink.prices[l.ID][0].Checkin)
}

// Absence of price data is not a scrape failure.
func TestReconcileEmptyCalendarIsSuccess(t *testing.T) {
	sink := newFakeSink()
	s := testScraper(sink)
	l, _, _ := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/4-d.html")

	out := s.reconcile(context.Background(), l.ID, l.URL, successOutcome(nil, "Quiet Inn"))
	assert.True(t, out.Success)
	assert.Equal(t, domain.StatusOK, sink.listings[l.ID].Status)
	assert.Empty(t, sink.prices[l.ID])
}

// A background write that keeps getting rejected exhausts the retry
// budget and ends in a visible error marker, with the prior price rows
// intact.
func TestCompleteTaskPersistenceErrorMarksListingFailed(t *testing.T) {
	sink := newFakeSink()
	s := NewScraper(testConfig(), sink, fakeDeduper{retries: 2}, testMetrics, zap.NewNop())
	l, _, _ := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/7-g.html")

	good := successOutcome([]domain.CalendarDay{{Checkin: "2024-01-01", Price: 150, Available: true}}, "Hof")
	require.True(t, s.reconcile(context.Background(), l.ID, l.URL, good).Success)

	sink.failNext = true
	task := domain.ScrapeTask{ListingID: l.ID, URL: l.URL}
	next := successOutcome([]domain.CalendarDay{{Checkin: "2024-01-05", Price: 60, Available: true}}, "Hof")
	s.completeTask(context.Background(), task, next)

	assert.Equal(t, domain.StatusError, sink.listings[l.ID].Status)
	assert.NotEmpty(t, sink.listings[l.ID].FailReason)
	require.Len(t, sink.prices[l.ID], 1)
	assert.Equal(t, "2024-01-01", sink.prices[l.ID][0].Checkin)
}

// fakeBodySource replays a fixed sequence of captured payloads, then
// reports the grace window as expired.
type fakeBodySource struct {
	bodies [][]byte
	calls  int
}

func (f *fakeBodySource) wait(context.Context, time.Duration) []byte {
	if f.calls >= len(f.bodies) {
		return nil
	}
	b := f.bodies[f.calls]
	f.calls++
	return b
}

// Each acquisition tier is consulted only after every prior tier produced
// nothing usable, and having no tier succeed is still a valid (empty)
// result.
func TestCollectCalendarTierPrecedence(t *testing.T) {
	payload := []byte(`{"data":{"availabilityCalendar":{"days":[
		{"checkin":"2024-03-01","avgPriceFormatted":"€150","available":true}]}}}`)
	calendarHTML := `<table><tr>
		<td data-date="2024-03-01" class="bui-calendar__date"><span class="bui-calendar__price">€99</span></td>
	</tr></table>`

	tests := []struct {
		name        string
		captured    [][]byte
		replayBody  []byte
		replayErr   error
		html        string
		wantTier    tier
		wantPrice   float64
		wantReplays int
	}{
		{
			name:      "captured payload wins without consulting later tiers",
			captured:  [][]byte{payload},
			html:      calendarHTML,
			wantTier:  tierIntercept,
			wantPrice: 150,
		},
		{
			name:      "unusable capture drains until a usable one arrives",
			captured:  [][]byte{[]byte("<!doctype html>"), payload},
			wantTier:  tierIntercept,
			wantPrice: 150,
		},
		{
			name:        "replay answers when nothing was captured",
			replayBody:  payload,
			wantTier:    tierReplay,
			wantPrice:   150,
			wantReplays: 1,
		},
		{
			name:        "rendered markup answers when replay fails",
			replayErr:   domain.ErrReplay,
			html:        calendarHTML,
			wantTier:    tierDOM,
			wantPrice:   99,
			wantReplays: 1,
		},
		{
			name:        "rendered markup answers when replay body is unusable",
			replayBody:  []byte(`{"data":{}}`),
			html:        calendarHTML,
			wantTier:    tierDOM,
			wantPrice:   99,
			wantReplays: 1,
		},
		{
			name:        "no tier succeeding yields an empty result",
			replayErr:   domain.ErrReplay,
			html:        `<html><body><p>nothing here</p></body></html>`,
			wantTier:    tierNone,
			wantReplays: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScraper(newFakeSink())
			replays := 0
			replay := func(context.Context, string, int) ([]byte, error) {
				replays++
				return tt.replayBody, tt.replayErr
			}
			markup := func() (string, error) { return tt.html, nil }

			days, _, got := s.collectCalendar(context.Background(),
				&fakeBodySource{bodies: tt.captured}, replay, markup, "42")

			assert.Equal(t, tt.wantTier, got)
			assert.Equal(t, tt.wantReplays, replays)
			if tt.wantTier == tierNone {
				assert.Empty(t, days)
			} else {
				require.Len(t, days, 1)
				assert.Equal(t, tt.wantPrice, days[0].Price)
			}
		})
	}
}

// Concurrent scrapes of different listings never interfere with each
// other's price rows.
func TestReconcileConcurrentListingsIsolated(t *testing.T) {
	sink := newFakeSink()
	s := testScraper(sink)
	a, _, _ := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/5-e.html")
	b, _, _ := sink.UpsertListing(context.Background(), "https://www.booking.com/hotel/nl/6-f.html")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.reconcile(context.Background(), a.ID, a.URL,
				successOutcome([]domain.CalendarDay{{Checkin: "2024-01-01", Price: 100, Available: true}}, "A"))
		}()
		go func() {
			defer wg.Done()
			s.reconcile(context.Background(), b.ID, b.URL,
				successOutcome([]domain.CalendarDay{{Checkin: "2024-01-01", Price: 200, Available: true}}, "B"))
		}()
	}
	wg.Wait()

	require.Len(t, sink.prices[a.ID], 1)
	require.Len(t, sink.prices[b.ID], 1)
	assert.Equal(t, 100.0, sink.prices[a.ID][0].Price)
	assert.Equal(t, 200.0, sink.prices[b.ID][0].Price)
}

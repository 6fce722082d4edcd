package domain

import "time"

// Listing status values as stored in the listings table.
const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusError   = "error"
)

// Listing is a monitored competitor property identified by its source URL.
// A listing is created in "pending" state with only the URL populated;
// descriptive fields are filled in asynchronously once a scrape completes.
type Listing struct {
	ID             int64      `json:"id"`
	URL            string     `json:"url"`
	ExternalID     string     `json:"external_id,omitempty"`
	Name           string     `json:"name,omitempty"`
	Location       string     `json:"location,omitempty"`
	Currency       string     `json:"currency,omitempty"`
	Rating         *float64   `json:"rating,omitempty"`
	LocationRating *float64   `json:"location_rating,omitempty"`
	Amenities      []string   `json:"amenities,omitempty"`
	Status         string     `json:"status"`
	FailReason     string     `json:"fail_reason,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastScrapedAt  *time.Time `json:"last_scraped_at,omitempty"`
}

// PricePoint is one nightly price for a listing. At most one row exists
// per (listing, check-in date); the whole set is replaced on every
// successful scrape.
type PricePoint struct {
	ListingID  int64     `json:"listing_id"`
	Checkin    string    `json:"checkin"` // YYYY-MM-DD
	Price      float64   `json:"price"`
	Available  bool      `json:"available"`
	MinStay    int       `json:"min_stay,omitempty"`
	CapturedAt time.Time `json:"captured_at"`
}

// CalendarDay is a single day entry produced by the availability
// interceptor, already normalized: canonical date, parsed price.
type CalendarDay struct {
	Checkin   string  `json:"checkin"` // YYYY-MM-DD
	Price     float64 `json:"price"`
	Available bool    `json:"available"`
	MinStay   int     `json:"min_stay,omitempty"`
}

// ListingSnapshot carries everything a single scrape attempt managed to
// extract. Fields left at their zero value were not found on the page.
// An empty Days slice means no availability data could be obtained,
// which is a valid outcome, not a failure.
type ListingSnapshot struct {
	ExternalID     string
	Name           string
	Location       string
	Currency       string
	Rating         *float64
	LocationRating *float64
	Amenities      []string
	Days           []CalendarDay
	CapturedAt     time.Time
}

// ScrapeOutcome is the only channel through which a scrape attempt
// reports upward. It is never persisted.
type ScrapeOutcome struct {
	Success  bool             `json:"success"`
	Message  string           `json:"message"`
	Snapshot *ListingSnapshot `json:"-"`
}

// ScrapeTask is a unit of work for the scraper worker pool.
type ScrapeTask struct {
	ListingID int64
	URL       string
	Force     bool // bypass the recently-scraped check
	Attempt   int
}

// HistoricalRecord is an imported row of the operator's own pricing
// history, kept for comparison against scraped competitor rates.
type HistoricalRecord struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	PriceApplied float64 `json:"price_applied"`
	Reservations int     `json:"reservations"`
}

// RegisterRequest is the payload for the listing registration endpoint.
type RegisterRequest struct {
	URL string `json:"url"`
}

// RegisterResponse acknowledges a registration. The scrape itself runs
// out-of-band; callers never block on it.
type RegisterResponse struct {
	Accepted bool     `json:"accepted"`
	Reason   string   `json:"reason,omitempty"`
	Listing  *Listing `json:"listing,omitempty"`
}

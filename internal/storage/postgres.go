package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ratewatch/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore handles interactions with the PostgreSQL database. It is
// the sole writer of scrape-derived listing fields and price rows.
type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *PostgresStore) Close() {
	s.db.Close()
}

// EnsureSchema creates the tables if they do not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS listings (
			id              BIGSERIAL PRIMARY KEY,
			url             TEXT UNIQUE NOT NULL,
			external_id     TEXT NOT NULL DEFAULT '',
			name            TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			currency        TEXT NOT NULL DEFAULT '',
			rating          DOUBLE PRECISION,
			location_rating DOUBLE PRECISION,
			amenities       TEXT[] NOT NULL DEFAULT '{}',
			status          TEXT NOT NULL DEFAULT 'pending',
			fail_reason     TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_scraped_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS price_points (
			listing_id  BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			checkin     DATE NOT NULL,
			price       NUMERIC NOT NULL,
			available   BOOLEAN NOT NULL,
			min_stay    INT NOT NULL DEFAULT 0,
			captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (listing_id, checkin)
		);
		CREATE TABLE IF NOT EXISTS historical_records (
			listing_id    BIGINT NOT NULL REFERENCES listings(id) ON DELETE CASCADE,
			date          DATE NOT NULL,
			price_applied NUMERIC NOT NULL,
			reservations  INT NOT NULL DEFAULT 0,
			PRIMARY KEY (listing_id, date)
		);
	`)
	return err
}

// UpsertListing looks a listing up by URL, creating a bare pending record
// when absent. The second return reports whether the record is new. The
// scrape itself runs out-of-band afterwards; this call never blocks on it.
func (s *PostgresStore) UpsertListing(ctx context.Context, url string) (domain.Listing, bool, error) {
	var l domain.Listing
	err := s.db.QueryRow(ctx,
		`INSERT INTO listings (url) VALUES ($1)
		 ON CONFLICT (url) DO NOTHING
		 RETURNING id, url, status, created_at, updated_at`,
		url,
	).Scan(&l.ID, &l.URL, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if err == nil {
		return l, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, false, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	l, err = s.getListingBy(ctx, "url = $1", url)
	if err != nil {
		return domain.Listing{}, false, err
	}
	return l, false, nil
}

// ApplyScrapeResult overwrites the listing's descriptive fields and
// replaces its whole price-point set with the scraped one inside a single
// transaction. A rollback leaves prior rows untouched, so concurrent
// readers never observe a half-replaced calendar.
func (s *PostgresStore) ApplyScrapeResult(ctx context.Context, listingID int64, snap *domain.ListingSnapshot) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	// Fields the extractor could not read keep their previous value; a
	// partial extraction must never blank out known-good data.
	_, err = tx.Exec(ctx,
		`UPDATE listings SET
			external_id     = COALESCE(NULLIF($2, ''), external_id),
			name            = COALESCE(NULLIF($3, ''), name),
			location        = COALESCE(NULLIF($4, ''), location),
			currency        = COALESCE(NULLIF($5, ''), currency),
			rating          = COALESCE($6, rating),
			location_rating = COALESCE($7, location_rating),
			amenities       = CASE WHEN cardinality($8::text[]) > 0 THEN $8::text[] ELSE amenities END,
			status          = 'ok',
			fail_reason     = '',
			updated_at      = NOW(),
			last_scraped_at = $9
		 WHERE id = $1`,
		listingID, snap.ExternalID, snap.Name, snap.Location, snap.Currency,
		snap.Rating, snap.LocationRating, snap.Amenities, snap.CapturedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM price_points WHERE listing_id = $1`, listingID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	if len(snap.Days) > 0 {
		batch := &pgx.Batch{}
		for _, d := range snap.Days {
			batch.Queue(
				`INSERT INTO price_points (listing_id, checkin, price, available, min_stay, captured_at)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (listing_id, checkin) DO UPDATE SET
				   price = EXCLUDED.price, available = EXCLUDED.available,
				   min_stay = EXCLUDED.min_stay, captured_at = EXCLUDED.captured_at`,
				listingID, d.Checkin, d.Price, d.Available, d.MinStay, snap.CapturedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

// MarkScrapeFailed flags the listing with a visible error indicator.
// Descriptive fields and prior price rows stay untouched: a failed
// re-scrape never destroys previously good data.
func (s *PostgresStore) MarkScrapeFailed(ctx context.Context, listingID int64, reason string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE listings SET status = 'error', fail_reason = $2, updated_at = NOW() WHERE id = $1`,
		listingID, reason)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (s *PostgresStore) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	return s.getListingBy(ctx, "id = $1", id)
}

func (s *PostgresStore) getListingBy(ctx context.Context, cond string, arg any) (domain.Listing, error) {
	var l domain.Listing
	err := s.db.QueryRow(ctx,
		`SELECT id, url, external_id, name, location, currency, rating, location_rating,
		        amenities, status, fail_reason, created_at, updated_at, last_scraped_at
		 FROM listings WHERE `+cond, arg,
	).Scan(&l.ID, &l.URL, &l.ExternalID, &l.Name, &l.Location, &l.Currency,
		&l.Rating, &l.LocationRating, &l.Amenities, &l.Status, &l.FailReason,
		&l.CreatedAt, &l.UpdatedAt, &l.LastScrapedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Listing{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Listing{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return l, nil
}

func (s *PostgresStore) ListListings(ctx context.Context) ([]domain.Listing, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, url, external_id, name, location, currency, rating, location_rating,
		        amenities, status, fail_reason, created_at, updated_at, last_scraped_at
		 FROM listings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var l domain.Listing
		if err := rows.Scan(&l.ID, &l.URL, &l.ExternalID, &l.Name, &l.Location,
			&l.Currency, &l.Rating, &l.LocationRating, &l.Amenities, &l.Status,
			&l.FailReason, &l.CreatedAt, &l.UpdatedAt, &l.LastScrapedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// DeleteListing removes a listing; price points and historical records
// cascade with it.
func (s *PostgresStore) DeleteListing(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetPricePoints returns the price calendar for a listing, optionally
// bounded by an inclusive [from, to] check-in range (YYYY-MM-DD).
func (s *PostgresStore) GetPricePoints(ctx context.Context, listingID int64, from, to string) ([]domain.PricePoint, error) {
	q := `SELECT listing_id, checkin, price, available, min_stay, captured_at
	      FROM price_points WHERE listing_id = $1`
	args := []any{listingID}
	if from != "" {
		args = append(args, from)
		q += fmt.Sprintf(" AND checkin >= $%d", len(args))
	}
	if to != "" {
		args = append(args, to)
		q += fmt.Sprintf(" AND checkin <= $%d", len(args))
	}
	q += " ORDER BY checkin"

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var p domain.PricePoint
		var checkin time.Time
		if err := rows.Scan(&p.ListingID, &checkin, &p.Price, &p.Available,
			&p.MinStay, &p.CapturedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		p.Checkin = checkin.Format("2006-01-02")
		out = append(out, p)
	}
	return out, rows.Err()
}

// ReplaceHistoricalRecords bulk-replaces the operator's imported pricing
// history for a listing in one transaction.
func (s *PostgresStore) ReplaceHistoricalRecords(ctx context.Context, listingID int64, records []domain.HistoricalRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM historical_records WHERE listing_id = $1`, listingID); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(
			`INSERT INTO historical_records (listing_id, date, price_applied, reservations)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (listing_id, date) DO UPDATE SET
			   price_applied = EXCLUDED.price_applied, reservations = EXCLUDED.reservations`,
			listingID, r.Date, r.PriceApplied, r.Reservations)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	return tx.Commit(ctx)
}

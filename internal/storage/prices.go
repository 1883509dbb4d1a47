package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kaidolaptops/price-scraper/internal/models"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

var ErrNoObservations = errors.New("no price observations")

const schema = `
CREATE TABLE IF NOT EXISTS price_observations (
	id             UUID PRIMARY KEY,
	url            TEXT NOT NULL,
	company        TEXT NOT NULL,
	is_exact_match BOOLEAN NOT NULL DEFAULT false,
	price          INTEGER NOT NULL DEFAULT 0,
	found          BOOLEAN NOT NULL DEFAULT false,
	failure        TEXT NOT NULL DEFAULT '',
	fetched_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_observations_url_fetched
	ON price_observations (url, fetched_at DESC);
`

// Observation is one stored price reading for a product page.
type Observation struct {
	ID           uuid.UUID `json:"id" db:"id"`
	URL          string    `json:"laptoplink" db:"url"`
	Company      string    `json:"company" db:"company"`
	IsExactMatch bool      `json:"isExactMatch" db:"is_exact_match"`
	Price        int       `json:"price" db:"price"`
	Found        bool      `json:"found" db:"found"`
	Failure      string    `json:"failure,omitempty" db:"failure"`
	FetchedAt    time.Time `json:"fetchedAt" db:"fetched_at"`
}

func NewObservation(res models.PriceResult) Observation {
	fetchedAt := res.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now()
	}

	return Observation{
		ID:           uuid.New(),
		URL:          res.URL,
		Company:      res.Company,
		IsExactMatch: res.IsExactMatch,
		Price:        res.Price,
		Found:        res.Found,
		Failure:      string(res.Failure),
		FetchedAt:    fetchedAt.UTC(),
	}
}

// PriceStore keeps the history of fetched prices.
type PriceStore struct {
	db *DB
}

func NewPriceStore(db *DB) *PriceStore {
	return &PriceStore{db: db}
}

func (s *PriceStore) Migrate(ctx context.Context) error {
	if _, err := s.db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate price_observations: %w", err)
	}
	return nil
}

// Record stores a batch of results in a single transaction.
func (s *PriceStore) Record(ctx context.Context, results []models.PriceResult) error {
	if len(results) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_observations
		(id, url, company, is_exact_match, price, found, failure, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	return s.db.Transaction(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, res := range results {
			o := NewObservation(res)
			batch.Queue(query, o.ID, o.URL, o.Company, o.IsExactMatch, o.Price, o.Found, o.Failure, o.FetchedAt)
		}

		br := tx.SendBatch(ctx, batch)
		for range results {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("failed to insert price observation: %w", err)
			}
		}
		return br.Close()
	})
}

// History returns the most recent observations for url, newest first.
func (s *PriceStore) History(ctx context.Context, url string, limit int) ([]Observation, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	query := `
		SELECT id, url, company, is_exact_match, price, found, failure, fetched_at
		FROM price_observations
		WHERE url = $1
		ORDER BY fetched_at DESC
		LIMIT $2`

	rows, err := s.db.pool.Query(ctx, query, url, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}

	observations, err := pgx.CollectRows(rows, pgx.RowToStructByName[Observation])
	if err != nil {
		return nil, fmt.Errorf("failed to scan price history: %w", err)
	}

	return observations, nil
}

func (s *PriceStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Latest returns the newest successful observation for url.
func (s *PriceStore) Latest(ctx context.Context, url string) (*Observation, error) {
	query := `
		SELECT id, url, company, is_exact_match, price, found, failure, fetched_at
		FROM price_observations
		WHERE url = $1 AND found
		ORDER BY fetched_at DESC
		LIMIT 1`

	o := &Observation{}
	err := s.db.pool.QueryRow(ctx, query, url).Scan(
		&o.ID, &o.URL, &o.Company, &o.IsExactMatch, &o.Price, &o.Found, &o.Failure, &o.FetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoObservations
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest price: %w", err)
	}

	return o, nil
}

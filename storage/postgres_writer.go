package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"listing-scraper/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresWriter mirrors committed records into a listings table keyed by
// (source_site, natural_key).
type PostgresWriter struct {
	pool *pgxpool.Pool
}

func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	return &PostgresWriter{pool: pool}, nil
}

func (w *PostgresWriter) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	source_site TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	price NUMERIC(12,2),
	address TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	extra_fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	scraped_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source_site, natural_key)
);

CREATE INDEX IF NOT EXISTS idx_listings_price ON listings(price);
CREATE INDEX IF NOT EXISTS idx_listings_site ON listings(source_site);
`

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := w.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

const upsertSQL = `
INSERT INTO listings (source_site, natural_key, title, price, address, url, extra_fields, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
ON CONFLICT (source_site, natural_key) DO UPDATE SET
	title = EXCLUDED.title,
	price = EXCLUDED.price,
	address = EXCLUDED.address,
	url = EXCLUDED.url,
	extra_fields = EXCLUDED.extra_fields,
	scraped_at = EXCLUDED.scraped_at,
	updated_at = NOW();
`

func upsertArgs(r models.ListingRecord) []any {
	extra := "{}"
	if len(r.ExtraFields) > 0 {
		b, _ := json.Marshal(r.ExtraFields)
		extra = string(b)
	}
	return []any{r.SourceSite, r.NaturalKey, r.Title, r.Price, r.Address, r.URL, extra, r.ScrapedAt}
}

func (w *PostgresWriter) WriteBatch(ctx context.Context, records []models.ListingRecord) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(upsertSQL, upsertArgs(r)...)
	}

	results := w.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch upsert failed at row %d: %w", i, err)
		}
	}
	return nil
}

// Mirror lets the writer hang off an OutputWriter.
func (w *PostgresWriter) Mirror(ctx context.Context, _ string, records []models.ListingRecord) error {
	return w.WriteBatch(ctx, records)
}

package fx

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository appends fetched rates to the fx_rates history table.
type Repository interface {
	SaveRates(ctx context.Context, res Result) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns a pgx-backed Repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// SaveRates inserts one row per rate. Existing rows are never updated; a newer
// fetch supersedes older rows by valid_from.
func (r *repository) SaveRates(ctx context.Context, res Result) error {
	if len(res.Rates) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rate := range res.Rates {
		batch.Queue(`INSERT INTO fx_rates (from_currency, to_currency, rate, source, source_priority, quoted_at, valid_from, valid_to, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (from_currency, to_currency, source, quoted_at) DO NOTHING`,
			rate.FromCurrency, rate.ToCurrency, rate.Rate, rate.Source, string(res.Source), rate.Timestamp, rate.ValidFrom, rate.ValidTo, res.FetchedAt)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range res.Rates {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("fx: insert rate: %w", err)
		}
	}
	return nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"

	"chainremit/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// RateRepo implements ports.RateRepository. Rates are append-only; reads
// always take the freshest row for a pair.
type RateRepo struct {
	pool Pool
}

// NewRateRepo creates a new RateRepo.
func NewRateRepo(pool Pool) *RateRepo {
	return &RateRepo{pool: pool}
}

// Save appends a fetched exchange rate.
func (r *RateRepo) Save(ctx context.Context, rate *domain.ExchangeRate) error {
	query := `INSERT INTO exchange_rates (base, target, rate, source, fetched_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.pool.Exec(ctx, query,
		rate.Base, rate.Target, rate.Rate, rate.Source, rate.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert exchange rate: %w", err)
	}
	return nil
}

// GetLatest fetches the most recently persisted rate for a currency pair.
func (r *RateRepo) GetLatest(ctx context.Context, base, target string) (*domain.ExchangeRate, error) {
	query := `SELECT base, target, rate, source, fetched_at
		FROM exchange_rates WHERE base = $1 AND target = $2
		ORDER BY fetched_at DESC LIMIT 1`

	rate := &domain.ExchangeRate{}
	err := r.pool.QueryRow(ctx, query, base, target).Scan(
		&rate.Base, &rate.Target, &rate.Rate, &rate.Source, &rate.FetchedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get latest exchange rate: %w", err)
	}
	return rate, nil
}

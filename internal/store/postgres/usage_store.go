package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// UsageStore implements domain.UsageStore using PostgreSQL.
type UsageStore struct {
	pool *pgxpool.Pool
}

// NewUsageStore creates a new UsageStore backed by the given connection pool.
func NewUsageStore(pool *pgxpool.Pool) *UsageStore {
	return &UsageStore{pool: pool}
}

// LoadUsage returns the usage row for date ("2006-01-02").
func (s *UsageStore) LoadUsage(ctx context.Context, date string) (domain.DailyUsage, error) {
	var u domain.DailyUsage
	err := s.pool.QueryRow(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), total_cost, request_count, daily_limit, exhausted
		FROM daily_usage WHERE date = $1::text::date`, date,
	).Scan(&u.Date, &u.TotalCost, &u.RequestCount, &u.DailyLimit, &u.Exhausted)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.DailyUsage{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DailyUsage{}, fmt.Errorf("postgres: load usage %s: %w", date, err)
	}
	return u, nil
}

// SaveUsage upserts the usage row keyed by date.
func (s *UsageStore) SaveUsage(ctx context.Context, u domain.DailyUsage) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO daily_usage (date, total_cost, request_count, daily_limit, exhausted, updated_at)
		VALUES ($1::text::date, $2, $3, $4, $5, NOW())
		ON CONFLICT (date) DO UPDATE SET
			total_cost    = EXCLUDED.total_cost,
			request_count = EXCLUDED.request_count,
			daily_limit   = EXCLUDED.daily_limit,
			exhausted     = EXCLUDED.exhausted,
			updated_at    = NOW()`,
		u.Date, u.TotalCost, u.RequestCount, u.DailyLimit, u.Exhausted,
	)
	if err != nil {
		return fmt.Errorf("postgres: save usage %s: %w", u.Date, err)
	}
	return nil
}

// UsageHistory returns up to limit usage rows, most recent first.
func (s *UsageStore) UsageHistory(ctx context.Context, limit int) ([]domain.DailyUsage, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx, `
		SELECT to_char(date, 'YYYY-MM-DD'), total_cost, request_count, daily_limit, exhausted
		FROM daily_usage ORDER BY date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: usage history: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyUsage
	for rows.Next() {
		var u domain.DailyUsage
		if err := rows.Scan(&u.Date, &u.TotalCost, &u.RequestCount, &u.DailyLimit, &u.Exhausted); err != nil {
			return nil, fmt.Errorf("postgres: scan usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

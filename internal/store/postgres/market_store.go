package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, title, yes_price, no_price, yes_bid, yes_ask, no_bid, no_ask,
	volume, expires_at, category, status, result, last_updated`

const upsertMarketSQL = `
	INSERT INTO markets (
		id, title, yes_price, no_price, yes_bid, yes_ask, no_bid, no_ask,
		volume, expires_at, category, status, result, last_updated
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12, $13, COALESCE($14, NOW())
	)
	ON CONFLICT (id) DO UPDATE SET
		title        = EXCLUDED.title,
		yes_price    = EXCLUDED.yes_price,
		no_price     = EXCLUDED.no_price,
		yes_bid      = EXCLUDED.yes_bid,
		yes_ask      = EXCLUDED.yes_ask,
		no_bid       = EXCLUDED.no_bid,
		no_ask       = EXCLUDED.no_ask,
		volume       = EXCLUDED.volume,
		expires_at   = EXCLUDED.expires_at,
		category     = EXCLUDED.category,
		status       = EXCLUDED.status,
		result       = EXCLUDED.result,
		last_updated = EXCLUDED.last_updated`

// UpsertMarkets inserts or updates market snapshots in a single batch.
func (s *MarketStore) UpsertMarkets(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(upsertMarketSQL,
			m.ID, m.Title, m.YesPrice, m.NoPrice, m.YesBid, m.YesAsk, m.NoBid, m.NoAsk,
			m.Volume, nullTime(m.ExpiresAt), m.Category, string(m.Status), string(m.Result),
			nullTime(m.LastUpdated),
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range markets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert market batch item %d (%s): %w", i, markets[i].ID, err)
		}
	}
	return nil
}

// EligibleMarkets returns open markets above the volume floor expiring within
// the window that carry no open position, highest volume first.
func (s *MarketStore) EligibleMarkets(ctx context.Context, f domain.EligibilityFilter) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets m
		WHERE m.status = 'open'
		  AND m.volume >= $1
		  AND m.expires_at > NOW()
		  AND NOT EXISTS (
		      SELECT 1 FROM positions p WHERE p.market_id = m.id AND p.status = 'open'
		  )`
	args := []any{f.VolumeMin}
	if f.MaxDaysToExpiry > 0 {
		query += ` AND m.expires_at <= NOW() + make_interval(days => $2)`
		args = append(args, f.MaxDaysToExpiry)
	}
	query += ` ORDER BY m.volume DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: eligible markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var status, result string
	var expires *time.Time
	err := row.Scan(
		&m.ID, &m.Title, &m.YesPrice, &m.NoPrice, &m.YesBid, &m.YesAsk, &m.NoBid, &m.NoAsk,
		&m.Volume, &expires, &m.Category, &status, &result, &m.LastUpdated,
	)
	if err != nil {
		return domain.Market{}, err
	}
	if expires != nil {
		m.ExpiresAt = *expires
	}
	m.Status = domain.MarketStatus(status)
	m.Result = domain.MarketResult(result)
	return m, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

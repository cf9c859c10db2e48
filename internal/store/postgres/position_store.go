package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL. The partial
// unique index on positions(market_id) WHERE status = 'open' enforces the
// one-open-position-per-market rule across processes.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a new PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, market_id, side, quantity, entry_price, live, created_at,
	rationale, strategy, confidence, status`

func scanPositionRow(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var side, status string
	if err := row.Scan(
		&p.ID, &p.MarketID, &side, &p.Quantity, &p.EntryPrice, &p.Live, &p.CreatedAt,
		&p.Rationale, &p.Strategy, &p.Confidence, &status,
	); err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// AddPosition inserts pos unless an open position exists for the market. The
// conflict target matches the partial index, so a duplicate returns no row.
func (s *PositionStore) AddPosition(ctx context.Context, p domain.Position) (int64, bool, error) {
	const query = `
		INSERT INTO positions (
			market_id, side, quantity, entry_price, live, created_at,
			rationale, strategy, confidence, status
		) VALUES (
			$1, $2, $3, $4, $5, COALESCE($6, NOW()),
			$7, $8, $9, 'open'
		)
		ON CONFLICT (market_id) WHERE status = 'open' DO NOTHING
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		p.MarketID, string(p.Side), p.Quantity, p.EntryPrice, p.Live, nullTime(p.CreatedAt),
		p.Rationale, p.Strategy, p.Confidence,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("postgres: add position %s: %w", p.MarketID, err)
	}
	return id, true, nil
}

// CancelPosition deletes an open position that never reached the exchange.
func (s *PositionStore) CancelPosition(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM positions WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return fmt.Errorf("postgres: cancel position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// OpenPositions returns every open position, oldest first.
func (s *PositionStore) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE status = 'open' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: open positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPositionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan open positions: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// OpenPositionByMarket returns the open position for marketID.
func (s *PositionStore) OpenPositionByMarket(ctx context.Context, marketID string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE market_id = $1 AND status = 'open'`, marketID)
	p, err := scanPositionRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: open position %s: %w", marketID, err)
	}
	return p, nil
}

// ClosePosition flips the position to closed and appends its trade log in
// one transaction.
func (s *PositionStore) ClosePosition(ctx context.Context, id int64, l domain.TradeLog) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: close position %d: begin: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE positions SET status = 'closed' WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return fmt.Errorf("postgres: close position %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO trade_logs (
			position_id, market_id, side, quantity, entry_price, exit_price, pnl,
			entry_at, exit_at, exit_reason, rationale, strategy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		id, l.MarketID, string(l.Side), l.Quantity, l.EntryPrice, l.ExitPrice, l.PnL,
		l.EntryAt, l.ExitAt, string(l.ExitReason), l.Rationale, l.Strategy,
	); err != nil {
		return fmt.Errorf("postgres: insert trade log for position %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: close position %d: commit: %w", id, err)
	}
	return nil
}

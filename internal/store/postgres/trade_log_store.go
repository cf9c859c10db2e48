package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// TradeLogStore implements domain.TradeLogStore using PostgreSQL.
type TradeLogStore struct {
	pool *pgxpool.Pool
}

// NewTradeLogStore creates a new TradeLogStore backed by the given connection pool.
func NewTradeLogStore(pool *pgxpool.Pool) *TradeLogStore {
	return &TradeLogStore{pool: pool}
}

const tradeLogSelectCols = `id, position_id, market_id, side, quantity, entry_price, exit_price, pnl,
	entry_at, exit_at, exit_reason, rationale, strategy`

// AllTradeLogs returns the whole trade log in exit order.
func (s *TradeLogStore) AllTradeLogs(ctx context.Context) ([]domain.TradeLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeLogSelectCols+` FROM trade_logs ORDER BY exit_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: all trade logs: %w", err)
	}
	defer rows.Close()
	return scanTradeLogRows(rows)
}

// TradeLogsBefore returns trade logs that exited before the cutoff.
func (s *TradeLogStore) TradeLogsBefore(ctx context.Context, before time.Time) ([]domain.TradeLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeLogSelectCols+` FROM trade_logs WHERE exit_at < $1 ORDER BY exit_at, id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: trade logs before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanTradeLogRows(rows)
}

func scanTradeLogRows(rows pgx.Rows) ([]domain.TradeLog, error) {
	var logs []domain.TradeLog
	for rows.Next() {
		var l domain.TradeLog
		var side, reason string
		if err := rows.Scan(
			&l.ID, &l.PositionID, &l.MarketID, &side, &l.Quantity, &l.EntryPrice, &l.ExitPrice, &l.PnL,
			&l.EntryAt, &l.ExitAt, &reason, &l.Rationale, &l.Strategy,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan trade log: %w", err)
		}
		l.Side = domain.Side(side)
		l.ExitReason = domain.ExitReason(reason)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// Package sqlite implements domain.Store on an embedded SQLite database.
// It backs paper trading and tests; live deployments use the postgres store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Timestamps are stored as unix nanoseconds so ordering and range filters
// stay plain integer comparisons.
const schema = `
CREATE TABLE IF NOT EXISTS markets (
    id           TEXT PRIMARY KEY,
    title        TEXT    NOT NULL DEFAULT '',
    yes_price    REAL    NOT NULL DEFAULT 0,
    no_price     REAL    NOT NULL DEFAULT 0,
    yes_bid      REAL    NOT NULL DEFAULT 0,
    yes_ask      REAL    NOT NULL DEFAULT 0,
    no_bid       REAL    NOT NULL DEFAULT 0,
    no_ask       REAL    NOT NULL DEFAULT 0,
    volume       REAL    NOT NULL DEFAULT 0,
    expires_at   INTEGER NOT NULL DEFAULT 0,
    category     TEXT    NOT NULL DEFAULT '',
    status       TEXT    NOT NULL DEFAULT 'open',
    result       TEXT    NOT NULL DEFAULT '',
    last_updated INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS positions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id   TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    quantity    INTEGER NOT NULL CHECK (quantity >= 1),
    entry_price REAL    NOT NULL,
    live        INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL,
    rationale   TEXT    NOT NULL DEFAULT '',
    strategy    TEXT    NOT NULL DEFAULT '',
    confidence  REAL    NOT NULL DEFAULT 0,
    status      TEXT    NOT NULL DEFAULT 'open'
);

-- At most one open position per market.
CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_open_market
    ON positions(market_id) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS trade_logs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    position_id INTEGER NOT NULL,
    market_id   TEXT    NOT NULL,
    side        TEXT    NOT NULL,
    quantity    INTEGER NOT NULL,
    entry_price REAL    NOT NULL,
    exit_price  REAL    NOT NULL,
    pnl         REAL    NOT NULL,
    entry_at    INTEGER NOT NULL,
    exit_at     INTEGER NOT NULL,
    exit_reason TEXT    NOT NULL,
    rationale   TEXT    NOT NULL DEFAULT '',
    strategy    TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_trade_logs_exit ON trade_logs(exit_at);

CREATE TABLE IF NOT EXISTS daily_usage (
    date          TEXT PRIMARY KEY,
    total_cost    REAL    NOT NULL DEFAULT 0,
    request_count INTEGER NOT NULL DEFAULT 0,
    daily_limit   REAL    NOT NULL DEFAULT 0,
    exhausted     INTEGER NOT NULL DEFAULT 0
);
`

// Store implements domain.Store using SQLite (pure Go, no CGo).
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema. Use
// ":memory:" for an ephemeral database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %q: %w", path, err)
	}
	// One connection serialises writers, which keeps check-and-insert atomic.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Markets
// ---------------------------------------------------------------------------

// UpsertMarkets inserts or replaces market snapshots in one transaction.
func (s *Store) UpsertMarkets(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: upsert markets: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO markets (
			id, title, yes_price, no_price, yes_bid, yes_ask, no_bid, no_ask,
			volume, expires_at, category, status, result, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title        = excluded.title,
			yes_price    = excluded.yes_price,
			no_price     = excluded.no_price,
			yes_bid      = excluded.yes_bid,
			yes_ask      = excluded.yes_ask,
			no_bid       = excluded.no_bid,
			no_ask       = excluded.no_ask,
			volume       = excluded.volume,
			expires_at   = excluded.expires_at,
			category     = excluded.category,
			status       = excluded.status,
			result       = excluded.result,
			last_updated = excluded.last_updated`)
	if err != nil {
		return fmt.Errorf("sqlite: upsert markets: prepare: %w", err)
	}
	defer stmt.Close()

	for _, m := range markets {
		updated := m.LastUpdated
		if updated.IsZero() {
			updated = s.now()
		}
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.Title, m.YesPrice, m.NoPrice, m.YesBid, m.YesAsk, m.NoBid, m.NoAsk,
			m.Volume, unixNano(m.ExpiresAt), m.Category, string(m.Status), string(m.Result),
			unixNano(updated),
		); err != nil {
			return fmt.Errorf("sqlite: upsert market %s: %w", m.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: upsert markets: commit: %w", err)
	}
	return nil
}

// EligibleMarkets returns open markets meeting the volume and expiry filters
// that carry no open position, highest volume first.
func (s *Store) EligibleMarkets(ctx context.Context, f domain.EligibilityFilter) ([]domain.Market, error) {
	now := s.now()
	query := `
		SELECT id, title, yes_price, no_price, yes_bid, yes_ask, no_bid, no_ask,
		       volume, expires_at, category, status, result, last_updated
		FROM markets m
		WHERE m.status = 'open'
		  AND m.volume >= ?
		  AND m.expires_at > ?
		  AND NOT EXISTS (
		      SELECT 1 FROM positions p WHERE p.market_id = m.id AND p.status = 'open'
		  )`
	args := []any{f.VolumeMin, now.UnixNano()}
	if f.MaxDaysToExpiry > 0 {
		query += ` AND m.expires_at <= ?`
		args = append(args, now.Add(time.Duration(f.MaxDaysToExpiry)*24*time.Hour).UnixNano())
	}
	query += ` ORDER BY m.volume DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: eligible markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		var m domain.Market
		var status, result string
		var expires, updated int64
		if err := rows.Scan(
			&m.ID, &m.Title, &m.YesPrice, &m.NoPrice, &m.YesBid, &m.YesAsk, &m.NoBid, &m.NoAsk,
			&m.Volume, &expires, &m.Category, &status, &result, &updated,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan market: %w", err)
		}
		m.Status = domain.MarketStatus(status)
		m.Result = domain.MarketResult(result)
		m.ExpiresAt = fromUnixNano(expires)
		m.LastUpdated = fromUnixNano(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

const positionCols = `id, market_id, side, quantity, entry_price, live, created_at,
	rationale, strategy, confidence, status`

// AddPosition inserts pos unless an open position already exists for the
// same market, in which case ok is false and nothing is written.
func (s *Store) AddPosition(ctx context.Context, pos domain.Position) (int64, bool, error) {
	created := pos.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO positions (
			market_id, side, quantity, entry_price, live, created_at,
			rationale, strategy, confidence, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'open')`,
		pos.MarketID, string(pos.Side), pos.Quantity, pos.EntryPrice, boolInt(pos.Live),
		unixNano(created), pos.Rationale, pos.Strategy, pos.Confidence,
	)
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: add position %s: %w", pos.MarketID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: add position %s: rows affected: %w", pos.MarketID, err)
	}
	if n == 0 {
		return 0, false, nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("sqlite: add position %s: last insert id: %w", pos.MarketID, err)
	}
	return id, true, nil
}

// CancelPosition deletes an open position that never reached the exchange.
func (s *Store) CancelPosition(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM positions WHERE id = ? AND status = 'open'`, id)
	if err != nil {
		return fmt.Errorf("sqlite: cancel position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// OpenPositions returns every open position, oldest first.
func (s *Store) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE status = 'open' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open positions: %w", err)
	}
	defer rows.Close()

	var out []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// OpenPositionByMarket returns the open position for marketID.
func (s *Store) OpenPositionByMarket(ctx context.Context, marketID string) (domain.Position, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+positionCols+` FROM positions WHERE market_id = ? AND status = 'open'`, marketID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Position{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: open position %s: %w", marketID, err)
	}
	return p, nil
}

// ClosePosition writes log and marks the position closed atomically.
func (s *Store) ClosePosition(ctx context.Context, id int64, log domain.TradeLog) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: close position %d: begin: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE positions SET status = 'closed' WHERE id = ? AND status = 'open'`, id)
	if err != nil {
		return fmt.Errorf("sqlite: close position %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO trade_logs (
			position_id, market_id, side, quantity, entry_price, exit_price, pnl,
			entry_at, exit_at, exit_reason, rationale, strategy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, log.MarketID, string(log.Side), log.Quantity, log.EntryPrice, log.ExitPrice, log.PnL,
		unixNano(log.EntryAt), unixNano(log.ExitAt), string(log.ExitReason), log.Rationale, log.Strategy,
	); err != nil {
		return fmt.Errorf("sqlite: insert trade log for position %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: close position %d: commit: %w", id, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Trade logs
// ---------------------------------------------------------------------------

const tradeLogCols = `id, position_id, market_id, side, quantity, entry_price, exit_price, pnl,
	entry_at, exit_at, exit_reason, rationale, strategy`

// AllTradeLogs returns the full trade log in exit order.
func (s *Store) AllTradeLogs(ctx context.Context) ([]domain.TradeLog, error) {
	return s.queryTradeLogs(ctx, `SELECT `+tradeLogCols+` FROM trade_logs ORDER BY exit_at, id`)
}

// TradeLogsBefore returns trade logs whose exit time is before the cutoff.
func (s *Store) TradeLogsBefore(ctx context.Context, before time.Time) ([]domain.TradeLog, error) {
	return s.queryTradeLogs(ctx,
		`SELECT `+tradeLogCols+` FROM trade_logs WHERE exit_at < ? ORDER BY exit_at, id`,
		before.UnixNano())
}

func (s *Store) queryTradeLogs(ctx context.Context, query string, args ...any) ([]domain.TradeLog, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query trade logs: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeLog
	for rows.Next() {
		var l domain.TradeLog
		var side, reason string
		var entryAt, exitAt int64
		if err := rows.Scan(
			&l.ID, &l.PositionID, &l.MarketID, &side, &l.Quantity, &l.EntryPrice, &l.ExitPrice, &l.PnL,
			&entryAt, &exitAt, &reason, &l.Rationale, &l.Strategy,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan trade log: %w", err)
		}
		l.Side = domain.Side(side)
		l.ExitReason = domain.ExitReason(reason)
		l.EntryAt = fromUnixNano(entryAt)
		l.ExitAt = fromUnixNano(exitAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Daily usage
// ---------------------------------------------------------------------------

// LoadUsage returns the usage row for date or domain.ErrNotFound.
func (s *Store) LoadUsage(ctx context.Context, date string) (domain.DailyUsage, error) {
	var u domain.DailyUsage
	var exhausted int
	err := s.db.QueryRowContext(ctx,
		`SELECT date, total_cost, request_count, daily_limit, exhausted FROM daily_usage WHERE date = ?`,
		date,
	).Scan(&u.Date, &u.TotalCost, &u.RequestCount, &u.DailyLimit, &exhausted)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyUsage{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.DailyUsage{}, fmt.Errorf("sqlite: load usage %s: %w", date, err)
	}
	u.Exhausted = exhausted != 0
	return u, nil
}

// SaveUsage upserts the usage row keyed by date.
func (s *Store) SaveUsage(ctx context.Context, u domain.DailyUsage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_usage (date, total_cost, request_count, daily_limit, exhausted)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_cost    = excluded.total_cost,
			request_count = excluded.request_count,
			daily_limit   = excluded.daily_limit,
			exhausted     = excluded.exhausted`,
		u.Date, u.TotalCost, u.RequestCount, u.DailyLimit, boolInt(u.Exhausted),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save usage %s: %w", u.Date, err)
	}
	return nil
}

// UsageHistory returns up to limit usage rows, most recent first.
func (s *Store) UsageHistory(ctx context.Context, limit int) ([]domain.DailyUsage, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT date, total_cost, request_count, daily_limit, exhausted
		 FROM daily_usage ORDER BY date DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: usage history: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyUsage
	for rows.Next() {
		var u domain.DailyUsage
		var exhausted int
		if err := rows.Scan(&u.Date, &u.TotalCost, &u.RequestCount, &u.DailyLimit, &exhausted); err != nil {
			return nil, fmt.Errorf("sqlite: scan usage: %w", err)
		}
		u.Exhausted = exhausted != 0
		out = append(out, u)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(r rowScanner) (domain.Position, error) {
	var p domain.Position
	var side, status string
	var live int
	var created int64
	if err := r.Scan(
		&p.ID, &p.MarketID, &side, &p.Quantity, &p.EntryPrice, &live, &created,
		&p.Rationale, &p.Strategy, &p.Confidence, &status,
	); err != nil {
		return domain.Position{}, err
	}
	p.Side = domain.Side(side)
	p.Status = domain.PositionStatus(status)
	p.Live = live != 0
	p.CreatedAt = fromUnixNano(created)
	return p, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ domain.Store = (*Store)(nil)

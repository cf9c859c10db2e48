package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// TradeLogSource is the slice of the store the archiver reads.
type TradeLogSource interface {
	TradeLogsBefore(ctx context.Context, before time.Time) ([]domain.TradeLog, error)
}

// TradeLogArchiver implements domain.Archiver. Closed trade logs older than
// the cutoff are grouped by exit month and written as one JSONL object per
// month (archive/trade_logs/2026-01.jsonl). Each run rewrites the month files
// it touches, so re-running with the same cutoff is idempotent. Rows are not
// deleted from the primary store.
type TradeLogArchiver struct {
	writer domain.BlobWriter
	source TradeLogSource
	logger *slog.Logger
}

// NewArchiver creates a TradeLogArchiver.
func NewArchiver(writer domain.BlobWriter, source TradeLogSource, logger *slog.Logger) *TradeLogArchiver {
	return &TradeLogArchiver{
		writer: writer,
		source: source,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// tradeLogRecord is the archived JSON shape.
type tradeLogRecord struct {
	ID         int64     `json:"id"`
	PositionID int64     `json:"position_id"`
	MarketID   string    `json:"market_id"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	EntryAt    time.Time `json:"entry_at"`
	ExitAt     time.Time `json:"exit_at"`
	ExitReason string    `json:"exit_reason"`
	Strategy   string    `json:"strategy"`
	Rationale  string    `json:"rationale,omitempty"`
}

// ArchiveTradeLogs uploads every trade log that exited before the cutoff and
// returns how many records were written.
func (a *TradeLogArchiver) ArchiveTradeLogs(ctx context.Context, before time.Time) (int64, error) {
	logs, err := a.source.TradeLogsBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trade logs query: %w", err)
	}
	if len(logs) == 0 {
		return 0, nil
	}

	byMonth := make(map[string][]tradeLogRecord)
	for _, l := range logs {
		month := l.ExitAt.UTC().Format("2006-01")
		byMonth[month] = append(byMonth[month], toRecord(l))
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	var count int64
	for _, month := range months {
		records := byMonth[month]
		buf, err := marshalJSONL(records)
		if err != nil {
			return count, fmt.Errorf("s3blob: archive trade logs marshal %s: %w", month, err)
		}

		path := archivePath("trade_logs", month)
		if int64(len(buf)) > minPartSize {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
		}
		if err != nil {
			return count, fmt.Errorf("s3blob: archive trade logs upload %s: %w", path, err)
		}

		count += int64(len(records))
		a.logger.Info("archived trade logs",
			slog.String("path", path),
			slog.Int("records", len(records)),
			slog.Int("bytes", len(buf)),
		)
	}
	return count, nil
}

func toRecord(l domain.TradeLog) tradeLogRecord {
	return tradeLogRecord{
		ID:         l.ID,
		PositionID: l.PositionID,
		MarketID:   l.MarketID,
		Side:       string(l.Side),
		Quantity:   l.Quantity,
		EntryPrice: l.EntryPrice,
		ExitPrice:  l.ExitPrice,
		PnL:        l.PnL,
		EntryAt:    l.EntryAt,
		ExitAt:     l.ExitAt,
		ExitReason: string(l.ExitReason),
		Strategy:   l.Strategy,
		Rationale:  l.Rationale,
	}
}

// archivePath builds the object key for an archive file.
//
//	archive/trade_logs/2026-01.jsonl
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*TradeLogArchiver)(nil)

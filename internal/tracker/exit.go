package tracker

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/domain"
)

// Policy holds the exit thresholds. ProfitTaking and StopLoss are fractions
// of the entry price.
type Policy struct {
	ProfitTaking float64
	StopLoss     float64
	MaxHold      time.Duration

	// MaxHoldByStrategy overrides MaxHold for positions opened by the named
	// strategy.
	MaxHoldByStrategy map[string]time.Duration
}

func (p Policy) maxHold(strategy string) time.Duration {
	if d, ok := p.MaxHoldByStrategy[strategy]; ok {
		return d
	}
	return p.MaxHold
}

// Exit is a triggered exit.
type Exit struct {
	Reason domain.ExitReason
	Price  float64
}

// MarkPrice is the price the held side could be sold at now: the bid when
// quoted, otherwise the last price.
func MarkPrice(m domain.Market, side domain.Side) float64 {
	bid := m.YesBid
	if side == domain.SideNo {
		bid = m.NoBid
	}
	if bid > 0 {
		return bid
	}
	return m.PriceFor(side)
}

// Evaluate applies the exit rules in priority order: resolution, take-profit,
// stop-loss, then time. ok is false when the position should stay open.
func (p Policy) Evaluate(pos domain.Position, m domain.Market, now time.Time) (Exit, bool) {
	if m.Resolved() {
		return Exit{Reason: domain.ExitResolution, Price: m.SettlementFor(pos.Side)}, true
	}

	mark := MarkPrice(m, pos.Side)
	if pos.EntryPrice > 0 && mark > 0 {
		change := (mark - pos.EntryPrice) / pos.EntryPrice
		if p.ProfitTaking > 0 && change >= p.ProfitTaking {
			return Exit{Reason: domain.ExitTakeProfit, Price: mark}, true
		}
		if p.StopLoss > 0 && -change >= p.StopLoss {
			return Exit{Reason: domain.ExitStopLoss, Price: mark}, true
		}
	}

	if hold := p.maxHold(pos.Strategy); hold > 0 && now.Sub(pos.CreatedAt) >= hold {
		return Exit{Reason: domain.ExitTimeBased, Price: mark}, true
	}
	return Exit{}, false
}

// PnL returns (exit − entry) × quantity rounded to the cent.
func PnL(entry, exit float64, quantity int) float64 {
	return decimal.NewFromFloat(exit).
		Sub(decimal.NewFromFloat(entry)).
		Mul(decimal.NewFromInt(int64(quantity))).
		Round(2).
		InexactFloat64()
}

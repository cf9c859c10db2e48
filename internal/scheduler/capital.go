package scheduler

import (
	"context"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/strategy"
)

// Capital is the cycle's portfolio valuation.
type Capital struct {
	Cash      float64
	Positions float64
	Total     float64
	// Fallback is true when the balance could not be read and the configured
	// fallback capital was used instead.
	Fallback bool
}

// CashAction is the outcome of the cash-reserve pre-flight.
type CashAction string

const (
	CashHealthy    CashAction = "healthy"
	ReduceActivity CashAction = "reduce_activity"
	HaltTrading    CashAction = "halt_trading"
)

// Valuator marks the portfolio to market.
type Valuator struct {
	exchange domain.Exchange
	prices   domain.PriceCache
	cfg      config.SchedulerConfig
	logger   *slog.Logger
}

// NewValuator creates a Valuator. prices may be nil.
func NewValuator(exchange domain.Exchange, prices domain.PriceCache, cfg config.SchedulerConfig, logger *slog.Logger) *Valuator {
	return &Valuator{exchange: exchange, prices: prices, cfg: cfg, logger: logger}
}

// Value returns cash plus every held position at its mark price. A position
// whose price cannot be found from the exchange or the price cache is marked
// at the fallback price. A failed balance read yields the fallback capital.
func (v *Valuator) Value(ctx context.Context) Capital {
	cash, err := v.exchange.Balance(ctx)
	if err != nil {
		v.logger.Error("balance unavailable, using fallback capital",
			slog.Float64("fallback", v.cfg.FallbackCapital),
			slog.String("error", err.Error()),
		)
		return Capital{Cash: v.cfg.FallbackCapital, Total: v.cfg.FallbackCapital, Fallback: true}
	}

	held, err := v.exchange.Positions(ctx)
	if err != nil {
		v.logger.Warn("positions unavailable, valuing cash only", slog.String("error", err.Error()))
		held = nil
	}

	value := decimal.Zero
	for _, p := range held {
		if p.Quantity == 0 {
			continue
		}
		price := v.mark(ctx, p)
		value = value.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(absInt(p.Quantity)))))
	}

	positions := value.InexactFloat64()
	total := decimal.NewFromFloat(cash).Add(value).InexactFloat64()
	return Capital{Cash: cash, Positions: positions, Total: total}
}

func (v *Valuator) mark(ctx context.Context, p domain.ExchangePosition) float64 {
	if m, err := v.exchange.Market(ctx, p.MarketID); err == nil {
		if price := m.PriceFor(p.Side); price > 0 {
			return price
		}
	}
	if v.prices != nil {
		if yes, _, err := v.prices.GetPrice(ctx, p.MarketID); err == nil && yes > 0 {
			if p.Side == domain.SideNo {
				return 1 - yes
			}
			return yes
		}
	}
	return v.cfg.FallbackPrice
}

// CheckCash classifies the cash share of capital against the reserve
// thresholds.
func CheckCash(c Capital, cfg config.SchedulerConfig) CashAction {
	if c.Total <= 0 {
		return HaltTrading
	}
	ratio := c.Cash / c.Total
	switch {
	case ratio < cfg.HaltCashRatio:
		return HaltTrading
	case ratio < cfg.MinCashRatio:
		return ReduceActivity
	default:
		return CashHealthy
	}
}

// Pools splits total capital into per-executor sub-pools, scaled by factor.
func Pools(total float64, cfg config.SchedulerConfig, factor float64) map[string]float64 {
	t := decimal.NewFromFloat(total).Mul(decimal.NewFromFloat(factor))
	split := func(f float64) float64 {
		return t.Mul(decimal.NewFromFloat(f)).Round(2).InexactFloat64()
	}
	return map[string]float64{
		strategy.NameMarketMaking: split(cfg.MarketMakingAllocation),
		strategy.NameDirectional:  split(cfg.DirectionalAllocation),
		strategy.NameQuickFlip:    split(cfg.QuickFlipAllocation),
		strategy.NameArbitrage:    split(cfg.ArbitrageAllocation),
	}
}

func absInt(n int) int {
	return int(math.Abs(float64(n)))
}

package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/kalshibot/internal/config"
	"github.com/alanyoungcy/kalshibot/internal/domain"
	"github.com/alanyoungcy/kalshibot/internal/executor"
)

// MarketMaker captures wide YES spreads: it bids one cent above the best bid
// and rests a sell one cent below the best ask, so one position carries two
// orders.
type MarketMaker struct {
	cfg    config.MarketMakerConfig
	opener Opener
	logger *slog.Logger
}

// NewMarketMaker creates a MarketMaker.
func NewMarketMaker(cfg config.MarketMakerConfig, opener Opener, logger *slog.Logger) *MarketMaker {
	return &MarketMaker{
		cfg:    cfg,
		opener: opener,
		logger: logger.With(slog.String("strategy", NameMarketMaking)),
	}
}

// Name returns the executor identifier.
func (mm *MarketMaker) Name() string { return NameMarketMaking }

// Quote is a planned market-making entry.
type Quote struct {
	Market         domain.Market
	BuyCents       int
	SellCents      int
	Quantity       int
	ExpectedProfit float64
}

// Plan selects the widest-spread markets the capital can carry and sizes a
// quote on each.
func (mm *MarketMaker) Plan(markets []domain.Market, capital float64) []Quote {
	if mm.cfg.CapitalPerMarket <= 0 {
		return nil
	}
	maxMarkets := int(math.Floor(capital / mm.cfg.CapitalPerMarket))
	if maxMarkets < 1 {
		return nil
	}

	var candidates []domain.Market
	for _, m := range markets {
		if m.Volume < mm.cfg.MinVolume || m.YesBid <= 0 || m.YesAsk <= 0 {
			continue
		}
		if m.YesAsk-m.YesBid+1e-9 < mm.cfg.MinSpread {
			continue
		}
		candidates = append(candidates, m)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].YesAsk-candidates[i].YesBid > candidates[j].YesAsk-candidates[j].YesBid
	})

	var quotes []Quote
	for _, m := range candidates {
		if len(quotes) == maxMarkets {
			break
		}
		buy := toCents(m.YesBid) + 1
		sell := toCents(m.YesAsk) - 1
		if buy >= sell || buy < 1 || sell > 99 {
			continue
		}
		qty := int(decimal.NewFromFloat(mm.cfg.CapitalPerMarket).
			Div(decimal.NewFromFloat(cents(buy))).Floor().IntPart())
		if mm.cfg.MaxQuantity > 0 && qty > mm.cfg.MaxQuantity {
			qty = mm.cfg.MaxQuantity
		}
		if qty < 1 {
			continue
		}
		profit := decimal.NewFromInt(int64(sell - buy)).
			Div(decimal.NewFromInt(100)).
			Mul(decimal.NewFromInt(int64(qty)))
		quotes = append(quotes, Quote{
			Market:         m,
			BuyCents:       buy,
			SellCents:      sell,
			Quantity:       qty,
			ExpectedProfit: profit.InexactFloat64(),
		})
	}
	return quotes
}

// Execute places the planned quotes.
func (mm *MarketMaker) Execute(ctx context.Context, markets []domain.Market, capital float64) (Result, error) {
	res := Result{Strategy: NameMarketMaking}
	for _, q := range mm.Plan(markets, capital) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		buy, sell := cents(q.BuyCents), cents(q.SellCents)
		out, ok, err := open(ctx, mm.opener, executor.OpenRequest{
			MarketID:   q.Market.ID,
			Side:       domain.SideYes,
			Quantity:   q.Quantity,
			EntryPrice: buy,
			Strategy:   domain.StrategyMarketMaking,
			Rationale:  fmt.Sprintf("Market making: bid %d¢ / ask %d¢", q.BuyCents, q.SellCents),
			OrderType:  domain.OrderTypeLimit,
			LimitPrice: &buy,
			ExitPrice:  &sell,
		})
		if err != nil {
			mm.logger.Warn("quote failed", slog.String("market", q.Market.ID), slog.String("error", err.Error()))
			continue
		}
		if !ok {
			continue
		}
		res.PositionsOpened++
		res.OrdersPlaced++
		if out.ExitOrderID != "" {
			res.OrdersPlaced++
		}
		res.CapitalUsed += buy * float64(q.Quantity)
		res.ExpectedProfit += q.ExpectedProfit
	}

	mm.logger.Info("market making complete",
		slog.Int("orders", res.OrdersPlaced),
		slog.Float64("expected_profit", res.ExpectedProfit),
	)
	return res, nil
}

package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen    MarketStatus = "open"
	MarketStatusClosed  MarketStatus = "closed"
	MarketStatusSettled MarketStatus = "settled"
)

// MarketResult is the settled outcome of a binary market. Empty while unresolved.
type MarketResult string

const (
	MarketResultNone MarketResult = ""
	MarketResultYes  MarketResult = "yes"
	MarketResultNo   MarketResult = "no"
)

// Market is an immutable snapshot of an exchange market. Prices are
// probabilities in [0, 1] (dollars per contract). A later ingestion
// supersedes the snapshot rather than mutating it.
type Market struct {
	ID          string
	Title       string
	YesPrice    float64
	NoPrice     float64
	YesBid      float64
	YesAsk      float64
	NoBid       float64
	NoAsk       float64
	Volume      float64
	ExpiresAt   time.Time
	Category    string
	Status      MarketStatus
	Result      MarketResult
	LastUpdated time.Time
	HasPosition bool
}

// Resolved reports whether the market has closed with a definitive result.
func (m Market) Resolved() bool {
	if m.Result != MarketResultYes && m.Result != MarketResultNo {
		return false
	}
	return m.Status == MarketStatusClosed || m.Status == MarketStatusSettled
}

// PriceFor returns the current price of the given side.
func (m Market) PriceFor(side Side) float64 {
	if side == SideNo {
		if m.NoPrice > 0 {
			return m.NoPrice
		}
		return 1 - m.YesPrice
	}
	return m.YesPrice
}

// SettlementFor returns the settlement value (0 or 1) of the given side for a
// resolved market.
func (m Market) SettlementFor(side Side) float64 {
	switch {
	case m.Result == MarketResultYes && side == SideYes:
		return 1
	case m.Result == MarketResultNo && side == SideNo:
		return 1
	default:
		return 0
	}
}

// EligibilityFilter narrows the markets returned by MarketStore.EligibleMarkets.
type EligibilityFilter struct {
	VolumeMin       float64
	MaxDaysToExpiry int
}

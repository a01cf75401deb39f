package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is a long-only holding in one instrument, derived solely from
// the sequence of filled orders. Quantity never goes negative.
type Position struct {
	Instrument  string          `json:"instrument"`
	Quantity    decimal.Decimal `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	OpenedAt    time.Time       `json:"opened_at"`
}

// MarketValue returns quantity times the quote midpoint.
func (p Position) MarketValue(q Quote) decimal.Decimal {
	return p.Quantity.Mul(q.Mid())
}

// UnrealizedPnL returns the open profit against the quote midpoint.
func (p Position) UnrealizedPnL(q Quote) decimal.Decimal {
	return q.Mid().Sub(p.AvgCost).Mul(p.Quantity)
}

// Fill is the confirmed execution of an order at a price.
type Fill struct {
	OrderID    string
	Instrument string
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	ExecutedAt time.Time
}

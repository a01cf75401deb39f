package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a bid/ask snapshot for one instrument. Quotes are immutable
// values; a newer timestamp for the same instrument supersedes older ones.
type Quote struct {
	Instrument string          `json:"instrument"` // e.g. "EUR/USD"
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Timestamp  time.Time       `json:"timestamp"`
	Source     string          `json:"source"` // feed that produced it, e.g. "saxo", "yahoo"
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() decimal.Decimal {
	return q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2))
}

// OlderThan reports whether the quote is older than maxAge relative to now.
func (q Quote) OlderThan(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.Timestamp) > maxAge
}

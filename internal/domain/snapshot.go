package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeedState is the health of one quote source as seen by the cache.
type FeedState struct {
	Source     string    `json:"source"`
	Down       bool      `json:"down"`
	LastUpdate time.Time `json:"last_update"`
}

// MetricsSnapshot is a point-in-time view of the engine counters.
type MetricsSnapshot struct {
	QuotesApplied  uint64    `json:"quotes_applied"`
	QuotesDropped  uint64    `json:"quotes_dropped"`
	ScansCompleted uint64    `json:"scans_completed"`
	OrdersFilled   uint64    `json:"orders_filled"`
	TriggersLost   uint64    `json:"triggers_lost"`
	BrokerRetries  uint64    `json:"broker_retries"`
	OrdersRejected uint64    `json:"orders_rejected"`
	AvgScanNs      int64     `json:"avg_scan_ns"`
	FeedConnected  bool      `json:"feed_connected"`
	Timestamp      time.Time `json:"timestamp"`
}

// AccountSnapshot is a read-only projection of the whole terminal state,
// reconstructed on each call for the UI refresh cycle. It shares no memory
// with the authoritative components.
type AccountSnapshot struct {
	TakenAt time.Time `json:"taken_at"`

	CashBalance   decimal.Decimal `json:"cash_balance"`
	InvestedValue decimal.Decimal `json:"invested_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	TotalValue    decimal.Decimal `json:"total_value"`

	Positions []Position       `json:"positions"`
	Orders    []Order          `json:"orders"`
	Quotes    map[string]Quote `json:"quotes"`
	Feeds     []FeedState      `json:"feeds"`
	Metrics   MetricsSnapshot  `json:"metrics"`

	// Alerts carries critical user-visible conditions, e.g. a ledger
	// invariant violation.
	Alerts []string `json:"alerts,omitempty"`
}

package engine

import (
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"
	"github.com/skylee01244/fx-terminal/internal/service"

	"github.com/shopspring/decimal"
)

// Publisher assembles read-only account snapshots for the UI and analysis
// consumers. It copies on read, never blocks writers, and never holds more
// than one component's lock at a time.
type Publisher struct {
	book    *Book
	ledger  *Ledger
	cache   *service.QuoteCache
	metrics *infra.Metrics
}

// NewPublisher creates a snapshot publisher over the given components.
// metrics may be nil.
func NewPublisher(book *Book, ledger *Ledger, cache *service.QuoteCache, metrics *infra.Metrics) *Publisher {
	return &Publisher{book: book, ledger: ledger, cache: cache, metrics: metrics}
}

// Snapshot reconstructs the account projection at call time. Consumed once
// per UI refresh cycle; the result shares no memory with the components.
func (p *Publisher) Snapshot() domain.AccountSnapshot {
	quotes := p.cache.All()
	positions := p.ledger.Positions()
	orders := p.book.List(nil)

	invested := decimal.Zero
	unrealized := decimal.Zero
	for _, pos := range positions {
		q, ok := quotes[pos.Instrument]
		if !ok || pos.Quantity.IsZero() {
			continue
		}
		invested = invested.Add(pos.MarketValue(q))
		unrealized = unrealized.Add(pos.UnrealizedPnL(q))
	}

	cash := p.ledger.Cash()

	var counters domain.MetricsSnapshot
	if p.metrics != nil {
		counters = p.metrics.Snapshot()
	}

	return domain.AccountSnapshot{
		TakenAt:       time.Now(),
		CashBalance:   cash,
		InvestedValue: invested,
		UnrealizedPnL: unrealized,
		TotalValue:    cash.Add(invested),
		Positions:     positions,
		Orders:        orders,
		Quotes:        quotes,
		Feeds:         p.cache.FeedStates(),
		Metrics:       counters,
		Alerts:        p.ledger.Alerts(),
	}
}

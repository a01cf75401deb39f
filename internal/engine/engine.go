// Package engine holds the order book, position ledger, order monitor, and
// snapshot publisher that together form the trading core. Components own
// their state and serialize their own mutations; cross-component effects go
// through explicit method calls, never shared references.
package engine

import (
	"context"
	"log/slog"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"
	"github.com/skylee01244/fx-terminal/internal/service"

	"github.com/shopspring/decimal"
)

// Engine is the facade the terminal talks to: it wires the book, ledger,
// monitor, cache, and broker, and exposes order placement, cancellation,
// and snapshots.
type Engine struct {
	book      *Book
	ledger    *Ledger
	cache     *service.QuoteCache
	monitor   *Monitor
	publisher *Publisher
	journal   Journal
}

// New assembles the trading core from configuration and its collaborators.
func New(cfg *infra.Config, cache *service.QuoteCache, broker domain.Broker, journal Journal, metrics *infra.Metrics) *Engine {
	ledger := NewLedger(cfg.StartingCash(), cfg.Account.Currency)
	book := NewBook(ledger.Held)
	monitor := NewMonitor(
		book, ledger, cache, broker, journal, metrics,
		cfg.TickInterval(), cfg.StalenessThreshold(), cfg.Monitor.MaxAttempts,
	)

	return &Engine{
		book:      book,
		ledger:    ledger,
		cache:     cache,
		monitor:   monitor,
		publisher: NewPublisher(book, ledger, cache, metrics),
		journal:   journal,
	}
}

// Start launches the monitor loop.
func (e *Engine) Start(ctx context.Context) {
	e.monitor.Start(ctx)
}

// Stop drains the monitor, finishing any in-flight broker call.
func (e *Engine) Stop() {
	e.monitor.Stop()
}

// PlaceOrder validates and stores the order. Limit orders rest in the book
// until the monitor triggers them; market orders are forwarded for
// execution immediately, before this call returns.
func (e *Engine) PlaceOrder(req domain.OrderRequest) (domain.Order, error) {
	mark := decimal.Zero
	if q, ok := e.cache.Get(req.Instrument); ok {
		mark = q.Mid()
	}

	order, err := e.book.Submit(req, mark)
	if err != nil {
		return domain.Order{}, err
	}
	slog.Info("Order accepted",
		slog.String("order_id", order.ID),
		slog.String("instrument", order.Instrument),
		slog.String("side", string(order.Side)),
		slog.String("type", string(order.Type)))

	if e.journal != nil {
		if jerr := e.journal.SaveOrder(order.Record()); jerr != nil {
			slog.Warn("Journal order write failed", slog.String("order_id", order.ID), slog.Any("error", jerr))
		}
	}

	if order.Type == domain.TypeMarket {
		e.monitor.ExecuteMarket(order.ID)
		if updated, ok := e.book.Get(order.ID); ok {
			return updated, nil
		}
	}
	return order, nil
}

// CancelOrder races the Pending -> Cancelled compare-and-set against the
// monitor's trigger. Losing the race is not an error: the order either
// fills or cancels, exactly one of the two. Pending orders rest locally
// and only reach the venue at trigger time, so there is nothing to cancel
// remotely.
func (e *Engine) CancelOrder(id string) bool {
	if !e.book.Cancel(id) {
		return false
	}
	slog.Info("Order cancelled", slog.String("order_id", id))

	if cancelled, ok := e.book.Get(id); ok && e.journal != nil {
		if err := e.journal.SaveOrder(cancelled.Record()); err != nil {
			slog.Warn("Journal order write failed", slog.String("order_id", id), slog.Any("error", err))
		}
	}
	return true
}

// Orders returns a snapshot of orders matching the filter.
func (e *Engine) Orders(filter func(domain.Order) bool) []domain.Order {
	return e.book.List(filter)
}

// Snapshot returns the read-only account projection.
func (e *Engine) Snapshot() domain.AccountSnapshot {
	return e.publisher.Snapshot()
}

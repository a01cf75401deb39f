package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"
	"github.com/skylee01244/fx-terminal/internal/service"

	"github.com/shopspring/decimal"
)

// brokerCallTimeout bounds a single submission. Broker calls run on their
// own context so an engine shutdown drains the in-flight call instead of
// aborting it mid-fill.
const brokerCallTimeout = 10 * time.Second

// Journal persists order and fill history. Failures are logged and never
// fail trading.
type Journal interface {
	SaveOrder(rec domain.OrderRecord) error
	SaveFill(rec domain.FillRecord) error
}

// Monitor is the scheduler that scans pending limit orders against the
// quote cache and drives execution through the broker. It holds no state of
// its own; the book, ledger, and cache each serialize their own mutations.
type Monitor struct {
	book    *Book
	ledger  *Ledger
	cache   *service.QuoteCache
	broker  domain.Broker
	journal Journal
	metrics *infra.Metrics

	tick        time.Duration
	staleness   time.Duration
	maxAttempts int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor wires a monitor. journal and metrics may be nil.
func NewMonitor(
	book *Book,
	ledger *Ledger,
	cache *service.QuoteCache,
	broker domain.Broker,
	journal Journal,
	metrics *infra.Metrics,
	tick, staleness time.Duration,
	maxAttempts int,
) *Monitor {
	return &Monitor{
		book:        book,
		ledger:      ledger,
		cache:       cache,
		broker:      broker,
		journal:     journal,
		metrics:     metrics,
		tick:        tick,
		staleness:   staleness,
		maxAttempts: maxAttempts,
	}
}

// Start launches the scan loop in its own goroutine. The tick interval
// should be at most the fastest feed's refresh rate so crossings are not
// missed between scans.
func (m *Monitor) Start(ctx context.Context) {
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop signals the loop and waits for the current pass, including any
// in-flight broker call, to finish.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("Order monitor started", slog.Duration("tick", m.tick))

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Order monitor stopping")
			return
		case <-ticker.C:
			start := time.Now()
			m.scan()
			if m.metrics != nil {
				m.metrics.RecordScan(time.Since(start).Nanoseconds())
			}
		}
	}
}

// scan is one monitor pass: linear over the open orders, which is the
// documented scalability ceiling for a single-account book. An
// indexed-by-price structure would serve the same contract if volume grows.
func (m *Monitor) scan() {
	now := time.Now()
	open := m.book.List(func(o domain.Order) bool {
		return o.Status == domain.StatusPending
	})

	for _, o := range open {
		switch o.Type {
		case domain.TypeLimit:
			q, ok := m.cache.Fresh(o.Instrument, now, m.staleness)
			if !ok {
				continue // absent or stale: skip, never fail the order
			}
			if o.ShouldTrigger(q) {
				m.trigger(o.ID, o.TriggerPrice(q))
			}
		case domain.TypeMarket:
			// Market orders normally execute on submission; seeing one here
			// means a transient broker failure put it back for retry.
			m.ExecuteMarket(o.ID)
		}
	}
}

// trigger races the Pending -> Triggering compare-and-set against
// concurrent cancels and other passes. Losing is a no-op, never an error.
func (m *Monitor) trigger(id string, price decimal.Decimal) {
	if !m.book.CompareAndSet(id, domain.StatusPending, domain.StatusTriggering) {
		if m.metrics != nil {
			m.metrics.RecordTriggerLost()
		}
		return
	}
	o, ok := m.book.Get(id)
	if !ok {
		return
	}
	m.execute(o, price)
}

// ExecuteMarket forwards a market order for immediate execution, outside
// the limit scan. Execution needs a cached quote to price the fill; with
// nothing to price against the order stays Pending and the next scan pass
// retries once a quote arrives. A fill is never booked at price zero.
func (m *Monitor) ExecuteMarket(id string) {
	o, ok := m.book.Get(id)
	if !ok {
		return
	}

	price := decimal.Zero
	if q, ok := m.cache.Get(o.Instrument); ok {
		price = o.TriggerPrice(q)
	}
	if !price.IsPositive() {
		slog.Warn("Market order has no quote to price against, deferring",
			slog.String("order_id", id),
			slog.String("instrument", o.Instrument))
		return
	}

	if !m.book.CompareAndSet(id, domain.StatusPending, domain.StatusTriggering) {
		if m.metrics != nil {
			m.metrics.RecordTriggerLost()
		}
		return
	}
	o, ok = m.book.Get(id)
	if !ok {
		return
	}
	m.execute(o, price)
}

// execute owns an order in Triggering state and resolves it to exactly one
// outcome: Filled, Rejected, or Pending again for a bounded retry. Callers
// pass the quote price the trigger decision read; it is always positive.
// The broker call happens without holding any book lock.
func (m *Monitor) execute(o domain.Order, price decimal.Decimal) {
	ctx, cancel := context.WithTimeout(context.Background(), brokerCallTimeout)
	defer cancel()

	_, err := m.broker.Submit(ctx, o)
	if err == nil {
		m.complete(o, price)
		return
	}

	if domain.IsRetriable(err) && o.Attempts+1 < m.maxAttempts {
		reverted, rerr := m.book.Revert(o.ID, err.Error())
		if rerr != nil {
			slog.Error("Revert after transient failure failed",
				slog.String("order_id", o.ID), slog.Any("error", rerr))
			return
		}
		if m.metrics != nil {
			m.metrics.RecordBrokerRetry()
		}
		slog.Warn("Broker submit failed, will retry",
			slog.String("order_id", o.ID),
			slog.Int("attempts", reverted.Attempts),
			slog.Any("error", err))
		m.journalOrder(reverted)
		return
	}

	rejected, rerr := m.book.Reject(o.ID, err.Error())
	if rerr != nil {
		slog.Error("Reject transition failed",
			slog.String("order_id", o.ID), slog.Any("error", rerr))
		return
	}
	if m.metrics != nil {
		m.metrics.RecordOrderRejected()
	}
	slog.Warn("Order rejected",
		slog.String("order_id", o.ID),
		slog.String("instrument", o.Instrument),
		slog.String("reason", rejected.Reason))
	m.journalOrder(rejected)
}

func (m *Monitor) complete(o domain.Order, price decimal.Decimal) {
	now := time.Now()
	filled, err := m.book.Complete(o.ID, price, now)
	if err != nil {
		slog.Error("Fill transition failed",
			slog.String("order_id", o.ID), slog.Any("error", err))
		return
	}

	fill := domain.Fill{
		OrderID:    filled.ID,
		Instrument: filled.Instrument,
		Side:       filled.Side,
		Quantity:   filled.Quantity,
		Price:      price,
		ExecutedAt: now,
	}
	if _, lerr := m.ledger.ApplyFill(fill); lerr != nil {
		// The order is filled at the execution level; the ledger
		// inconsistency is a critical condition, not a silent drop.
		slog.Error("LEDGER_INVARIANT_VIOLATION",
			slog.String("order_id", filled.ID),
			slog.String("instrument", filled.Instrument),
			slog.Any("error", lerr))
	}

	if m.metrics != nil {
		m.metrics.RecordOrderFilled()
	}
	slog.Info("Order filled",
		slog.String("order_id", filled.ID),
		slog.String("instrument", filled.Instrument),
		slog.String("side", string(filled.Side)),
		slog.String("price", price.String()),
		slog.String("quantity", filled.Quantity.String()))

	m.journalOrder(filled)
	m.journalFill(fill)
}

func (m *Monitor) journalOrder(o domain.Order) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveOrder(o.Record()); err != nil {
		slog.Warn("Journal order write failed", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

func (m *Monitor) journalFill(f domain.Fill) {
	if m.journal == nil {
		return
	}
	if err := m.journal.SaveFill(f.Record()); err != nil {
		slog.Warn("Journal fill write failed", slog.String("order_id", f.OrderID), slog.Any("error", err))
	}
}

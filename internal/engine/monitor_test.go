package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/execution"
	"github.com/skylee01244/fx-terminal/internal/infra"
	"github.com/skylee01244/fx-terminal/internal/service"

	"github.com/shopspring/decimal"
)

type monitorFixture struct {
	book    *Book
	ledger  *Ledger
	cache   *service.QuoteCache
	broker  *execution.PaperBroker
	monitor *Monitor
	metrics *infra.Metrics
}

func newMonitorFixture(maxAttempts int) *monitorFixture {
	metrics := &infra.Metrics{}
	ledger := NewLedger(decimal.NewFromInt(1000000), "USD")
	book := NewBook(ledger.Held)
	cache := service.NewQuoteCache(metrics)
	broker := execution.NewPaperBroker(0)
	monitor := NewMonitor(book, ledger, cache, broker, nil, metrics,
		10*time.Millisecond, time.Minute, maxAttempts)
	return &monitorFixture{
		book:    book,
		ledger:  ledger,
		cache:   cache,
		broker:  broker,
		monitor: monitor,
		metrics: metrics,
	}
}

func (f *monitorFixture) putQuote(instrument, bid, ask string, ts time.Time) {
	f.cache.Put(domain.Quote{
		Instrument: instrument,
		Bid:        decimal.RequireFromString(bid),
		Ask:        decimal.RequireFromString(ask),
		Timestamp:  ts,
		Source:     "test",
	})
}

func TestMonitor_BuyLimitTriggersOnce(t *testing.T) {
	f := newMonitorFixture(3)
	o, err := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// First quote does not cross.
	f.putQuote("EUR/USD", "1.0818", "1.0820", time.Now())
	f.monitor.scan()
	if got, _ := f.book.Get(o.ID); got.Status != domain.StatusPending {
		t.Fatalf("Order should still be pending, got %s", got.Status)
	}

	// Second quote crosses: trigger exactly once at the triggering ask.
	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.monitor.scan()
	f.monitor.scan() // extra passes must not re-submit

	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("Expected Filled, got %s (%s)", got.Status, got.Reason)
	}
	if !got.FilledPrice.Equal(decimal.RequireFromString("1.0799")) {
		t.Errorf("Fill must record the triggering quote's ask, got %v", got.FilledPrice)
	}
	if got.TriggeredAt.IsZero() {
		t.Error("TriggeredAt should be set")
	}

	if fills := f.broker.Fills(); len(fills) != 1 {
		t.Errorf("At-most-once execution violated: %d broker submissions", len(fills))
	}

	if !f.ledger.Held("EUR/USD").Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected position 10000, got %v", f.ledger.Held("EUR/USD"))
	}
	positions := f.ledger.Positions()
	if len(positions) != 1 || !positions[0].AvgCost.Equal(decimal.RequireFromString("1.0799")) {
		t.Errorf("Expected avg cost 1.0799, got %+v", positions)
	}
}

func TestMonitor_SellLimitTriggersOnBid(t *testing.T) {
	f := newMonitorFixture(3)
	f.ledger.ApplyFill(fill(domain.SideBuy, "10000", "1.0700"))

	o, err := f.book.Submit(limitReq(domain.SideSell, "10000", "1.0900"), decimal.Zero)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	f.putQuote("EUR/USD", "1.0899", "1.0901", time.Now())
	f.monitor.scan()
	if got, _ := f.book.Get(o.ID); got.Status != domain.StatusPending {
		t.Fatal("Bid below limit must not trigger a sell")
	}

	f.putQuote("EUR/USD", "1.0901", "1.0903", time.Now())
	f.monitor.scan()

	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("Expected Filled, got %s", got.Status)
	}
	if !got.FilledPrice.Equal(decimal.RequireFromString("1.0901")) {
		t.Errorf("Sell must fill at the triggering bid, got %v", got.FilledPrice)
	}
	if !f.ledger.Held("EUR/USD").IsZero() {
		t.Errorf("Position should be flat, got %v", f.ledger.Held("EUR/USD"))
	}
}

func TestMonitor_StaleQuoteNeverTriggers(t *testing.T) {
	f := newMonitorFixture(3)
	o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)

	// Condition numerically met, but the quote is older than the threshold.
	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now().Add(-2*time.Minute))
	f.monitor.scan()

	if got, _ := f.book.Get(o.ID); got.Status != domain.StatusPending {
		t.Fatalf("Stale quote must not trigger, got %s", got.Status)
	}
	if len(f.broker.Fills()) != 0 {
		t.Error("No broker submission may happen on stale data")
	}

	// A fresh quote arrives: now it triggers.
	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.monitor.scan()
	if got, _ := f.book.Get(o.ID); got.Status != domain.StatusFilled {
		t.Fatalf("Fresh quote should trigger, got %s", got.Status)
	}
}

func TestMonitor_FeedDownExcludesQuotes(t *testing.T) {
	f := newMonitorFixture(3)
	o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)

	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.cache.SetFeedDown("test", true)
	f.monitor.scan()

	if got, _ := f.book.Get(o.ID); got.Status != domain.StatusPending {
		t.Fatal("Quotes from a downed feed must not trigger")
	}
}

func TestMonitor_TransientFailureRetriesThenFills(t *testing.T) {
	f := newMonitorFixture(3)
	o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)

	f.broker.FailNext(domain.NewBrokerTransient("submit", errors.New("timeout")))
	f.broker.FailNext(domain.NewBrokerTransient("submit", errors.New("timeout")))

	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())

	f.monitor.scan() // attempt 1 fails, reverts to Pending
	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusPending || got.Attempts != 1 {
		t.Fatalf("Expected Pending with 1 attempt, got %s/%d", got.Status, got.Attempts)
	}

	f.monitor.scan() // attempt 2 fails
	f.monitor.scan() // attempt 3 succeeds

	got, _ = f.book.Get(o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("Expected Filled after retries, got %s (%s)", got.Status, got.Reason)
	}
	if len(f.broker.Fills()) != 1 {
		t.Errorf("Expected exactly 1 fill, got %d", len(f.broker.Fills()))
	}
	if !f.ledger.Held("EUR/USD").Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Ledger must be updated once, held %v", f.ledger.Held("EUR/USD"))
	}
	if f.metrics.Snapshot().BrokerRetries != 2 {
		t.Errorf("Expected 2 retries recorded, got %d", f.metrics.Snapshot().BrokerRetries)
	}
}

func TestMonitor_RetryBoundExhaustedRejects(t *testing.T) {
	f := newMonitorFixture(2)
	o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)

	f.broker.FailNext(domain.NewBrokerTransient("submit", errors.New("connection reset")))
	f.broker.FailNext(domain.NewBrokerTransient("submit", errors.New("connection reset")))

	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.monitor.scan()
	f.monitor.scan()

	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusRejected {
		t.Fatalf("Expected Rejected after retry bound, got %s", got.Status)
	}
	if got.Reason == "" {
		t.Error("The last failure reason must be preserved")
	}
	if f.ledger.Held("EUR/USD").Sign() != 0 {
		t.Error("No ledger change may happen for a rejected order")
	}
}

func TestMonitor_BusinessRejectionIsTerminal(t *testing.T) {
	f := newMonitorFixture(3)
	o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)

	f.broker.FailNext(domain.NewBrokerRejection("submit", "insufficient funds"))

	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.monitor.scan()
	f.monitor.scan() // must not retry

	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusRejected {
		t.Fatalf("Expected Rejected, got %s", got.Status)
	}
	if got.Attempts != 0 {
		t.Errorf("Business rejections are not retried, attempts=%d", got.Attempts)
	}
	if len(f.broker.Fills()) != 0 {
		t.Error("No fill may exist after a rejection")
	}
}

func TestMonitor_ExecuteMarket(t *testing.T) {
	f := newMonitorFixture(3)
	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.broker.UpdatePrice("EUR/USD", decimal.RequireFromString("1.0798"))

	o, _ := f.book.Submit(domain.OrderRequest{
		Instrument: "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.TypeMarket,
		Quantity:   decimal.NewFromInt(5000),
	}, decimal.Zero)

	f.monitor.ExecuteMarket(o.ID)

	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("Market order should fill immediately, got %s", got.Status)
	}
	if !got.FilledPrice.Equal(decimal.RequireFromString("1.0799")) {
		t.Errorf("Market buy should fill at the cached ask, got %v", got.FilledPrice)
	}
}

func TestMonitor_MarketRetryOnNextScan(t *testing.T) {
	f := newMonitorFixture(3)
	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())
	f.broker.UpdatePrice("EUR/USD", decimal.RequireFromString("1.0798"))

	o, _ := f.book.Submit(domain.OrderRequest{
		Instrument: "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.TypeMarket,
		Quantity:   decimal.NewFromInt(5000),
	}, decimal.Zero)

	f.broker.FailNext(domain.NewBrokerTransient("submit", errors.New("timeout")))
	f.monitor.ExecuteMarket(o.ID)

	got, _ := f.book.Get(o.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("Expected Pending after transient failure, got %s", got.Status)
	}

	// The scan picks pending market orders back up.
	f.monitor.scan()
	got, _ = f.book.Get(o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("Expected Filled on retry scan, got %s", got.Status)
	}
}

// ackBroker confirms every submission without reporting an execution
// price, the way a placement ack from a live gateway does.
type ackBroker struct {
	submissions int
}

func (b *ackBroker) Name() string { return "ack" }

func (b *ackBroker) Submit(_ context.Context, o domain.Order) (*domain.Fill, error) {
	b.submissions++
	return &domain.Fill{OrderID: o.ID, Instrument: o.Instrument, Side: o.Side, Quantity: o.Quantity}, nil
}

func (b *ackBroker) Cancel(_ context.Context, _ string) error { return nil }

func TestMonitor_MarketWithoutQuoteNeverFillsAtZero(t *testing.T) {
	metrics := &infra.Metrics{}
	ledger := NewLedger(decimal.NewFromInt(1000000), "USD")
	book := NewBook(ledger.Held)
	cache := service.NewQuoteCache(metrics)
	broker := &ackBroker{}
	monitor := NewMonitor(book, ledger, cache, broker, nil, metrics,
		10*time.Millisecond, time.Minute, 3)

	o, _ := book.Submit(domain.OrderRequest{
		Instrument: "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.TypeMarket,
		Quantity:   decimal.NewFromInt(10000),
	}, decimal.Zero)

	// Empty cache: nothing to price the fill against.
	monitor.ExecuteMarket(o.ID)

	got, _ := book.Get(o.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("Unpriceable market order must stay Pending, got %s", got.Status)
	}
	if broker.submissions != 0 {
		t.Error("No submission may happen without a price")
	}
	if !ledger.Held("EUR/USD").IsZero() {
		t.Errorf("Ledger must be untouched, held %v", ledger.Held("EUR/USD"))
	}
	if !ledger.Cash().Equal(decimal.NewFromInt(1000000)) {
		t.Errorf("Cash must be untouched, got %v", ledger.Cash())
	}

	// A quote arrives: the next scan pass executes at the cached ask.
	cache.Put(domain.Quote{
		Instrument: "EUR/USD",
		Bid:        decimal.RequireFromString("1.0797"),
		Ask:        decimal.RequireFromString("1.0799"),
		Timestamp:  time.Now(),
		Source:     "test",
	})
	monitor.scan()

	got, _ = book.Get(o.ID)
	if got.Status != domain.StatusFilled {
		t.Fatalf("Expected Filled once a quote exists, got %s", got.Status)
	}
	if !got.FilledPrice.Equal(decimal.RequireFromString("1.0799")) {
		t.Errorf("Fill must price at the cached ask, got %v", got.FilledPrice)
	}
	if broker.submissions != 1 {
		t.Errorf("Expected exactly 1 submission, got %d", broker.submissions)
	}
	wantCash := decimal.NewFromInt(1000000).Sub(decimal.NewFromInt(10000).Mul(decimal.RequireFromString("1.0799")))
	if !ledger.Cash().Equal(wantCash) {
		t.Errorf("Expected cash %v after the fill, got %v", wantCash, ledger.Cash())
	}
}

func TestMonitor_CancelTriggerRaceEndToEnd(t *testing.T) {
	for i := 0; i < 100; i++ {
		f := newMonitorFixture(3)
		o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)
		f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.monitor.scan()
		}()
		go func() {
			defer wg.Done()
			f.book.Cancel(o.ID)
		}()
		wg.Wait()

		got, _ := f.book.Get(o.ID)
		switch got.Status {
		case domain.StatusFilled:
			if len(f.broker.Fills()) != 1 {
				t.Fatalf("Filled order must have exactly 1 broker fill, got %d", len(f.broker.Fills()))
			}
		case domain.StatusCancelled:
			if len(f.broker.Fills()) != 0 {
				t.Fatal("Cancelled order must never reach the broker")
			}
		default:
			t.Fatalf("Expected a terminal state, got %s", got.Status)
		}
	}
}

func TestMonitor_StartStop(t *testing.T) {
	f := newMonitorFixture(3)
	o, _ := f.book.Submit(limitReq(domain.SideBuy, "10000", "1.0800"), decimal.Zero)
	f.putQuote("EUR/USD", "1.0797", "1.0799", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.monitor.Start(ctx)

	deadline := time.After(2 * time.Second)
	for {
		got, _ := f.book.Get(o.ID)
		if got.Status == domain.StatusFilled {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Monitor loop never filled the order")
		case <-time.After(5 * time.Millisecond):
		}
	}

	f.monitor.Stop() // must return promptly with no pass in flight
}

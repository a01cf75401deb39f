// Package execution provides Broker implementations. The paper broker is
// the in-memory venue used for paper-trading mode and tests.
package execution

import (
	"context"
	"sync"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"

	"github.com/shopspring/decimal"
)

// Compile-time interface check.
var _ domain.Broker = (*PaperBroker)(nil)

// PaperBroker fills orders instantly against its own price view and cash
// balance. Failures can be scripted for tests.
type PaperBroker struct {
	mu         sync.Mutex
	latency    time.Duration
	prices     map[string]decimal.Decimal
	cash       decimal.Decimal
	checkFunds bool
	fills      []domain.Fill
	scripted   []error
}

// NewPaperBroker creates a paper broker with an optional simulated
// submission latency.
func NewPaperBroker(latency time.Duration) *PaperBroker {
	return &PaperBroker{
		latency: latency,
		prices:  make(map[string]decimal.Decimal),
		cash:    decimal.Zero,
	}
}

// Name returns "paper".
func (b *PaperBroker) Name() string {
	return "paper"
}

// Deposit funds the venue account and enables the insufficient-funds check
// on buys.
func (b *PaperBroker) Deposit(amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cash = b.cash.Add(amount)
	b.checkFunds = true
}

// UpdatePrice sets the venue's execution price for an instrument.
func (b *PaperBroker) UpdatePrice(instrument string, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[instrument] = price
}

// FailNext scripts an error for the next Submit call. Multiple calls queue.
func (b *PaperBroker) FailNext(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripted = append(b.scripted, err)
}

// Submit fills the order at the venue price, or at the order's limit price
// when no venue price is set.
func (b *PaperBroker) Submit(ctx context.Context, order domain.Order) (*domain.Fill, error) {
	if b.latency > 0 {
		select {
		case <-ctx.Done():
			return nil, domain.NewBrokerTransient("submit", ctx.Err())
		case <-time.After(b.latency):
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.scripted) > 0 {
		err := b.scripted[0]
		b.scripted = b.scripted[1:]
		return nil, err
	}

	price := b.prices[order.Instrument]
	if price.IsZero() {
		price = order.LimitPrice
	}
	if price.IsZero() {
		return nil, domain.NewBrokerRejection("submit", "no market price for "+order.Instrument)
	}

	value := order.Quantity.Mul(price)
	switch order.Side {
	case domain.SideBuy:
		if b.checkFunds && value.GreaterThan(b.cash) {
			return nil, domain.NewBrokerRejection("submit", "insufficient funds")
		}
		b.cash = b.cash.Sub(value)
	case domain.SideSell:
		b.cash = b.cash.Add(value)
	}

	fill := domain.Fill{
		OrderID:    order.ID,
		Instrument: order.Instrument,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		ExecutedAt: time.Now(),
	}
	b.fills = append(b.fills, fill)
	return &fill, nil
}

// Cancel is a no-op: the paper venue never holds resting orders.
func (b *PaperBroker) Cancel(_ context.Context, _ string) error {
	return nil
}

// Fills returns a copy of every execution so far.
func (b *PaperBroker) Fills() []domain.Fill {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Fill, len(b.fills))
	copy(out, b.fills)
	return out
}

// Cash returns the venue's remaining cash.
func (b *PaperBroker) Cash() decimal.Decimal {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cash
}

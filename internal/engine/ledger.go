package engine

import (
	"fmt"
	"sync"

	"github.com/skylee01244/fx-terminal/internal/domain"

	"github.com/shopspring/decimal"
)

// Ledger owns per-instrument positions and the cash balance. It is mutated
// only by fills. Positions stay long-only: the submission-time check in the
// book should make an overdraw unreachable, and the check here is the
// backstop against two concurrent sells racing past it together.
type Ledger struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	cash      decimal.Decimal
	currency  string
	alerts    []string
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(startingCash decimal.Decimal, currency string) *Ledger {
	return &Ledger{
		positions: make(map[string]*domain.Position),
		cash:      startingCash,
		currency:  currency,
	}
}

// Held returns the currently held quantity of the instrument.
func (l *Ledger) Held(instrument string) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.positions[instrument]; ok {
		return p.Quantity
	}
	return decimal.Zero
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Currency returns the account currency code.
func (l *Ledger) Currency() string {
	return l.currency
}

// ApplyFill applies a confirmed execution. A buy increases quantity and
// recomputes the weighted-average cost; a sell decreases quantity and
// realizes (fill price - average cost) * quantity.
//
// A sell fill that would take the position negative returns a LedgerError
// and leaves the position untouched. The order is still considered filled
// at the execution level; the inconsistency is surfaced as an alert, never
// dropped.
func (l *Ledger) ApplyFill(f domain.Fill) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[f.Instrument]
	if !ok {
		p = &domain.Position{
			Instrument:  f.Instrument,
			Quantity:    decimal.Zero,
			AvgCost:     decimal.Zero,
			RealizedPnL: decimal.Zero,
		}
		l.positions[f.Instrument] = p
	}

	value := f.Quantity.Mul(f.Price)

	switch f.Side {
	case domain.SideBuy:
		total := p.Quantity.Add(f.Quantity)
		p.AvgCost = p.Quantity.Mul(p.AvgCost).Add(value).Div(total)
		if p.Quantity.IsZero() {
			p.OpenedAt = f.ExecutedAt
		}
		p.Quantity = total
		l.cash = l.cash.Sub(value)

	case domain.SideSell:
		if f.Quantity.GreaterThan(p.Quantity) {
			msg := fmt.Sprintf("sell fill %s exceeds held %s", f.Quantity, p.Quantity)
			l.alerts = append(l.alerts, fmt.Sprintf("[%s] %s", f.Instrument, msg))
			return *p, &domain.LedgerError{Instrument: f.Instrument, Msg: msg}
		}
		realized := f.Price.Sub(p.AvgCost).Mul(f.Quantity)
		p.Quantity = p.Quantity.Sub(f.Quantity)
		p.RealizedPnL = p.RealizedPnL.Add(realized)
		l.cash = l.cash.Add(value)
	}

	return *p, nil
}

// Positions returns copies of all positions, including flat ones that still
// carry realized PnL.
func (l *Ledger) Positions() []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	result := make([]domain.Position, 0, len(l.positions))
	for _, p := range l.positions {
		result = append(result, *p)
	}
	return result
}

// Alerts returns a copy of the critical conditions recorded so far.
func (l *Ledger) Alerts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.alerts))
	copy(out, l.alerts)
	return out
}

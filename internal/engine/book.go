package engine

import (
	"sync"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Book owns the set of orders and their lifecycle. It is the single source
// of truth for order status; every status change goes through a
// compare-and-set under the book's lock, which makes the cancel/trigger
// race deterministic: whichever caller wins the CAS wins the order, the
// loser is a no-op.
type Book struct {
	mu     sync.Mutex
	orders map[string]*domain.Order

	// held reports the currently held quantity of an instrument, used for
	// the long-only check at submission time.
	held func(instrument string) decimal.Decimal
}

// NewBook creates an empty order book. held may be nil, which disables the
// long-only submission check (tests only).
func NewBook(held func(instrument string) decimal.Decimal) *Book {
	return &Book{
		orders: make(map[string]*domain.Order),
		held:   held,
	}
}

// Submit validates the request, assigns an id, and stores the order as
// Pending. mark is the current market midpoint used to arm breakout
// semantics; pass zero when no quote is available yet.
func (b *Book) Submit(req domain.OrderRequest, mark decimal.Decimal) (domain.Order, error) {
	if req.Instrument == "" {
		return domain.Order{}, &domain.ValidationError{Field: "instrument", Msg: "must not be empty"}
	}
	if req.Side != domain.SideBuy && req.Side != domain.SideSell {
		return domain.Order{}, &domain.ValidationError{Field: "side", Msg: "must be BUY or SELL"}
	}
	if req.Type != domain.TypeMarket && req.Type != domain.TypeLimit {
		return domain.Order{}, &domain.ValidationError{Field: "type", Msg: "must be MARKET or LIMIT"}
	}
	if !req.Quantity.IsPositive() {
		return domain.Order{}, &domain.ValidationError{Field: "quantity", Msg: "must be positive"}
	}
	if req.Type == domain.TypeLimit && !req.LimitPrice.IsPositive() {
		return domain.Order{}, &domain.ValidationError{Field: "limit_price", Msg: "required for limit orders"}
	}
	if req.Side == domain.SideSell && b.held != nil {
		if req.Quantity.GreaterThan(b.held(req.Instrument)) {
			return domain.Order{}, &domain.ValidationError{
				Field: "quantity",
				Msg:   "sell quantity exceeds held position (long-only)",
			}
		}
	}

	o := &domain.Order{
		ID:         uuid.NewString(),
		Instrument: req.Instrument,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		Status:     domain.StatusPending,
		CreatedAt:  time.Now(),
	}
	if req.Type == domain.TypeLimit && mark.IsPositive() {
		// A buy armed above the market is a breakout entry, a sell armed
		// below the market is a stop exit. Resolved once, here.
		if req.Side == domain.SideBuy {
			o.TriggerAbove = req.LimitPrice.GreaterThan(mark)
		} else {
			o.TriggerAbove = req.LimitPrice.LessThan(mark)
		}
	}

	b.mu.Lock()
	b.orders[o.ID] = o
	b.mu.Unlock()

	return *o, nil
}

// Cancel attempts the Pending -> Cancelled transition. It fails harmlessly
// (returns false) when the order is unknown or already left Pending.
func (b *Book) Cancel(id string) bool {
	return b.CompareAndSet(id, domain.StatusPending, domain.StatusCancelled)
}

// CompareAndSet transitions the order from -> to if and only if its current
// status is from and the transition is legal. Returns whether it won.
func (b *Book) CompareAndSet(id string, from, to domain.Status) bool {
	if !domain.CanTransition(from, to) {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok || o.Status != from {
		return false
	}
	o.Status = to
	return true
}

// Get returns a copy of the order.
func (b *Book) Get(id string) (domain.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, false
	}
	return *o, true
}

// List returns copies of every order the filter accepts. The result is a
// snapshot, not a live view. A nil filter accepts everything.
func (b *Book) List(filter func(domain.Order) bool) []domain.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		if filter == nil || filter(*o) {
			result = append(result, *o)
		}
	}
	return result
}

// Complete finishes a Triggering order as Filled, recording the price that
// caused the trigger. Only the actor that won the Triggering CAS calls it.
func (b *Book) Complete(id string, price decimal.Decimal, at time.Time) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != domain.StatusTriggering {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	o.Status = domain.StatusFilled
	o.FilledPrice = price
	o.TriggeredAt = at
	return *o, nil
}

// Reject moves a Triggering order to the terminal Rejected state, keeping
// the failure reason for user visibility.
func (b *Book) Reject(id, reason string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != domain.StatusTriggering {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	o.Status = domain.StatusRejected
	o.Reason = reason
	return *o, nil
}

// Revert returns a Triggering order to Pending after a transient broker
// failure, counting the attempt. The returned order carries the new count
// so the caller can enforce the retry bound.
func (b *Book) Revert(id, reason string) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != domain.StatusTriggering {
		return domain.Order{}, domain.ErrInvalidTransition
	}
	o.Status = domain.StatusPending
	o.Attempts++
	o.Reason = reason
	return *o, nil
}

package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

// Type distinguishes immediate execution from price-triggered execution.
type Type string

// Status is the lifecycle state of an order.
type Status string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"

	TypeMarket Type = "MARKET"
	TypeLimit  Type = "LIMIT"

	StatusPending    Status = "PENDING"
	StatusTriggering Status = "TRIGGERING"
	StatusFilled     Status = "FILLED"
	StatusCancelled  Status = "CANCELLED"
	StatusRejected   Status = "REJECTED"
)

// Terminal reports whether the status is final. Terminal orders never
// transition again.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}

// validTransitions encodes the order state machine. Triggering -> Pending is
// the transient-broker-failure revert path.
var validTransitions = map[Status][]Status{
	StatusPending:    {StatusTriggering, StatusCancelled},
	StatusTriggering: {StatusFilled, StatusRejected, StatusPending},
}

// CanTransition reports whether from -> to is a legal status change.
func CanTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OrderRequest is the user's intent before validation. LimitPrice is
// required for limit orders and ignored for market orders.
type OrderRequest struct {
	Instrument string
	Side       Side
	Type       Type
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal
}

// Order is a validated, book-owned order. Status changes are serialized by
// the order book; nothing outside the book mutates an Order.
type Order struct {
	ID         string
	Instrument string
	Side       Side
	Type       Type
	Quantity   decimal.Decimal
	LimitPrice decimal.Decimal

	// TriggerAbove arms a limit order as a breakout (trigger when the price
	// rises to the limit) instead of the usual dip/rally semantics. It is
	// resolved once at submission from the market price at that moment.
	TriggerAbove bool

	Status   Status
	Reason   string // last broker failure, kept for user visibility
	Attempts int    // broker submission attempts so far

	CreatedAt   time.Time
	TriggeredAt time.Time       // zero until the order triggers
	FilledPrice decimal.Decimal // the quote price that caused the trigger
}

// IsOpen reports whether the order is still actionable.
func (o *Order) IsOpen() bool {
	return !o.Status.Terminal()
}

// ShouldTrigger reports whether the quote crosses the order's limit price.
// Buy checks the ask, sell checks the bid, so the price recorded at the
// trigger is one the market actually showed for that side.
func (o *Order) ShouldTrigger(q Quote) bool {
	if o.Type != TypeLimit {
		return false
	}
	if o.TriggerAbove {
		if o.Side == SideBuy {
			return q.Ask.GreaterThanOrEqual(o.LimitPrice)
		}
		return q.Bid.LessThanOrEqual(o.LimitPrice)
	}
	if o.Side == SideBuy {
		return q.Ask.LessThanOrEqual(o.LimitPrice)
	}
	return q.Bid.GreaterThanOrEqual(o.LimitPrice)
}

// TriggerPrice returns the side of the quote the trigger decision reads.
func (o *Order) TriggerPrice(q Quote) decimal.Decimal {
	if o.Side == SideBuy {
		return q.Ask
	}
	return q.Bid
}

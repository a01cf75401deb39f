package domain

import (
	"errors"
	"fmt"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// ValidationError rejects a bad order request synchronously at submission.
// No order is created. Never retriable.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return "invalid order [" + e.Field + "]: " + e.Msg
}

func (e *ValidationError) IsRetriable() bool {
	return false
}

// BrokerError reports a failed broker call. Transient failures (network,
// timeout) are retriable; business rejections are not.
type BrokerError struct {
	Op        string // e.g. "submit", "cancel"
	Reason    string // human-readable cause, preserved on the order
	Err       error  // underlying error, may be nil for API-level rejections
	Retriable bool
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return "broker " + e.Op + ": " + e.Reason + ": " + e.Err.Error()
	}
	return "broker " + e.Op + ": " + e.Reason
}

func (e *BrokerError) IsRetriable() bool {
	return e.Retriable
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerTransient wraps a network-level broker failure that a later
// attempt may succeed on.
func NewBrokerTransient(op string, err error) *BrokerError {
	return &BrokerError{Op: op, Reason: "transient failure", Err: err, Retriable: true}
}

// NewBrokerRejection wraps a terminal business rejection (e.g. insufficient
// funds). The order moves straight to Rejected.
func NewBrokerRejection(op, reason string) *BrokerError {
	return &BrokerError{Op: op, Reason: reason, Retriable: false}
}

// LedgerError reports a position-ledger invariant violation. It indicates a
// concurrency bug and is surfaced as a critical condition, never swallowed.
type LedgerError struct {
	Instrument string
	Msg        string
}

func (e *LedgerError) Error() string {
	return fmt.Sprintf("ledger invariant [%s]: %s", e.Instrument, e.Msg)
}

func (e *LedgerError) IsRetriable() bool {
	return false
}

var (
	// ErrOrderNotFound is returned when an order id is unknown to the book.
	ErrOrderNotFound = errors.New("order not found")

	// ErrInvalidTransition is returned when a status change is not legal for
	// the order's current state.
	ErrInvalidTransition = errors.New("invalid order state transition")

	// ErrFeedDown marks a feed that exhausted its reconnect attempts.
	ErrFeedDown = errors.New("feed down")

	// ErrQuoteStale marks a quote older than the configured freshness threshold.
	ErrQuoteStale = errors.New("quote stale")
)

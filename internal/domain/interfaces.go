package domain

import "context"

// QuoteSink receives quotes pushed by a feed. The quote cache is the only
// consumer; feeds never talk to the monitor directly.
type QuoteSink func(Quote)

// Feed defines the interface for market data producers. Both the streaming
// and the polled variant satisfy it; the monitor only ever reads the cache,
// so the variants are interchangeable downstream.
type Feed interface {
	Start(ctx context.Context) error
	Stop()
	Source() string
}

// Broker abstracts the execution venue. Side effects are opaque; failures
// come back as *BrokerError results.
type Broker interface {
	Name() string

	// Submit sends an order for execution and returns the resulting fill.
	Submit(ctx context.Context, order Order) (*Fill, error)

	// Cancel requests cancellation of a working order at the venue.
	Cancel(ctx context.Context, orderID string) error
}

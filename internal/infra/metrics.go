package infra

import (
	"sync/atomic"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
)

// Metrics provides lightweight observability without external dependencies.
// Uses atomic operations for thread-safety.
type Metrics struct {
	// Counters
	quotesApplied  atomic.Uint64
	quotesDropped  atomic.Uint64 // out-of-order or duplicate updates discarded
	scansCompleted atomic.Uint64
	ordersFilled   atomic.Uint64
	triggersLost   atomic.Uint64 // trigger CAS lost to a concurrent cancel or pass
	brokerRetries  atomic.Uint64
	ordersRejected atomic.Uint64

	// Latency tracking (scan duration)
	scanSumNs   atomic.Int64
	scanCount   atomic.Uint64

	// Gauges
	feedConnected atomic.Int32 // 1 = connected, 0 = down
}

// RecordQuoteApplied counts a quote accepted by the cache.
func (m *Metrics) RecordQuoteApplied() {
	m.quotesApplied.Add(1)
}

// RecordQuoteDropped counts a quote discarded for being out of order.
func (m *Metrics) RecordQuoteDropped() {
	m.quotesDropped.Add(1)
}

// RecordScan records one completed monitor pass with its duration.
func (m *Metrics) RecordScan(latencyNs int64) {
	m.scansCompleted.Add(1)
	m.scanSumNs.Add(latencyNs)
	m.scanCount.Add(1)
}

// RecordOrderFilled records a filled order.
func (m *Metrics) RecordOrderFilled() {
	m.ordersFilled.Add(1)
}

// RecordTriggerLost records a trigger attempt that lost its compare-and-set.
func (m *Metrics) RecordTriggerLost() {
	m.triggersLost.Add(1)
}

// RecordBrokerRetry records a transient broker failure scheduled for retry.
func (m *Metrics) RecordBrokerRetry() {
	m.brokerRetries.Add(1)
}

// RecordOrderRejected records a terminal order rejection.
func (m *Metrics) RecordOrderRejected() {
	m.ordersRejected.Add(1)
}

// SetFeedConnected sets the feed connectivity gauge.
func (m *Metrics) SetFeedConnected(connected bool) {
	if connected {
		m.feedConnected.Store(1)
	} else {
		m.feedConnected.Store(0)
	}
}

// Snapshot returns current counters as a point-in-time view, carried on
// the account snapshot for the UI refresh cycle.
func (m *Metrics) Snapshot() domain.MetricsSnapshot {
	var avgScan int64
	count := m.scanCount.Load()
	if count > 0 {
		avgScan = m.scanSumNs.Load() / int64(count)
	}

	return domain.MetricsSnapshot{
		QuotesApplied:  m.quotesApplied.Load(),
		QuotesDropped:  m.quotesDropped.Load(),
		ScansCompleted: m.scansCompleted.Load(),
		OrdersFilled:   m.ordersFilled.Load(),
		TriggersLost:   m.triggersLost.Load(),
		BrokerRetries:  m.brokerRetries.Load(),
		OrdersRejected: m.ordersRejected.Load(),
		AvgScanNs:      avgScan,
		FeedConnected:  m.feedConnected.Load() == 1,
		Timestamp:      time.Now(),
	}
}

// Reset clears all metrics (for testing).
func (m *Metrics) Reset() {
	m.quotesApplied.Store(0)
	m.quotesDropped.Store(0)
	m.scansCompleted.Store(0)
	m.ordersFilled.Store(0)
	m.triggersLost.Store(0)
	m.brokerRetries.Store(0)
	m.ordersRejected.Store(0)
	m.scanSumNs.Store(0)
	m.scanCount.Store(0)
	m.feedConnected.Store(0)
}

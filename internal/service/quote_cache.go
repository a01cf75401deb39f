package service

import (
	"context"
	"sync"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"
)

// QuoteCache is the thread-safe store of the latest quote per instrument.
// Feed producers write into it concurrently; the order monitor and the
// snapshot publisher only ever read it. It also tracks per-source feed
// health for staleness reporting.
type QuoteCache struct {
	mu        sync.RWMutex
	quotes    map[string]domain.Quote
	feeds     map[string]*domain.FeedState
	metrics   *infra.Metrics
	quoteChan chan domain.Quote
}

// NewQuoteCache creates an empty cache. metrics may be nil.
func NewQuoteCache(metrics *infra.Metrics) *QuoteCache {
	return &QuoteCache{
		quotes:    make(map[string]domain.Quote),
		feeds:     make(map[string]*domain.FeedState),
		metrics:   metrics,
		quoteChan: make(chan domain.Quote, 1000), // buffered so bursts never block producers
	}
}

// Put stores the quote unless an equal-or-newer timestamp is already cached
// for the instrument. Out-of-order and duplicate updates are discarded
// silently; arrival order is not trusted across feed variants.
func (c *QuoteCache) Put(q domain.Quote) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cur, ok := c.quotes[q.Instrument]; ok && cur.Timestamp.After(q.Timestamp) {
		if c.metrics != nil {
			c.metrics.RecordQuoteDropped()
		}
		return
	}
	c.quotes[q.Instrument] = q

	fs, ok := c.feeds[q.Source]
	if !ok {
		fs = &domain.FeedState{Source: q.Source}
		c.feeds[q.Source] = fs
	}
	fs.Down = false
	fs.LastUpdate = q.Timestamp

	if c.metrics != nil {
		c.metrics.RecordQuoteApplied()
	}
}

// Get returns the cached quote for the instrument, if any.
func (c *QuoteCache) Get(instrument string) (domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[instrument]
	return q, ok
}

// Fresh returns the cached quote only if it is newer than maxAge. A quote
// from a downed feed is never fresh.
func (c *QuoteCache) Fresh(instrument string, now time.Time, maxAge time.Duration) (domain.Quote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[instrument]
	if !ok || q.OlderThan(now, maxAge) {
		return domain.Quote{}, false
	}
	if fs, ok := c.feeds[q.Source]; ok && fs.Down {
		return domain.Quote{}, false
	}
	return q, true
}

// All returns a copy of every cached quote, keyed by instrument.
func (c *QuoteCache) All() map[string]domain.Quote {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]domain.Quote, len(c.quotes))
	for k, v := range c.quotes {
		result[k] = v
	}
	return result
}

// SetFeedDown flags a source whose feed exhausted its reconnect attempts.
// Quotes from a downed source are excluded from trigger decisions until the
// feed recovers and publishes again.
func (c *QuoteCache) SetFeedDown(source string, down bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fs, ok := c.feeds[source]
	if !ok {
		fs = &domain.FeedState{Source: source}
		c.feeds[source] = fs
	}
	fs.Down = down

	if c.metrics != nil {
		c.metrics.SetFeedConnected(!down)
	}
}

// FeedStates returns a copy of the per-source health records.
func (c *QuoteCache) FeedStates() []domain.FeedState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]domain.FeedState, 0, len(c.feeds))
	for _, fs := range c.feeds {
		result = append(result, *fs)
	}
	return result
}

// Sink returns the push interface handed to feeds. It enqueues into a
// buffered channel so a slow consumer can never block a feed's read loop.
func (c *QuoteCache) Sink() domain.QuoteSink {
	return func(q domain.Quote) {
		select {
		case c.quoteChan <- q:
		default: // DROP
			if c.metrics != nil {
				c.metrics.RecordQuoteDropped()
			}
		}
	}
}

// StartProcessor starts a background goroutine draining the sink channel
// into the cache until the context is done.
func (c *QuoteCache) StartProcessor(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case q := <-c.quoteChan:
				c.Put(q)
			}
		}
	}()
}

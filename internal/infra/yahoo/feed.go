package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"

	"github.com/shopspring/decimal"
)

const (
	feedSource = "yahoo"

	// Chart quotes carry a single price; synthesize a bid/ask one pip wide.
	spreadRatio = 0.0001

	maxConsecutiveFailures = 3
)

var tickerBySymbol = map[string]string{
	"EUR/DKK": "EURDKK=X",
	"EUR/GBP": "EURGBP=X",
	"EUR/USD": "EURUSD=X",
	"GBP/USD": "GBPUSD=X",
	"USD/JPY": "JPY=X",
}

// chartResponse is the v8 finance chart payload, trimmed to the meta block.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Feed polls chart quotes for the configured instruments at a fixed
// interval. Quote timestamps are poll times, not exchange times, so the
// trigger scan treats them with the same staleness rules as streamed data.
type Feed struct {
	baseURL      string
	instruments  []string
	pollInterval time.Duration
	sink         domain.QuoteSink
	down         func(source string, down bool)

	httpClient *http.Client
	failures   int
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewFeed creates a polled feed. down may be nil.
func NewFeed(cfg *infra.Config, sink domain.QuoteSink, down func(source string, down bool)) *Feed {
	baseURL := cfg.Feed.Yahoo.URL
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	interval := time.Duration(cfg.Feed.Yahoo.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return &Feed{
		baseURL:      baseURL,
		instruments:  cfg.Feed.Instruments,
		pollInterval: interval,
		sink:         sink,
		down:         down,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (f *Feed) Source() string { return feedSource }

// Start fetches once immediately, then begins the polling loop.
func (f *Feed) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)

	if err := f.poll(ctx); err != nil {
		slog.Warn("Initial quote fetch failed", slog.Any("error", err))
		// Continue anyway - will retry on next tick
	}

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Quote polling panic recovered", slog.Any("panic", r))
			}
		}()

		ticker := time.NewTicker(f.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				slog.Info("Quote polling stopped")
				return
			case <-ticker.C:
				if err := f.poll(ctx); err != nil {
					slog.Warn("Quote poll failed", slog.Any("error", err))
				}
			}
		}
	}()

	return nil
}

// Stop stops the polling loop.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
		f.wg.Wait()
	}
	slog.Info("Yahoo feed stopped")
}

// poll fetches every configured instrument once. A cycle succeeds if any
// instrument produced a quote; repeated full failures mark the feed down.
func (f *Feed) poll(ctx context.Context) error {
	var lastErr error
	published := 0

	for _, sym := range f.instruments {
		ticker, ok := tickerBySymbol[sym]
		if !ok {
			slog.Warn("Unknown instrument, skipping poll", slog.String("instrument", sym))
			continue
		}
		if err := f.fetchQuote(ctx, sym, ticker); err != nil {
			lastErr = err
			continue
		}
		published++
	}

	if published == 0 && lastErr != nil {
		f.failures++
		if f.failures >= maxConsecutiveFailures {
			slog.Error("Quote polling failing repeatedly, marking feed down",
				slog.Int("failures", f.failures))
			f.markDown(true)
		}
		return lastErr
	}

	f.failures = 0
	f.markDown(false)
	return nil
}

// fetchQuote fetches one instrument with bounded retry and backoff.
func (f *Feed) fetchQuote(ctx context.Context, symbol, ticker string) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if i > 0 {
			delay := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := f.doFetch(ctx, symbol, ticker)
		if err == nil {
			return nil
		}
		lastErr = err
		slog.Warn("Quote fetch attempt failed",
			slog.String("instrument", symbol),
			slog.Int("attempt", i+1),
			slog.Any("error", err))
	}
	return lastErr
}

func (f *Feed) doFetch(ctx context.Context, symbol, ticker string) error {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1m&range=1d", f.baseURL, ticker)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	// Browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", infra.DefaultUserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var data chartResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return err
	}

	if data.Chart.Error != nil {
		return fmt.Errorf("chart api error: %s", data.Chart.Error.Description)
	}
	if len(data.Chart.Result) == 0 {
		return fmt.Errorf("empty chart response for %s", ticker)
	}

	price := data.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return fmt.Errorf("no market price for %s", ticker)
	}

	mid := decimal.NewFromFloat(price)
	halfSpread := mid.Mul(decimal.NewFromFloat(spreadRatio)).Div(decimal.NewFromInt(2))

	f.sink(domain.Quote{
		Instrument: symbol,
		Bid:        mid.Sub(halfSpread),
		Ask:        mid.Add(halfSpread),
		Timestamp:  time.Now(),
		Source:     feedSource,
	})

	return nil
}

func (f *Feed) markDown(down bool) {
	if f.down != nil {
		f.down(feedSource, down)
	}
}

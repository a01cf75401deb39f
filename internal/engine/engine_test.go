package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/execution"
	"github.com/skylee01244/fx-terminal/internal/infra"
	"github.com/skylee01244/fx-terminal/internal/service"

	"github.com/shopspring/decimal"
)

func newTestEngine(t *testing.T) (*Engine, *service.QuoteCache, *execution.PaperBroker) {
	t.Helper()
	cfg := &infra.Config{}
	cfg.Feed.StalenessThresholdSec = 60
	cfg.Monitor.TickIntervalMS = 10
	cfg.Monitor.MaxAttempts = 3
	cfg.Account.StartingCash = "1000000"
	cfg.Account.Currency = "USD"

	cache := service.NewQuoteCache(nil)
	broker := execution.NewPaperBroker(0)
	eng := New(cfg, cache, broker, nil, &infra.Metrics{})
	return eng, cache, broker
}

func TestEngine_MarketOrderExecutesOnPlacement(t *testing.T) {
	eng, cache, broker := newTestEngine(t)
	cache.Put(domain.Quote{
		Instrument: "EUR/USD",
		Bid:        decimal.RequireFromString("1.0898"),
		Ask:        decimal.RequireFromString("1.0902"),
		Timestamp:  time.Now(),
		Source:     "test",
	})
	broker.UpdatePrice("EUR/USD", decimal.RequireFromString("1.0900"))

	o, err := eng.PlaceOrder(domain.OrderRequest{
		Instrument: "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.TypeMarket,
		Quantity:   decimal.NewFromInt(10000),
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if o.Status != domain.StatusFilled {
		t.Fatalf("Market order should fill before PlaceOrder returns, got %s", o.Status)
	}
	if !o.FilledPrice.Equal(decimal.RequireFromString("1.0902")) {
		t.Errorf("Market buy should price at the cached ask, got %v", o.FilledPrice)
	}

	snap := eng.Snapshot()
	if len(snap.Positions) != 1 || !snap.Positions[0].Quantity.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("Expected position 10000, got %+v", snap.Positions)
	}
}

func TestEngine_LimitOrderRestsUntilCancelled(t *testing.T) {
	eng, _, broker := newTestEngine(t)

	o, err := eng.PlaceOrder(domain.OrderRequest{
		Instrument: "EUR/USD",
		Side:       domain.SideBuy,
		Type:       domain.TypeLimit,
		Quantity:   decimal.NewFromInt(10000),
		LimitPrice: decimal.RequireFromString("1.0800"),
	})
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if o.Status != domain.StatusPending {
		t.Fatalf("Limit order should rest as Pending, got %s", o.Status)
	}

	if !eng.CancelOrder(o.ID) {
		t.Fatal("Cancel of a pending order should win")
	}
	if eng.CancelOrder(o.ID) {
		t.Error("Second cancel must be a no-op")
	}

	open := eng.Orders(func(o domain.Order) bool { return o.IsOpen() })
	if len(open) != 0 {
		t.Errorf("Expected no open orders, got %d", len(open))
	}
	if len(broker.Fills()) != 0 {
		t.Error("Cancelled order must never reach the broker")
	}
}

func TestEngine_RejectsShortSell(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.PlaceOrder(domain.OrderRequest{
		Instrument: "EUR/USD",
		Side:       domain.SideSell,
		Type:       domain.TypeLimit,
		Quantity:   decimal.NewFromInt(1),
		LimitPrice: decimal.RequireFromString("1.0900"),
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected ValidationError for short sell, got %v", err)
	}
	if len(eng.Orders(nil)) != 0 {
		t.Error("No order may be created on validation failure")
	}
}

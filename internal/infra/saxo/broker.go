package saxo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"
)

// Broker places and cancels FX spot orders through the gateway REST API.
// Network failures and 5xx responses are transient; 4xx responses carry a
// business reason and are terminal.
type Broker struct {
	restURL    string
	token      string
	accountKey string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewBroker creates a REST broker from the configured credentials.
func NewBroker(cfg *infra.Config) *Broker {
	return &Broker{
		restURL:    cfg.Feed.Saxo.RestURL,
		token:      cfg.Feed.Saxo.Token,
		accountKey: cfg.Feed.Saxo.AccountKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		logger: slog.Default().With("module", "saxo_broker"),
	}
}

func (b *Broker) Name() string { return "saxo" }

// Submit places the order and reports the gateway's acknowledgement as a
// fill. Limit triggering happens locally, so orders always go out as Market
// for immediate execution. The gateway does not echo an execution price on
// placement; the caller prices the fill from the quote that triggered it.
func (b *Broker) Submit(ctx context.Context, o domain.Order) (*domain.Fill, error) {
	uic, ok := uicBySymbol[o.Instrument]
	if !ok {
		return nil, domain.NewBrokerRejection("submit", fmt.Sprintf("unknown instrument %s", o.Instrument))
	}

	buySell := "Buy"
	if o.Side == domain.SideSell {
		buySell = "Sell"
	}

	reqBody := orderRequest{
		Uic:           uic,
		BuySell:       buySell,
		AssetType:     "FxSpot",
		Amount:        o.Quantity.String(),
		OrderType:     "Market",
		OrderRelation: "StandAlone",
		ManualOrder:   false,
		OrderDuration: map[string]any{"DurationType": "GoodTillCancel"},
		AccountKey:    b.accountKey,
	}

	resp, err := b.doRequest(ctx, http.MethodPost, "/trade/v2/orders", reqBody)
	if err != nil {
		return nil, domain.NewBrokerTransient("submit", err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
		return nil, domain.NewBrokerTransient("submit",
			fmt.Errorf("gateway error: status=%d body=%s", resp.StatusCode, string(bodyBytes)))
	}

	var apiResp orderResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, domain.NewBrokerTransient("submit", fmt.Errorf("parse response: %w", err))
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		reason := fmt.Sprintf("status %d", resp.StatusCode)
		if apiResp.ErrorInfo != nil {
			reason = apiResp.ErrorInfo.Message
		}
		return nil, domain.NewBrokerRejection("submit", reason)
	}

	b.logger.Info("Order placed",
		slog.String("order_id", o.ID),
		slog.String("gateway_order_id", apiResp.OrderID),
		slog.String("instrument", o.Instrument))

	return &domain.Fill{
		OrderID:    o.ID,
		Instrument: o.Instrument,
		Side:       o.Side,
		Quantity:   o.Quantity,
		ExecutedAt: time.Now(),
	}, nil
}

// Cancel best-effort cancels the order at the gateway. A 404 means the
// order is already gone and is not an error.
func (b *Broker) Cancel(ctx context.Context, orderID string) error {
	path := fmt.Sprintf("/trade/v2/orders/%s?AccountKey=%s", orderID, b.accountKey)
	resp, err := b.doRequest(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return domain.NewBrokerTransient("cancel", err)
	}
	defer resp.Body.Close()
	io.ReadAll(resp.Body)

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode != http.StatusNotFound {
		return domain.NewBrokerRejection("cancel", fmt.Sprintf("status %d", resp.StatusCode))
	}
	return nil
}

func (b *Broker) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.restURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+b.token)
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return b.httpClient.Do(req)
}

package saxo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const (
	feedSource      = "saxo"
	feedMaxRetries  = 10
	feedReadTimeout = 60 * time.Second
)

// DownFunc reports a change in feed health to the quote cache.
type DownFunc func(source string, down bool)

// Feed streams FX spot prices over the gateway WebSocket. It reconnects
// with exponential backoff and marks the source down once the retry limit
// is exhausted, without ever giving up; publishing resumes on reconnect.
type Feed struct {
	wsURL       string
	token       string
	accountKey  string
	instruments []string
	sink        domain.QuoteSink
	down        DownFunc

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewFeed creates a streaming feed for the configured instruments. down may
// be nil.
func NewFeed(cfg *infra.Config, sink domain.QuoteSink, down DownFunc) *Feed {
	return &Feed{
		wsURL:       cfg.Feed.Saxo.WSURL,
		token:       cfg.Feed.Saxo.Token,
		accountKey:  cfg.Feed.Saxo.AccountKey,
		instruments: cfg.Feed.Instruments,
		sink:        sink,
		down:        down,
	}
}

func (f *Feed) Source() string { return feedSource }

// Start launches the connection loop.
func (f *Feed) Start(ctx context.Context) error {
	ctx, f.cancel = context.WithCancel(ctx)

	f.wg.Add(1)
	go f.connectionLoop(ctx)

	return nil
}

// Stop closes the connection and waits for the loop to exit.
func (f *Feed) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.closeConnection()
	f.wg.Wait()
	slog.Info("Saxo feed stopped")
}

func (f *Feed) connectionLoop(ctx context.Context) {
	defer f.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Saxo feed panic recovered", slog.Any("panic", r))
		}
	}()

	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Saxo connection loop stopped")
			return
		default:
		}

		err := f.connect(ctx)
		if err != nil {
			slog.Warn("Saxo connection failed",
				slog.Any("error", err),
				slog.Int("retry", retryCount),
			)

			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			if retryCount > feedMaxRetries {
				slog.Error("Saxo max retries exceeded, marking feed down")
				f.markDown(true)
				retryCount = 0
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}

		retryCount = 0
		f.markDown(false)

		f.readLoop(ctx)
	}
}

func (f *Feed) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)
	header.Add("Authorization", "Bearer "+f.token)

	conn, _, err := dialer.DialContext(ctx, f.wsURL, header)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()

	if err := f.subscribe(); err != nil {
		f.closeConnection()
		return fmt.Errorf("subscribe failed: %w", err)
	}

	slog.Info("Saxo WebSocket connected",
		slog.Int("instruments", len(f.instruments)),
	)

	return nil
}

func (f *Feed) subscribe() error {
	uics := make([]int, 0, len(f.instruments))
	for _, sym := range f.instruments {
		uic, ok := uicBySymbol[sym]
		if !ok {
			slog.Warn("Unknown instrument, skipping subscription", slog.String("instrument", sym))
			continue
		}
		uics = append(uics, uic)
	}
	if len(uics) == 0 {
		return fmt.Errorf("no subscribable instruments")
	}

	subscribeMsg := map[string]any{
		"ContextId":   fmt.Sprintf("fx-terminal-%d", time.Now().UnixNano()),
		"ReferenceId": "prices",
		"Arguments": map[string]any{
			"Uics":       uics,
			"AssetType":  "FxSpot",
			"AccountKey": f.accountKey,
		},
	}

	msgBytes, err := json.Marshal(subscribeMsg)
	if err != nil {
		return err
	}

	return f.threadSafeWrite(websocket.TextMessage, msgBytes)
}

func (f *Feed) threadSafeWrite(messageType int, data []byte) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	conn := f.conn
	f.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("connection is nil")
	}

	return conn.WriteMessage(messageType, data)
}

func (f *Feed) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()

		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(feedReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Saxo WebSocket read error", slog.Any("error", err))
			}
			f.closeConnection()
			return
		}

		f.handleMessage(message)
	}
}

func (f *Feed) handleMessage(message []byte) {
	var msg priceMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		slog.Debug("Saxo message parse error", slog.Any("error", err))
		return
	}

	symbol, ok := symbolByUIC[msg.Uic]
	if !ok {
		return
	}
	if msg.Quote.Bid <= 0 || msg.Quote.Ask <= 0 {
		return
	}

	ts := time.Now()
	if msg.LastUpdated != "" {
		if parsed, err := time.Parse(time.RFC3339, msg.LastUpdated); err == nil {
			ts = parsed
		}
	}

	f.sink(domain.Quote{
		Instrument: symbol,
		Bid:        decimal.NewFromFloat(msg.Quote.Bid),
		Ask:        decimal.NewFromFloat(msg.Quote.Ask),
		Timestamp:  ts,
		Source:     feedSource,
	})
}

func (f *Feed) markDown(down bool) {
	if f.down != nil {
		f.down(feedSource, down)
	}
}

func (f *Feed) closeConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connected = false
}

// IsConnected returns the current connection status.
func (f *Feed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

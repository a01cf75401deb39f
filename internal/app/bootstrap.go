package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skylee01244/fx-terminal/internal/domain"
	"github.com/skylee01244/fx-terminal/internal/engine"
	"github.com/skylee01244/fx-terminal/internal/execution"
	"github.com/skylee01244/fx-terminal/internal/infra"
	"github.com/skylee01244/fx-terminal/internal/infra/saxo"
	"github.com/skylee01244/fx-terminal/internal/infra/storage"
	"github.com/skylee01244/fx-terminal/internal/infra/yahoo"
	"github.com/skylee01244/fx-terminal/internal/service"
)

// Bootstrap orchestrates the terminal startup sequence.
type Bootstrap struct {
	Config  *infra.Config
	Storage *storage.Storage
	Metrics *infra.Metrics
	Cache   *service.QuoteCache
	Broker  domain.Broker
	Engine  *engine.Engine
	Feed    domain.Feed
}

// NewBootstrap creates a new Bootstrap instance.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads configuration and assembles the full component graph:
// journal, quote cache, broker, engine, and the configured feed variant.
func (b *Bootstrap) Initialize(configPath string) error {
	slog.Info("Bootstrapping FX terminal...")

	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	store, err := storage.NewStorage(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Trade journal initialized")

	b.Metrics = &infra.Metrics{}
	b.Cache = service.NewQuoteCache(b.Metrics)

	broker, err := b.buildBroker(cfg)
	if err != nil {
		return err
	}
	b.Broker = broker
	slog.Info("Broker ready", slog.String("broker", broker.Name()))

	b.Engine = engine.New(cfg, b.Cache, broker, store, b.Metrics)

	feed, err := b.buildFeed(cfg)
	if err != nil {
		return err
	}
	b.Feed = feed
	slog.Info("Feed ready", slog.String("source", feed.Source()))

	return nil
}

func (b *Bootstrap) buildBroker(cfg *infra.Config) (domain.Broker, error) {
	switch cfg.Broker.Variant {
	case infra.BrokerVariantSaxo:
		return saxo.NewBroker(cfg), nil
	case infra.BrokerVariantPaper:
		paper := execution.NewPaperBroker(0)
		paper.Deposit(cfg.StartingCash())
		return paper, nil
	default:
		return nil, fmt.Errorf("unknown broker variant: %q", cfg.Broker.Variant)
	}
}

func (b *Bootstrap) buildFeed(cfg *infra.Config) (domain.Feed, error) {
	sink := b.Cache.Sink()

	// The paper broker marks to the live mid so market orders and the
	// cash check price off real quotes.
	if paper, ok := b.Broker.(*execution.PaperBroker); ok {
		inner := sink
		sink = func(q domain.Quote) {
			paper.UpdatePrice(q.Instrument, q.Mid())
			inner(q)
		}
	}

	switch cfg.Feed.Variant {
	case infra.FeedVariantSaxo:
		return saxo.NewFeed(cfg, sink, b.Cache.SetFeedDown), nil
	case infra.FeedVariantYahoo:
		return yahoo.NewFeed(cfg, sink, b.Cache.SetFeedDown), nil
	default:
		return nil, fmt.Errorf("unknown feed variant: %q", cfg.Feed.Variant)
	}
}

// Run starts the quote pipeline, the trading core, and the feed. It returns
// once everything is launched; shutdown is driven by the context.
func (b *Bootstrap) Run(ctx context.Context) error {
	b.Cache.StartProcessor(ctx)
	b.Engine.Start(ctx)

	if err := b.Feed.Start(ctx); err != nil {
		return fmt.Errorf("failed to start feed: %w", err)
	}

	slog.Info("FX terminal operational",
		slog.String("feed", b.Feed.Source()),
		slog.String("broker", b.Broker.Name()),
		slog.Int("instruments", len(b.Config.Feed.Instruments)))
	return nil
}

// Shutdown stops components in dependency order: feed first so no new
// quotes arrive, then the engine so in-flight broker calls drain, then the
// journal.
func (b *Bootstrap) Shutdown() {
	if b.Feed != nil {
		b.Feed.Stop()
	}
	if b.Engine != nil {
		b.Engine.Stop()
	}
	if b.Storage != nil {
		if err := b.Storage.Close(); err != nil {
			slog.Warn("Journal close failed", slog.Any("error", err))
		}
	}
	slog.Info("FX terminal stopped")
}

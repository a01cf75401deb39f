package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/skylee01244/fx-terminal/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := bootstrap.Run(ctx); err != nil {
		slog.Error("Startup failed", slog.Any("error", err))
		bootstrap.Shutdown()
		os.Exit(1)
	}

	slog.InfoContext(ctx, "Press Ctrl+C to exit.")

	<-ctx.Done()

	slog.Info("Shutting down gracefully...")
	bootstrap.Shutdown()
}

// Command kalshibot is the entry point for the kalshi trading bot. It loads
// configuration, applies command-line mode flags, validates, sets up signal
// handling, and starts the application in the selected mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/kalshibot/internal/app"
	"github.com/alanyoungcy/kalshibot/internal/config"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	live := flag.Bool("live", false, "trade real money (paper trading is the default)")
	dashboard := flag.Bool("dashboard", false, "follow lifecycle events and render evaluation tables")
	scalp := flag.Bool("scalp", false, "run the live-event scalper")
	report := flag.Bool("report", false, "print one evaluation report and exit")
	flag.Parse()

	// Setup structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	// Set log level from config.
	var level slog.Level
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Mode flags win over the config file.
	switch {
	case *scalp:
		cfg.Mode = "scalp"
		if *live {
			cfg.Scalper.Live = true
		}
	case *dashboard:
		cfg.Mode = "dashboard"
	case *live:
		cfg.Mode = "live"
	}

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)

	if *report {
		if err := application.Report(ctx); err != nil {
			logger.Error("report failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Debug("active configuration", slog.Any("config", config.RedactedConfig(cfg)))

	logger.Info("kalshi bot starting",
		slog.String("mode", cfg.Mode),
		slog.Bool("live_orders", cfg.UsesLiveExchange()),
		slog.String("config", *configPath),
	)
	defer application.Close()

	// Run the application.
	if err := application.Run(ctx); err != nil {
		// context.Canceled is expected on clean shutdown.
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error",
				slog.String("error", err.Error()),
			)
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("kalshi bot stopped")
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Vodeneev/crashwatch/internal/parser/ingest"
	"github.com/Vodeneev/crashwatch/internal/parser/parsers"
	"github.com/Vodeneev/crashwatch/internal/pkg/alerts"
	pkgconfig "github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/health"
	"github.com/Vodeneev/crashwatch/internal/pkg/health/handlers"
	"github.com/Vodeneev/crashwatch/internal/pkg/logging"
	"github.com/Vodeneev/crashwatch/internal/pkg/performance"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"

	// Register all source drivers via init().
	_ "github.com/Vodeneev/crashwatch/internal/parser/parsers/all"
)

const (
	defaultConfigPath = "configs/production.yaml"
)

type config struct {
	configPath string
	runFor     time.Duration
}

func main() {
	if err := run(); err != nil {
		slog.Error("Poller failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()
	slog.Info("Loading config", "path", cfg.configPath)

	appConfig, err := pkgconfig.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.SetupLogger(&appConfig.Logging, "poller")
	if err != nil {
		slog.Warn("Failed to setup logging, continuing with default logger", "error", err)
		logger = slog.Default()
	}

	if len(appConfig.Poller.Platforms) == 0 {
		return fmt.Errorf("no platforms configured (poller.platforms is empty)")
	}

	stores, err := storage.Open(appConfig)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	cache, err := storage.OpenSeenCache(&appConfig.Redis)
	if err != nil {
		slog.Warn("Seen cache disabled", "error", err)
		cache = storage.NopSeenCache{}
	}
	defer cache.Close()

	readers, err := parsers.OpenReaderSet(&appConfig.Poller)
	if err != nil {
		return err
	}
	defer readers.Close()

	var alerter alerts.Alerter = alerts.Nop{}
	if appConfig.Telegram.BotToken != "" && appConfig.Telegram.ChatID != 0 {
		notifier, err := alerts.NewTelegramNotifier(appConfig.Telegram.BotToken, appConfig.Telegram.ChatID)
		if err != nil {
			slog.Warn("Telegram alerts disabled", "error", err)
		} else {
			defer notifier.Stop()
			alerter = notifier
		}
	}

	ctx, cancel := createContext(cfg.runFor)
	defer cancel()
	setupSignalHandler(ctx, cancel)

	if appConfig.Health.Port > 0 {
		addr, err := health.AddrFor(appConfig.Health.Port)
		if err != nil {
			return err
		}
		router := health.NewRouter(logger, func(r chi.Router) {
			r.Get("/rounds", handlers.RoundsHandler(stores.Rounds))
		})
		health.Run(ctx, addr, "poller", router, appConfig.Health.ReadHeaderTimeout)
	}

	writer := ingest.NewWriter(stores.Rounds, cache, appConfig.Poller.Granularity)
	poller := ingest.NewPoller(&appConfig.Poller, readers, writer, ingest.WithAlerter(alerter))
	poller.Run(ctx)

	performance.GetTracker().PrintSummary()
	return nil
}

func parseFlags() config {
	var cfg config

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.DurationVar(&cfg.runFor, "run-for", 0, "Auto-stop after duration (e.g. 10s, 1m). 0 = run until SIGINT/SIGTERM")
	flag.Parse()
	return cfg
}

func createContext(runFor time.Duration) (context.Context, context.CancelFunc) {
	if runFor > 0 {
		return context.WithTimeout(context.Background(), runFor)
	}
	return context.WithCancel(context.Background())
}

func setupSignalHandler(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal, stopping poller...", "signal", sig.String())
			cancel()
		case <-ctx.Done():
			signal.Stop(sigChan)
		}
	}()
}

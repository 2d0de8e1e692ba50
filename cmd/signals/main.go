package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/Vodeneev/crashwatch/internal/calculator/calculator"
	pkgconfig "github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/health"
	"github.com/Vodeneev/crashwatch/internal/pkg/logging"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
)

const defaultConfigPath = "configs/production.yaml"

func main() {
	if err := run(); err != nil {
		slog.Error("Signals service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}
	configPath := flag.String("config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	once := flag.Bool("once", false, "Run generation for all platforms once, print the report and exit")
	flag.Parse()

	appConfig, err := pkgconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.SetupLogger(&appConfig.Logging, "signals")
	if err != nil {
		slog.Warn("Failed to setup logging, continuing with default logger", "error", err)
		logger = slog.Default()
	}

	if len(appConfig.Signals.Platforms) == 0 {
		return fmt.Errorf("no platforms configured (signals.platforms and poller.platforms are empty)")
	}

	stores, err := storage.Open(appConfig)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	gen, err := calculator.NewGenerator(stores.Rounds, stores.Advisories, appConfig.Signals)
	if err != nil {
		return err
	}
	scheduler := calculator.NewScheduler(gen, appConfig.Signals)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *once {
		rep := scheduler.RunAll(ctx)
		if !rep.AllSucceeded() {
			return fmt.Errorf("%d of %d platforms failed", rep.Failed, len(rep.Results))
		}
		return nil
	}

	if appConfig.Signals.APIKey == "" {
		slog.Warn("signals.api_key is not set, POST /api/signals/run is disabled")
	}
	api := calculator.NewAPI(scheduler, stores.Advisories, appConfig.Signals.APIKey)

	port := appConfig.Signals.Port
	if port <= 0 {
		port = appConfig.Health.Port
	}
	addr, err := health.AddrFor(port)
	if err != nil {
		return fmt.Errorf("signals.port: %w", err)
	}
	health.Run(ctx, addr, "signals", health.NewRouter(logger, func(r chi.Router) {
		api.RegisterRoutes(r)
	}), appConfig.Health.ReadHeaderTimeout)

	if appConfig.Signals.InternalSchedule {
		go scheduler.Start(ctx)
	}

	<-ctx.Done()
	slog.Info("Received shutdown signal, signals service stopped")
	return nil
}

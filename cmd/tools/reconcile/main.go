// reconcile removes duplicate rounds left by a dedup granularity change.
// Usage:
//
//	go run ./cmd/tools/reconcile -action status
//	go run ./cmd/tools/reconcile -action dry-run -platform aviator -granularity minute
//	go run ./cmd/tools/reconcile -action apply -platform aviator -granularity minute
//
// Without -platform, dry-run and apply process every platform that has rounds.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	pkgconfig "github.com/Vodeneev/crashwatch/internal/pkg/config"
	"github.com/Vodeneev/crashwatch/internal/pkg/logging"
	"github.com/Vodeneev/crashwatch/internal/pkg/models"
	"github.com/Vodeneev/crashwatch/internal/pkg/storage"
	"github.com/Vodeneev/crashwatch/internal/reconcile"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Reconcile failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/production.yaml"
	}
	configPath := flag.String("config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	action := flag.String("action", "status", "Action: status, dry-run or apply")
	platform := flag.String("platform", "", "Platform to reconcile (empty = all platforms with rounds)")
	granularityFlag := flag.String("granularity", "", "Dedup granularity: second, minute or a duration (default: poller.granularity)")
	flag.Parse()

	cfg, err := pkgconfig.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if _, err := logging.SetupLogger(&cfg.Logging, "reconcile"); err != nil {
		slog.Warn("Failed to setup logging, continuing with default logger", "error", err)
	}
	if cfg.Storage.Driver == "memory" {
		return fmt.Errorf("reconcile needs a persistent store, storage.driver is memory")
	}

	g := cfg.Poller.Granularity
	if *granularityFlag != "" {
		if g, err = models.ParseGranularity(*granularityFlag); err != nil {
			return err
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, err := storage.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer stores.Close()

	counts, err := stores.Rounds.CountRoundsByPlatform(ctx)
	if err != nil {
		return err
	}

	switch *action {
	case "status":
		return printJSON(counts)
	case "dry-run", "apply":
	default:
		return fmt.Errorf("unknown action %q (use status, dry-run or apply)", *action)
	}

	platforms := []string{strings.ToLower(strings.TrimSpace(*platform))}
	if platforms[0] == "" {
		platforms = platforms[:0]
		for p := range counts {
			platforms = append(platforms, p)
		}
		sort.Strings(platforms)
	}

	r := reconcile.New(stores.Rounds, reconcile.Options{
		PageSize:  cfg.Reconcile.PageSize,
		ChunkSize: cfg.Reconcile.ChunkSize,
		DryRun:    *action == "dry-run",
	})

	var (
		reports []reconcile.Report
		errs    []error
	)
	for _, p := range platforms {
		rep, err := r.Reconcile(ctx, p, g)
		reports = append(reports, rep)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if err := printJSON(reports); err != nil {
		return err
	}
	return errors.Join(errs...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	corecfg "github.com/beacon-lab/project-beacon/internal/core/config"
	"github.com/beacon-lab/project-beacon/internal/core/storage/postgres"
	"github.com/beacon-lab/project-beacon/internal/core/tracking"
	"github.com/beacon-lab/project-beacon/internal/ingestion"
	"github.com/beacon-lab/project-beacon/internal/migrations"
	"github.com/beacon-lab/project-beacon/internal/projection"
	"github.com/beacon-lab/project-beacon/internal/realtime"
	"github.com/beacon-lab/project-beacon/internal/server"
	"github.com/beacon-lab/project-beacon/internal/stream"
)

func main() {
	configPath := flag.String("config", "beacon.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"tracking_rules", len(cfg.RuleLoading.Rules),
		"config_dir", cfg.RuleLoading.ConfigDir,
	)

	engineCfg, err := realtimeConfig(cfg)
	if err != nil {
		slog.Error("Invalid realtime configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Load Tracking Rules
	rules, err := tracking.NewFileSystemRepository(cfg.Tracking.ConfigDir)
	if err != nil {
		slog.Error("Failed to load tracking rules", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Realtime Engine
	engine := realtime.NewEngine(engineCfg, rules, dbAdapter)
	slog.Info("Realtime engine initialized",
		"flush_interval", engineCfg.FlushInterval,
		"sweep_interval", engineCfg.SweepInterval,
		"rate_window", engineCfg.RateWindow,
		"presence_ttl", engineCfg.PresenceTTL,
		"ring_capacity", engineCfg.RingCapacity,
		"subscriber_queue", engineCfg.SubscriberQueue,
	)

	// 5. Initialize Services
	ingestionSvc := ingestion.NewService(engine, cfg.Server.MaxBodySizeMB)
	streamSvc := stream.NewService(engine)
	projectionSvc := projection.NewService(dbAdapter)

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	streamSvc.RegisterRoutes(srv.Engine)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 7. Start Services. SIGINT/SIGTERM cancel the context; the engine
	// drains its buffer and the HTTP server shuts down gracefully.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(ctx) })
	g.Go(func() error { return srv.Run(ctx) })

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}

// realtimeConfig converts the parsed duration strings into the engine config.
func realtimeConfig(cfg *corecfg.Config) (realtime.Config, error) {
	flush, err := cfg.Realtime.FlushIntervalDuration()
	if err != nil {
		return realtime.Config{}, err
	}
	sweep, err := cfg.Realtime.SweepIntervalDuration()
	if err != nil {
		return realtime.Config{}, err
	}
	window, err := cfg.Realtime.RateWindowDuration()
	if err != nil {
		return realtime.Config{}, err
	}
	ttl, err := cfg.Realtime.PresenceTTLDuration()
	if err != nil {
		return realtime.Config{}, err
	}
	return realtime.Config{
		FlushInterval:   flush,
		SweepInterval:   sweep,
		RateWindow:      window,
		PresenceTTL:     ttl,
		RingCapacity:    cfg.Realtime.RingCapacity,
		SubscriberQueue: cfg.Realtime.SubscriberQueue,
	}, nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

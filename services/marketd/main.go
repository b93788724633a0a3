package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	marketconfig "nhbmarket/config"
	"nhbmarket/core/events"
	"nhbmarket/core/state"
	"nhbmarket/crypto"
	"nhbmarket/native/bank"
	"nhbmarket/native/market"
	"nhbmarket/observability/logging"
	telemetry "nhbmarket/observability/otel"
	"nhbmarket/services/marketd/config"
	"nhbmarket/services/marketd/server"
	eventstore "nhbmarket/services/marketd/storage"
	"nhbmarket/storage"
)

const memoryState = "memory"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/marketd/config.yaml", "path to marketd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("marketd: load config: %v", err)
	}

	var fileOpts *logging.FileOptions
	if strings.TrimSpace(cfg.Logging.File) != "" {
		fileOpts = &logging.FileOptions{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
		}
	}
	logger, logCloser := logging.Setup("marketd", cfg.Environment, logging.Options{
		Level: logging.ParseLevel(cfg.Logging.Level),
		File:  fileOpts,
	})
	if logCloser != nil {
		defer logCloser.Close()
	}

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryConfig(cfg))
	if err != nil {
		log.Fatalf("marketd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	marketCfg, err := marketconfig.Load(cfg.MarketConfig)
	if err != nil {
		log.Fatalf("marketd: load market config: %v", err)
	}
	params, err := marketCfg.MarketParams()
	if err != nil {
		log.Fatalf("marketd: market params: %v", err)
	}

	db, err := openState(logger, cfg.StatePath, marketCfg.DataDir)
	if err != nil {
		log.Fatalf("marketd: open state: %v", err)
	}
	defer db.Close()

	dsn, err := eventstore.ResolveDSN(cfg.EventStore)
	if err != nil {
		log.Fatalf("marketd: resolve event store: %v", err)
	}
	store, err := eventstore.Open(dsn)
	if err != nil {
		log.Fatalf("marketd: open event store: %v", err)
	}
	defer store.Close()

	engine, err := market.NewEngine(params)
	if err != nil {
		log.Fatalf("marketd: market engine: %v", err)
	}
	mgr := state.NewManager(db)
	ledger := bank.NewLedger(mgr)
	hub := server.NewHub()
	engine.SetState(mgr)
	engine.SetLedgers(ledger, ledger)
	engine.SetEmitter(events.Multi{
		eventstore.NewSink(store, logger),
		hub,
		server.MetricsEmitter{},
	})

	if cfg.Auth.BearerToken == "" {
		logger.Warn("mutating RPC methods are unauthenticated; set NHBMARKET_RPC_TOKEN to require a bearer token")
	} else {
		logger.Info("bearer authentication enabled", logging.MaskField("token", cfg.Auth.BearerToken))
	}
	logger.Info("market configured",
		"custody", crypto.FormatAddress(crypto.NHBPrefix, params.Custody),
		"treasury", crypto.FormatAddress(crypto.NHBPrefix, params.Treasury),
		"feePercentage", params.DefaultFeePercentage,
		"escrowDuration", params.EscrowDuration)

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		BearerToken:   cfg.Auth.BearerToken,
		DevMode:       cfg.DevMode,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
		ShutdownTimeout: cfg.Shutdown.Duration,
	}, engine, ledger, store, hub, logger)
	if err != nil {
		log.Fatalf("marketd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("http server error", "error", err)
		os.Exit(1)
	}
}

func telemetryConfig(cfg config.Config) telemetry.Config {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		endpoint = cfg.Telemetry.Endpoint
	}
	insecure := cfg.Telemetry.Insecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	return telemetry.Config{
		ServiceName: "marketd",
		Environment: cfg.Environment,
		Endpoint:    endpoint,
		Insecure:    insecure,
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	}
}

func openState(logger *slog.Logger, path, dataDir string) (storage.Database, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == memoryState {
		logger.Warn("market state is kept in memory and lost on restart")
		return storage.NewMemDB(), nil
	}
	if trimmed == "" {
		trimmed = filepath.Join(dataDir, "state")
	}
	return storage.NewLevelDB(trimmed)
}

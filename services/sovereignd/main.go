package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	protocolcfg "sovereign/config"
	"sovereign/core/events"
	"sovereign/core/state"
	"sovereign/native/governance"
	"sovereign/native/sovereign"
	"sovereign/observability"
	"sovereign/observability/logging"
	telemetry "sovereign/observability/otel"
	"sovereign/services/sovereignd/config"
	"sovereign/services/sovereignd/journal"
	"sovereign/services/sovereignd/server"
	"sovereign/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/sovereignd/config.yaml", "path to sovereignd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("sovereignd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("SOVEREIGN_ENV"))
	logger := logging.SetupDefault(logging.Config{
		Service:    "sovereignd",
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "sovereignd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     cfg.Telemetry.Headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatalf("sovereignd: init telemetry: %v", err)
	}
	defer func() { _ = shutdownTelemetry(context.Background()) }()

	protocol, err := protocolcfg.LoadProtocol(cfg.ProtocolPath)
	if err != nil {
		log.Fatalf("sovereignd: load protocol: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		log.Fatalf("sovereignd: create data dir: %v", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		log.Fatalf("sovereignd: open state: %v", err)
	}
	store := state.NewManager(db)
	defer store.Close()

	receipts, err := journal.Open(cfg.Journal.Driver, cfg.Journal.DSN)
	if err != nil {
		log.Fatalf("sovereignd: open journal: %v", err)
	}
	defer receipts.Close()

	metrics := observability.Sovereign()
	hub := server.NewHub(cfg.Stream.Buffer, metrics, logger)

	sovereigns := sovereign.NewEngine()
	sovereigns.SetState(store)
	sovereigns.SetProtocol(protocol)
	sovereigns.SetTreasury(cfg.TreasuryAddress())
	admins := cfg.AdminAddresses()
	sovereigns.SetAdmins(admins...)
	sovereigns.SetEmitter(events.Fanout{hub})

	gov := governance.NewEngine()
	gov.SetState(store)
	gov.SetSovereignEngine(sovereigns)
	gov.SetPolicy(protocol.Governance)
	gov.SetEmitter(events.Fanout{hub})

	srv, err := server.New(server.Config{
		ListenAddress:      cfg.ListenAddress,
		StreamWriteTimeout: cfg.Stream.WriteTimeout.Duration,
	}, server.Deps{
		Sovereigns: sovereigns,
		Governance: gov,
		Journal:    receipts,
		Hub:        hub,
		Auth: server.NewAdminAuth(server.AuthConfig{
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
			ClockSkew:  cfg.Auth.ClockSkew.Duration,
		}, logger),
		Limiter: server.NewRateLimiter(server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
			TrustProxyHeaders: cfg.RateLimit.TrustProxyHeaders,
		}, metrics),
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		log.Fatalf("sovereignd: build server: %v", err)
	}

	logger.Info("sovereignd starting", "listen", cfg.ListenAddress, "data_dir", cfg.DataDir, "journal", cfg.Journal.Driver, "admins", len(admins))
	if err := srv.Run(ctx); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("sovereignd stopped")
}

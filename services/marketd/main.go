package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	deployment "swapmarket/config"
	"swapmarket/core/events"
	"swapmarket/observability"
	"swapmarket/observability/logging"
	telemetry "swapmarket/observability/otel"
	"swapmarket/services/marketd/config"
	"swapmarket/services/marketd/runtime"
	"swapmarket/services/marketd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/marketd/config.yaml", "path to marketd configuration file")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("marketd: load config: %v", err)
	}

	env := strings.TrimSpace(os.Getenv("MARKET_ENV"))
	logger := logging.SetupWithLevel(os.Stdout, "marketd", env, logging.ParseLevel(cfg.LogLevel))

	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.ApplyEnvironment(telemetry.Config{
		ServiceName: "marketd",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	}, nil))
	if err != nil {
		log.Fatalf("marketd: init telemetry: %v", err)
	}
	defer func() {
		_ = shutdownTelemetry(context.Background())
	}()

	market, err := deployment.Load(cfg.Deployment, deployment.WithKeystorePassphrase(os.Getenv("MARKETD_KEYSTORE_PASSPHRASE")))
	if err != nil {
		log.Fatalf("marketd: load deployment: %v", err)
	}
	genesis, err := market.Genesis()
	if err != nil {
		log.Fatalf("marketd: deployment: %v", err)
	}

	db, err := runtime.OpenDatabase(cfg.Storage)
	if err != nil {
		log.Fatalf("marketd: open storage: %v", err)
	}
	defer db.Close()

	emitter := events.Fanout{events.LogEmitter{Logger: logger}, observability.Events()}
	rt, err := runtime.New(db, genesis, market.Custody(), cfg.Devnet, emitter, logger)
	if err != nil {
		log.Fatalf("marketd: runtime: %v", err)
	}

	auth, err := server.NewAuthenticator(server.AuthConfig{
		HMACSecret: os.Getenv("MARKETD_JWT_SECRET"),
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
		ClockSkew:  cfg.Auth.ClockSkew.Duration,
	}, logger)
	if err != nil {
		log.Fatalf("marketd: auth: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, rt.Engine, rt.Bank, rt.Tokens, auth, logger)
	if err != nil {
		log.Fatalf("marketd: server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("marketd listening", "listen", cfg.ListenAddress, "storage", cfg.Storage.Backend)
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("marketd: server stopped: %v", err)
	}
}

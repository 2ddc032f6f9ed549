package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/school-treasury/internal/authz"
	"github.com/nimasrn/school-treasury/internal/config"
	"github.com/nimasrn/school-treasury/internal/events"
	"github.com/nimasrn/school-treasury/internal/handlers"
	"github.com/nimasrn/school-treasury/internal/idempotency"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/nimasrn/school-treasury/internal/services"
	xhttp "github.com/nimasrn/school-treasury/pkg/http"
	"github.com/nimasrn/school-treasury/pkg/logger"
	"github.com/nimasrn/school-treasury/pkg/prom"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := config.Load(config.EnvPathFromArgs(os.Args, ""))
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}
	cfg := config.Get()
	if err := logger.Configure(cfg.AppEnv, cfg.LogLevel); err != nil {
		logger.Error("failed to configure logger", "error", err)
	}
	defer logger.Sync()
	logger.Info("starting treasury api", "version", version, "commit", commit, "date", date)

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	if err := prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace); err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.MetricsAddr, "/metrics")

	db, err := cfg.OpenDatabase()
	if err != nil {
		logger.Error("failed to open ledger database", "error", err)
		return
	}
	ledger := repository.NewLedgerRepository(db, cfg.TreasuryPostMaxRetries)
	if cfg.DBDriver == "sqlite" {
		// postgres schemas are owned by the goose migrations (cmd/cli migrate)
		if err := ledger.AutoMigrate(context.Background()); err != nil {
			logger.Error("failed to migrate sqlite ledger", "error", err)
			return
		}
	}
	if err := seedFloatTarget(context.Background(), ledger, cfg.TreasuryDefaultFloat); err != nil {
		logger.Error("failed to seed registry float target", "error", err)
		return
	}

	redisAdap, err := cfg.OpenRedis("default")
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	policy, err := loadPolicy(cfg.AuthPolicyFile)
	if err != nil {
		logger.Error("failed to load authorization policy", "error", err)
		return
	}

	publisher, err := events.NewStream(redisAdap, events.StreamConfig{
		Name:   cfg.EventsStream,
		MaxLen: cfg.EventsMaxLen,
	})
	if err != nil {
		logger.Error("failed creating event stream", "error", err)
		return
	}

	treasury := services.NewTreasuryService(ledger, policy, publisher, services.Options{
		MinReasonLength:     cfg.TreasuryMinReasonLength,
		MinNotesLength:      cfg.TreasuryMinNotesLength,
		DiscrepancyWarning:  cfg.TreasuryDiscrepancyWarn,
		DiscrepancyCritical: cfg.TreasuryDiscrepancyCritical,
	})
	idem := idempotency.NewService(redisAdap, idempotency.Config{
		LockTTL:     cfg.IdempotencyLockTTL,
		ResponseTTL: cfg.IdempotencyTTL,
	})

	s := xhttp.NewServer(xhttp.DefaultServerOption.WithTimeouts(cfg.HttpServerReadTimeout, cfg.HttpServerWriteTimeout))
	s.Use(xhttp.RequestIDMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.TimeoutMiddleware(cfg.HttpRequestTimeout))
	s.Use(xhttp.CompressMiddleware(6))

	treasuryHandler := handlers.NewTreasuryHandler(treasury, idem)
	healthHandler := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"database": db.Ping,
		"redis": func(ctx context.Context) error {
			return redisAdap.Client().Ping(ctx).Err()
		},
	})

	g := s.Router.Group("/api/v1")
	handlers.RegisterTreasuryRoutes(g, treasuryHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(cfg.HttpListenAddr); err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	<-c
	s.Shutdown()
}

func loadPolicy(path string) (*authz.Policy, error) {
	if path == "" {
		logger.Warn("AUTH_POLICY_FILE not set, using the built-in role policy")
		return authz.ParsePolicy([]byte(authz.DefaultPolicy))
	}
	return authz.LoadPolicy(path)
}

// seedFloatTarget installs the configured float target on a ledger that has
// none yet. A target changed through the API is left alone.
func seedFloatTarget(ctx context.Context, ledger *repository.LedgerRepository, amount int64) error {
	if amount <= 0 {
		return nil
	}
	snapshot, err := ledger.GetBalances(ctx)
	if err != nil {
		return err
	}
	if snapshot.RegistryFloatAmount != 0 {
		return nil
	}
	_, err = ledger.UpdateFloatTarget(ctx, amount)
	if err == nil {
		logger.Info("registry float target seeded", "amount", amount)
	}
	return err
}

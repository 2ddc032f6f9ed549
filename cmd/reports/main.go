package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nimasrn/school-treasury/internal/authz"
	"github.com/nimasrn/school-treasury/internal/config"
	"github.com/nimasrn/school-treasury/internal/reports"
	"github.com/nimasrn/school-treasury/internal/repository"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.Load(config.EnvPathFromArgs(os.Args, "")); err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	cfg := config.Get()
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(level)
	}
	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := cfg.OpenDatabase()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger database")
	}
	ledger := repository.NewLedgerRepository(db, cfg.TreasuryPostMaxRetries)
	if cfg.DBDriver == "sqlite" {
		if err := ledger.AutoMigrate(context.Background()); err != nil {
			log.Fatal().Err(err).Msg("Failed to migrate sqlite ledger")
		}
	}

	var authorizer reports.Authorizer
	if cfg.AuthPolicyFile != "" {
		policy, err := authz.LoadPolicy(cfg.AuthPolicyFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.AuthPolicyFile).Msg("Failed to load authorization policy")
		}
		authorizer = policy
	} else {
		log.Warn().Msg("AUTH_POLICY_FILE not set, report feed is unauthenticated")
	}

	handler := reports.NewHandler(reports.NewService(ledger), authorizer, db.Ping)
	router := reports.SetupRouter(handler)

	log.Info().
		Str("addr", cfg.ReportsListenAddr).
		Str("db_driver", cfg.DBDriver).
		Msg("Starting treasury report server")

	srv := &http.Server{
		Addr:         cfg.ReportsListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

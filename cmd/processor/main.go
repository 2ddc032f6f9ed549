package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/nimasrn/school-treasury/internal/config"
	"github.com/nimasrn/school-treasury/internal/events"
	"github.com/nimasrn/school-treasury/internal/processor"
	"github.com/nimasrn/school-treasury/internal/services"
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
	logger.Info("starting treasury event processor", "version", version, "commit", commit, "date", date)

	redisAdap, err := cfg.OpenRedis("default")
	if err != nil {
		logger.Error("failed connecting to redis", "error", err)
		return
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, cfg.AppEnv, cfg.PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	go prom.ListenAndServer(cfg.MetricsAddr, "/metrics")

	consumer := cfg.EventsConsumer
	if consumer == "" {
		consumer = hostname
	}

	metrics := processor.NewServiceMetrics()
	service := processor.NewProcessorService(redisAdap, processor.Options{
		Stream: events.StreamConfig{
			Name:          cfg.EventsStream,
			ConsumerGroup: cfg.EventsGroup,
			ConsumerName:  consumer,
			MaxLen:        cfg.EventsMaxLen,
			PollInterval:  cfg.EventsPollInterval,
			EnableDLQ:     true,
		},
		Workers: cfg.EventsWorkers,
	}, metrics)

	classifier := services.SeverityClassifier{
		Warning:  cfg.TreasuryDiscrepancyWarn,
		Critical: cfg.TreasuryDiscrepancyCritical,
	}
	service.RegisterProcessor(processor.NewLedgerEventProcessor(redisAdap, classifier, metrics))

	if err := service.Start(); err != nil {
		logger.Error("failed to start processor", "error", err)
		return
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	service.Stop()
}

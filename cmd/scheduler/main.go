package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	config "github.com/forgefleet/fleetops/internal/config/scheduler"
	"github.com/forgefleet/fleetops/internal/obs"
	"github.com/forgefleet/fleetops/internal/obs/retry"
	kafkaRepo "github.com/forgefleet/fleetops/internal/repository/kafka"
	"github.com/forgefleet/fleetops/internal/services/scheduler"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal(err)
	}

	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting scheduler",
		zap.Any("kafka_out", cfg.Kafka),
		zap.Duration("interval", cfg.Sched.Interval),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	producer := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TriggerTopic).WithLogger(l)
	defer func() { _ = producer.Close() }()

	ms := obs.BootstrapMetricsServer(cfg.Sched.MetricsAddr, func(context.Context) error {
		return nil
	}, l)

	uc := scheduler.NewUC(kafkaRepo.NewRunEventsKafka(producer), retry.DefaultKafkaPolicy(l))
	runner := scheduler.New(l, uc, cfg.Sched.Interval)

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("scheduler started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}

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

	"github.com/forgefleet/fleetops/internal/analysis"
	config "github.com/forgefleet/fleetops/internal/config/orchestrator"
	"github.com/forgefleet/fleetops/internal/obs"
	kafkaRepo "github.com/forgefleet/fleetops/internal/repository/kafka"
	pg "github.com/forgefleet/fleetops/internal/repository/postgres"
	"github.com/forgefleet/fleetops/internal/services/orchestrator"
	"github.com/forgefleet/fleetops/internal/services/prober"
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
	l.Info("starting orchestrator",
		zap.Any("kafka_in", cfg.Kafka),
		zap.Int("fleet_size", len(cfg.Fleet)),
	)

	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()

	consumer := kafkaRepo.BootstrapConsumer(ctx, &kafkaRepo.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		GroupID:       cfg.Kafka.GroupID,
		Topic:         cfg.Kafka.TriggerTopic,
		FromBeginning: cfg.Kafka.FromBeginning,
		Logger:        l,
	}, l)

	ms := obs.BootstrapMetricsServer(cfg.Sweep.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	uc := orchestrator.NewUsecase(
		pg.NewRunRepo(db),
		pg.NewResultRepo(db),
		pg.NewTransactor(db, l),
		analysis.New(),
		nil,
	)
	check := orchestrator.NewFleetCheck(
		uc,
		prober.New(cfg.Probe, l),
		cfg.Fleet,
		cfg.Sweep.ProbeTimeout,
		cfg.Sweep.RunTimeout,
		cfg.Sweep.MaxConcurrent,
		l,
	)
	runner := orchestrator.NewRunner(consumer, check, l)
	defer func() { _ = runner.Close() }()

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	l.Info("orchestrator started")

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

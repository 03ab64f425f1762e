package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/forgefleet/fleetops/internal/analysis"
	"github.com/forgefleet/fleetops/internal/api"
	config "github.com/forgefleet/fleetops/internal/config/api"
	"github.com/forgefleet/fleetops/internal/obs"
	kafkaRepo "github.com/forgefleet/fleetops/internal/repository/kafka"
	pg "github.com/forgefleet/fleetops/internal/repository/postgres"
	"github.com/forgefleet/fleetops/internal/services/opsflow"
	"github.com/forgefleet/fleetops/internal/services/orchestrator"
	"github.com/forgefleet/fleetops/internal/services/remediation"
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
	l.Info("starting api",
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
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

	producer := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TriggerTopic).WithLogger(l)
	defer func() { _ = producer.Close() }()
	runEvents := kafkaRepo.NewRunEventsKafka(producer)

	tracker, err := remediation.NewClient(cfg.Tracker.BaseURL, cfg.Tracker.Token)
	if err != nil {
		l.Fatal("tracker client", zap.Error(err))
	}
	dispatcher := remediation.NewDispatcher(tracker, l)

	runRepo := pg.NewRunRepo(db)
	resultRepo := pg.NewResultRepo(db)
	followupRepo := pg.NewFollowupRepo(db)
	oplogRepo := pg.NewOpLogRepo(db)

	uc := orchestrator.NewUsecase(runRepo, resultRepo, pg.NewTransactor(db, l), analysis.New(), nil)
	engine := opsflow.NewEngine(
		opsflow.NewReportBuilder(followupRepo, oplogRepo),
		dispatcher, followupRepo, oplogRepo, l,
	)

	router := api.NewRouter(
		api.NewRunsController(uc, runRepo, resultRepo, runEvents, l),
		api.NewOrdersController(engine, l),
		l,
	)

	srv := &http.Server{
		Addr:         cfg.Server.HTTPAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	l.Info("api started")

	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server", zap.Error(err))
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	_ = srv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}

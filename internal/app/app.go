// Package app собирает сервис бронирований: хранилища, внешние клиенты,
// HTTP API, воркеры и обслуживающий порт с метриками.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vmaslennikov/bms/internal/health"
	"github.com/vmaslennikov/bms/internal/messaging/kafka"
	"github.com/vmaslennikov/bms/internal/metrics"
	"github.com/vmaslennikov/bms/internal/service/booking"
	"github.com/vmaslennikov/bms/internal/service/httpapi"
	"github.com/vmaslennikov/bms/internal/service/outbox"
	"github.com/vmaslennikov/bms/internal/service/scheduler"
	"github.com/vmaslennikov/bms/internal/version"
)

// Run запускает сервис и блокируется до отмены контекста либо фатальной ошибки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	logger.Info(version.String())

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	bookingMetrics := metrics.NewBookingMetrics()

	orchestrator := booking.NewOrchestrator(booking.Deps{
		Bookings:            deps.Bookings,
		Schedules:           deps.Schedules,
		Outbox:              deps.Outbox,
		Audit:               deps.Audit,
		Inventory:           deps.Inventory,
		Payments:            deps.Payments,
		Mileage:             deps.Mileage,
		ConfirmDelay:        cfg.Booking.ConfirmDelay,
		MileageRatePermille: cfg.Mileage.RatePermille,
		Logger:              logger.WithField("component", "booking"),
		Metrics:             bookingMetrics,
	})

	kafkaProducer, err := initKafkaProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, outbox publishing disabled")
	}
	defer closeKafka(kafkaProducer, logger)

	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if kafkaProducer != nil {
		outboxWorker := outbox.NewWorker(
			deps.Outbox,
			kafka.NewOutboxPublisher(kafkaProducer, cfg.Kafka.Topic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithPollInterval(cfg.Outbox.PollInterval),
			outbox.WithBatchSize(cfg.Outbox.BatchSize),
			outbox.WithMaxAttempts(cfg.Outbox.MaxAttempts),
			outbox.WithRetryBaseDelay(cfg.Outbox.RetryDelay),
			outbox.WithDLQPublisher(kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicDeadLetterQueue)),
		)
		go outboxWorker.Run(workersCtx)
	} else {
		logger.Warn("kafka is not configured, outbox messages will accumulate as pending")
	}

	schedulerWorker := scheduler.NewWorker(
		deps.Schedules,
		deps.Bookings,
		orchestrator,
		scheduler.WithLogger(logger.WithField("component", "scheduler")),
		scheduler.WithPollInterval(cfg.Scheduler.PollInterval),
		scheduler.WithReconcileInterval(cfg.Scheduler.ReconcileInterval),
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
	)
	go schedulerWorker.Run(workersCtx)

	healthHandler := buildHealthHandler(cfg, deps)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiHandler := httpapi.NewBookingHandler(orchestrator, logger.WithField("component", "httpapi"))
	apiServer := httpapi.NewServer(cfg.HTTPAddr, httpapi.NewRouter(apiHandler, logger.WithField("component", "httpapi")))

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервис")
		stopWorkers()
		shutdownHTTP(apiServer, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		stopWorkers()
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// buildHealthHandler регистрирует проверки хранилища и отставания outbox.
func buildHealthHandler(cfg Config, deps *Dependencies) *health.Handler {
	v, _, _ := version.Info()
	handler := health.NewHandler(v)

	if deps.Store != nil {
		handler.RegisterChecker("postgres", health.NewSimpleChecker("postgres", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return deps.Store.Ping(ctx)
		}))
	}

	handler.RegisterChecker("outbox", health.NewBacklogChecker("outbox", cfg.Outbox.MaxPending, func() (int, error) {
		stats, err := deps.Outbox.Stats()
		if err != nil {
			return 0, err
		}
		return stats.Pending, nil
	}))

	return handler
}

// startMetricsServer поднимает обслуживающий порт: /metrics, /healthz, /livez, /readyz.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}

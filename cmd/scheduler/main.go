// scheduler runs both halves of the engine in one process: command ingest
// (consuming ScheduleRequest/ScheduleCancel from the inbox queue) and
// due-dispatch (claiming due jobs from Postgres and publishing
// ScheduleDue events). Run: go run ./cmd/scheduler
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ErlanBelekov/dist-job-scheduler/config"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/broker"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/dispatch"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/health"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/infrastructure/postgres"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/ingest"
	ctxlog "github.com/ErlanBelekov/dist-job-scheduler/internal/log"
	"github.com/ErlanBelekov/dist-job-scheduler/internal/metrics"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()
	logger.Info("db connected")

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		stop()
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	topologyCh, err := conn.Channel()
	if err != nil {
		stop()
		log.Fatalf("rabbit channel: %v", err)
	}
	brokerCfg := broker.DefaultConfig()
	if err := broker.DeclareTopology(topologyCh, brokerCfg); err != nil {
		stop()
		log.Fatalf("declare topology: %v", err)
	}
	_ = topologyCh.Close()
	logger.Info("broker topology declared")

	metrics.Register()
	checker := health.NewChecker(pool, conn, logger, prometheus.DefaultRegisterer)

	jobRepo := postgres.NewJobRepository(pool)

	consumeCh, err := conn.Channel()
	if err != nil {
		stop()
		log.Fatalf("rabbit consume channel: %v", err)
	}
	consumer, err := broker.NewConsumer(consumeCh, brokerCfg.InboxQueue, cfg.InboxPrefetch)
	if err != nil {
		stop()
		log.Fatalf("broker consumer: %v", err)
	}
	ingestSvc := ingest.New(consumer, jobRepo, logger, metrics.IngestRequestCounter(), metrics.IngestCancelCounter())
	go func() {
		if err := ingestSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("ingest service stopped", "error", err)
		}
	}()

	publishCh, err := conn.Channel()
	if err != nil {
		stop()
		log.Fatalf("rabbit publish channel: %v", err)
	}
	pub, err := broker.NewPublisher(publishCh, brokerCfg.EventExchange)
	if err != nil {
		stop()
		log.Fatalf("broker publisher: %v", err)
	}
	dispatchSvc := dispatch.New(jobRepo, pub, logger, cfg.LockBatch, time.Duration(cfg.TickMS)*time.Millisecond, metrics.DispatchBatchSizeObserver())
	go func() {
		if err := dispatchSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("dispatch service stopped", "error", err)
		}
	}()

	metrics.ServiceStartTime.WithLabelValues("scheduler").Set(float64(time.Now().Unix()))

	metricsSrv := metrics.NewServer(":" + cfg.MetricsPort)
	mux := metricsSrv.Handler.(*http.ServeMux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.DrainTimeoutSec)*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	body, err := json.Marshal(result)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(body)
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}

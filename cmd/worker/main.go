package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"assignment-reminders/internal/bulk"
	"assignment-reminders/internal/config"
	"assignment-reminders/internal/logging"
	"assignment-reminders/internal/queue"
	"assignment-reminders/internal/ratelimit"
	"assignment-reminders/internal/reminder"
	"assignment-reminders/internal/store"
	"assignment-reminders/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	workerID, _ := os.Hostname()
	log := logging.New(cfg.LogLevel, cfg.LogPretty).With().
		Str("service", "reminder-worker").
		Str("worker_id", workerID).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	st, err := store.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer st.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("connect redis")
	}

	limiter := ratelimit.NewFixedWindow(rdb, cfg.RateLimitCapacity, cfg.RateLimitWindow)
	dispatcher := reminder.NewDispatcher(st, st, limiter, cfg.CooldownPeriod, log)
	q := queue.NewRedisQueue(rdb, cfg.VisibilityTimeout)
	runner := bulk.NewRunner(st, q, dispatcher, cfg.WorkerPollInterval, cfg.VisibilityTimeout, workerID, log)

	metricsServer := &http.Server{
		Addr: cfg.MetricsAddr,
		Handler: func() http.Handler {
			mux := http.NewServeMux()
			mux.Handle("/metrics", telemetry.Handler())
			return mux
		}(),
	}
	go func() {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics listen")
		}
	}()

	log.Info().Msg("worker started")
	if err := runner.Run(ctx); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("worker stopped")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	_ = metricsServer.Shutdown(shutdownCtx)
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"assignment-reminders/internal/api"
	"assignment-reminders/internal/bulk"
	"assignment-reminders/internal/config"
	"assignment-reminders/internal/logging"
	"assignment-reminders/internal/queue"
	"assignment-reminders/internal/ratelimit"
	"assignment-reminders/internal/reminder"
	"assignment-reminders/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogPretty).With().Str("service", "reminder-api").Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		<-ch
		cancel()
	}()

	if err := store.RunMigrations(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migrations")
	}

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
	coordinator := bulk.NewCoordinator(st, queue.NewRedisQueue(rdb, cfg.VisibilityTimeout), cfg.MaxBulkItems, log)

	server := api.New(cfg, dispatcher, coordinator, log)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: server.Router(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("api listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	_ = httpServer.Shutdown(shutdownCtx)
}

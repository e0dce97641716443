package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pharmacy-intake-bot/internal/config"
	"pharmacy-intake-bot/internal/domain/ports/repository"
	pg "pharmacy-intake-bot/internal/infra/db/postgres"
	"pharmacy-intake-bot/internal/infra/logging"
	"pharmacy-intake-bot/internal/infra/metrics"
	red "pharmacy-intake-bot/internal/infra/redis"
	"pharmacy-intake-bot/internal/infra/telegram"
	"pharmacy-intake-bot/internal/infra/viacep"
	"pharmacy-intake-bot/internal/infra/web"
	"pharmacy-intake-bot/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode (console logs, unredacted PII)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	metrics.Register()

	// ---- Redis (session store, lock, rate limiter) ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	defer redisClient.Close()

	sessionRepo := red.NewSessionRepo(redisClient, cfg.Redis.SessionTTL)
	locker := red.NewLocker(redisClient)
	limiter := red.NewRateLimiter(redisClient)

	// ---- Postgres (optional order persistence) ----
	var orderRepo repository.OrderRepository
	if cfg.Database.URL != "" {
		pool, err := pg.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connect failed")
		}
		defer pool.Close()
		orderRepo = pg.NewOrderRepo(pool)
	} else {
		logger.Warn().Msg("database.url not set; completed orders will not be persisted")
	}

	// ---- Adapters and use cases ----
	resolver := viacep.NewClient(cfg.ViaCEP.BaseURL, cfg.ViaCEP.Timeout, logger)
	pricing := usecase.NewPricingUseCase()
	conv := usecase.NewConversationUseCase(resolver, pricing, logger, cfg.Runtime.Dev)

	// ---- HTTP server ----
	srv := web.NewServer(sessionRepo, orderRepo, conv, locker, limiter, cfg.RateLimit.PerMinute, cfg.Server.APIKey, logger)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// ---- Telegram front-end (optional) ----
	if cfg.Telegram.Token != "" {
		bot, err := telegram.NewBot(cfg.Telegram.Token, sessionRepo, orderRepo, conv, locker, cfg.Telegram.Workers, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram bot init failed")
		}
		go func() {
			logger.Info().Msg("telegram polling started")
			if err := bot.StartPolling(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("telegram polling stopped")
			}
		}()
	}

	// ---- Graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
}

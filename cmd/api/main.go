package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/newsletter-api/internal/config"
	"github.com/jwalitptl/newsletter-api/internal/email"
	"github.com/jwalitptl/newsletter-api/internal/handler"
	newsletterHandler "github.com/jwalitptl/newsletter-api/internal/handler/newsletter"
	subscriptionHandler "github.com/jwalitptl/newsletter-api/internal/handler/subscription"
	"github.com/jwalitptl/newsletter-api/internal/middleware"
	"github.com/jwalitptl/newsletter-api/internal/repository/postgres"
	"github.com/jwalitptl/newsletter-api/internal/router"
	authService "github.com/jwalitptl/newsletter-api/internal/service/auth"
	newsletterService "github.com/jwalitptl/newsletter-api/internal/service/newsletter"
	subscriptionService "github.com/jwalitptl/newsletter-api/internal/service/subscription"
	"github.com/jwalitptl/newsletter-api/internal/worker"
	"github.com/jwalitptl/newsletter-api/pkg/logger"
	"github.com/jwalitptl/newsletter-api/pkg/metrics"
	"github.com/jwalitptl/newsletter-api/pkg/security"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Pretty:     cfg.Log.Pretty,
	})

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Repositories
	baseRepo := postgres.NewBaseRepository(db)
	subscriberRepo := postgres.NewSubscriberRepository(baseRepo)
	issueRepo := postgres.NewIssueRepository(baseRepo)
	deliveryRepo := postgres.NewDeliveryRepository(baseRepo)
	idempotencyRepo := postgres.NewIdempotencyRepository(baseRepo)
	publisherRepo := postgres.NewPublisherRepository(baseRepo)

	// Email transport
	mailer := email.NewMailer(cfg.SMTP)

	appMetrics := metrics.NewMetrics("newsletter")

	// Services
	hasher := security.NewBcryptHasher(12)
	authSvc := authService.NewService(publisherRepo, hasher)
	subscriptionSvc := subscriptionService.NewService(subscriberRepo, &baseRepo, mailer, cfg.Server.BaseURL, appLogger)
	newsletterSvc := newsletterService.NewService(
		&baseRepo,
		idempotencyRepo,
		issueRepo,
		deliveryRepo,
		cfg.Newsletter.SubmitRetries,
		appLogger,
		appMetrics,
	)

	// Optional redis-backed limiter for the public sign-up endpoint.
	var subscribeLimiter *middleware.RedisRateLimiter
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to parse redis URL")
		}
		redisClient := redis.NewClient(opts)
		defer redisClient.Close()
		subscribeLimiter = middleware.NewRedisRateLimiter(
			redisClient,
			cfg.RateLimit.SubscribePerMinute,
			cfg.RateLimit.SubscribeWindow,
		)
	}

	// Handlers
	h := handler.NewHandler()
	subscriptionH := subscriptionHandler.NewHandler(subscriptionSvc)
	newsletterH := newsletterHandler.NewHandler(newsletterSvc)
	authMiddleware := middleware.NewAuthMiddleware(authSvc)

	routerConfig := router.Config{}
	if cfg.RateLimit.Enabled {
		routerConfig.RateLimit = rate.Limit(cfg.RateLimit.RequestsPerSecond)
		routerConfig.RateBurst = cfg.RateLimit.Burst
	}

	r := router.NewRouter(authMiddleware, subscriptionH, newsletterH, h, subscribeLimiter, routerConfig)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drain deliveries in-process as well; additional worker instances
	// can run alongside via cmd/worker.
	deliveryWorker := worker.NewDeliveryWorker(
		deliveryRepo,
		mailer,
		worker.DeliveryWorkerConfig{
			PollInterval: cfg.Worker.PollInterval,
			MaxAttempts:  cfg.Worker.MaxAttempts,
			RetryBackoff: cfg.Worker.RetryBackoff,
		},
		appLogger,
		appMetrics,
	)
	go deliveryWorker.Start(ctx)

	go func() {
		appLogger.Info("starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLogger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error(err, "graceful shutdown failed")
	}
}

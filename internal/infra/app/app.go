package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/wrdsb/user-directory-api/internal/core/port"
	"github.com/wrdsb/user-directory-api/internal/core/schema"
	"github.com/wrdsb/user-directory-api/internal/infra/config"
	"github.com/wrdsb/user-directory-api/internal/infra/database"
	kafkainfra "github.com/wrdsb/user-directory-api/internal/infra/kafka"
	"github.com/wrdsb/user-directory-api/internal/infra/logger"
	redisinfra "github.com/wrdsb/user-directory-api/internal/infra/redis"
	postgresrepo "github.com/wrdsb/user-directory-api/internal/repository/postgres"
	redisrepo "github.com/wrdsb/user-directory-api/internal/repository/redis"
	"github.com/wrdsb/user-directory-api/internal/transport/http/middleware"
	"github.com/wrdsb/user-directory-api/internal/transport/http/routes"
	"github.com/wrdsb/user-directory-api/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	directory := postgresrepo.NewUserDirectory(pool)
	authorizer := postgresrepo.NewAuthorizer(pool)
	roleRegistry := postgresrepo.NewRoleRegistry(pool, authorizer)
	contentRepo := postgresrepo.NewContentRepository(pool)

	lookupTTL := cfg.Redis.LookupCacheTTL
	if lookupTTL <= 0 {
		lookupTTL = 15 * time.Minute
	}
	lookupCache := redisrepo.NewLookupCache(redisClient.Client(), redisrepo.LookupCacheConfig{
		KeyPrefix: cfg.Redis.LookupCachePrefix,
		TTL:       lookupTTL,
	})

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitStore(redisClient.Client(), redisrepo.RateLimitConfig{
		KeyPrefix: "directory:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	userService := usecase.NewUserService(directory, authorizer, roleRegistry, contentRepo, eventPublisher, usecase.Options{
		Namespace: cfg.API.Namespace,
		RestBase:  cfg.API.RestBase,
		RestURL:   cfg.API.RestURL,
		SiteURL:   cfg.API.SiteURL,
		MetaKey:   cfg.API.MetaKey,
		Multisite: cfg.API.Multisite,
		Schema: schema.Options{
			AvatarsEnabled: cfg.API.AvatarsEnabled,
			AvatarSizes:    cfg.API.AvatarSizes,
		},
	}, log).WithLookupCache(lookupCache)

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Users:       userService,
		Database:    pool,
		Cache:       redisClient,
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting user directory API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}

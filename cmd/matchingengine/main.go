package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/application"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/events/broadcast"
	eventskafka "github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/events/kafka"
	"github.com/wyfcoding/matchingengine/internal/matchingengine/infrastructure/persistence/mysql"
	httpserver "github.com/wyfcoding/matchingengine/internal/matchingengine/interfaces/http"

	"github.com/wyfcoding/matchingengine/internal/matchingengine/domain"
	"github.com/wyfcoding/matchingengine/pkg/cache"
	"github.com/wyfcoding/matchingengine/pkg/config"
	"github.com/wyfcoding/matchingengine/pkg/db"
	"github.com/wyfcoding/matchingengine/pkg/logger"
	"github.com/wyfcoding/matchingengine/pkg/metrics"
	"github.com/wyfcoding/matchingengine/pkg/middleware"
	"github.com/wyfcoding/matchingengine/pkg/mq"
	"github.com/wyfcoding/matchingengine/pkg/ratelimit"
)

var configPath = flag.String("config", "configs/matchingengine/config.toml", "config file path")

func main() {
	flag.Parse()

	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	log := logger.Get()
	ctx := context.Background()

	met := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		if err := met.Register(); err != nil {
			log.Error("failed to register metrics", "error", err)
		}
		if err := metrics.StartHTTPServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
			log.Error("failed to start metrics server", "error", err)
		}
	}

	database, err := db.Init(db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	repo := mysql.NewRepository(database.DB)
	if cfg.Environment == "dev" {
		if err := repo.AutoMigrate(); err != nil {
			log.Error("failed to migrate database", "error", err)
		}
	}

	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ConnTimeout:  cfg.Redis.ConnTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		log.Error("failed to init redis", "error", err)
		os.Exit(1)
	}
	defer redisCache.Close()
	limiter := ratelimit.NewRedisRateLimiter(redisCache.GetClient())

	kafkaProducer, err := mq.NewProducer(mq.KafkaConfig{
		Brokers:      cfg.Kafka.Brokers,
		MaxRetries:   3,
		RetryBackoff: 100,
	})
	if err != nil {
		log.Error("failed to init kafka producer", "error", err)
		os.Exit(1)
	}
	defer kafkaProducer.Close()

	kafkaPublisher := eventskafka.NewPublisher(kafkaProducer, log)
	sseBroadcaster := broadcast.NewBroadcaster()
	publisher := fanoutPublisher{kafka: kafkaPublisher, sse: sseBroadcaster}

	engine := domain.NewEngine(cfg.Matching.QueueCapacity, repo, publisher, log)
	engine.Start(ctx)
	defer engine.Stop(time.Duration(cfg.Matching.ShutdownTimeout) * time.Second)

	intake := application.NewIntakeService(repo, engine, log)
	query := application.NewQueryService(repo, engine, redisCache)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.GinRecoveryMiddleware(), middleware.GinLoggingMiddleware(), middleware.GinCORSMiddleware())

	handler := httpserver.NewHandler(intake, query, sseBroadcaster, cfg.Matching.DefaultDepth, cfg.Matching.MaxDepth)
	handler.RegisterRoutes(router, middleware.RateLimitMiddleware(limiter, cfg.RateLimit))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			log.Info("shutting down")
		case <-gctx.Done():
			log.Info("context cancelled, shutting down")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
	}
}

// fanoutPublisher mirrors every engine event to both Kafka (for
// downstream analytics/audit consumers) and the in-process SSE
// broadcaster (for GET /events/* subscribers).
type fanoutPublisher struct {
	kafka *eventskafka.Publisher
	sse   *broadcast.Broadcaster
}

func (p fanoutPublisher) PublishTrade(ctx context.Context, trade *domain.Trade) {
	p.kafka.PublishTrade(ctx, trade)
	p.sse.PublishTrade(ctx, trade)
}

func (p fanoutPublisher) PublishOrderStateChange(ctx context.Context, order *domain.Order) {
	p.kafka.PublishOrderStateChange(ctx, order)
	p.sse.PublishOrderStateChange(ctx, order)
}

func (p fanoutPublisher) PublishBookDelta(ctx context.Context, snapshot *domain.OrderBookSnapshot) {
	p.kafka.PublishBookDelta(ctx, snapshot)
	p.sse.PublishBookDelta(ctx, snapshot)
}

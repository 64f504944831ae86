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

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/config"
	h "github.com/fjod/storefront/internal/http"
	"github.com/fjod/storefront/internal/logging"
	"github.com/fjod/storefront/internal/poller"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	matcher, err := config.LoadVariationRules(cfg.VariationRulesFile)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() { _ = mongoDB.Client().Disconnect(context.Background()) }()

	repo := repository.NewMongoRepository(mongoDB)
	if ic, ok := repo.(repository.IndexCreator); ok {
		if err := ic.CreateIndexes(ctx); err != nil {
			return err
		}
	}
	logger.Info("connected to MongoDB", zap.String("database", cfg.MongoDatabase))

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	logger.Info("redis ping succeeded", zap.String("addr", cfg.RedisAddr))

	products, err := catalog.NewRepository(cfg.CatalogDBPath)
	if err != nil {
		return err
	}
	defer products.Close()
	if err := products.RunMigrations(); err != nil {
		return err
	}
	cat := catalog.NewBreaker(products, catalog.DefaultBreakerSettings(), logger.Named("catalog"))

	carts := service.NewCartService(repo, cache.NewRedisCache(redisClient), cat,
		service.WithMatcher(matcher),
		service.WithLogger(logger.Named("service")))

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(h.RouterConfig{
			Carts:          carts,
			Catalog:        cat,
			JWTSecret:      []byte(cfg.JWTSecret),
			RequestTimeout: cfg.RequestTimeout,
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Logger:         logger.Named("http"),
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("cart service listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down cart service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.KafkaBrokers) > 0 {
		p := poller.NewPoller(carts, poller.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.CheckoutTopic,
			GroupID: cfg.KafkaGroupID,
		}, logger.Named("poller"))
		g.Go(func() error {
			defer p.Close()
			return p.Run(gctx)
		})
	} else {
		logger.Info("KAFKA_BROKERS not set, checkout consumer disabled")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("cart service stopped")
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping/store"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	if err := run(cfg); err != nil {
		slog.Error("indexer service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("indexer service stopped")
}

func run(cfg *config.Config) error {
	slog.Info("starting indexer service",
		"index", cfg.Mapper.Index,
		"num_shards", cfg.Indexer.ShardCount,
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	checker := health.NewChecker()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	mappingStore := store.NewPostgres(db)
	if err := mappingStore.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	checker.Register("postgres", health.PingCheck(db.Ping, false))

	// The version cache is optional: without it workers rely on the
	// mapping updates topic alone.
	var cache store.VersionCache
	rdb, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, running without version cache", "error", err)
		checker.Register("redis", health.PingCheck(nil, true))
	} else {
		defer rdb.Close()
		cache = store.NewRedisVersionCache(rdb, cfg.Redis.CacheTTL)
		checker.Register("redis", health.PingCheck(rdb.Ping, true))
	}

	updates := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.MappingUpdates)
	defer updates.Close()
	ingestProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest)
	defer ingestProducer.Close()

	svc, err := mapping.NewService(cfg.Mapper, mapping.Deps{
		Store:     mappingStore,
		Cache:     cache,
		Publisher: updates,
		Metrics:   m,
	})
	if err != nil {
		return fmt.Errorf("creating mapping service: %w", err)
	}
	if err := svc.Bootstrap(ctx); err != nil {
		return fmt.Errorf("loading mappings: %w", err)
	}

	router, err := shard.NewRouter(cfg.Indexer, m)
	if err != nil {
		return fmt.Errorf("creating shard router: %w", err)
	}
	defer router.Close()
	for shardID, engine := range router.GetAllEngines() {
		engine.StartFlushLoop(ctx)
		slog.Debug("flush loop started", "shard_id", shardID)
	}

	status := ingest.NewPostgresStatus(db)
	pipeline := ingest.NewPipeline(svc, router, status)
	pipeline.SetSlowThreshold(cfg.Logging.SlowDocument)
	ingestConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentIngest, pipeline.HandleMessage())

	// Every worker must see every mapping update, so updates are read
	// under a group of their own per host.
	updatesCfg := cfg.Kafka
	updatesCfg.ConsumerGroup = updatesGroup(cfg.Kafka.ConsumerGroup)
	updatesConsumer := kafka.NewConsumer(updatesCfg, cfg.Kafka.Topics.MappingUpdates, svc.HandleUpdate())

	mux := http.NewServeMux()
	ingest.NewHandler(ingest.NewSubmitter(svc.IndexName(), ingestProducer, status), svc).Register(mux)
	chain := []func(http.Handler) http.Handler{middleware.Logging, middleware.Metrics(m)}
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
		limiter.StartCleanup(ctx)
		chain = append(chain, middleware.RateLimit(limiter))
	}
	chain = append(chain, middleware.Timeout(cfg.Server.WriteTimeout))
	api := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, chain...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + time.Second,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, map[string]http.Handler{
			"/health/live":  checker.LiveHandler(),
			"/health/ready": checker.ReadyHandler(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingestConsumer.Start(gctx)
	})
	g.Go(func() error {
		return updatesConsumer.Start(gctx)
	})
	g.Go(func() error {
		syncLoop(gctx, svc, cfg.Mapper.SyncInterval)
		return nil
	})
	g.Go(func() error {
		slog.Info("ingest api listening", "addr", api.Addr)
		if err := api.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ingest api: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}
		return api.Shutdown(shutdownCtx)
	})

	slog.Info("indexer service ready, consuming from kafka",
		"ingest_topic", cfg.Kafka.Topics.DocumentIngest,
		"updates_topic", cfg.Kafka.Topics.MappingUpdates,
		"group", cfg.Kafka.ConsumerGroup,
	)
	err = g.Wait()

	slog.Info("flushing all shards before shutdown")
	if ferr := router.FlushAll(); ferr != nil {
		slog.Error("final flush failed", "error", ferr)
	}
	return err
}

// syncLoop periodically reloads types whose cached version is ahead of the
// local snapshot, covering updates missed on the topic.
func syncLoop(ctx context.Context, svc *mapping.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.Sync(ctx); err != nil {
				slog.Warn("mapping sync failed", "error", err)
			}
		}
	}
}

func updatesGroup(base string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return base + "-updates-" + host
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/reviewpulse/reviewpulse/internal/api"
	"github.com/reviewpulse/reviewpulse/internal/api/cache"
	"github.com/reviewpulse/reviewpulse/internal/enrich"
	"github.com/reviewpulse/reviewpulse/internal/events"
	"github.com/reviewpulse/reviewpulse/internal/reply"
	"github.com/reviewpulse/reviewpulse/internal/review/store"
	"github.com/reviewpulse/reviewpulse/internal/similarity"
	"github.com/reviewpulse/reviewpulse/pkg/config"
	"github.com/reviewpulse/reviewpulse/pkg/health"
	"github.com/reviewpulse/reviewpulse/pkg/kafka"
	"github.com/reviewpulse/reviewpulse/pkg/logger"
	"github.com/reviewpulse/reviewpulse/pkg/metrics"
	"github.com/reviewpulse/reviewpulse/pkg/middleware"
	"github.com/reviewpulse/reviewpulse/pkg/postgres"
	pkgredis "github.com/reviewpulse/reviewpulse/pkg/redis"
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
	slog.Info("starting reviewpulse", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	reviewStore := store.New(db)
	if err := reviewStore.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}
	slog.Info("postgres ready", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)

	var searchCache api.ResultCache
	var redisClient *pkgredis.Client
	redisClient, err = pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		searchCache = cache.New(redisClient, cfg.Redis)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	eventsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReviewEvents)
	defer eventsProducer.Close()
	collector := events.NewCollector(eventsProducer, 10000)
	collector.Start(ctx)
	defer collector.Close()
	slog.Info("events collector started", "topic", cfg.Kafka.Topics.ReviewEvents)

	aggregator := events.NewAggregator()
	eventsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ReviewEvents, events.HandleEvent(aggregator))

	go func() {
		if err := aggregator.Start(ctx, eventsConsumer); err != nil && ctx.Err() == nil {
			slog.Error("events aggregator error", "error", err)
		}
	}()

	index := similarity.NewService(similarity.Config{
		MaxVocabulary: cfg.Similarity.MaxVocabulary,
		NGramMax:      cfg.Similarity.NGramMax,
	})
	replies := reply.NewGenerator(cfg.Reply)
	enricher := enrich.New()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
		slog.Info("metrics server started", "port", cfg.Metrics.Port)
	}

	h := api.New(reviewStore, index, replies, enricher, searchCache, collector, aggregator, m, cfg.Similarity)

	if err := h.RebuildIndex(ctx); err != nil {
		slog.Error("initial index build failed", "error", err)
		os.Exit(1)
	}
	stats := index.Stats()
	slog.Info("similarity index ready",
		"documents", stats.Documents,
		"vocabulary_size", stats.VocabularySize,
	)

	checker := health.NewChecker()
	checker.Register("postgres", func(ctx context.Context) health.ComponentHealth {
		if err := db.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		if err := redisClient.Ping(ctx); err != nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp}
	})
	checker.Register("similarity_index", func(ctx context.Context) health.ComponentHealth {
		s := index.Stats()
		if !s.Built {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "index not built"}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents indexed", s.Documents),
		}
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.CORS(middleware.DefaultCORSConfig())(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("reviewpulse listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("reviewpulse stopped")
}

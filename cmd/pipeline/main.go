package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/lib/pq"

	"github.com/yhwang-dev/tradeshield/internal/adapters/ai"
	"github.com/yhwang-dev/tradeshield/internal/adapters/clickhouse"
	"github.com/yhwang-dev/tradeshield/internal/adapters/config"
	"github.com/yhwang-dev/tradeshield/internal/adapters/database"
	"github.com/yhwang-dev/tradeshield/internal/adapters/market"
	redisAdapter "github.com/yhwang-dev/tradeshield/internal/adapters/redis"
	"github.com/yhwang-dev/tradeshield/internal/adapters/telegram"
	"github.com/yhwang-dev/tradeshield/internal/articles"
	"github.com/yhwang-dev/tradeshield/internal/calendar"
	"github.com/yhwang-dev/tradeshield/internal/cluster"
	"github.com/yhwang-dev/tradeshield/internal/constitution"
	"github.com/yhwang-dev/tradeshield/internal/health"
	"github.com/yhwang-dev/tradeshield/internal/pipeline"
	"github.com/yhwang-dev/tradeshield/internal/proposals"
	"github.com/yhwang-dev/tradeshield/internal/regime"
	"github.com/yhwang-dev/tradeshield/internal/risk"
	"github.com/yhwang-dev/tradeshield/internal/shadow"
	"github.com/yhwang-dev/tradeshield/internal/signals"
	"github.com/yhwang-dev/tradeshield/internal/sources"
	"github.com/yhwang-dev/tradeshield/pkg/logger"
	"github.com/yhwang-dev/tradeshield/pkg/metrics"
	"github.com/yhwang-dev/tradeshield/pkg/templates"
	"github.com/yhwang-dev/tradeshield/pkg/worker"
)

// requiredTemplates must parse at startup; a missing message template
// would otherwise surface only when the first proposal fires
var requiredTemplates = []string{
	"analysis_prompt.tmpl",
	"proposal.tmpl",
	"rejection.tmpl",
	"shield_report.tmpl",
	"kill_switch.tmpl",
}

func main() {
	// Setup signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nReceived interrupt signal, shutting down...")
		cancel()
	}()

	// Run application
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load configuration and initialize logger
	cfg, err := initConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("TradeShield pipeline starting...",
		zap.String("provider", cfg.AI.Provider),
		zap.Duration("poll_interval", cfg.Pipeline.PollInterval),
	)

	// The constitution gate runs before anything touches the network:
	// a tampered rule text must never reach a live decision
	constit, err := constitution.New()
	if err != nil {
		logger.Error("🚨 constitutional integrity failure, refusing to start", zap.Error(err))
		return fmt.Errorf("constitution: %w", err)
	}

	// Core infrastructure
	db, err := initDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	audit, warehouse := initWarehouse(cfg)
	if warehouse != nil {
		defer warehouse.Close()
	}

	// Message and prompt templates
	renderer, err := templates.NewManagerWithValidation("./templates", requiredTemplates)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	// Market data: HTTP client behind a breaker, spot prices cached in
	// Redis when available
	marketClient, cached := initMarketData(cfg, redisClient)

	stream := startQuoteStream(ctx, cfg, cached)
	if stream != nil {
		defer stream.Close()
	}

	// AI completion stack
	evaluator, err := initEvaluator(cfg, renderer)
	if err != nil {
		return err
	}

	// Intelligence core
	loc := cfg.Risk.MarketLocation()

	cal := calendar.New(loc)
	if err := cal.Seed(time.Now(), cfg.Calendar.HorizonDays); err != nil {
		return fmt.Errorf("failed to seed event calendar: %w", err)
	}
	logger.Info("event calendar seeded", zap.Int("events", cal.Len()))

	classifier := sources.NewClassifier()
	clusters := cluster.NewEngine(cluster.Config{
		Window:      cfg.Cluster.Window,
		MinSize:     cfg.Cluster.MinSize,
		MaxAge:      cfg.Cluster.MaxAge,
		EventWindow: cfg.Calendar.EventWindow,
	}, classifier, cal)

	// Decision core
	articleRepo := articles.NewRepository(db.DB())
	proposalRepo := proposals.NewRepository(db.DB())
	shadowRepo := shadow.NewRepository(db.DB())

	validator := risk.NewValidator(&cfg.Risk, risk.NewRepository(db.DB()))
	generator := signals.NewGenerator(&cfg.Signals)
	regimeBuilder := regime.NewBuilder(marketClient, cfg.Portfolio.IndexTicker, cfg.Portfolio.VIXTicker)
	tracker := shadow.NewTracker(shadowRepo, marketClient, &cfg.Shadow)

	// Telegram notifier (optional)
	notifier := initNotifier(cfg, renderer)

	// Shadow mark-to-market and weekly shield report
	var reportSink shadow.ReportSink
	if notifier != nil {
		reportSink = notifier
	}
	shadowScheduler := shadow.NewScheduler(tracker, reportSink, &cfg.Shadow, loc)
	if err := shadowScheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start shadow scheduler: %w", err)
	}
	defer shadowScheduler.Stop()

	// Pipeline supervisor
	registry := prometheus.NewRegistry()
	pipelineMetrics := pipeline.NewMetrics(registry)

	deps := pipeline.Deps{
		Config:       cfg,
		Articles:     articleRepo,
		Proposals:    proposalRepo,
		Evaluator:    evaluator,
		Clusters:     clusters,
		Generator:    generator,
		Validator:    validator,
		Constitution: constit,
		Shadows:      tracker,
		Market:       marketClient,
		Regime:       regimeBuilder,
		Classifier:   classifier,
		Audit:        audit,
		Metrics:      pipelineMetrics,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	var leaderLock *redisAdapter.LeaderLock
	if redisClient != nil {
		leaderLock = redisClient.LeaderLock(&cfg.Redis)
		deps.Leader = leaderLock
	}
	pipe := pipeline.New(deps)

	// Background workers
	group := worker.NewWorkerGroup(ctx)
	group.Add(pipe, cfg.Pipeline.PollInterval)
	group.Add(pipeline.NewJanitor(articleRepo, cfg.Pipeline.ArticleRetention), 6*time.Hour)
	group.Start()

	// Ops HTTP surface: probes + Prometheus exposition
	ops := startOpsServer(cfg, db, redisClient, validator, registry)

	logger.Info("🛡️ TradeShield pipeline ready",
		zap.String("constitution_digest", constit.Digest()[:12]),
		zap.Bool("telegram", notifier != nil),
		zap.Bool("warehouse", audit != nil),
		zap.Bool("leader_lock", deps.Leader != nil),
	)
	ops.SetReady(true)

	// Wait for shutdown signal
	<-ctx.Done()

	return performGracefulShutdown(cfg, ops, group, audit, leaderLock)
}

// initConfig loads configuration and initializes logger
func initConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}

// initDatabase initializes database connection with sqlx and runs
// migrations
func initDatabase(cfg *config.Config) (*database.DB, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := database.RunMigrations(db.Conn(), cfg.Database.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("database connection established (sqlx)",
		zap.String("host", cfg.Database.Host),
		zap.String("database", cfg.Database.Name),
	)

	return db, nil
}

// initRedis connects the lock and cache backend; the pipeline degrades
// to single-replica mode without it
func initRedis(cfg *config.Config) *redisAdapter.Client {
	if !cfg.Redis.Enabled {
		logger.Info("redis disabled, running without leader lock and price cache")
		return nil
	}

	client, err := redisAdapter.New(&cfg.Redis)
	if err != nil {
		logger.Warn("redis unavailable, running without leader lock and price cache", zap.Error(err))
		return nil
	}

	logger.Info("redis connection established (redlock)",
		zap.Strings("addrs", cfg.Redis.Addrs),
	)

	return client
}

// initWarehouse connects the ClickHouse audit warehouse; analyses and
// cycle stats stay unrecorded when it is down
func initWarehouse(cfg *config.Config) (metrics.Buffer, *database.DB) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	ch, err := database.NewClickHouse(cfg.ClickHouse.GetDSN())
	if err != nil {
		logger.Warn("ClickHouse not available, audit rows disabled", zap.Error(err))
		return nil, nil
	}

	logger.Info("ClickHouse connection established",
		zap.String("addr", cfg.ClickHouse.Addr),
		zap.String("database", cfg.ClickHouse.Database),
	)

	buffer := metrics.NewBufferedSink(metrics.BufferConfig{
		Sink:          clickhouse.NewSink(ch.DB()),
		BatchSize:     100,
		FlushInterval: 10 * time.Second,
	})

	return buffer, ch
}

// initMarketData wires the provider behind the circuit breaker and the
// optional Redis spot-price cache. The second return is the cache
// itself, used to prime it from the quote stream.
func initMarketData(cfg *config.Config, redisClient *redisAdapter.Client) (market.DataClient, *market.CachedClient) {
	var client market.DataClient = market.NewBreakerClient(
		market.NewHTTPClient(&cfg.MarketData),
		cfg.MarketData.BreakerFailures,
		cfg.MarketData.BreakerCooldown,
	)

	if redisClient == nil {
		return client, nil
	}

	cached := market.NewCachedClient(client, redisClient.Cache(), cfg.MarketData.CacheTTL)
	return cached, cached
}

// startQuoteStream keeps the price cache warm from the live feed. It
// needs both the stream endpoint and the Redis cache; otherwise polls
// through the HTTP client are the only price source.
func startQuoteStream(ctx context.Context, cfg *config.Config, cached *market.CachedClient) *market.QuoteStream {
	if !cfg.MarketData.StreamEnabled || cfg.MarketData.StreamURL == "" {
		return nil
	}
	if cached == nil {
		logger.Warn("quote stream enabled but redis is not, skipping stream")
		return nil
	}

	stream := market.NewQuoteStream(cfg.MarketData.StreamURL, []string{
		cfg.Portfolio.IndexTicker,
		cfg.Portfolio.VIXTicker,
	})
	if err := stream.Connect(); err != nil {
		logger.Warn("quote stream connect failed, relying on polled prices", zap.Error(err))
		return nil
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case quote, ok := <-stream.Quotes():
				if !ok {
					return
				}
				cached.Prime(ctx, quote)
			case err, ok := <-stream.Errors():
				if !ok {
					return
				}
				logger.Warn("quote stream error", zap.Error(err))
			}
		}
	}()

	logger.Info("✅ quote stream started", zap.String("url", cfg.MarketData.StreamURL))
	return stream
}

// initEvaluator builds the completion stack: provider client, rate
// limiter, semantic router, template-driven evaluator
func initEvaluator(cfg *config.Config, renderer templates.Renderer) (*ai.NewsEvaluator, error) {
	completer, err := ai.NewCompleter(&cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("failed to create completer: %w", err)
	}

	limited := ai.NewRateLimited(completer, cfg.AI.RequestsPerMinute, cfg.Pipeline.BatchSize)
	router := ai.NewSemanticRouter(ai.CompletionConfig{
		Provider:    cfg.AI.Provider,
		Model:       cfg.AI.Model,
		MaxTokens:   cfg.AI.MaxTokens,
		Temperature: cfg.AI.Temperature,
		TopP:        cfg.AI.TopP,
	})

	logger.Info("AI evaluator initialized",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model),
		zap.Int("rpm", cfg.AI.RequestsPerMinute),
	)

	return ai.NewNewsEvaluator(limited, router, renderer, &cfg.AI), nil
}

// initNotifier initializes the Telegram sink; nil means notifications
// are logged only
func initNotifier(cfg *config.Config, renderer templates.Renderer) *telegram.Notifier {
	if !cfg.Telegram.Enabled {
		logger.Info("telegram notifications disabled")
		return nil
	}

	notifier, err := telegram.NewNotifier(&cfg.Telegram, renderer)
	if err != nil {
		logger.Warn("failed to initialize telegram notifier", zap.Error(err))
		return nil
	}

	logger.Info("📱 Telegram notifier initialized")
	return notifier
}

// startOpsServer starts the probe + metrics endpoint
func startOpsServer(cfg *config.Config, db *database.DB, redisClient *redisAdapter.Client, validator *risk.Validator, registry *prometheus.Registry) *health.Server {
	var gatherer prometheus.Gatherer
	if cfg.Metrics.Enabled {
		gatherer = registry
	}

	ops := health.NewServer(cfg.Metrics.ListenAddr, db, redisClient, validator, gatherer)

	go func() {
		if err := ops.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("ops server error", zap.Error(err))
		}
	}()

	return ops
}

// performGracefulShutdown drains workers and flushes the warehouse
// buffer before the connections close
func performGracefulShutdown(cfg *config.Config, ops *health.Server, group *worker.WorkerGroup, audit metrics.Buffer, leader *redisAdapter.LeaderLock) error {
	logger.Info("🛑 Shutdown signal received, starting graceful shutdown...")

	ops.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.ShutdownTimeout)
	defer cancel()

	group.Stop(cfg.Pipeline.ShutdownTimeout)

	if audit != nil {
		logger.Info("flushing warehouse buffer...")
		if err := audit.Close(shutdownCtx); err != nil {
			logger.Error("warehouse buffer close error", zap.Error(err))
		}
	}

	if leader != nil {
		if err := leader.Release(shutdownCtx); err != nil {
			logger.Warn("leader lock release error", zap.Error(err))
		}
	}

	logger.Info("stopping ops server...")
	if err := ops.Stop(shutdownCtx); err != nil {
		logger.Error("ops server stop error", zap.Error(err))
	}

	logger.Info("✅ shutdown completed successfully")
	return nil
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/chat/catalog"
	"github.com/boddenberg/vendas-bot-go/internal/chat/deal"
	"github.com/boddenberg/vendas-bot-go/internal/chat/infra"
	"github.com/boddenberg/vendas-bot-go/internal/chat/intent"
	"github.com/boddenberg/vendas-bot-go/internal/chat/port"
	"github.com/boddenberg/vendas-bot-go/internal/chat/service"
	"github.com/boddenberg/vendas-bot-go/internal/chat/state"
	"github.com/boddenberg/vendas-bot-go/internal/config"
	"github.com/boddenberg/vendas-bot-go/internal/handler"
	"github.com/boddenberg/vendas-bot-go/internal/infra/observability"
	"github.com/boddenberg/vendas-bot-go/internal/infra/resilience"
	"github.com/boddenberg/vendas-bot-go/internal/infra/supabase"

	"go.uber.org/zap"
)

func main() {
	// --- Load .env file (for local development) ---
	_ = config.LoadDotEnv(".env")

	// --- Config ---
	cfg := config.Load()

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "vendas-bot")
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("embedding_provider", cfg.EmbeddingProvider),
		zap.String("embedding_cache", cfg.EmbeddingCache),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Bool("generator_enabled", cfg.EnableGenerator),
		zap.String("state_store", cfg.StateStore),
		zap.String("deal_store", cfg.DealStore),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Int("dispatch_workers", cfg.DispatchWorkers),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("initial_backoff", cfg.InitialBackoff),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// --- Tracing ---
	shutdownTracer, err := observability.InitTracer(ctx, "vendas-bot", cfg.OTLPEndpoint, logger)
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Catalog ---
	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		cat, err = catalog.Load(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("failed to load catalog", zap.String("path", cfg.CatalogPath), zap.Error(err))
		}
	}
	logger.Info("catalog loaded",
		zap.String("company", cat.Company.Name),
		zap.Int("intents", len(cat.Intents)),
	)

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.LLMMaxInFlight,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var checks []handler.ReadinessCheck

	// --- Intent classifier ---
	intentCfg := intent.DefaultConfig()
	intentCfg.SimilarityThreshold = cfg.SimilarityThreshold
	intentCfg.EmbedTimeout = cfg.EmbedTimeout
	intentCfg.QueryCacheTTL = cfg.QueryCacheTTL

	classifierOpts := []intent.Option{intent.WithCacheObserver(metrics)}
	embedder, vectors, closeVectors := buildEmbedder(ctx, cfg, httpClient, resilienceCfg, logger)
	defer closeVectors()
	if embedder != nil {
		classifierOpts = append(classifierOpts, intent.WithEmbedder(embedder, vectors))
	}
	classifier := intent.New(cat, intentCfg, logger, classifierOpts...)
	defer classifier.Close()

	if embedder != nil {
		go func() {
			if err := classifier.Warmup(ctx); err != nil {
				logger.Warn("embedding layer disabled, using patterns only", zap.Error(err))
			}
		}()
	}

	// --- Conversation state ---
	storeOpts := []state.Option{}
	if cfg.StateStore == "redis" {
		rdb := infra.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer rdb.Close()
		repo := infra.NewRedisStateRepository(rdb, 2*cfg.IdleTimeout)
		storeOpts = append(storeOpts, state.WithRepository(repo))
		checks = append(checks, handler.ReadinessCheck{Name: "redis", Ping: repo.Ping})
		logger.Info("conversation state persisted in redis", zap.String("addr", cfg.RedisAddr))
	}
	store := state.NewStore(state.Config{
		IdleTimeout:    cfg.IdleTimeout,
		SweepInterval:  cfg.SweepInterval,
		HistorySize:    cfg.HistorySize,
		HistoryTextMax: state.DefaultConfig().HistoryTextMax,
		RepoTimeout:    state.DefaultConfig().RepoTimeout,
	}, logger, storeOpts...)
	sweeperDone := store.StartSweeper(ctx)

	// --- Deals ---
	dealOpts := []deal.Option{deal.WithTransitionObserver(metrics)}
	switch cfg.DealStore {
	case "supabase":
		if cfg.SupabaseURL == "" {
			logger.Fatal("DEAL_STORE=supabase requires SUPABASE_URL")
		}
		client := supabase.NewClient(httpClient, cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase"), resilienceCfg, logger)
		deals := supabase.NewDealsStore(client, cfg.DealsTable)
		dealOpts = append(dealOpts, deal.WithRepository(deals))
		checks = append(checks, handler.ReadinessCheck{Name: "supabase", Ping: deals.Ping})
		logger.Info("deals persisted in supabase", zap.String("supabase_url", cfg.SupabaseURL))
	case "dynamodb":
		ddb, err := infra.NewDynamoClient(ctx, cfg.AWSRegion, cfg.DynamoDBEndpoint)
		if err != nil {
			logger.Fatal("failed to create dynamodb client", zap.Error(err))
		}
		deals := infra.NewDynamoDealRepository(ddb, cfg.DealsTable)
		dealOpts = append(dealOpts, deal.WithRepository(deals))
		checks = append(checks, handler.ReadinessCheck{Name: "dynamodb", Ping: func(ctx context.Context) error {
			_, err := deals.FindByID(ctx, "readyz")
			return err
		}})
		logger.Info("deals persisted in dynamodb", zap.String("region", cfg.AWSRegion))
	default:
		logger.Info("deals kept in memory only")
	}
	registry := deal.NewRegistry(logger, dealOpts...)

	// --- Chat service ---
	svcOpts := []service.Option{service.WithMetrics(metrics)}
	if gen := buildGenerator(ctx, cfg, httpClient, resilienceCfg, logger); gen != nil {
		svcOpts = append(svcOpts, service.WithGenerator(gen, resilience.NewBulkhead(cfg.LLMMaxInFlight), cfg.LLMTimeout))
	}
	chatSvc := service.NewChatService(cat, classifier, store, registry, logger, svcOpts...)

	// --- Async transport ---
	deps := handler.Deps{
		Engine:  chatSvc,
		Metrics: metrics,
		Checks:  checks,
		Logger:  logger,
	}

	var tokens *infra.WebhookTokens
	if cfg.WebhookJWTSecret != "" {
		tokens = infra.NewWebhookTokens(cfg.WebhookJWTSecret, 5*time.Minute)
		deps.Webhook = tokens
	} else {
		logger.Warn("WEBHOOK_JWT_SECRET not set, inbound webhook is unauthenticated")
	}

	var dispatcher *service.Dispatcher
	if cfg.OutboundWebhookURL != "" {
		sender := infra.NewWebhookSender(httpClient, cfg.OutboundWebhookURL, tokens,
			resilience.NewCircuitBreaker("webhook"), resilienceCfg, logger)
		dispatcher = service.NewDispatcher(chatSvc, sender, cfg.DispatchWorkers, cfg.DispatchQueueSize, metrics, logger)
		dispatcher.Start(ctx)
		deps.Queue = dispatcher
		logger.Info("async delivery enabled", zap.String("outbound_url", cfg.OutboundWebhookURL))
	} else {
		logger.Warn("OUTBOUND_WEBHOOK_URL not set, inbound webhook unavailable")
	}

	// --- Router ---
	router := handler.NewRouter(deps)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// --- Graceful shutdown ---
	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", zap.Error(err))
	}
	if dispatcher != nil {
		dispatcher.Stop()
	}
	stop()
	<-sweeperDone

	logger.Info("server stopped")
}

// buildEmbedder picks the embedding provider and its vector cache.
// A nil embedder keeps the classifier on patterns only.
func buildEmbedder(ctx context.Context, cfg *config.Config, httpClient *http.Client, rcfg resilience.Config, logger *zap.Logger) (port.Embedder, port.VectorCache, func()) {
	noop := func() {}

	var embedder port.Embedder
	switch cfg.EmbeddingProvider {
	case "ollama":
		embedder = infra.NewOllamaEmbedder(httpClient, cfg.OllamaURL, cfg.OllamaModel, resilience.NewCircuitBreaker("ollama"), rcfg)
	case "genai":
		client, err := infra.NewGenAIClient(ctx, cfg.GenAIAPIKey)
		if err != nil {
			logger.Warn("genai embedder unavailable, using patterns only", zap.Error(err))
			return nil, nil, noop
		}
		embedder = infra.NewGenAIEmbedder(client, cfg.GenAIEmbedModel, resilience.NewCircuitBreaker("genai-embed"))
	case "", "none":
		logger.Info("embedding layer off, using patterns only")
		return nil, nil, noop
	default:
		logger.Warn("unknown embedding provider, using patterns only", zap.String("provider", cfg.EmbeddingProvider))
		return nil, nil, noop
	}

	if cfg.EmbeddingCache == "sqlite" {
		vc, err := infra.NewSQLiteVectorCache(cfg.EmbeddingCachePath)
		if err != nil {
			logger.Warn("sqlite vector cache unavailable, vectors will not be cached", zap.Error(err))
			return embedder, nil, noop
		}
		return embedder, vc, func() { vc.Close() }
	}
	return embedder, infra.NewFileVectorCache(cfg.EmbeddingCachePath), noop
}

// buildGenerator returns the text generator for stylistic actions, or
// nil when generation is off.
func buildGenerator(ctx context.Context, cfg *config.Config, httpClient *http.Client, rcfg resilience.Config, logger *zap.Logger) port.TextGenerator {
	if !cfg.EnableGenerator {
		return nil
	}
	switch cfg.LLMProvider {
	case "agent":
		logger.Info("text generator: chat agent", zap.String("url", cfg.ChatAgentURL))
		return infra.NewChatAgentClient(httpClient, cfg.ChatAgentURL, resilience.NewCircuitBreaker("chat-agent"), rcfg)
	case "genai":
		client, err := infra.NewGenAIClient(ctx, cfg.GenAIAPIKey)
		if err != nil {
			logger.Warn("genai generator unavailable, using templates", zap.Error(err))
			return nil
		}
		logger.Info("text generator: genai", zap.String("model", cfg.GenAITextModel))
		return infra.NewGenAIGenerator(client, cfg.GenAITextModel, resilience.NewCircuitBreaker("genai-generate"))
	default:
		logger.Warn("unknown llm provider, using templates", zap.String("provider", cfg.LLMProvider))
		return nil
	}
}

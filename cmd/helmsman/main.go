package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"helmsman/internal/config"
	"helmsman/internal/engine"
	"helmsman/internal/governance"
	"helmsman/internal/httpapi"
	"helmsman/internal/llm"
	"helmsman/internal/logging"
	"helmsman/internal/prompt"
	"helmsman/internal/resilience"
	"helmsman/internal/semcache"
	"helmsman/internal/store"
)

func main() {
	logger := logging.NewLoggerWithService("helmsman")

	config.LoadEnv(logger)
	cfg := config.LoadConfig()

	logger.Info("Starting Helmsman (tool-calling orchestration engine)")

	db, err := store.Connect(store.DefaultConfig(cfg.DatabaseURL), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer func() { _ = db.Close() }()

	provider, err := llm.NewProvider(llm.Config{
		Provider:  cfg.LLMProvider,
		Model:     cfg.LLMModel,
		APIKey:    cfg.LLMAPIKey,
		APIURL:    cfg.LLMAPIURL,
		MaxTokens: cfg.LLMMaxTokens,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM provider")
	}

	resolver, err := governance.NewFileResolver(cfg.CatalogPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load tool catalog")
	}

	policies := resilience.NewRegistry(
		resilience.BreakerConfig{
			FailureThreshold:    cfg.BreakerFailureThreshold,
			SamplingDuration:    cfg.BreakerSamplingDuration,
			BreakDuration:       cfg.BreakerBreakDuration,
			HalfOpenMaxAttempts: cfg.BreakerHalfOpenMaxAttempts,
		},
		resilience.RetryConfig{
			MaxRetries:           cfg.RetryMaxRetries,
			InitialDelay:         cfg.RetryInitialDelay,
			MaxDelay:             cfg.RetryMaxDelay,
			BackoffMultiplier:    cfg.RetryBackoffMultiplier,
			JitterFactor:         cfg.RetryJitterFactor,
			TotalTimeout:         cfg.RetryTotalTimeout,
			RetryableStatusCodes: cfg.RetryableStatusCodes,
		},
		logger,
	)

	var answerCache *semcache.AnswerCache
	if cfg.CacheEnabled && len(cfg.RedisAddrs) > 0 {
		redisStore := semcache.NewRedisStore(cfg.RedisAddrs, cfg.RedisDB)
		defer func() { _ = redisStore.Close() }()

		var vector *semcache.VectorIndex
		if cfg.CacheMode == semcache.ModeSemantic {
			embedder, err := llm.NewEmbeddingClient(llm.EmbeddingConfig{
				Model:  cfg.EmbeddingModel,
				APIKey: cfg.EmbeddingAPIKey,
				APIURL: cfg.EmbeddingAPIURL,
			})
			if err != nil {
				logger.WithError(err).Fatal("Failed to create embedding client")
			}
			vector = semcache.NewVectorIndex(db, embedder, cfg.CacheTTL, logger)
		}

		answerCache = semcache.NewAnswerCache(redisStore, vector, semcache.Options{
			Enabled:               true,
			AllowSensitiveContent: cfg.CacheAllowSensitiveContent,
			Mode:                  cfg.CacheMode,
			TTL:                   cfg.CacheTTL,
		}, policies.For("cache"), logger)
	} else if cfg.CacheEnabled {
		logger.Warn("Semantic cache enabled but REDIS_ADDRS is empty, caching disabled")
	}

	conversations := store.NewConversationStore(db)
	assembler := prompt.NewAssembler(cfg.LLMMaxTokens, logger, []prompt.PackProvider{
		governance.CatalogPackProvider(resolver),
	})

	pipeline := engine.NewPipeline(engine.PipelineDeps{
		Provider:  provider,
		Resolver:  resolver,
		Executor:  store.NewProcedureExecutor(db),
		Store:     conversations,
		Cache:     answerCache,
		Guard:     semcache.NewStampedeGuard(),
		Assembler: assembler,
		Policies:  policies,
		Logger:    logger,
	}, engine.Config{
		MaxSteps:               cfg.MaxSteps,
		MaxToolCallsPerRequest: cfg.MaxToolCallsPerRequest,
		MaxRecursiveDepth:      cfg.MaxRecursiveDepth,
		MaxInputRunes:          cfg.MaxInputRunes,
		ToolResultMaxBytes:     cfg.ToolResultMaxBytes,
	})

	handler := httpapi.NewChatHandler(conversations, pipeline, logger)
	handler.MaxHistoryMessages = cfg.MaxHistoryMessages
	handler.ChannelCapacity = cfg.ChannelCapacity
	handler.DropDeltaWhenFull = cfg.DropDeltaWhenFull

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": "database unreachable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"breakers": policies.States(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/v1")
	api.Use(httpapi.ExecutionContextMiddleware())
	httpapi.RegisterRoutes(api, handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
}

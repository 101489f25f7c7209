package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"memograph/backend/internal/cache"
	"memograph/backend/internal/constants"
	"memograph/backend/internal/graph"
	"memograph/backend/internal/inference"
	"memograph/backend/internal/metadata"
	"memograph/backend/pkg/config"
	apperrors "memograph/backend/pkg/errors"
	"memograph/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph engine server...")

	// Connection pool over the graph backend
	pool := graph.NewPool(graph.PoolConfig{
		MaxSize:         cfg.PoolMaxSize,
		AcquireTimeout:  cfg.PoolAcquireTimeout,
		PollInterval:    cfg.PoolPollInterval,
		IdleThreshold:   cfg.PoolIdleThreshold,
		ReapInterval:    cfg.PoolReapInterval,
		ProbeTimeout:    2 * time.Second,
		DialMaxAttempts: cfg.DialMaxAttempts,
		DialBackoffBase: cfg.DialBackoffBase,
		DialBackoffCap:  cfg.DialBackoffCap,
	}, graph.NewFalkorDialer(cfg.GraphAddr, cfg.GraphPassword))
	defer pool.Close()

	// Cache and metadata stores share the cache Redis instance
	cacheClient := redis.NewClient(&redis.Options{
		Addr:     cfg.CacheAddr,
		Password: cfg.CachePassword,
	})
	defer cacheClient.Close()

	coherency := cache.New(cache.NewRedisStore(cacheClient), cache.Config{
		QueryTTL:        cfg.QueryCacheTTL,
		SearchTTL:       cfg.SearchCacheTTL,
		NeighborhoodTTL: cfg.NeighborhoodCacheTTL,
		StatsTTL:        cfg.StatsCacheTTL,
	})

	resolver := graph.NewResolver(pool, metadata.NewRedisStore(cacheClient))
	defer resolver.Close()

	executor := graph.NewExecutor(pool, resolver, cfg.BatchChunkSize)
	service := graph.NewService(executor, pool, resolver, coherency)

	inferrer := inference.NewClient(cfg.InferenceURL, cfg.InferenceAPIKey, cfg.InferenceModel)
	pipeline := graph.NewPipeline(executor, inferrer, coherency, graph.PipelineConfig{
		EntityConfidence: cfg.EntityConfidence,
		MergeConfidence:  cfg.MergeConfidence,
		Deadline:         cfg.SyncDeadline,
	})

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		health := service.Health()
		c.JSON(http.StatusOK, gin.H{
			"status":                health.Status,
			"pool_size":             health.PoolSize,
			"available_connections": health.AvailableConnections,
		})
	})

	// Tenant identity is trusted here; authentication happens upstream
	api := router.Group("/api/graph/:tenant")
	{
		api.POST("/sync", func(c *gin.Context) {
			var req struct {
				Entities []graph.Entity `json:"entities" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			result, err := pipeline.SyncEntities(c.Request.Context(), c.Param("tenant"), req.Entities)
			if err != nil {
				respondError(c, log, "Sync failed", err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		api.POST("/query", func(c *gin.Context) {
			var req struct {
				Statement string                 `json:"statement" binding:"required"`
				Params    map[string]interface{} `json:"params"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			result, err := service.Execute(c.Request.Context(), c.Param("tenant"), req.Statement, req.Params)
			if err != nil {
				respondError(c, log, "Query failed", err)
				return
			}
			c.JSON(http.StatusOK, result)
		})

		api.POST("/batch", func(c *gin.Context) {
			var req struct {
				Operations []graph.BatchOperation `json:"operations" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			results, err := service.ExecuteBatch(c.Request.Context(), c.Param("tenant"), req.Operations)
			if err != nil {
				respondError(c, log, "Batch failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": results})
		})

		api.GET("/namespace", func(c *gin.Context) {
			name, err := service.ResolveNamespace(c.Request.Context(), c.Param("tenant"))
			if err != nil {
				respondError(c, log, "Namespace resolution failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"graph_name": name})
		})

		api.GET("/neighborhood/:entity", func(c *gin.Context) {
			// Depth clamping is this boundary's job; the engine rejects
			// out-of-range depths outright
			depth, err := strconv.Atoi(c.DefaultQuery("depth", "1"))
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "depth must be an integer"})
				return
			}
			if depth < constants.MinNeighborhoodDepth {
				depth = constants.MinNeighborhoodDepth
			}
			if depth > constants.MaxNeighborhoodDepth {
				depth = constants.MaxNeighborhoodDepth
			}

			neighborhood, err := service.Neighborhood(c.Request.Context(), c.Param("tenant"), c.Param("entity"), depth)
			if err != nil {
				respondError(c, log, "Neighborhood fetch failed", err)
				return
			}
			c.JSON(http.StatusOK, neighborhood)
		})

		api.GET("/search", func(c *gin.Context) {
			query := c.Query("q")
			if query == "" {
				c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
				return
			}
			limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

			results, err := service.Search(c.Request.Context(), c.Param("tenant"), query, limit)
			if err != nil {
				respondError(c, log, "Search failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"results": results})
		})

		api.GET("/stats", func(c *gin.Context) {
			stats, err := service.Stats(c.Request.Context(), c.Param("tenant"))
			if err != nil {
				respondError(c, log, "Stats fetch failed", err)
				return
			}
			c.JSON(http.StatusOK, stats)
		})

		api.PUT("/nodes/:entity", func(c *gin.Context) {
			var req struct {
				Properties map[string]interface{} `json:"properties" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			if err := service.UpdateNode(c.Request.Context(), c.Param("tenant"), c.Param("entity"), req.Properties); err != nil {
				respondError(c, log, "Node update failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "updated"})
		})

		api.DELETE("/nodes/:entity", func(c *gin.Context) {
			if err := service.DeleteNode(c.Request.Context(), c.Param("tenant"), c.Param("entity")); err != nil {
				respondError(c, log, "Node delete failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		api.POST("/relationships", func(c *gin.Context) {
			var req struct {
				FromID     string                 `json:"from_id" binding:"required"`
				FromType   string                 `json:"from_type" binding:"required"`
				ToID       string                 `json:"to_id" binding:"required"`
				ToType     string                 `json:"to_type" binding:"required"`
				Type       string                 `json:"type" binding:"required"`
				Properties map[string]interface{} `json:"properties"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			rel := graph.Relationship{
				FromID:     req.FromID,
				ToID:       req.ToID,
				Type:       req.Type,
				Properties: req.Properties,
			}
			if err := service.CreateRelationship(c.Request.Context(), c.Param("tenant"), rel, req.FromType, req.ToType); err != nil {
				respondError(c, log, "Relationship create failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "created"})
		})

		api.DELETE("/relationships", func(c *gin.Context) {
			var req struct {
				FromID string `json:"from_id" binding:"required"`
				ToID   string `json:"to_id" binding:"required"`
				Type   string `json:"type" binding:"required"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			if err := service.DeleteRelationship(c.Request.Context(), c.Param("tenant"), req.FromID, req.ToID, req.Type); err != nil {
				respondError(c, log, "Relationship delete failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "deleted"})
		})

		api.POST("/merge", func(c *gin.Context) {
			var req struct {
				LosingID  string `json:"losing_id" binding:"required"`
				WinningID string `json:"winning_id" binding:"required"`
				Policy    string `json:"policy"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			policy := graph.MergePolicy(req.Policy)
			if policy == "" {
				policy = graph.MergeCombine
			}
			if err := service.MergeEntities(c.Request.Context(), c.Param("tenant"), req.LosingID, req.WinningID, policy); err != nil {
				respondError(c, log, "Entity merge failed", err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "merged"})
		})
	}

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// respondError maps a normalized error onto the HTTP response
func respondError(c *gin.Context, log *zap.Logger, message string, err error) {
	graphErr := apperrors.Classify(err)
	if graphErr.HTTPStatus >= http.StatusInternalServerError {
		log.Error(message, zap.Error(err))
	}
	c.JSON(graphErr.HTTPStatus, gin.H{
		"error":     graphErr.Message,
		"code":      string(graphErr.Code),
		"retryable": graphErr.Retryable,
	})
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

// Command server wires the reference HTTP facade: a gin router over the
// Service Facade, a Job Manager worker pool, Prometheus metrics, and a
// storage backend selected by configuration (in-memory by default,
// ClickHouse when configured).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"fingraph-backtest/internal/config"
	"fingraph-backtest/internal/jobmanager"
	"fingraph-backtest/internal/service"
	"fingraph-backtest/internal/storage"
	"fingraph-backtest/internal/storage/chstore"
	"fingraph-backtest/internal/storage/memstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	backend, closeStore, err := buildStorageBackend(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build storage backend", zap.Error(err))
	}
	if closeStore != nil {
		defer closeStore()
	}

	metrics := jobmanager.NewMetrics()
	registry := prometheus.NewRegistry()
	for _, c := range metrics.Collectors() {
		registry.MustRegister(c)
	}

	jobs := jobmanager.New(cfg.Job.MaxWorkers, logger, metrics, backend)
	jobs.Start()
	defer jobs.Stop()

	go runCleanupLoop(jobs, cfg, logger)

	svc := service.New(jobs)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, svc, backend, registry, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: router,
	}

	go func() {
		logger.Info("starting HTTP server", zap.Int("port", cfg.Server.HTTPPort))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// storageBackend is the union of both narrow persistence interfaces:
// chstore.Store and memstore.Store each implement both, so the job
// manager's JobStore and the HTTP facade's MarketDataStore share a
// single backing store instead of two independently-configured ones.
type storageBackend interface {
	storage.JobStore
	storage.MarketDataStore
}

func buildStorageBackend(cfg *config.Config, logger *zap.Logger) (storageBackend, func(), error) {
	if cfg.Storage.Backend == "clickhouse" {
		store, err := chstore.Open(context.Background(), chstore.Config{
			Addr:     cfg.Storage.ClickHouseAddr,
			Database: cfg.Storage.ClickHouseDB,
			Username: cfg.Storage.ClickHouseUser,
			Password: cfg.Storage.ClickHousePass,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using clickhouse storage backend", zap.String("addr", cfg.Storage.ClickHouseAddr))
		return store, func() { _ = store.Close() }, nil
	}

	logger.Info("using in-memory storage backend")
	return memstore.New(), nil, nil
}

func runCleanupLoop(jobs *jobmanager.Manager, cfg *config.Config, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	maxAge := time.Duration(cfg.Job.CleanupMaxAge) * time.Hour

	for range ticker.C {
		jobs.Cleanup(maxAge)
		logger.Debug("ran job cleanup sweep", zap.Duration("max_age", maxAge))
	}
}

func registerRoutes(r *gin.Engine, svc *service.Service, marketStore storage.MarketDataStore, registry *prometheus.Registry, logger *zap.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	{
		api.POST("/backtest", func(c *gin.Context) { handleSubmitBacktest(c, svc, logger) })
		api.GET("/backtest/:job_id/status", func(c *gin.Context) { handleGetStatus(c, svc) })
		api.GET("/backtest/:job_id/result", func(c *gin.Context) { handleGetResult(c, svc) })
		api.DELETE("/backtest/:job_id", func(c *gin.Context) { handleCancel(c, svc) })
		api.GET("/strategies", func(c *gin.Context) { handleListStrategies(c, svc) })
		api.GET("/strategies/:name", func(c *gin.Context) { handleGetStrategyParameters(c, svc) })
		api.GET("/symbols", func(c *gin.Context) { handleListSymbols(c, marketStore) })
		api.GET("/backtest/:job_id/export/equity-curve", func(c *gin.Context) { handleExportEquityCurve(c, svc) })
		api.GET("/backtest/:job_id/export/trades", func(c *gin.Context) { handleExportTradeLog(c, svc) })
	}
}

func handleSubmitBacktest(c *gin.Context, svc *service.Service, logger *zap.Logger) {
	var req service.BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := svc.SubmitBacktest(req)
	if err != nil {
		logger.Warn("backtest submission rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": id})
}

func handleGetStatus(c *gin.Context, svc *service.Service) {
	status, err := svc.GetJobStatus(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

func handleGetResult(c *gin.Context, svc *service.Service) {
	result, err := svc.GetJobResults(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func handleCancel(c *gin.Context, svc *service.Service) {
	ok := svc.CancelJob(c.Param("job_id"))
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "job is not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

func handleListStrategies(c *gin.Context, svc *service.Service) {
	c.JSON(http.StatusOK, svc.ListStrategies())
}

func handleGetStrategyParameters(c *gin.Context, svc *service.Service) {
	params, ok := svc.GetStrategyParameters(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown strategy"})
		return
	}
	c.JSON(http.StatusOK, params)
}

func handleExportEquityCurve(c *gin.Context, svc *service.Service) {
	data, err := svc.ExportEquityCurve(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func handleExportTradeLog(c *gin.Context, svc *service.Service) {
	data, err := svc.ExportTradeLog(c.Param("job_id"))
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "application/vnd.apache.arrow.stream", data)
}

func handleListSymbols(c *gin.Context, marketStore storage.MarketDataStore) {
	symbols, err := marketStore.ListSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

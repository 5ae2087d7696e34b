package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"

	"scrapengine/internal/config"
	"scrapengine/internal/core/cache"
	"scrapengine/internal/core/content"
	"scrapengine/internal/core/job"
	"scrapengine/internal/core/mapper"
	"scrapengine/internal/core/memory"
	"scrapengine/internal/core/pool"
	"scrapengine/internal/core/scrape"
	"scrapengine/internal/logger"
	"scrapengine/internal/platform/browser"
	"scrapengine/internal/platform/eino"
	rds "scrapengine/internal/platform/redis"
	tasks "scrapengine/internal/platform/tasks"
	"scrapengine/internal/server"
	"scrapengine/internal/worker"
)

func main() {
	cfg := config.Load()
	log.Printf("[scrapengine] starting at %s (env=%s)\n", cfg.HTTPAddr, cfg.AppEnv)

	logr := logger.New("main")

	// Redis client
	redisSvc, err := rds.New(rds.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer redisSvc.Close()

	// Browser driver and pool
	driver, err := browser.NewPlaywrightDriver()
	if err != nil {
		log.Fatalf("playwright driver: %v", err)
	}
	browserPool := pool.New(driver, pool.Config{
		MaxBrowsers:        cfg.PoolMaxBrowsers,
		ContextReuseLimit:  cfg.PoolContextReuseLimit,
		BrowserErrorLimit:  cfg.PoolBrowserErrorLimit,
		BrowserMaxLifetime: cfg.PoolBrowserMaxLifetime,
	})

	// Multi-level cache
	cacheMgr := cache.NewManager(redisSvc.RemoteStore(), cache.Options{
		MaxBytes:             cfg.CacheMaxBytes,
		MaxEntries:           cfg.CacheMaxEntries,
		DefaultTTL:           cfg.CacheDefaultTTL,
		SweepInterval:        cfg.CacheSweepInterval,
		RemoteTimeout:        cfg.CacheRemoteTimeout,
		CompressionThreshold: cfg.CacheCompressionThreshold,
	})

	// Memory monitor with cleanup rules for the pool and the cache
	cleaner := memory.NewCleaner()
	cleaner.Register("cache_expired", "cache_entry", func(ctx context.Context) (memory.RuleReport, error) {
		n, freed := cacheMgr.PruneExpired()
		return memory.RuleReport{ItemsCleaned: n, BytesFreed: freed, OK: true}, nil
	})
	monitor := memory.NewMonitor(cfg.MemoryThresholdMB, cleaner)
	monitor.Watch(cfg.MemoryCheckInterval)

	// Optional LLM transformer
	var einoSvc *eino.Service
	if cfg.GeminiAPIKey != "" {
		einoSvc, err = eino.NewService(eino.Config{
			Provider: cfg.LLMProvider,
			APIKey:   cfg.GeminiAPIKey,
			Model:    cfg.DefaultLLMModel,
		})
		if err != nil {
			log.Fatalf("failed to initialize transformer: %v", err)
		}
	} else {
		logr.LogWarnf("GEMINI_API_KEY not set, transform step disabled")
	}

	// Core services
	taskClient := tasks.New(redisSvc)
	jobSvc := job.NewJobService(redisSvc)
	mapSvc := mapper.NewMapService()
	processor := content.NewProcessor(cfg.MaxMemoryMB)
	var transformer scrape.Transformer
	if einoSvc != nil {
		transformer = einoSvc
	}
	scrapeSvc := scrape.NewService(browserPool, cacheMgr, processor, transformer, scrape.Config{
		AcquireTimeout:  cfg.PoolAcquireTimeout,
		NavigateTimeout: cfg.NavigateTimeout,
		MaxContentSize:  cfg.MaxContentSize,
		CacheTTL:        cfg.CacheDefaultTTL,
	})

	// Background worker
	asynqServer := asynq.NewServer(redisSvc.AsynqRedisOpt(), asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{"default": 1},
	})
	mux := worker.NewMux()
	worker.NewBatchHandler(scrapeSvc, jobSvc).Register(mux)
	go func() {
		if err := asynqServer.Start(mux.Mux()); err != nil {
			log.Printf("[worker] stopped: %v\n", err)
		}
	}()

	// HTTP server
	app := fiber.New(fiber.Config{
		AppName: "Scrapengine",
		JSONEncoder: func(v interface{}) ([]byte, error) {
			var buf bytes.Buffer
			encoder := json.NewEncoder(&buf)
			encoder.SetEscapeHTML(false)
			if err := encoder.Encode(v); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
	})

	deps := server.Dependencies{
		Scrape:      scrapeSvc,
		Pool:        browserPool,
		Map:         mapSvc,
		Jobs:        jobSvc,
		Tasks:       taskClient,
		Redis:       redisSvc,
		Monitor:     monitor,
		Transformer: einoSvc,
		TaskRetries: cfg.TaskMaxRetries,
	}
	healthHandler := server.RegisterRoutes(app, deps)

	go func() {
		time.Sleep(5 * time.Second)
		healthHandler.SetReady()
	}()

	// Graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-shutdown
		logr.LogInfof("Shutting down...")
		asynqServer.Shutdown()
		_ = app.ShutdownWithTimeout(5 * time.Second)
		browserPool.Cleanup()
		cacheMgr.Close()
		monitor.Stop()
		_ = driver.Stop()
	}()

	if err := app.Listen(cfg.HTTPAddr); err != nil {
		log.Fatalf("server listen: %v", err)
	}
}

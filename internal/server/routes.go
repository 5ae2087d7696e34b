package server

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"scrapengine/internal/core/job"
	"scrapengine/internal/core/mapper"
	"scrapengine/internal/core/memory"
	"scrapengine/internal/core/pool"
	"scrapengine/internal/core/scrape"
	"scrapengine/internal/health"
	"scrapengine/internal/platform/eino"
	"scrapengine/internal/platform/redis"
	tasks "scrapengine/internal/platform/tasks"
)

type Dependencies struct {
	Scrape      *scrape.Service
	Pool        *pool.Pool
	Map         *mapper.Service
	Jobs        *job.JobService
	Tasks       *tasks.Client
	Redis       *redis.Service
	Monitor     *memory.Monitor
	Transformer *eino.Service // nil when no LLM is configured
	TaskRetries int
}

func RegisterRoutes(app *fiber.App, d Dependencies) *health.HealthHandler {
	healthHandler := health.NewHealthHandler()
	healthHandler.AddCheck("redis", d.Redis.HealthCheck)
	healthHandler.AddCheck("browser_pool", func(ctx context.Context) error {
		if !d.Pool.Healthy() {
			return fmt.Errorf("pool closed")
		}
		return nil
	})
	if d.Transformer != nil {
		healthHandler.AddCheck("transformer", func(ctx context.Context) error {
			if !d.Transformer.HealthCheck(ctx) {
				return fmt.Errorf("transformer not responding")
			}
			return nil
		})
	}
	app.Get("/v1/health", health.HealthLimiter(), healthHandler.HandleHealth)

	api := app.Group("/v1")

	scrapeHandler := scrape.NewHandler(d.Scrape, d.Map)
	api.Get("/scrape", scrapeHandler.HandleGetScrape)

	batchHandler := job.NewHandler(d.Jobs, d.Tasks, d.TaskRetries)
	api.Post("/batch", batchHandler.HandleCreateBatch)
	api.Get("/batch/:jobId", batchHandler.HandleGetBatch)

	api.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"pool":   d.Scrape.PoolStats(),
			"cache":  d.Scrape.CacheStats(),
			"memory": d.Monitor.TakeSnapshot(),
		})
	})

	return healthHandler
}

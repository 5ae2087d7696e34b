package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv        string
	HTTPAddr      string
	RedisAddr     string
	RedisPassword string

	// Pool sizing and recycling
	PoolMaxBrowsers        int
	PoolContextReuseLimit  int
	PoolBrowserErrorLimit  int
	PoolBrowserMaxLifetime time.Duration
	PoolAcquireTimeout     time.Duration
	NavigateTimeout        time.Duration

	// Cache budgets
	CacheMaxBytes             int64
	CacheMaxEntries           int
	CacheDefaultTTL           time.Duration
	CacheSweepInterval        time.Duration
	CacheRemoteTimeout        time.Duration
	CacheCompressionThreshold int

	// Content processing
	MaxContentSize int
	MaxMemoryMB    int

	// Memory monitor
	MemoryThresholdMB   int
	MemoryCheckInterval time.Duration

	LLMProvider     string
	GeminiAPIKey    string
	DefaultLLMModel string

	TaskMaxRetries int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func Load() Config {
	cfg := Config{
		AppEnv:        getenv("APP_ENV", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8081"),
		RedisAddr:     getenv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		PoolMaxBrowsers:        getenvInt("POOL_MAX_BROWSERS", 3),
		PoolContextReuseLimit:  getenvInt("POOL_CONTEXT_REUSE_LIMIT", 25),
		PoolBrowserErrorLimit:  getenvInt("POOL_BROWSER_ERROR_LIMIT", 5),
		PoolBrowserMaxLifetime: getenvDuration("POOL_BROWSER_MAX_LIFETIME", 30*time.Minute),
		PoolAcquireTimeout:     getenvDuration("POOL_ACQUIRE_TIMEOUT", 30*time.Second),
		NavigateTimeout:        getenvDuration("NAVIGATE_TIMEOUT", 20*time.Second),

		CacheMaxBytes:             int64(getenvInt("CACHE_MAX_MB", 128)) * 1024 * 1024,
		CacheMaxEntries:           getenvInt("CACHE_MAX_ENTRIES", 4096),
		CacheDefaultTTL:           getenvDuration("CACHE_DEFAULT_TTL", 15*time.Minute),
		CacheSweepInterval:        getenvDuration("CACHE_SWEEP_INTERVAL", time.Minute),
		CacheRemoteTimeout:        getenvDuration("CACHE_REMOTE_TIMEOUT", 2*time.Second),
		CacheCompressionThreshold: getenvInt("CACHE_COMPRESSION_THRESHOLD", 16*1024),

		MaxContentSize: getenvInt("MAX_CONTENT_SIZE", 5*1024*1024),
		MaxMemoryMB:    getenvInt("MAX_MEMORY_MB", 256),

		MemoryThresholdMB:   getenvInt("MEMORY_THRESHOLD_MB", 1024),
		MemoryCheckInterval: getenvDuration("MEMORY_CHECK_INTERVAL", 30*time.Second),

		LLMProvider:     getenv("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:    os.Getenv("GEMINI_API_KEY"),
		DefaultLLMModel: getenv("DEFAULT_LLM_MODEL", "gemini-1.5-flash"),

		TaskMaxRetries: getenvInt("TASK_MAX_RETRIES", 3),
	}
	if cfg.RedisAddr == "" {
		panic(fmt.Errorf("REDIS_ADDR is required"))
	}
	return cfg
}

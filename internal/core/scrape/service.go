// Package scrape orchestrates one scrape end to end: cache lookup, context
// acquisition from the pool, navigation, bounded content processing, the
// optional LLM transform, and the cache write on the way out.
package scrape

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"scrapengine/internal/core/cache"
	"scrapengine/internal/core/content"
	"scrapengine/internal/core/pool"
	"scrapengine/internal/logger"
	"scrapengine/internal/platform/browser"
)

// Transformer is the optional LLM post-processing step.
type Transformer interface {
	Transform(ctx context.Context, content, instructions string) (string, error)
}

type Config struct {
	AcquireTimeout  time.Duration
	NavigateTimeout time.Duration
	MaxContentSize  int
	CacheTTL        time.Duration
}

type Service struct {
	log         *logger.Logger
	pool        *pool.Pool
	cache       *cache.Manager
	processor   *content.Processor
	transformer Transformer // nil disables the transform step
	cfg         Config
}

func NewService(p *pool.Pool, c *cache.Manager, proc *content.Processor, t Transformer, cfg Config) *Service {
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = 20 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 15 * time.Minute
	}
	return &Service{
		log:         logger.New("ScrapeService"),
		pool:        p,
		cache:       c,
		processor:   proc,
		transformer: t,
		cfg:         cfg,
	}
}

// Scrape runs one scrape. Cached results are returned as-is with Cached set;
// fresh results are cached before returning. Navigation failures that are
// not HTTP-status answers get one retry on a fresh context.
func (s *Service) Scrape(ctx context.Context, params Params) (*Result, error) {
	key := s.cacheKey(params)

	if !params.Fresh {
		var cached Result
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			s.log.LogInfof("cache hit for %s", params.URL)
			cached.Cached = true
			return &cached, nil
		}
	}

	page, err := s.fetch(ctx, params.URL)
	if err != nil {
		s.log.LogWarnf("scrape %s failed: %v", params.URL, err)
		return nil, err
	}

	processed, err := s.processor.ProcessLargeHTML(page.HTML, params.URL, content.ProcessOptions{
		ExtractText:     false,
		ExtractLinks:    true,
		ConvertMarkdown: true,
		MaxContentSize:  s.cfg.MaxContentSize,
	})
	if err != nil {
		return nil, fmt.Errorf("content processing failed: %w", err)
	}

	meta := extractMetadata(page.HTML, params.URL)
	if meta.Title == "" {
		meta.Title = page.Title
	}
	meta.StatusCode = page.StatusCode
	meta.ElapsedMs = page.ElapsedMs

	result := &Result{
		Success:    true,
		URL:        params.URL,
		Content:    processed.Markdown,
		Links:      processed.Links,
		Discovered: len(processed.Links),
		Truncated:  processed.Truncated,
		Metadata:   meta,
	}
	if params.IncludeHTML {
		result.HTML = page.HTML
	}

	if s.transformer != nil && params.Instructions != "" {
		transformed, err := s.transformer.Transform(ctx, processed.Markdown, params.Instructions)
		if err != nil {
			s.log.LogWarnf("transform failed for %s: %v", params.URL, err)
		} else {
			result.Transformed = transformed
		}
	}

	if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
		s.log.LogWarnf("cache store failed for %s: %v", params.URL, err)
	}

	s.log.LogInfof("scrape complete %s status=%d links=%d", params.URL, meta.StatusCode, len(processed.Links))
	return result, nil
}

// fetch acquires a context, navigates, and releases. A timeout or network
// failure marks the context unhealthy and is retried once on a fresh one;
// an HTTP error status is the page's answer and is returned directly.
func (s *Service) fetch(ctx context.Context, url string) (*browser.Page, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		lease, err := s.pool.Acquire(ctx, s.cfg.AcquireTimeout)
		if err != nil {
			return nil, err
		}

		page, navErr := lease.Context().Navigate(ctx, url, s.cfg.NavigateTimeout)
		if navErr == nil {
			s.pool.Release(lease)
			return page, nil
		}

		lease.MarkUnhealthy()
		s.pool.Release(lease)
		lastErr = navErr

		if ne, ok := browser.IsNavigationError(navErr); ok && ne.Kind == browser.NavStatus {
			return nil, navErr
		}
		if ctx.Err() != nil {
			return nil, navErr
		}
		s.log.LogWarnf("navigation %s failed, retrying on fresh context: %v", url, navErr)
	}
	return nil, lastErr
}

// Invalidate drops any cached result for the given params.
func (s *Service) Invalidate(ctx context.Context, params Params) error {
	return s.cache.Invalidate(ctx, s.cacheKey(params))
}

// CacheStats exposes the cache snapshot for the stats endpoint.
func (s *Service) CacheStats() cache.Stats { return s.cache.Stats() }

// PoolStats exposes the pool snapshot for the stats endpoint.
func (s *Service) PoolStats() pool.Stats { return s.pool.Stats() }

func (s *Service) cacheKey(params Params) string {
	kv := map[string]string{
		"include_html": strconv.FormatBool(params.IncludeHTML),
	}
	if params.Instructions != "" {
		sum := sha256.Sum256([]byte(params.Instructions))
		kv["instructions"] = hex.EncodeToString(sum[:8])
	}
	return cache.Key(params.URL, kv)
}

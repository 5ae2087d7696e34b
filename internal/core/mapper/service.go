// Package mapper discovers same-site links without rendering, for the
// format=links scrape mode. It crawls with colly, which is far cheaper
// than spending a pooled browser context on link discovery.
package mapper

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly"

	"scrapengine/internal/logger"
)

type Service struct {
	log *logger.Logger
}

func NewMapService() *Service { return &Service{log: logger.New("MapService")} }

type Request struct {
	URL               string
	Depth             int
	LinkLimit         int
	IncludeSubdomains bool
	Patterns          []string
}

type Result struct {
	Links []string `json:"links"`
}

func (s *Service) MapURL(req Request) (*Result, error) {
	s.log.LogDebugf("map start url=%s depth=%d limit=%d", req.URL, req.Depth, req.LinkLimit)

	links := make(map[string]struct{})
	var mu sync.Mutex

	depth := req.Depth
	if depth < 1 {
		depth = 1
	}

	c := colly.NewCollector(colly.MaxDepth(depth), colly.Async(true))
	c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 10, RandomDelay: 500 * time.Millisecond})

	seed := ensureScheme(req.URL)
	seedHost := hostOf(seed)

	c.OnRequest(func(r *colly.Request) {
		mu.Lock()
		reached := req.LinkLimit > 0 && len(links) >= req.LinkLimit
		mu.Unlock()
		if reached {
			r.Abort()
		}
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		link := normalizeLink(e.Request.AbsoluteURL(e.Attr("href")))
		if link == "" {
			return
		}
		if !sameSite(hostOf(link), seedHost, req.IncludeSubdomains) {
			return
		}
		if !matchesPattern(link, req.Patterns) {
			return
		}

		mu.Lock()
		_, seen := links[link]
		if !seen {
			links[link] = struct{}{}
		}
		reached := req.LinkLimit > 0 && len(links) >= req.LinkLimit
		mu.Unlock()

		if !seen && !reached && e.Request.Depth < depth {
			_ = e.Request.Visit(link)
		}
	})

	if err := c.Visit(seed); err != nil {
		return nil, fmt.Errorf("visit: %w", err)
	}
	c.Wait()

	out := make([]string, 0, len(links))
	for l := range links {
		out = append(out, l)
	}
	s.log.LogInfof("map done url=%s discovered=%d", req.URL, len(out))
	return &Result{Links: out}, nil
}

func ensureScheme(u string) string {
	if !strings.HasPrefix(u, "http") {
		return "https://" + u
	}
	return u
}

func hostOf(u string) string {
	p, _ := url.Parse(u)
	if p != nil {
		return p.Hostname()
	}
	return ""
}

func normalizeLink(u string) string {
	p, err := url.Parse(u)
	if err != nil || p == nil || (p.Scheme != "http" && p.Scheme != "https") {
		return ""
	}
	p.Fragment = ""
	if p.Path == "/" {
		p.Path = ""
	}
	return p.String()
}

func sameSite(a, b string, includeSub bool) bool {
	a = strings.TrimPrefix(a, "www.")
	b = strings.TrimPrefix(b, "www.")
	if a == b {
		return true
	}
	return includeSub && (strings.HasSuffix(a, "."+b) || strings.HasSuffix(b, "."+a))
}

// matchesPattern applies glob-style path filters like "/blog/*". No
// patterns means every URL passes.
func matchesPattern(u string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	path := parsed.Path
	if path == "" {
		path = "/"
	}
	for _, pattern := range patterns {
		if ok, err := filepath.Match(pattern, path); err == nil && ok {
			return true
		}
		if strings.HasSuffix(pattern, "*") {
			prefix := strings.TrimSuffix(pattern, "*")
			if path == strings.TrimSuffix(prefix, "/") || strings.HasPrefix(path, prefix) {
				return true
			}
		}
	}
	return false
}

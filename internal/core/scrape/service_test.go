package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapengine/internal/core/cache"
	"scrapengine/internal/core/content"
	"scrapengine/internal/core/pool"
	"scrapengine/internal/platform/browser"
)

const samplePage = `<html lang="en"><head>
<title>Widgets Inc</title>
<meta name="description" content="All about widgets">
<link rel="canonical" href="/home">
</head><body>
<main><h1>Widgets</h1><p>We sell widgets of every size.</p>
<a href="/catalog">Catalog</a>
<a href="https://partner.example.com/deals">Partner</a></main>
</body></html>`

type fakeDriver struct {
	mu       sync.Mutex
	navCount int
	failNext []error // consumed one per navigation
	html     string
	status   int
}

func (d *fakeDriver) Launch(ctx context.Context) (browser.Browser, error) {
	return &fakeBrowser{d: d}, nil
}

func (d *fakeDriver) navigations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.navCount
}

type fakeBrowser struct{ d *fakeDriver }

func (b *fakeBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	return &fakeContext{d: b.d}, nil
}
func (b *fakeBrowser) Close() error { return nil }

type fakeContext struct{ d *fakeDriver }

func (c *fakeContext) Navigate(ctx context.Context, url string, timeout time.Duration) (*browser.Page, error) {
	c.d.mu.Lock()
	c.d.navCount++
	var err error
	if len(c.d.failNext) > 0 {
		err = c.d.failNext[0]
		c.d.failNext = c.d.failNext[1:]
	}
	html, status := c.d.html, c.d.status
	c.d.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if status == 0 {
		status = 200
	}
	return &browser.Page{HTML: html, Title: "Widgets Inc", StatusCode: status, ElapsedMs: 12}, nil
}
func (c *fakeContext) Close() error { return nil }

type fakeTransformer struct {
	out string
	err error
}

func (t *fakeTransformer) Transform(ctx context.Context, content, instructions string) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return t.out, nil
}

func newTestService(t *testing.T, d *fakeDriver, tr Transformer) *Service {
	t.Helper()
	p := pool.New(d, pool.Config{MaxBrowsers: 2})
	t.Cleanup(p.Cleanup)
	c := cache.NewManager(nil, cache.Options{})
	t.Cleanup(c.Close)
	return NewService(p, c, content.NewProcessor(64), tr, Config{
		AcquireTimeout:  time.Second,
		NavigateTimeout: time.Second,
	})
}

func TestScrapeReturnsProcessedContent(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, nil)

	res, err := svc.Scrape(context.Background(), Params{URL: "https://widgets.example.com/home"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Cached)
	assert.Contains(t, res.Content, "Widgets")
	assert.Contains(t, res.Links, "https://widgets.example.com/catalog")
	assert.Contains(t, res.Links, "https://partner.example.com/deals")
	assert.Equal(t, len(res.Links), res.Discovered)
	assert.Equal(t, "Widgets Inc", res.Metadata.Title)
	assert.Equal(t, "All about widgets", res.Metadata.Description)
	assert.Equal(t, "https://widgets.example.com/home", res.Metadata.Canonical)
	assert.Equal(t, "en", res.Metadata.Language)
	assert.Equal(t, 200, res.Metadata.StatusCode)
	assert.Empty(t, res.HTML)
}

func TestScrapeSecondCallServedFromCache(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, nil)
	params := Params{URL: "https://widgets.example.com/"}

	first, err := svc.Scrape(context.Background(), params)
	require.NoError(t, err)
	require.False(t, first.Cached)

	second, err := svc.Scrape(context.Background(), params)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, 1, d.navigations())
}

func TestScrapeFreshBypassesCache(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, nil)
	url := "https://widgets.example.com/"

	_, err := svc.Scrape(context.Background(), Params{URL: url})
	require.NoError(t, err)

	res, err := svc.Scrape(context.Background(), Params{URL: url, Fresh: true})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, d.navigations())
}

func TestScrapeRetriesOnceOnTimeout(t *testing.T) {
	d := &fakeDriver{
		html: samplePage,
		failNext: []error{&browser.NavigationError{
			Kind: browser.NavTimeout, URL: "https://slow.example.com", Err: errors.New("deadline"),
		}},
	}
	svc := newTestService(t, d, nil)

	res, err := svc.Scrape(context.Background(), Params{URL: "https://slow.example.com"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, d.navigations())
}

func TestScrapeStatusErrorNotRetried(t *testing.T) {
	navErr := &browser.NavigationError{
		Kind: browser.NavStatus, StatusCode: 404,
		URL: "https://widgets.example.com/gone", Err: errors.New("not found"),
	}
	d := &fakeDriver{html: samplePage, failNext: []error{navErr}}
	svc := newTestService(t, d, nil)

	_, err := svc.Scrape(context.Background(), Params{URL: "https://widgets.example.com/gone"})
	require.Error(t, err)
	ne, ok := browser.IsNavigationError(err)
	require.True(t, ok)
	assert.Equal(t, 404, ne.StatusCode)
	assert.Equal(t, 1, d.navigations())
}

func TestScrapePersistentFailureSurfacesLastError(t *testing.T) {
	netErr := func() error {
		return &browser.NavigationError{
			Kind: browser.NavNetwork, URL: "https://down.example.com", Err: errors.New("refused"),
		}
	}
	d := &fakeDriver{html: samplePage, failNext: []error{netErr(), netErr()}}
	svc := newTestService(t, d, nil)

	_, err := svc.Scrape(context.Background(), Params{URL: "https://down.example.com"})
	require.Error(t, err)
	ne, ok := browser.IsNavigationError(err)
	require.True(t, ok)
	assert.Equal(t, browser.NavNetwork, ne.Kind)
	assert.Equal(t, 2, d.navigations())
}

func TestScrapeAppliesTransformer(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, &fakeTransformer{out: "summary of widgets"})

	res, err := svc.Scrape(context.Background(), Params{
		URL:          "https://widgets.example.com/",
		Instructions: "summarize",
	})
	require.NoError(t, err)
	assert.Equal(t, "summary of widgets", res.Transformed)
}

func TestScrapeTransformFailureDoesNotFailScrape(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, &fakeTransformer{err: fmt.Errorf("model unavailable")})

	res, err := svc.Scrape(context.Background(), Params{
		URL:          "https://widgets.example.com/",
		Instructions: "summarize",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, res.Transformed)
}

func TestScrapeInstructionsGetDistinctCacheEntries(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, &fakeTransformer{out: "summary"})
	url := "https://widgets.example.com/"

	_, err := svc.Scrape(context.Background(), Params{URL: url})
	require.NoError(t, err)

	res, err := svc.Scrape(context.Background(), Params{URL: url, Instructions: "summarize"})
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, d.navigations())
}

func TestScrapeIncludeHTML(t *testing.T) {
	d := &fakeDriver{html: samplePage}
	svc := newTestService(t, d, nil)

	res, err := svc.Scrape(context.Background(), Params{
		URL:         "https://widgets.example.com/",
		IncludeHTML: true,
	})
	require.NoError(t, err)
	assert.Equal(t, samplePage, res.HTML)
}

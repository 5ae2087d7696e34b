package browser

import (
	"context"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"scrapengine/internal/logger"
)

// chromiumArgs mirror what works against bot detection in production.
var chromiumArgs = []string{
	"--no-sandbox",
	"--disable-dev-shm-usage",
	"--disable-blink-features=AutomationControlled",
	"--disable-web-security",
	"--disable-features=VizDisplayCompositor",
	"--no-first-run",
	"--disable-default-apps",
	"--disable-extensions",
}

// PlaywrightDriver implements Driver on a single shared Playwright runtime.
type PlaywrightDriver struct {
	pw  *playwright.Playwright
	log *logger.Logger
}

// NewPlaywrightDriver starts the Playwright runtime. Stop must be called on
// shutdown.
func NewPlaywrightDriver() (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, err
	}
	return &PlaywrightDriver{pw: pw, log: logger.New("PlaywrightDriver")}, nil
}

func (d *PlaywrightDriver) Launch(ctx context.Context) (Browser, error) {
	b, err := d.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args:     chromiumArgs,
	})
	if err != nil {
		return nil, err
	}
	return &pwBrowser{b: b}, nil
}

// Stop shuts down the Playwright runtime.
func (d *PlaywrightDriver) Stop() error { return d.pw.Stop() }

type pwBrowser struct {
	b playwright.Browser
}

func (b *pwBrowser) NewContext(ctx context.Context) (Context, error) {
	profile := pickProfile()
	pwCtx, err := b.b.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:        playwright.String(profile.UserAgent),
		ExtraHttpHeaders: profile.headers(),
	})
	if err != nil {
		return nil, err
	}
	page, err := pwCtx.NewPage()
	if err != nil {
		_ = pwCtx.Close()
		return nil, err
	}
	return &pwContext{ctx: pwCtx, page: page}, nil
}

func (b *pwBrowser) Close() error { return b.b.Close() }

type pwContext struct {
	ctx  playwright.BrowserContext
	page playwright.Page
}

func (c *pwContext) Navigate(ctx context.Context, url string, timeout time.Duration) (*Page, error) {
	start := time.Now()

	// domcontentloaded first, full load as the slower fallback
	resp, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(timeout.Milliseconds()) / 2),
	})
	if err != nil {
		resp, err = c.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		})
		if err != nil {
			return nil, &NavigationError{Kind: classify(err), URL: url, Err: err}
		}
	}

	status := 200
	if resp != nil {
		status = resp.Status()
	}
	if status >= 400 {
		return nil, &NavigationError{Kind: NavStatus, StatusCode: status, URL: url}
	}

	html, err := c.page.Content()
	if err != nil {
		return nil, &NavigationError{Kind: NavNetwork, URL: url, Err: err}
	}
	title, _ := c.page.Title()

	return &Page{
		HTML:       html,
		Title:      title,
		StatusCode: status,
		ElapsedMs:  time.Since(start).Milliseconds(),
	}, nil
}

func (c *pwContext) Close() error { return c.ctx.Close() }

func classify(err error) NavigationKind {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline") {
		return NavTimeout
	}
	return NavNetwork
}

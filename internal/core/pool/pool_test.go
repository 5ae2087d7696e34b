package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapengine/internal/platform/browser"
)

// fakeDriver counts launches and lets tests inject failures.
type fakeDriver struct {
	mu          sync.Mutex
	launches    int32
	open        int32
	failLaunch  bool
	failContext bool
}

func (d *fakeDriver) Launch(ctx context.Context) (browser.Browser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failLaunch {
		return nil, errors.New("launch refused")
	}
	d.launches++
	d.open++
	return &fakeBrowser{driver: d}, nil
}

func (d *fakeDriver) openBrowsers() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type fakeBrowser struct {
	driver *fakeDriver
	closed atomic.Bool
}

func (b *fakeBrowser) NewContext(ctx context.Context) (browser.Context, error) {
	b.driver.mu.Lock()
	defer b.driver.mu.Unlock()
	if b.driver.failContext {
		return nil, errors.New("context refused")
	}
	return &fakeContext{}, nil
}

func (b *fakeBrowser) Close() error {
	if b.closed.CompareAndSwap(false, true) {
		b.driver.mu.Lock()
		b.driver.open--
		b.driver.mu.Unlock()
	}
	return nil
}

type fakeContext struct {
	closed atomic.Bool
}

func (c *fakeContext) Navigate(ctx context.Context, url string, timeout time.Duration) (*browser.Page, error) {
	return &browser.Page{HTML: "<html></html>", StatusCode: 200}, nil
}

func (c *fakeContext) Close() error {
	c.closed.Store(true)
	return nil
}

func newTestPool(d *fakeDriver, max int) *Pool {
	return New(d, Config{MaxBrowsers: max, ContextReuseLimit: 100, BrowserErrorLimit: 3})
}

func TestAcquireLaunchesOnDemand(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 2)
	defer p.Cleanup()

	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease.Context())
	assert.Equal(t, int32(1), d.launches)

	p.Release(lease)

	// reuse: no second launch for a sequential request
	lease, err = p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(1), d.launches)
	p.Release(lease)
}

func TestBrowserCountNeverExceedsMax(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 3)
	defer p.Cleanup()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(context.Background(), 5*time.Second)
			if !assert.NoError(t, err) {
				return
			}
			assert.LessOrEqual(t, d.openBrowsers(), int32(3))
			time.Sleep(5 * time.Millisecond)
			p.Release(lease)
		}()
	}
	wg.Wait()

	stats := p.Stats()
	assert.Equal(t, 3, stats.PeakUsage)
	assert.Equal(t, int64(16), stats.TotalRequests)
	assert.LessOrEqual(t, stats.TotalBrowsers, 3)
}

func TestAcquireTimesOutUnderSaturation(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 1)
	defer p.Cleanup()

	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	start := time.Now()
	_, err = p.Acquire(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrAcquireTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "acquire must not hang")

	p.Release(lease)
}

func TestFiveAcquiresAgainstTwoBrowsers(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 2)
	defer p.Cleanup()

	var succeeded atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := p.Acquire(context.Background(), 5*time.Second)
			if assert.NoError(t, err) {
				succeeded.Add(1)
				time.Sleep(10 * time.Millisecond)
				p.Release(lease)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), succeeded.Load())
	assert.Equal(t, 2, p.Stats().PeakUsage)
	assert.Equal(t, int32(2), d.launches)
}

func TestWaitersServedFIFO(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 1)
	defer p.Cleanup()

	first, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	var order []int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			lease, err := p.Acquire(context.Background(), 5*time.Second)
			require.NoError(t, err)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			p.Release(lease)
		}(i)
		time.Sleep(20 * time.Millisecond) // deterministic queue order
	}

	p.Release(first)
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestUnhealthyContextIsRecycledNotTheBrowser(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 1)
	defer p.Cleanup()

	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	ctx1 := lease.Context()
	lease.MarkUnhealthy()
	p.Release(lease)

	lease, err = p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.NotSame(t, ctx1, lease.Context(), "unhealthy context must not be reused")
	assert.Equal(t, int32(1), d.launches, "browser survives a single navigation failure")
	p.Release(lease)
}

func TestBrowserRetiredPastErrorThreshold(t *testing.T) {
	d := &fakeDriver{}
	p := New(d, Config{MaxBrowsers: 1, ContextReuseLimit: 100, BrowserErrorLimit: 2})
	defer p.Cleanup()

	for i := 0; i < 2; i++ {
		lease, err := p.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		lease.MarkUnhealthy()
		p.Release(lease)
	}

	// threshold reached: the next acquire needs a fresh browser
	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(2), d.launches)
	p.Release(lease)
}

func TestContextRecycledAfterReuseLimit(t *testing.T) {
	d := &fakeDriver{}
	p := New(d, Config{MaxBrowsers: 1, ContextReuseLimit: 2, BrowserErrorLimit: 5})
	defer p.Cleanup()

	var contexts []browser.Context
	for i := 0; i < 4; i++ {
		lease, err := p.Acquire(context.Background(), time.Second)
		require.NoError(t, err)
		contexts = append(contexts, lease.Context())
		p.Release(lease)
	}

	assert.Same(t, contexts[0], contexts[1])
	assert.NotSame(t, contexts[1], contexts[2], "context must be recycled after reuse limit")
	assert.Equal(t, int32(1), d.launches, "recycling contexts must not relaunch the browser")
}

func TestCleanupFailsQueuedWaiters(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 1)

	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background(), 5*time.Second)
		errCh <- err
	}()
	time.Sleep(30 * time.Millisecond)

	p.Cleanup()
	assert.ErrorIs(t, <-errCh, ErrClosed)

	_, err = p.Acquire(context.Background(), time.Second)
	assert.ErrorIs(t, err, ErrClosed)

	// release after cleanup must not panic
	p.Release(lease)
	p.Cleanup() // idempotent
}

func TestLaunchFailurePropagatesAndFreesSlot(t *testing.T) {
	d := &fakeDriver{failLaunch: true}
	p := newTestPool(d, 1)
	defer p.Cleanup()

	_, err := p.Acquire(context.Background(), 100*time.Millisecond)
	require.Error(t, err)

	// the reserved slot must be released, so a later acquire can launch
	d.mu.Lock()
	d.failLaunch = false
	d.mu.Unlock()
	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	p.Release(lease)
}

func TestStatsNeverBlocks(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 2)
	defer p.Cleanup()

	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	done := make(chan Stats, 1)
	go func() { done <- p.Stats() }()
	select {
	case s := <-done:
		assert.Equal(t, 1, s.TotalBrowsers)
		assert.Equal(t, 0, s.AvailableBrowsers)
	case <-time.After(time.Second):
		t.Fatal("Stats blocked")
	}
	p.Release(lease)
}

func TestAcquireHonorsContextCancellation(t *testing.T) {
	d := &fakeDriver{}
	p := newTestPool(d, 1)
	defer p.Cleanup()

	lease, err := p.Acquire(context.Background(), time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := p.Acquire(ctx, 5*time.Second)
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-errCh, context.Canceled)
	p.Release(lease)
}

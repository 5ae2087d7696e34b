// Package pool bounds concurrent access to the scarce, stateful resource of
// this engine: headless-browser processes. Browsers are costly to launch and
// capped at MaxBrowsers; browsing contexts are the cheap unit of isolation,
// reused across sequential fetches within the same browser and recycled
// after a reuse limit or a navigation failure. Contention is absorbed by a
// FIFO wait queue with per-caller timeouts.
package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"scrapengine/internal/logger"
	"scrapengine/internal/platform/browser"
)

var (
	// ErrClosed is returned for any acquire once Cleanup has started.
	ErrClosed = errors.New("browser pool closed")
	// ErrAcquireTimeout is returned when no context frees up within the
	// caller's timeout. Recoverable: the caller may retry.
	ErrAcquireTimeout = errors.New("browser pool acquire timeout")
)

// Config sizes the pool and its recycling thresholds.
type Config struct {
	MaxBrowsers        int
	ContextReuseLimit  int
	BrowserErrorLimit  int
	BrowserMaxLifetime time.Duration
}

// Stats is the fixed-shape snapshot of pool activity. Counters are updated
// atomically on every acquire/release and read without blocking.
type Stats struct {
	TotalBrowsers     int     `json:"total_browsers"`
	AvailableBrowsers int     `json:"available_browsers"`
	TotalRequests     int64   `json:"total_requests"`
	AvgWaitTimeMs     float64 `json:"avg_wait_time_ms"`
	PeakUsage         int     `json:"peak_usage"`
}

type browserState int

const (
	stateIdle  browserState = iota // has a ready context
	stateBare                      // alive, no context attached
	stateBusy                      // context leased out
)

type browserEntry struct {
	id             string
	b              browser.Browser
	createdAt      time.Time
	state          browserState
	ready          *Lease // valid when state == stateIdle
	contextsServed int
	navErrors      int
}

func (e *browserEntry) expired(maxLifetime time.Duration, now time.Time) bool {
	return maxLifetime > 0 && now.Sub(e.createdAt) > maxLifetime
}

// Lease is one leased browsing context. The holder must Release it back
// through the pool, never close it directly.
type Lease struct {
	ID        string
	bctx      browser.Context
	owner     *browserEntry
	uses      int
	unhealthy bool
}

// Context exposes the leased browsing context.
func (l *Lease) Context() browser.Context { return l.bctx }

// MarkUnhealthy flags the context for destruction on release, typically
// after a failed navigation.
func (l *Lease) MarkUnhealthy() { l.unhealthy = true }

type waiter struct {
	ch       chan *Lease
	canceled bool
}

// Pool owns the browser and context registries. All mutation goes through
// its synchronized operations.
type Pool struct {
	cfg    Config
	driver browser.Driver
	log    *logger.Logger

	mu        sync.Mutex
	browsers  map[string]*browserEntry
	launching int // reserved slots for in-flight launches
	waiters   *list.List
	busy      int
	peak      int
	closed    bool

	totalRequests atomic.Int64
	waitNs        atomic.Int64
}

// New builds a pool over driver. No browser is launched until first demand.
func New(driver browser.Driver, cfg Config) *Pool {
	if cfg.MaxBrowsers <= 0 {
		cfg.MaxBrowsers = 3
	}
	if cfg.ContextReuseLimit <= 0 {
		cfg.ContextReuseLimit = 25
	}
	if cfg.BrowserErrorLimit <= 0 {
		cfg.BrowserErrorLimit = 5
	}
	return &Pool{
		cfg:      cfg,
		driver:   driver,
		log:      logger.New("BrowserPool"),
		browsers: make(map[string]*browserEntry),
		waiters:  list.New(),
	}
}

// Acquire blocks the caller, without blocking other callers, until a context
// is available or timeout elapses. Availability is resolved in order: an
// idle context, a bare browser that can derive one, a fresh browser under
// the cap, then the FIFO wait queue.
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Lease, error) {
	p.totalRequests.Add(1)
	start := time.Now()

	lease, w, el, err := p.tryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if lease != nil {
		p.waitNs.Add(time.Since(start).Nanoseconds())
		return lease, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case lease := <-w.ch:
		if lease == nil {
			return nil, ErrClosed
		}
		p.waitNs.Add(time.Since(start).Nanoseconds())
		return lease, nil
	case <-timer.C:
		if lease := p.abandonWaiter(w, el); lease != nil {
			p.waitNs.Add(time.Since(start).Nanoseconds())
			return lease, nil
		}
		return nil, ErrAcquireTimeout
	case <-ctx.Done():
		if lease := p.abandonWaiter(w, el); lease != nil {
			p.waitNs.Add(time.Since(start).Nanoseconds())
			return lease, nil
		}
		return nil, ctx.Err()
	}
}

// tryAcquire returns either a lease, or a registered waiter to block on.
func (p *Pool) tryAcquire(ctx context.Context) (*Lease, *waiter, *list.Element, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, nil, ErrClosed
		}

		if lease := p.takeIdleLocked(); lease != nil {
			p.markBusyLocked(lease.owner)
			p.mu.Unlock()
			return lease, nil, nil, nil
		}

		if bare := p.takeBareLocked(); bare != nil {
			p.mu.Unlock()
			lease, err := p.attachContext(ctx, bare)
			if err != nil {
				// the browser could not derive a context; retire
				// it and try the next source
				p.retire(bare)
				continue
			}
			return lease, nil, nil, nil
		}

		if len(p.browsers)+p.launching < p.cfg.MaxBrowsers {
			p.launching++
			p.mu.Unlock()
			lease, err := p.launchAndAttach(ctx)
			if err != nil {
				return nil, nil, nil, err
			}
			return lease, nil, nil, nil
		}

		w := &waiter{ch: make(chan *Lease, 1)}
		el := p.waiters.PushBack(w)
		p.mu.Unlock()
		return nil, w, el, nil
	}
}

// abandonWaiter removes w from the queue. A lease delivered in the race
// between timeout and removal is returned so it is not leaked.
func (p *Pool) abandonWaiter(w *waiter, el *list.Element) *Lease {
	p.mu.Lock()
	w.canceled = true
	p.waiters.Remove(el)
	p.mu.Unlock()
	select {
	case lease := <-w.ch:
		return lease
	default:
		return nil
	}
}

// Release returns a context to the pool. Contexts past their reuse limit or
// marked unhealthy are destroyed; their browser is retired once it crosses
// the error threshold or its max lifetime, and a replacement is created
// lazily only when demand is queued.
func (p *Pool) Release(l *Lease) {
	if l == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = l.bctx.Close()
		return
	}

	owner := l.owner
	p.busy--
	l.uses++
	if l.unhealthy {
		owner.navErrors++
	}

	now := time.Now()
	recycleCtx := l.unhealthy || l.uses >= p.cfg.ContextReuseLimit
	retireBrowser := owner.navErrors >= p.cfg.BrowserErrorLimit || owner.expired(p.cfg.BrowserMaxLifetime, now)

	if retireBrowser {
		delete(p.browsers, owner.id)
		demand := p.waiters.Len() > 0
		p.mu.Unlock()
		_ = l.bctx.Close()
		_ = owner.b.Close()
		p.log.LogInfof("retired browser %s (errors=%d, age=%s)", owner.id, owner.navErrors, now.Sub(owner.createdAt).Round(time.Second))
		if demand {
			go p.provision()
		}
		return
	}

	if recycleCtx {
		owner.state = stateBare
		owner.ready = nil
		demand := p.waiters.Len() > 0
		p.mu.Unlock()
		_ = l.bctx.Close()
		if demand {
			go p.provision()
		}
		return
	}

	l.unhealthy = false
	if p.deliverLocked(l) {
		p.mu.Unlock()
		return
	}
	owner.state = stateIdle
	owner.ready = l
	p.mu.Unlock()
}

// Stats returns a read-only snapshot. Never blocks on pool work.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	total := len(p.browsers)
	available := 0
	for _, e := range p.browsers {
		if e.state != stateBusy {
			available++
		}
	}
	peak := p.peak
	p.mu.Unlock()

	requests := p.totalRequests.Load()
	s := Stats{
		TotalBrowsers:     total,
		AvailableBrowsers: available,
		TotalRequests:     requests,
		PeakUsage:         peak,
	}
	if requests > 0 {
		s.AvgWaitTimeMs = float64(p.waitNs.Load()) / float64(requests) / 1e6
	}
	return s
}

// Healthy reports whether the pool is still accepting acquires.
func (p *Pool) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

// Cleanup closes all browsers and contexts. Idempotent; queued waiters fail
// with ErrClosed.
func (p *Pool) Cleanup() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	for el := p.waiters.Front(); el != nil; el = el.Next() {
		el.Value.(*waiter).ch <- nil
	}
	p.waiters.Init()

	entries := make([]*browserEntry, 0, len(p.browsers))
	for _, e := range p.browsers {
		entries = append(entries, e)
	}
	p.browsers = make(map[string]*browserEntry)
	p.mu.Unlock()

	for _, e := range entries {
		if e.ready != nil {
			_ = e.ready.bctx.Close()
		}
		_ = e.b.Close()
	}
	p.log.LogInfof("pool cleaned up (%d browsers closed)", len(entries))
}

// takeIdleLocked pops a ready context, dropping browsers past their
// lifetime along the way.
func (p *Pool) takeIdleLocked() *Lease {
	now := time.Now()
	for _, e := range p.browsers {
		if e.state != stateIdle {
			continue
		}
		if e.expired(p.cfg.BrowserMaxLifetime, now) {
			delete(p.browsers, e.id)
			lease := e.ready
			go func(entry *browserEntry, l *Lease) {
				_ = l.bctx.Close()
				_ = entry.b.Close()
			}(e, lease)
			continue
		}
		return e.ready
	}
	return nil
}

func (p *Pool) takeBareLocked() *browserEntry {
	for _, e := range p.browsers {
		if e.state == stateBare {
			e.state = stateBusy // reserve before unlocking
			return e
		}
	}
	return nil
}

func (p *Pool) markBusyLocked(e *browserEntry) {
	e.state = stateBusy
	e.ready = nil
	p.busy++
	if p.busy > p.peak {
		p.peak = p.busy
	}
}

// deliverLocked hands a ready lease to the oldest live waiter.
func (p *Pool) deliverLocked(l *Lease) bool {
	for {
		el := p.waiters.Front()
		if el == nil {
			return false
		}
		w := p.waiters.Remove(el).(*waiter)
		if w.canceled {
			continue
		}
		p.markBusyLocked(l.owner)
		w.ch <- l
		return true
	}
}

// launchAndAttach launches a browser in a reserved slot and derives its
// first context. The reservation is released on any failure so a failed
// launch never strands capacity.
func (p *Pool) launchAndAttach(ctx context.Context) (*Lease, error) {
	b, err := p.driver.Launch(ctx)
	if err != nil {
		p.mu.Lock()
		p.launching--
		p.mu.Unlock()
		return nil, fmt.Errorf("browser launch: %w", err)
	}

	entry := &browserEntry{
		id:        uuid.New().String(),
		b:         b,
		createdAt: time.Now(),
		state:     stateBusy,
	}

	bctx, err := b.NewContext(ctx)
	if err != nil {
		p.mu.Lock()
		p.launching--
		p.mu.Unlock()
		_ = b.Close()
		return nil, fmt.Errorf("browser context: %w", err)
	}

	p.mu.Lock()
	p.launching--
	if p.closed {
		p.mu.Unlock()
		_ = bctx.Close()
		_ = b.Close()
		return nil, ErrClosed
	}
	p.browsers[entry.id] = entry
	entry.contextsServed++
	lease := &Lease{ID: uuid.New().String(), bctx: bctx, owner: entry}
	p.busy++
	if p.busy > p.peak {
		p.peak = p.busy
	}
	p.mu.Unlock()
	p.log.LogDebugf("launched browser %s (%d total)", entry.id, p.Stats().TotalBrowsers)
	return lease, nil
}

// attachContext derives a fresh context from an already-reserved bare
// browser.
func (p *Pool) attachContext(ctx context.Context, e *browserEntry) (*Lease, error) {
	bctx, err := e.b.NewContext(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = bctx.Close()
		return nil, ErrClosed
	}
	e.contextsServed++
	lease := &Lease{ID: uuid.New().String(), bctx: bctx, owner: e}
	p.busy++
	if p.busy > p.peak {
		p.peak = p.busy
	}
	p.mu.Unlock()
	return lease, nil
}

// retire removes a reserved browser that failed to produce a context.
func (p *Pool) retire(e *browserEntry) {
	p.mu.Lock()
	delete(p.browsers, e.id)
	p.mu.Unlock()
	_ = e.b.Close()
}

// provision creates a replacement context for queued demand after a recycle
// or retirement. Failures are logged, not escalated: the waiter's own
// timeout reports the outcome.
func (p *Pool) provision() {
	p.mu.Lock()
	if p.closed || p.waiters.Len() == 0 {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	lease, w, el, err := p.tryAcquire(ctx)
	if err != nil {
		p.log.LogWarnf("replacement provisioning failed: %v", err)
		return
	}
	if lease == nil {
		// someone else already filled capacity; stop waiting on it
		if stray := p.abandonWaiter(w, el); stray != nil {
			p.Release(stray)
		}
		return
	}

	p.mu.Lock()
	delivered := p.handBackLocked(lease)
	p.mu.Unlock()
	if !delivered {
		p.Release(lease)
	}
}

// handBackLocked gives a freshly-provisioned lease to a waiter without
// re-counting busy state (tryAcquire already marked it busy).
func (p *Pool) handBackLocked(l *Lease) bool {
	for {
		el := p.waiters.Front()
		if el == nil {
			return false
		}
		w := p.waiters.Remove(el).(*waiter)
		if w.canceled {
			continue
		}
		w.ch <- l
		return true
	}
}

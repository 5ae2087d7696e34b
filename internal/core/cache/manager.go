// Package cache composes a fast in-process LRU tier and a slower shared
// remote tier behind one get/set/invalidate interface. Large values are
// compressed with whichever codec the compression selector picks.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"scrapengine/internal/core/compress"
	"scrapengine/internal/logger"
)

// Options configure a Manager. Zero values pick workable defaults.
type Options struct {
	MaxBytes             int64
	MaxEntries           int
	DefaultTTL           time.Duration
	SweepInterval        time.Duration
	RemoteTimeout        time.Duration
	CompressionThreshold int
	KeyPrefix            string
}

// Stats is the fixed-shape read-only snapshot exposed upward.
type Stats struct {
	HitRate           float64 `json:"hit_rate"`
	TotalRequests     int64   `json:"total_requests"`
	MemoryHits        int64   `json:"memory_hits"`
	RemoteHits        int64   `json:"remote_hits"`
	Misses            int64   `json:"misses"`
	EntryCount        int     `json:"entry_count"`
	TotalSizeBytes    int64   `json:"total_size_bytes"`
	AvgResponseTimeMs float64 `json:"avg_response_time_ms"`
	DegradedWrites    int64   `json:"degraded_writes"`
	RemoteConnected   bool    `json:"remote_connected"`
}

// Manager is the multi-level cache. All tier mutations go through its own
// synchronized operations; nothing outside this package touches tier state.
type Manager struct {
	log    *logger.Logger
	mem    *memoryTier
	remote RemoteStore // nil means memory-tier-only
	opts   Options

	totalRequests  atomic.Int64
	memHits        atomic.Int64
	remoteHits     atomic.Int64
	misses         atomic.Int64
	degradedWrites atomic.Int64
	responseNs     atomic.Int64

	writes  sync.WaitGroup
	stopped chan struct{}
	once    sync.Once
}

// NewManager builds the manager. remote may be nil, in which case the
// manager runs memory-tier-only from the start.
func NewManager(remote RemoteStore, opts Options) *Manager {
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 64 * 1024 * 1024
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 4096
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 15 * time.Minute
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 2 * time.Second
	}
	if opts.CompressionThreshold <= 0 {
		opts.CompressionThreshold = 16 * 1024
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "scrape:"
	}

	m := &Manager{
		log:     logger.New("CacheManager"),
		mem:     newMemoryTier(opts.MaxBytes, opts.MaxEntries),
		remote:  remote,
		opts:    opts,
		stopped: make(chan struct{}),
	}
	if opts.SweepInterval > 0 {
		go m.sweepLoop(opts.SweepInterval)
	}
	return m
}

// Get looks up key in the memory tier first, then the remote tier. A remote
// hit is decompressed, backfilled into the memory tier, and decoded into
// dest. Returns false on a miss of both tiers.
func (m *Manager) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	start := time.Now()
	m.totalRequests.Add(1)
	defer func() { m.responseNs.Add(time.Since(start).Nanoseconds()) }()

	now := time.Now()
	if e, ok := m.mem.get(key, now); ok {
		if err := decodeEntry(e.data, e.algo, dest); err != nil {
			// corrupt entry: drop it rather than serve garbage
			m.mem.delete(key)
			m.misses.Add(1)
			return false, err
		}
		m.memHits.Add(1)
		return true, nil
	}

	if m.remote == nil {
		m.misses.Add(1)
		return false, nil
	}

	rctx, cancel := context.WithTimeout(ctx, m.opts.RemoteTimeout)
	defer cancel()
	raw, err := m.remote.Get(rctx, key)
	if err != nil {
		if err != ErrRemoteMiss {
			m.log.LogDebugf("remote get degraded for %s: %v", key, err)
		}
		m.misses.Add(1)
		return false, nil
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		m.misses.Add(1)
		return false, fmt.Errorf("remote envelope decode: %w", err)
	}
	ttl := time.Duration(env.TTLMillis) * time.Millisecond
	if ttl > 0 && now.After(env.CreatedAt.Add(ttl)) {
		m.misses.Add(1)
		return false, nil
	}
	if err := decodeEntry(env.Data, env.Algorithm, dest); err != nil {
		m.misses.Add(1)
		return false, err
	}

	// backfill keeps the remote entry's own expiry so the memory tier
	// stays a subset of the remote tier
	m.mem.set(&entry{
		key:       key,
		data:      env.Data,
		algo:      env.Algorithm,
		createdAt: env.CreatedAt,
		ttl:       ttl,
	})
	m.remoteHits.Add(1)
	return true, nil
}

// Set serializes value, compresses it when it clears the threshold and the
// winning codec is effective, writes the memory tier synchronously and the
// remote tier as a detached task. Remote-write failures never fail the Set;
// they increment the degraded-write counter.
func (m *Manager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.opts.DefaultTTL
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache serialize: %w", err)
	}

	data, algo := payload, compress.AlgoNone
	if len(payload) >= m.opts.CompressionThreshold {
		if best, err := compress.Best(payload); err == nil && best.Effective {
			data, algo = best.Data, best.Algorithm
		}
		// selector failure or ineffective ratio falls back to
		// uncompressed storage
	}

	now := time.Now()
	m.mem.set(&entry{key: key, data: data, algo: algo, createdAt: now, ttl: ttl})

	if m.remote == nil {
		return nil
	}
	raw, err := json.Marshal(envelope{Algorithm: algo, Data: data, CreatedAt: now, TTLMillis: ttl.Milliseconds()})
	if err != nil {
		return nil
	}
	m.writes.Add(1)
	go func() {
		defer m.writes.Done()
		// detached from the request context: a slow remote must not
		// stall the caller, but the write still gets its own deadline
		wctx, cancel := context.WithTimeout(context.Background(), m.opts.RemoteTimeout)
		defer cancel()
		if err := m.remote.Set(wctx, key, raw, ttl); err != nil {
			m.degradedWrites.Add(1)
			m.log.LogDebugf("degraded remote write for %s: %v", key, err)
		}
	}()
	return nil
}

// Invalidate removes key from both tiers.
func (m *Manager) Invalidate(ctx context.Context, key string) error {
	m.mem.delete(key)
	if m.remote == nil {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, m.opts.RemoteTimeout)
	defer cancel()
	if err := m.remote.Delete(rctx, key); err != nil && err != ErrRemoteMiss {
		return fmt.Errorf("remote invalidate: %w", err)
	}
	return nil
}

// Clear resets both tiers. The memory tier swap happens under one lock, so
// concurrent Gets observe either the old cache or an empty one, never a
// half-cleared state.
func (m *Manager) Clear(ctx context.Context) error {
	m.mem.clear()
	if m.remote == nil {
		return nil
	}
	rctx, cancel := context.WithTimeout(ctx, 3*m.opts.RemoteTimeout)
	defer cancel()
	return m.remote.Clear(rctx, m.opts.KeyPrefix)
}

// Stats returns a snapshot of counters. Snapshot semantics: values are read
// atomically but not necessarily consistent with one another.
func (m *Manager) Stats() Stats {
	total := m.totalRequests.Load()
	memHits := m.memHits.Load()
	remoteHits := m.remoteHits.Load()

	s := Stats{
		TotalRequests:  total,
		MemoryHits:     memHits,
		RemoteHits:     remoteHits,
		Misses:         m.misses.Load(),
		DegradedWrites: m.degradedWrites.Load(),
	}
	if total > 0 {
		s.HitRate = float64(memHits+remoteHits) / float64(total)
		s.AvgResponseTimeMs = float64(m.responseNs.Load()) / float64(total) / 1e6
	}
	s.EntryCount, s.TotalSizeBytes = m.mem.stats()
	if m.remote != nil {
		probe, cancel := context.WithTimeout(context.Background(), m.opts.RemoteTimeout)
		s.RemoteConnected = m.remote.Connected(probe)
		cancel()
	}
	return s
}

// PruneExpired drops expired memory-tier entries immediately and reports
// what it freed. The resource cleaner uses this as a cleanup rule.
func (m *Manager) PruneExpired() (entries int, bytesFreed int64) {
	_, before := m.mem.stats()
	entries = m.mem.sweep(time.Now())
	_, after := m.mem.stats()
	if freed := before - after; freed > 0 {
		bytesFreed = freed
	}
	return entries, bytesFreed
}

// Close stops the sweep loop and waits for detached remote writes.
func (m *Manager) Close() {
	m.once.Do(func() { close(m.stopped) })
	m.writes.Wait()
}

func (m *Manager) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopped:
			return
		case <-ticker.C:
			if n := m.mem.sweep(time.Now()); n > 0 {
				m.log.LogDebugf("swept %d expired entries", n)
			}
		}
	}
}

func decodeEntry(data []byte, algo compress.Algorithm, dest interface{}) error {
	raw, err := compress.Decode(algo, data)
	if err != nil {
		return fmt.Errorf("cache decompress: %w", err)
	}
	return json.Unmarshal(raw, dest)
}

// Package memory samples process memory and runs registered cleanup rules
// when the process crosses its configured ceiling.
package memory

import (
	"context"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"scrapengine/internal/logger"
)

// Snapshot is an immutable point-in-time record used for trend detection.
type Snapshot struct {
	ProcessMemoryMB  float64   `json:"process_memory_mb"`
	HeapObjects      uint64    `json:"gc_object_count"`
	ActiveGoroutines int       `json:"active_async_tasks"`
	TakenAt          time.Time `json:"taken_at"`
}

// OptimizeReport summarizes one composite optimization pass.
type OptimizeReport struct {
	MemorySavedMB float64       `json:"memory_saved_mb"`
	FreedObjects  int64         `json:"freed_objects"`
	Cleanup       CleanerReport `json:"cleanup"`
}

const defaultHistoryCap = 120

// Monitor samples process memory and object counts. Snapshots are pure
// reads; only the watch loop and Optimize mutate anything, and never the
// pool contexts or cache entries of in-flight work.
type Monitor struct {
	log         *logger.Logger
	cleaner     *Cleaner
	proc        *process.Process
	thresholdMB float64

	mu      sync.Mutex
	history []Snapshot

	optimizeMu sync.Mutex

	watchOnce sync.Once
	cancel    context.CancelFunc
}

func NewMonitor(thresholdMB int, cleaner *Cleaner) *Monitor {
	proc, err := process.NewProcess(int32(os.Getpid()))
	m := &Monitor{
		log:         logger.New("MemoryMonitor"),
		cleaner:     cleaner,
		proc:        proc,
		thresholdMB: float64(thresholdMB),
	}
	if err != nil {
		m.log.LogWarnf("process handle unavailable, falling back to runtime stats: %v", err)
		m.proc = nil
	}
	return m
}

// TakeSnapshot records and returns the current memory state.
func (m *Monitor) TakeSnapshot() Snapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := Snapshot{
		ProcessMemoryMB:  float64(ms.HeapAlloc) / (1024 * 1024),
		HeapObjects:      ms.HeapObjects,
		ActiveGoroutines: runtime.NumGoroutine(),
		TakenAt:          time.Now(),
	}
	if m.proc != nil {
		if mi, err := m.proc.MemoryInfo(); err == nil && mi != nil {
			snap.ProcessMemoryMB = float64(mi.RSS) / (1024 * 1024)
		}
	}

	m.mu.Lock()
	m.history = append(m.history, snap)
	if len(m.history) > defaultHistoryCap {
		m.history = m.history[len(m.history)-defaultHistoryCap:]
	}
	m.mu.Unlock()
	return snap
}

// History returns the retained snapshot sequence, oldest first.
func (m *Monitor) History() []Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Snapshot, len(m.history))
	copy(out, m.history)
	return out
}

// ForceGC requests an immediate collection pass and returns the delta in
// tracked heap objects.
func (m *Monitor) ForceGC() int64 {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	runtime.GC()
	runtime.ReadMemStats(&after)

	freed := int64(before.HeapObjects) - int64(after.HeapObjects)
	if freed < 0 {
		freed = 0
	}
	return freed
}

// Optimize runs the composite routine: forced collection plus every
// registered cleanup rule. Safe to call concurrently; passes serialize.
func (m *Monitor) Optimize(ctx context.Context) OptimizeReport {
	m.optimizeMu.Lock()
	defer m.optimizeMu.Unlock()

	before := m.TakeSnapshot()
	freed := m.ForceGC()

	var cleanup CleanerReport
	if m.cleaner != nil {
		cleanup = m.cleaner.RunAll(ctx)
	}

	after := m.TakeSnapshot()
	saved := before.ProcessMemoryMB - after.ProcessMemoryMB
	if saved < 0 {
		saved = 0
	}
	m.log.LogInfof("memory optimize: saved=%.1fMB freed_objects=%d rules_ok=%.0f%%",
		saved, freed, cleanup.SuccessRate*100)
	return OptimizeReport{MemorySavedMB: saved, FreedObjects: freed, Cleanup: cleanup}
}

// Watch starts the background threshold loop. Idempotent.
func (m *Monitor) Watch(interval time.Duration) {
	m.watchOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		go m.watchLoop(ctx, interval)
	})
}

func (m *Monitor) watchLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := m.TakeSnapshot()
			if m.thresholdMB > 0 && snap.ProcessMemoryMB > m.thresholdMB {
				m.log.LogWarnf("memory pressure: %.1fMB > %.1fMB ceiling", snap.ProcessMemoryMB, m.thresholdMB)
				m.Optimize(ctx)
			}
		}
	}
}

// Stop halts the watch loop.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

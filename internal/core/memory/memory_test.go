package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTakeSnapshotFields(t *testing.T) {
	m := NewMonitor(0, nil)
	snap := m.TakeSnapshot()

	assert.Greater(t, snap.ProcessMemoryMB, 0.0)
	assert.Greater(t, snap.HeapObjects, uint64(0))
	assert.Greater(t, snap.ActiveGoroutines, 0)
	assert.WithinDuration(t, time.Now(), snap.TakenAt, time.Second)
}

func TestHistoryIsCapped(t *testing.T) {
	m := NewMonitor(0, nil)
	for i := 0; i < defaultHistoryCap+20; i++ {
		m.TakeSnapshot()
	}
	hist := m.History()
	assert.Len(t, hist, defaultHistoryCap)
	// append-only, oldest first
	for i := 1; i < len(hist); i++ {
		assert.False(t, hist[i].TakenAt.Before(hist[i-1].TakenAt))
	}
}

func TestOptimizeRunsCleanupRules(t *testing.T) {
	cleaner := NewCleaner()
	ran := false
	cleaner.Register("drop-buffers", "buffer", func(ctx context.Context) (RuleReport, error) {
		ran = true
		return RuleReport{ItemsCleaned: 3, BytesFreed: 1024, OK: true}, nil
	})

	m := NewMonitor(0, cleaner)
	report := m.Optimize(context.Background())

	assert.True(t, ran)
	assert.Equal(t, 3, report.Cleanup.ItemsCleaned)
	assert.Equal(t, int64(1024), report.Cleanup.BytesFreed)
	assert.GreaterOrEqual(t, report.MemorySavedMB, 0.0)
}

func TestRunAllIsolatesFailures(t *testing.T) {
	c := NewCleaner()
	c.Register("bad", "x", func(ctx context.Context) (RuleReport, error) {
		return RuleReport{}, errors.New("boom")
	})
	c.Register("panicky", "x", func(ctx context.Context) (RuleReport, error) {
		panic("unexpected")
	})
	c.Register("good", "y", func(ctx context.Context) (RuleReport, error) {
		return RuleReport{ItemsCleaned: 1, BytesFreed: 10, OK: true}, nil
	})

	report := c.RunAll(context.Background())

	assert.Equal(t, 3, report.RulesRun)
	assert.Equal(t, 2, report.RulesFailed)
	assert.Equal(t, 1, report.ItemsCleaned)
	assert.InDelta(t, 1.0/3.0, report.SuccessRate, 1e-9)
}

func TestRegisterReplacesByName(t *testing.T) {
	c := NewCleaner()
	c.Register("rule", "a", func(ctx context.Context) (RuleReport, error) {
		return RuleReport{ItemsCleaned: 1, OK: true}, nil
	})
	c.Register("rule", "a", func(ctx context.Context) (RuleReport, error) {
		return RuleReport{ItemsCleaned: 5, OK: true}, nil
	})

	report := c.RunAll(context.Background())
	require.Equal(t, 1, report.RulesRun)
	assert.Equal(t, 5, report.ItemsCleaned)
}

func TestForceGCDoesNotGoNegative(t *testing.T) {
	m := NewMonitor(0, nil)
	assert.GreaterOrEqual(t, m.ForceGC(), int64(0))
}

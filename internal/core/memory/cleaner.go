package memory

import (
	"context"
	"fmt"
	"sync"

	"scrapengine/internal/logger"
)

// RuleReport is the outcome of a single cleanup rule.
type RuleReport struct {
	ItemsCleaned int   `json:"items_cleaned"`
	BytesFreed   int64 `json:"bytes_freed"`
	OK           bool  `json:"success"`
}

// RuleFunc releases resources of one kind and reports what it freed.
type RuleFunc func(ctx context.Context) (RuleReport, error)

type rule struct {
	name     string
	resource string
	run      RuleFunc
}

// CleanerReport aggregates one RunAll pass.
type CleanerReport struct {
	RulesRun     int     `json:"rules_run"`
	RulesFailed  int     `json:"rules_failed"`
	ItemsCleaned int     `json:"items_cleaned"`
	BytesFreed   int64   `json:"bytes_freed"`
	SuccessRate  float64 `json:"success_rate"`
}

// Cleaner holds a registry of named cleanup rules. Rules execute
// independently: one rule failing never blocks the others.
type Cleaner struct {
	log   *logger.Logger
	mu    sync.Mutex
	rules []rule
}

func NewCleaner() *Cleaner {
	return &Cleaner{log: logger.New("ResourceCleaner")}
}

// Register adds a named rule for a resource type. Later registrations with
// the same name replace the earlier one.
func (c *Cleaner) Register(name, resource string, fn RuleFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.rules {
		if c.rules[i].name == name {
			c.rules[i] = rule{name: name, resource: resource, run: fn}
			return
		}
	}
	c.rules = append(c.rules, rule{name: name, resource: resource, run: fn})
}

// RunAll executes every registered rule and aggregates a success rate.
func (c *Cleaner) RunAll(ctx context.Context) CleanerReport {
	c.mu.Lock()
	rules := make([]rule, len(c.rules))
	copy(rules, c.rules)
	c.mu.Unlock()

	report := CleanerReport{RulesRun: len(rules)}
	for _, r := range rules {
		res, err := c.runOne(ctx, r)
		if err != nil || !res.OK {
			report.RulesFailed++
			c.log.LogWarnf("cleanup rule %s (%s) failed: %v", r.name, r.resource, err)
			continue
		}
		report.ItemsCleaned += res.ItemsCleaned
		report.BytesFreed += res.BytesFreed
	}
	if report.RulesRun > 0 {
		report.SuccessRate = float64(report.RulesRun-report.RulesFailed) / float64(report.RulesRun)
	} else {
		report.SuccessRate = 1
	}
	return report
}

func (c *Cleaner) runOne(ctx context.Context, r rule) (res RuleReport, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("cleanup rule %s panicked: %v", r.name, rec)
			res = RuleReport{}
			c.log.LogErrorf("%v", err)
		}
	}()
	return r.run(ctx)
}

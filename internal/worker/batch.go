package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hibiken/asynq"

	"scrapengine/internal/core/job"
	"scrapengine/internal/core/scrape"
	"scrapengine/internal/logger"
	"scrapengine/internal/platform/tasks"
)

// BatchPayload is the asynq task body for one batch scrape job.
type BatchPayload struct {
	JobID        string   `json:"job_id"`
	URLs         []string `json:"urls"`
	Fresh        bool     `json:"fresh,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// batchParallelism bounds in-flight scrapes per batch so one large job
// cannot monopolize the browser pool.
const batchParallelism = 2

type BatchHandler struct {
	log    *logger.Logger
	scrape *scrape.Service
	jobs   *job.JobService
}

func NewBatchHandler(s *scrape.Service, j *job.JobService) *BatchHandler {
	return &BatchHandler{log: logger.New("BatchWorker"), scrape: s, jobs: j}
}

// Register attaches the handler to the worker mux.
func (h *BatchHandler) Register(m *Mux) {
	m.HandleFunc(tasks.TaskTypeBatchScrape, h.Handle)
}

func (h *BatchHandler) Handle(ctx context.Context, task *asynq.Task) error {
	var p BatchPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("bad batch payload: %w", err)
	}
	if p.JobID == "" || len(p.URLs) == 0 {
		return fmt.Errorf("batch payload missing job_id or urls")
	}

	h.log.LogInfof("batch %s start urls=%d", p.JobID, len(p.URLs))
	if err := h.jobs.SetProcessing(ctx, p.JobID); err != nil {
		h.log.LogWarnf("batch %s: could not mark processing: %v", p.JobID, err)
	}

	results := make([]scrape.Result, len(p.URLs))
	sem := make(chan struct{}, batchParallelism)
	var wg sync.WaitGroup

	for i, u := range p.URLs {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res, err := h.scrape.Scrape(ctx, scrape.Params{
				URL:          u,
				Fresh:        p.Fresh,
				Instructions: p.Instructions,
			})
			if err != nil {
				results[i] = scrape.Result{URL: u, Error: err.Error()}
				return
			}
			results[i] = *res
		}(i, u)
	}
	wg.Wait()

	data := job.BatchData{URLs: p.URLs, Results: results}
	for _, r := range results {
		if r.Success {
			data.Completed++
		} else {
			data.Failed++
		}
	}

	status := job.StatusCompleted
	if data.Completed == 0 {
		status = job.StatusFailed
	}
	if err := h.jobs.Complete(ctx, p.JobID, status, data); err != nil {
		return fmt.Errorf("batch %s: persist results: %w", p.JobID, err)
	}

	h.log.LogInfof("batch %s done completed=%d failed=%d", p.JobID, data.Completed, data.Failed)
	return nil
}

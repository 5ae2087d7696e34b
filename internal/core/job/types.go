package job

import (
	"scrapengine/internal/core/scrape"
)

// Job is the Redis-persisted record of an asynchronous batch scrape.
type Job struct {
	JobID   string    `json:"job_id"`
	Type    Type      `json:"type"`
	Status  Status    `json:"status"`
	Results BatchData `json:"results,omitempty"`
}

type Type string

const (
	TypeBatchScrape Type = "batch_scrape"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// BatchData accumulates per-URL outcomes as the worker progresses.
type BatchData struct {
	URLs      []string        `json:"urls"`
	Completed int             `json:"completed"`
	Failed    int             `json:"failed"`
	Results   []scrape.Result `json:"results,omitempty"`
}

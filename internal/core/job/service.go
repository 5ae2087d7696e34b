package job

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	rds "scrapengine/internal/platform/redis"
)

type JobService struct{ redis *rds.Service }

func NewJobService(redis *rds.Service) *JobService { return &JobService{redis: redis} }

func (s *JobService) GetJobStatus(ctx context.Context, jobID string) (*Job, error) {
	b, err := s.redis.Client().Get(ctx, key(jobID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	var job Job
	if err := json.Unmarshal(b, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *JobService) store(ctx context.Context, jobID string, status Status, data *BatchData) error {
	job := Job{JobID: jobID, Type: TypeBatchScrape, Status: status}
	if data != nil {
		job.Results = *data
	} else if prev, err := s.GetJobStatus(ctx, jobID); err == nil {
		job.Results = prev.Results
	}
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Client().Set(ctx, key(jobID), b, ttl(status)).Err()
}

func (s *JobService) InitPending(ctx context.Context, jobID string, urls []string) error {
	return s.store(ctx, jobID, StatusPending, &BatchData{URLs: urls})
}

func (s *JobService) SetProcessing(ctx context.Context, jobID string) error {
	return s.store(ctx, jobID, StatusProcessing, nil)
}

// Progress persists a partial result set so in-flight batches are observable.
func (s *JobService) Progress(ctx context.Context, jobID string, data BatchData) error {
	return s.store(ctx, jobID, StatusProcessing, &data)
}

func (s *JobService) Complete(ctx context.Context, jobID string, status Status, data BatchData) error {
	return s.store(ctx, jobID, status, &data)
}

func key(id string) string { return "job:" + id }

func ttl(s Status) time.Duration {
	if s == StatusCompleted || s == StatusFailed {
		return time.Hour
	}
	return 10 * time.Minute
}

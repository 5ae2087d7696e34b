package job

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"scrapengine/internal/platform/tasks"
)

type Handler struct {
	jobs       *JobService
	tasks      *tasks.Client
	maxRetries int
}

func NewHandler(jobs *JobService, tc *tasks.Client, maxRetries int) *Handler {
	return &Handler{jobs: jobs, tasks: tc, maxRetries: maxRetries}
}

type createBatchRequest struct {
	URLs         []string `json:"urls"`
	Fresh        bool     `json:"fresh,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

type createBatchResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Status  Status `json:"status"`
}

const maxBatchURLs = 100

// HandleCreateBatch accepts a URL list, records a pending job, and hands
// the work to the asynq queue.
func (h *Handler) HandleCreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "invalid body"})
	}
	if len(req.URLs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "urls is required"})
	}
	if len(req.URLs) > maxBatchURLs {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "too many urls"})
	}

	jobID := uuid.NewString()
	if err := h.jobs.InitPending(c.Context(), jobID, req.URLs); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"job_id":       jobID,
		"urls":         req.URLs,
		"fresh":        req.Fresh,
		"instructions": req.Instructions,
	})
	task := asynq.NewTask(tasks.TaskTypeBatchScrape, payload)
	if err := h.tasks.Enqueue(task, "default", h.maxRetries); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "error": err.Error()})
	}

	return c.Status(fiber.StatusAccepted).JSON(createBatchResponse{Success: true, JobID: jobID, Status: StatusPending})
}

func (h *Handler) HandleGetBatch(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	j, err := h.jobs.GetJobStatus(c.Context(), jobID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "error": err.Error()})
	}
	return c.JSON(j)
}

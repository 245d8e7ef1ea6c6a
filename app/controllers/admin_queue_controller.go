package controllers

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/jobqueue"
)

// JobInspector is the read side of the background job queue.
type JobInspector interface {
	GetJob(ctx context.Context, jobID string) (*jobqueue.Job, error)
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
	GetProcessingSize(ctx context.Context) (int64, error)
}

// AdminQueueController exposes the ERP sync and ledger archive queue to admins
type AdminQueueController struct {
	jobs JobInspector
}

func NewAdminQueueController(jobs JobInspector) *AdminQueueController {
	return &AdminQueueController{jobs: jobs}
}

type queueOverview struct {
	Pending    int64                        `json:"pending"`
	Processing int64                        `json:"processing"`
	Stats      map[jobqueue.JobStatus]int64 `json:"stats"`
}

// HandleAdminQueues returns queue sizes and the per-status counters.
func (aqc *AdminQueueController) HandleAdminQueues(c *fiber.Ctx) error {
	ctx := c.UserContext()

	pending, err := aqc.jobs.GetQueueSize(ctx)
	if err != nil {
		return fail(c, err)
	}
	processing, err := aqc.jobs.GetProcessingSize(ctx)
	if err != nil {
		return fail(c, err)
	}
	stats, err := aqc.jobs.GetJobStats(ctx)
	if err != nil {
		return fail(c, err)
	}

	return ok(c, "queue loaded", queueOverview{
		Pending:    pending,
		Processing: processing,
		Stats:      stats,
	})
}

// HandleAdminQueueJob returns a single job with its payload and last error.
func (aqc *AdminQueueController) HandleAdminQueueJob(c *fiber.Ctx) error {
	jobID := strings.TrimSpace(c.Params("id"))
	if jobID == "" {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "job id is required"))
	}

	job, err := aqc.jobs.GetJob(c.UserContext(), jobID)
	if errors.Is(err, redis.Nil) {
		return fail(c, fiber.NewError(fiber.StatusNotFound, "job not found"))
	}
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "job loaded", job)
}

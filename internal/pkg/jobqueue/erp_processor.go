package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

const defaultERPTimeout = 10 * time.Second

// ERPClient forwards discount changes to the external ERP endpoint
type ERPClient struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// NewERPClientFromEnv returns nil when ERP sync is disabled
func NewERPClientFromEnv() *ERPClient {
	if !env.GetEnvBool("ERP_SYNC_ENABLED", false) {
		return nil
	}
	url := env.GetEnv("ERP_SYNC_URL", "")
	if url == "" {
		log.Warn("[ERPSync] ERP_SYNC_ENABLED is set but ERP_SYNC_URL is empty, sync disabled")
		return nil
	}
	return &ERPClient{
		URL:     url,
		Token:   env.GetEnv("ERP_SYNC_TOKEN", ""),
		Timeout: time.Duration(env.GetEnvInt("ERP_SYNC_TIMEOUT", 10)) * time.Second,
	}
}

// Send posts the payload as JSON. Any non-2xx answer is an error so the job retries.
func (c *ERPClient) Send(ctx context.Context, payload ERPSyncJobPayload) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultERPTimeout
	}

	agent := fiber.Post(c.URL)
	agent.JSON(payload)
	agent.Timeout(timeout)
	if c.Token != "" {
		agent.Set(fiber.HeaderAuthorization, "Bearer "+c.Token)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("erp request failed: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		if len(body) > 256 {
			body = body[:256]
		}
		return fmt.Errorf("erp rejected %s for mapping %d with status %d: %s", payload.Event, payload.MappingID, code, body)
	}
	return nil
}

// processERPSyncJob processes an ERP sync job
func (q *Queue) processERPSyncJob(ctx context.Context, job *Job) error {
	payload, err := ERPSyncJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to parse ERP sync job payload: %w", err)
	}

	client := q.currentHandlers().ERP
	if client == nil {
		return fmt.Errorf("ERP sync is not configured")
	}

	log.Infof("[ERPSync] Sending %s for mapping %d (branch %s)", payload.Event, payload.MappingID, payload.BranchCode)
	if err := client.Send(ctx, *payload); err != nil {
		return err
	}
	log.Infof("[ERPSync] Delivered %s for mapping %d", payload.Event, payload.MappingID)
	return nil
}

package controllers

import (
	"bytes"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/export"
)

const dateLayout = "2006-01-02"

// summaryPeriod reads ?from=&to= as [from, to) dates in UTC. The default
// is the current calendar month.
func summaryPeriod(c *fiber.Ctx, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "from must be YYYY-MM-DD")
		}
		from = t
		if c.Query("to") == "" {
			to = from.AddDate(0, 1, 0)
		}
	}
	if raw := strings.TrimSpace(c.Query("to")); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "to must be YYYY-MM-DD")
		}
		to = t
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, fiber.NewError(fiber.StatusBadRequest, "to must be after from")
	}
	return from, to, nil
}

func parseOptionalDate(raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid date: "+value)
	}
	return &t, nil
}

func (h *BillingController) summary(c *fiber.Ctx) (*billing.DiscountSummary, error) {
	from, to, err := summaryPeriod(c, time.Now())
	if err != nil {
		return nil, err
	}
	return h.svc.DiscountSummary(c.UserContext(), c.Query("branch"), from, to)
}

func (h *BillingController) DiscountSummary(c *fiber.Ctx) error {
	sum, err := h.summary(c)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "discount summary generated", sum)
}

func (h *BillingController) DiscountSummaryXLSX(c *fiber.Ctx) error {
	sum, err := h.summary(c)
	if err != nil {
		return fail(c, err)
	}
	var buf bytes.Buffer
	if err := export.WriteDiscountSummary(&buf, sum); err != nil {
		return fail(c, err)
	}
	c.Attachment(export.SummaryFilename(sum))
	c.Set(fiber.HeaderContentType, export.ContentType)
	return c.Send(buf.Bytes())
}

func (h *BillingController) ValidateIntegrity(c *fiber.Ctx) error {
	report, err := h.svc.ValidateIntegrity(c.UserContext(), c.Query("branch"))
	if err != nil {
		return fail(c, err)
	}
	message := "discount ledger is consistent"
	if !report.IsValid {
		message = "discount ledger has issues"
	}
	return ok(c, message, report)
}

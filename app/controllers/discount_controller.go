package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/usercontext"
)

func (h *BillingController) GetDiscount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	view, err := h.svc.GetDiscountAccounting(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "discount accounting loaded", view)
}

type applyDiscountRequest struct {
	Code           string      `json:"discount_code" validate:"required,max=50"`
	OriginalAmount interface{} `json:"original_amount"`
	DiscountAmount interface{} `json:"discount_amount"`
	FinalAmount    interface{} `json:"final_amount"`
	Reason         string      `json:"reason" validate:"max=500"`
	Pending        bool        `json:"pending"`
}

func (h *BillingController) ApplyDiscount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req applyDiscountRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	original, err := billing.ParseAmount(req.OriginalAmount)
	if err != nil {
		return fail(c, err)
	}
	discount, err := billing.ParseAmount(req.DiscountAmount)
	if err != nil {
		return fail(c, err)
	}
	final, err := billing.ParseAmount(req.FinalAmount)
	if err != nil {
		return fail(c, err)
	}

	res, err := h.svc.ApplyDiscount(c.UserContext(), billing.DiscountRequest{
		MappingID:      id,
		Code:           req.Code,
		OriginalAmount: original,
		DiscountAmount: discount,
		FinalAmount:    final,
		Reason:         req.Reason,
		AppliedBy:      usercontext.Actor(c),
		Pending:        req.Pending,
	})
	if err != nil {
		return fail(c, err)
	}
	message := "discount applied"
	if res.PossibleDuplicate {
		message = "discount applied; an identical discount was previously recorded on this mapping"
	}
	return respond(c, fiber.StatusCreated, message, res)
}

type calculateDiscountRequest struct {
	Code string `json:"discount_code" validate:"max=50"`
}

func (h *BillingController) CalculateDiscount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req calculateDiscountRequest
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
	}
	calc, err := h.svc.CalculateDiscount(c.UserContext(), id, req.Code)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, calc.Message, calc)
}

type discountStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *BillingController) UpdateDiscountStatus(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req discountStatusRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	d, err := h.svc.UpdateDiscountStatus(c.UserContext(), billing.StatusRequest{
		MappingID: id,
		Status:    req.Status,
		Reason:    req.Reason,
		ChangedBy: usercontext.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "discount status updated", d)
}

type refundRequest struct {
	Amount interface{} `json:"amount"`
	Reason string      `json:"reason" validate:"required,max=500"`
}

func (h *BillingController) Refund(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req refundRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	amount, err := billing.ParseAmount(req.Amount)
	if err != nil {
		return fail(c, err)
	}
	tx, err := h.svc.Refund(c.UserContext(), billing.RefundRequest{
		MappingID:  id,
		Amount:     amount,
		Reason:     req.Reason,
		RefundedBy: usercontext.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, fiber.StatusCreated, "refund recorded", tx)
}

func (h *BillingController) ListPackageDiscounts(c *fiber.Ctx) error {
	discounts, err := h.svc.ListPackageDiscounts(c.UserContext(), c.QueryBool("active", false))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "discounts loaded", discounts)
}

type packageDiscountRequest struct {
	Code           string      `json:"code" validate:"required,max=50"`
	Name           string      `json:"name" validate:"required,max=150"`
	Description    string      `json:"description" validate:"max=1000"`
	Type           string      `json:"type" validate:"required,oneof=PERCENTAGE FIXED"`
	Value          interface{} `json:"value"`
	MinimumAmount  interface{} `json:"minimum_amount"`
	UsageLimit     int64       `json:"usage_limit" validate:"gte=0"`
	StartDate      *string     `json:"start_date"`
	EndDate        *string     `json:"end_date"`
	AutoApplicable bool        `json:"auto_applicable"`
	Active         *bool       `json:"active"`
}

func (h *BillingController) CreatePackageDiscount(c *fiber.Ctx) error {
	var req packageDiscountRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	value, err := billing.ParseAmount(req.Value)
	if err != nil {
		return fail(c, err)
	}
	minimum, err := amountOrZero(req.MinimumAmount)
	if err != nil {
		return fail(c, err)
	}
	start, err := parseOptionalDate(req.StartDate)
	if err != nil {
		return fail(c, err)
	}
	end, err := parseOptionalDate(req.EndDate)
	if err != nil {
		return fail(c, err)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	d, err := h.svc.CreatePackageDiscount(c.UserContext(), &models.PackageDiscount{
		Code:           req.Code,
		Name:           req.Name,
		Description:    req.Description,
		Type:           req.Type,
		Value:          value,
		MinimumAmount:  minimum,
		UsageLimit:     req.UsageLimit,
		StartDate:      start,
		EndDate:        end,
		AutoApplicable: req.AutoApplicable,
		Active:         active,
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, fiber.StatusCreated, "discount created", d)
}

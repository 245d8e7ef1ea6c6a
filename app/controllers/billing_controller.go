package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/usercontext"
)

// BillingController serves the mapping amount and discount endpoints.
type BillingController struct {
	svc *billing.Service
}

func NewBillingController(svc *billing.Service) *BillingController {
	return &BillingController{svc: svc}
}

type createMappingRequest struct {
	ConsultantID    uint        `json:"consultant_id" validate:"required"`
	ClientID        uint        `json:"client_id" validate:"required"`
	PackageName     string      `json:"package_name" validate:"max=150"`
	BranchCode      string      `json:"branch_code" validate:"max=50"`
	TotalSessions   int         `json:"total_sessions" validate:"gte=0"`
	UsedSessions    int         `json:"used_sessions" validate:"gte=0"`
	PricePerSession interface{} `json:"price_per_session"`
	PackagePrice    interface{} `json:"package_price"`
	PaidAmount      interface{} `json:"paid_amount"`
}

func (h *BillingController) CreateMapping(c *fiber.Ctx) error {
	var req createMappingRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	price, err := amountOrZero(req.PricePerSession)
	if err != nil {
		return fail(c, err)
	}
	packagePrice, err := optionalAmount(req.PackagePrice)
	if err != nil {
		return fail(c, err)
	}
	paid, err := amountOrZero(req.PaidAmount)
	if err != nil {
		return fail(c, err)
	}

	m, err := h.svc.CreateMapping(c.UserContext(), &models.ConsultantClientMapping{
		ConsultantID:    req.ConsultantID,
		ClientID:        req.ClientID,
		PackageName:     req.PackageName,
		BranchCode:      req.BranchCode,
		TotalSessions:   req.TotalSessions,
		UsedSessions:    req.UsedSessions,
		PricePerSession: price,
		PackagePrice:    packagePrice,
		PaidAmount:      paid,
	}, usercontext.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return respond(c, fiber.StatusCreated, "mapping created", m)
}

func (h *BillingController) ListMappings(c *fiber.Ctx) error {
	filter := billing.MappingFilter{
		BranchCode:   c.Query("branch"),
		ConsultantID: uint(c.QueryInt("consultant_id", 0)),
		ClientID:     uint(c.QueryInt("client_id", 0)),
		Limit:        c.QueryInt("limit", 50),
		Offset:       c.QueryInt("offset", 0),
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	mappings, err := h.svc.ListMappings(c.UserContext(), filter)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "mappings loaded", mappings)
}

func (h *BillingController) GetMapping(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	m, err := h.svc.GetMapping(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "mapping loaded", m)
}

func (h *BillingController) GetAmountInfo(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	info, err := h.svc.IntegratedAmountInfo(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "amount info loaded", info)
}

type accurateAmount struct {
	MappingID uint  `json:"mapping_id"`
	Amount    int64 `json:"amount"`
}

// GetAccurateAmount returns the amount a new ledger entry for the mapping
// should carry.
func (h *BillingController) GetAccurateAmount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	amount, err := h.svc.AccurateTransactionAmount(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "accurate amount loaded", accurateAmount{MappingID: id, Amount: amount})
}

type duplicateCheck struct {
	MappingID uint   `json:"mapping_id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	Duplicate bool   `json:"duplicate"`
}

// CheckDuplicateTransaction reports whether a completed ledger entry with the
// queried type and amount already exists.
func (h *BillingController) CheckDuplicateTransaction(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	amount, err := billing.ParseAmount(c.Query("amount"))
	if err != nil {
		return fail(c, err)
	}
	txType := strings.ToUpper(strings.TrimSpace(c.Query("type")))
	dup, err := h.svc.IsDuplicateTransaction(c.UserContext(), id, txType, amount)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "duplicate check done", duplicateCheck{MappingID: id, Type: txType, Amount: amount, Duplicate: dup})
}

func (h *BillingController) CheckConsistency(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	res, err := h.svc.CheckConsistency(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, res.Message, res)
}

type amountRequest struct {
	Amount interface{} `json:"amount"`
}

func (h *BillingController) ValidateAmount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req amountRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	amount, err := billing.ParseAmount(req.Amount)
	if err != nil {
		return fail(c, err)
	}
	res, err := h.svc.ValidateAmount(c.UserContext(), id, amount)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, res.Message, res)
}

type updateAmountRequest struct {
	Amount          interface{} `json:"amount"`
	ExpectedVersion int64       `json:"expected_version" validate:"gte=0"`
	Reason          string      `json:"reason" validate:"required,max=500"`
	Force           bool        `json:"force"`
}

func (h *BillingController) UpdateAmount(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req updateAmountRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	amount, err := billing.ParseAmount(req.Amount)
	if err != nil {
		return fail(c, err)
	}
	m, err := h.svc.UpdatePaidAmount(c.UserContext(), billing.PaidAmountUpdate{
		MappingID:       id,
		Amount:          amount,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
		ChangedBy:       usercontext.Actor(c),
		Force:           req.Force,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "paid amount updated", m)
}

func (h *BillingController) ListAmountChanges(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	entries, err := h.svc.ListAmountChanges(c.UserContext(), id)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "amount changes loaded", entries)
}

type amountChangeRequest struct {
	OldAmount interface{} `json:"old_amount"`
	NewAmount interface{} `json:"new_amount"`
	Reason    string      `json:"reason" validate:"required,max=500"`
}

func (h *BillingController) RecordAmountChange(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req amountChangeRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	oldAmount, err := billing.ParseAmount(req.OldAmount)
	if err != nil {
		return fail(c, err)
	}
	newAmount, err := billing.ParseAmount(req.NewAmount)
	if err != nil {
		return fail(c, err)
	}
	entry, err := h.svc.RecordAmountChange(c.UserContext(), billing.AmountChange{
		MappingID: id,
		Kind:      models.AmountChangeKindAmount,
		OldAmount: oldAmount,
		NewAmount: newAmount,
		Reason:    req.Reason,
		ChangedBy: usercontext.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return respond(c, fiber.StatusCreated, "amount change recorded", entry)
}

type sessionsRequest struct {
	TotalSessions   int    `json:"total_sessions" validate:"gte=0"`
	ExpectedVersion int64  `json:"expected_version" validate:"gte=0"`
	Reason          string `json:"reason" validate:"required,max=500"`
}

func (h *BillingController) AdjustSessions(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req sessionsRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	m, err := h.svc.AdjustSessions(c.UserContext(), billing.SessionUpdate{
		MappingID:       id,
		TotalSessions:   req.TotalSessions,
		ExpectedVersion: req.ExpectedVersion,
		Reason:          req.Reason,
		ChangedBy:       usercontext.Actor(c),
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "sessions adjusted", m)
}

type useSessionRequest struct {
	Count int `json:"count" validate:"gte=0"`
}

func (h *BillingController) UseSession(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	req := useSessionRequest{Count: 1}
	if len(c.Body()) > 0 {
		if err := bind(c, &req); err != nil {
			return fail(c, err)
		}
	}
	m, err := h.svc.ConsumeSession(c.UserContext(), id, req.Count, usercontext.Actor(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "session used", m)
}

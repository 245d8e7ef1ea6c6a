package controllers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConsultLedger/app/models"
	"github.com/ManuelReschke/ConsultLedger/app/repository"
	"github.com/ManuelReschke/ConsultLedger/internal/pkg/usercontext"
)

// OperatorController manages the staff accounts that act on billing data.
type OperatorController struct {
	users repository.UserRepository
}

func NewOperatorController(users repository.UserRepository) *OperatorController {
	return &OperatorController{users: users}
}

// operatorKey is returned exactly once, when a key is issued.
type operatorKey struct {
	Operator *models.User `json:"operator"`
	APIKey   string       `json:"api_key"`
}

// HandleGetOperatorAccount returns the operator behind the current API key.
func (oc *OperatorController) HandleGetOperatorAccount(c *fiber.Ctx) error {
	u, err := oc.load(usercontext.GetUserID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "operator loaded", u)
}

func (oc *OperatorController) HandleAdminOperators(c *fiber.Ctx) error {
	if q := strings.TrimSpace(c.Query("q")); q != "" {
		users, err := oc.users.Search(q)
		if err != nil {
			return fail(c, err)
		}
		return ok(c, "operators loaded", fiber.Map{"operators": users, "total": len(users)})
	}

	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	users, err := oc.users.List(offset, limit)
	if err != nil {
		return fail(c, err)
	}
	total, err := oc.users.Count()
	if err != nil {
		return fail(c, err)
	}
	return ok(c, "operators loaded", fiber.Map{"operators": users, "total": total})
}

type createOperatorRequest struct {
	Name  string `json:"name" validate:"required,min=3,max=150"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"omitempty,oneof=operator admin"`
}

func (oc *OperatorController) HandleAdminOperatorCreate(c *fiber.Ctx) error {
	var req createOperatorRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if _, err := oc.users.GetByEmail(req.Email); err == nil {
		return fail(c, fiber.NewError(fiber.StatusConflict, "email already registered"))
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, err)
	}

	u, err := models.CreateOperator(req.Name, req.Email, req.Role)
	if err != nil {
		return fail(c, err)
	}
	key, err := u.IssueAPIKey()
	if err != nil {
		return fail(c, err)
	}
	if err := oc.users.Create(u); err != nil {
		return fail(c, err)
	}

	log.Infof("[Auth] Operator %d (%s) created by %s", u.ID, u.Role, usercontext.Actor(c))
	return respond(c, fiber.StatusCreated, "operator created", operatorKey{Operator: u, APIKey: key})
}

func (oc *OperatorController) HandleAdminOperatorRotateKey(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	u, err := oc.load(id)
	if err != nil {
		return fail(c, err)
	}
	key, err := u.IssueAPIKey()
	if err != nil {
		return fail(c, err)
	}
	if err := oc.users.Update(u); err != nil {
		return fail(c, err)
	}

	log.Infof("[Auth] API key for operator %d rotated by %s", u.ID, usercontext.Actor(c))
	return respond(c, fiber.StatusCreated, "api key issued", operatorKey{Operator: u, APIKey: key})
}

func (oc *OperatorController) HandleAdminOperatorRevokeKey(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	u, err := oc.load(id)
	if err != nil {
		return fail(c, err)
	}
	u.RevokeAPIKey()
	if err := oc.users.Update(u); err != nil {
		return fail(c, err)
	}

	log.Infof("[Auth] API key for operator %d revoked by %s", u.ID, usercontext.Actor(c))
	return ok(c, "api key revoked", u)
}

type operatorStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive disabled"`
}

func (oc *OperatorController) HandleAdminOperatorStatus(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	var req operatorStatusRequest
	if err := bind(c, &req); err != nil {
		return fail(c, err)
	}
	if id == usercontext.GetUserID(c) && req.Status != models.STATUS_ACTIVE {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "cannot deactivate yourself"))
	}
	u, err := oc.load(id)
	if err != nil {
		return fail(c, err)
	}
	u.Status = req.Status
	if err := oc.users.Update(u); err != nil {
		return fail(c, err)
	}
	return ok(c, "operator updated", u)
}

func (oc *OperatorController) HandleAdminOperatorDelete(c *fiber.Ctx) error {
	id, err := paramID(c)
	if err != nil {
		return fail(c, err)
	}
	if id == usercontext.GetUserID(c) {
		return fail(c, fiber.NewError(fiber.StatusBadRequest, "cannot delete yourself"))
	}
	if _, err := oc.load(id); err != nil {
		return fail(c, err)
	}
	if err := oc.users.Delete(id); err != nil {
		return fail(c, err)
	}

	log.Infof("[Auth] Operator %d deleted by %s", id, usercontext.Actor(c))
	return ok(c, "operator deleted", nil)
}

func (oc *OperatorController) load(id uint) (*models.User, error) {
	u, err := oc.users.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fiber.NewError(fiber.StatusNotFound, "operator not found")
	}
	return u, err
}

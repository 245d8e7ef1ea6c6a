package controllers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/billing"
)

var validate = validator.New()

// envelope is the body of every billing endpoint.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func respond(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(envelope{Success: true, Message: message, Data: data})
}

func ok(c *fiber.Ctx, message string, data interface{}) error {
	return respond(c, fiber.StatusOK, message, data)
}

// fail maps billing failures onto HTTP statuses. Unknown errors are logged
// and reported without detail.
func fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	message := err.Error()
	if status == fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s failed: %v", c.Method(), c.Path(), err)
		message = "internal error"
	}
	return c.Status(status).JSON(envelope{Success: false, Message: message})
}

func statusFor(err error) int {
	var verrs validator.ValidationErrors
	switch {
	case errors.Is(err, billing.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, billing.ErrInvalidArgument), errors.As(err, &verrs):
		return fiber.StatusBadRequest
	case errors.Is(err, billing.ErrValidationFailed):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrInconsistentState):
		return fiber.StatusConflict
	}
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		return ferr.Code
	}
	return fiber.StatusInternalServerError
}

// bind parses and validates a JSON body.
func bind(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body: "+err.Error())
	}
	return validate.Struct(out)
}

func paramID(c *fiber.Ctx) (uint, error) {
	raw := c.Params("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id: "+raw)
	}
	return uint(id), nil
}

// optionalAmount parses an amount that may be absent.
func optionalAmount(v interface{}) (*int64, error) {
	if v == nil {
		return nil, nil
	}
	n, err := billing.ParseAmount(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// amountOrZero treats an absent amount as zero.
func amountOrZero(v interface{}) (int64, error) {
	n, err := optionalAmount(v)
	if err != nil || n == nil {
		return 0, err
	}
	return *n, nil
}

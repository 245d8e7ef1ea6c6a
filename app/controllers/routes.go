package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// RegisterBillingRoutes mounts the billing endpoints on r. Admin routes are
// additionally guarded by requireAdmin.
func RegisterBillingRoutes(r fiber.Router, h *BillingController, requireAdmin fiber.Handler) {
	r.Post("/mappings", h.CreateMapping)
	r.Get("/mappings", h.ListMappings)
	r.Get("/mappings/:id", h.GetMapping)

	r.Get("/mappings/:id/amount", h.GetAmountInfo)
	r.Get("/mappings/:id/amount/accurate", h.GetAccurateAmount)
	r.Get("/mappings/:id/amount/consistency", h.CheckConsistency)
	r.Post("/mappings/:id/amount/validate", h.ValidateAmount)
	r.Put("/mappings/:id/amount", h.UpdateAmount)
	r.Get("/mappings/:id/amount/changes", h.ListAmountChanges)
	r.Post("/mappings/:id/amount/changes", h.RecordAmountChange)

	r.Post("/mappings/:id/sessions", h.AdjustSessions)
	r.Post("/mappings/:id/sessions/use", h.UseSession)

	r.Get("/mappings/:id/discount", h.GetDiscount)
	r.Post("/mappings/:id/discount", h.ApplyDiscount)
	r.Post("/mappings/:id/discount/calculate", h.CalculateDiscount)
	r.Put("/mappings/:id/discount/status", h.UpdateDiscountStatus)
	r.Post("/mappings/:id/refund", h.Refund)
	r.Get("/mappings/:id/transactions/duplicate", h.CheckDuplicateTransaction)

	r.Get("/discounts", h.ListPackageDiscounts)
	r.Post("/discounts", requireAdmin, h.CreatePackageDiscount)

	admin := r.Group("/admin", requireAdmin)
	admin.Get("/discounts/summary", h.DiscountSummary)
	admin.Get("/discounts/summary.xlsx", h.DiscountSummaryXLSX)
	admin.Get("/discounts/integrity", h.ValidateIntegrity)
}

// RegisterOperatorRoutes mounts the current-operator endpoint and the admin
// operator management endpoints.
func RegisterOperatorRoutes(r fiber.Router, h *OperatorController, requireAdmin fiber.Handler) {
	r.Get("/me", h.HandleGetOperatorAccount)

	admin := r.Group("/admin/operators", requireAdmin)
	admin.Get("/", h.HandleAdminOperators)
	admin.Post("/", h.HandleAdminOperatorCreate)
	admin.Put("/:id/status", h.HandleAdminOperatorStatus)
	admin.Delete("/:id", h.HandleAdminOperatorDelete)
	admin.Post("/:id/api-key", h.HandleAdminOperatorRotateKey)
	admin.Delete("/:id/api-key", h.HandleAdminOperatorRevokeKey)
}

// RegisterQueueRoutes mounts the admin job queue monitor.
func RegisterQueueRoutes(r fiber.Router, h *AdminQueueController, requireAdmin fiber.Handler) {
	admin := r.Group("/admin/jobs", requireAdmin)
	admin.Get("/", h.HandleAdminQueues)
	admin.Get("/:id", h.HandleAdminQueueJob)
}

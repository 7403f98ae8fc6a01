package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/services"
	"github.com/somaprep/somaprep-backend/internal/store"
)

// AdminHandler serves the manual reconciliation surface for payments the
// amount matcher could not place.
type AdminHandler struct {
	paymentService *services.PaymentService
}

func NewAdminHandler(paymentService *services.PaymentService) *AdminHandler {
	return &AdminHandler{paymentService: paymentService}
}

func (h *AdminHandler) ListUnmatchedPayments(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit < 1 || limit > 500 {
		limit = 50
	}

	payments, err := h.paymentService.ListUnmatched(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(fiber.Map{"payments": payments, "count": len(payments)})
}

func (h *AdminHandler) CreditPayment(c *fiber.Ctx) error {
	transactionID := strings.TrimSpace(c.Params("id"))

	var req dto.ManualCreditRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	if transactionID == "" || strings.TrimSpace(req.PlanCode) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "transaction id and plan_code are required",
		})
	}

	err := h.paymentService.CreditManually(c.Context(), transactionID, req.PlanCode)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrPaymentNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Payment not found",
			})
		case errors.Is(err, services.ErrAlreadyMatched):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		case errors.Is(err, services.ErrUnknownPlan):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: err.Error(),
			})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
				Error: true, Message: "Internal server error",
			})
		}
	}

	return c.JSON(fiber.Map{"message": "Payment credited"})
}

package handlers

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/middleware"
	"github.com/somaprep/somaprep-backend/internal/services"
)

// SessionHandler fronts the reservation gate for the bot (service-token
// routes keyed by explicit telegram_id) and the dashboard (/me, keyed by
// the JWT subject).
type SessionHandler struct {
	reservations *services.ReservationService
}

func NewSessionHandler(reservations *services.ReservationService) *SessionHandler {
	return &SessionHandler{reservations: reservations}
}

func (h *SessionHandler) ReserveSession(c *fiber.Ctx) error {
	var req dto.ReserveSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	telegramID := strings.TrimSpace(req.TelegramID)
	subject := strings.ToLower(strings.TrimSpace(req.Subject))
	if telegramID == "" || subject == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "telegram_id and subject are required",
		})
	}

	res, err := h.reservations.ReserveSession(c.Context(), telegramID, subject)
	if err != nil {
		slog.Error("session reservation failed", "telegram_id", telegramID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(dto.ReserveSessionResponse{
		OK:      res.OK,
		Tier:    string(res.Tier),
		Minutes: res.Minutes,
		Reason:  string(res.Reason),
	})
}

func (h *SessionHandler) ReserveMarking(c *fiber.Ctx) error {
	var req dto.ReserveMarkingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Invalid request body",
		})
	}

	telegramID := strings.TrimSpace(req.TelegramID)
	if telegramID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "telegram_id is required",
		})
	}

	res, err := h.reservations.ReserveMarking(c.Context(), telegramID)
	if err != nil {
		slog.Error("marking reservation failed", "telegram_id", telegramID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}

	return c.JSON(dto.ReserveMarkingResponse{OK: res.OK, Reason: string(res.Reason)})
}

// Usage serves the bot's profile view for an explicit telegram id.
func (h *SessionHandler) Usage(c *fiber.Ctx) error {
	telegramID := strings.TrimSpace(c.Params("telegram_id"))
	if telegramID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "telegram_id is required",
		})
	}
	return h.usage(c, telegramID)
}

// Me serves the dashboard's usage view for the authenticated user.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	telegramID, err := middleware.TelegramID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}
	return h.usage(c, telegramID)
}

func (h *SessionHandler) usage(c *fiber.Ctx, telegramID string) error {
	usage, err := h.reservations.Usage(c.Context(), telegramID)
	if err != nil {
		slog.Error("usage lookup failed", "telegram_id", telegramID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Internal server error",
		})
	}
	return c.JSON(usage)
}

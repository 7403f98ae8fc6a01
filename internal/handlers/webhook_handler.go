package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/somaprep/somaprep-backend/internal/config"
	"github.com/somaprep/somaprep-backend/internal/dto"
	"github.com/somaprep/somaprep-backend/internal/services"
)

type WebhookHandler struct {
	paymentService *services.PaymentService
	cfg            *config.Config
}

func NewWebhookHandler(paymentService *services.PaymentService, cfg *config.Config) *WebhookHandler {
	return &WebhookHandler{paymentService: paymentService, cfg: cfg}
}

// HandleMpesaConfirmation acks the C2B gateway and credits asynchronously.
// The gateway treats a slow or non-zero response as undelivered and
// redelivers, so the ack goes out before any database work; the
// transaction-id ledger absorbs the redeliveries either path produces.
func (h *WebhookHandler) HandleMpesaConfirmation(c *fiber.Ctx) error {
	if h.cfg.WebhookToken == "" {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: true, Message: "Webhooks not configured",
		})
	}
	token := c.Get("X-Webhook-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.WebhookToken)) != 1 {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
			Error: true, Message: "Unauthorized",
		})
	}

	// Fiber reuses the request buffer after the handler returns.
	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	var conf dto.MpesaConfirmation
	if err := json.Unmarshal(raw, &conf); err != nil {
		// Still code 0: a parse error will not fix itself on redelivery.
		slog.Error("unparseable mpesa confirmation", "error", err)
		return c.JSON(dto.MpesaAck{ResultCode: 0, ResultDesc: "Accepted"})
	}

	go func() {
		if err := h.paymentService.ProcessConfirmation(context.Background(), &conf, raw); err != nil {
			slog.Error("mpesa confirmation processing failed",
				"transaction_id", conf.TransID, "error", err)
		}
	}()

	return c.JSON(dto.MpesaAck{ResultCode: 0, ResultDesc: "Accepted"})
}

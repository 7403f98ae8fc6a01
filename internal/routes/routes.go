package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/somaprep/somaprep-backend/internal/config"
	"github.com/somaprep/somaprep-backend/internal/handlers"
	"github.com/somaprep/somaprep-backend/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	healthHandler *handlers.HealthHandler,
	sessionHandler *handlers.SessionHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))

	api.Get("/health", healthHandler.Check)

	// Auth is public, with a stricter limit: 10 req/min per IP
	auth := api.Group("/auth")
	auth.Use(limiter.New(limiter.Config{
		Max:               10,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
	}))
	auth.Post("/telegram", authHandler.TelegramLogin)
	auth.Post("/refresh", authHandler.Refresh)

	// Protected routes (JWT required) - apply middleware per route so
	// public routes stay unaffected
	api.Post("/auth/logout", middleware.JWTProtected(cfg), authHandler.Logout)

	api.Get("/me/usage", middleware.JWTProtected(cfg), sessionHandler.Me)

	// Bot-facing routes (shared service secret, no JWT)
	sessions := api.Group("/sessions", middleware.ServiceTokenRequired(cfg))
	sessions.Post("/reserve", sessionHandler.ReserveSession)
	sessions.Post("/markings/reserve", sessionHandler.ReserveMarking)
	api.Get("/internal/usage/:telegram_id", middleware.ServiceTokenRequired(cfg), sessionHandler.Usage)

	// Payment gateway webhook (shared webhook secret, no JWT)
	webhooks := api.Group("/webhooks")
	webhooks.Post("/mpesa/confirmation", webhookHandler.HandleMpesaConfirmation)

	// Manual reconciliation (admin token)
	admin := api.Group("/admin", middleware.AdminRequired(cfg))
	admin.Get("/payments/unmatched", adminHandler.ListUnmatchedPayments)
	admin.Post("/payments/:id/credit", adminHandler.CreditPayment)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/playarena/credit_engine/internal/middleware"
	"github.com/playarena/credit_engine/internal/services"
	"github.com/playarena/credit_engine/internal/storage"
	"github.com/playarena/credit_engine/pkg/errors"
)

type Handler struct {
	matches  *services.MatchService
	payments *services.PaymentService
	stats    *services.StatsWorker
	store    storage.Datastore
}

func NewHandler(matches *services.MatchService, payments *services.PaymentService, stats *services.StatsWorker, store storage.Datastore) *Handler {
	return &Handler{
		matches:  matches,
		payments: payments,
		stats:    stats,
		store:    store,
	}
}

// Register wires all routes. The webhook stays outside the token
// middleware: the gateway does not carry our tokens, and it must get a
// 200 even for duplicate deliveries.
func (h *Handler) Register(app *fiber.App, jwtSecret string, rl *middleware.RateLimiter) {
	app.Get("/health", h.Health)

	api := app.Group("/api/v1")
	api.Post("/payments/webhook", h.PaymentWebhook)

	authed := api.Use(middleware.RequireToken(jwtSecret), middleware.Limit(rl))
	authed.Post("/matches", h.StartMatch)
	authed.Post("/matches/:id/finish", h.FinishMatch)
	authed.Post("/payments/orders", h.CreateOrder)
	authed.Post("/payments/orders/:id/cancel", h.CancelOrder)
	authed.Post("/payments/orders/:id/retry", h.RetryOrder)
	authed.Post("/payments/orders/:id/sync", h.SyncOrder)
	authed.Get("/accounts/:id/balance", h.GetBalance)
	authed.Get("/accounts/:id/ledger", h.ListLedger)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"stats_lag": h.stats.Pending(),
	})
}

// respondError maps application error codes onto HTTP statuses.
// Transient codes get a generic "try again" body so callers can tell
// them apart from permanent failures.
func respondError(c *fiber.Ctx, err error) error {
	code := errors.Code(err)

	switch code {
	case errors.ErrCodeNotFound:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.ErrCodeInsufficientFunds:
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.ErrCodeValidationFailed, errors.ErrCodeValidation:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.ErrCodeInvalidState:
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.ErrCodeForbidden:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": err.Error(), "code": code})
	case errors.ErrCodeGatewayUnavailable, errors.ErrCodeUnavailable:
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "temporarily unavailable, try again",
			"code":  code,
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "internal error",
			"code":  code,
		})
	}
}

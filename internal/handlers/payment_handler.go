package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/playarena/credit_engine/internal/gateway"
	"github.com/playarena/credit_engine/internal/security"
	"github.com/playarena/credit_engine/pkg/errors"
	"github.com/playarena/credit_engine/pkg/logger"
)

type createOrderRequest struct {
	AccountID string `json:"account_id"`
	PackID    uint   `json:"pack_id"`
	Method    string `json:"method"`
}

func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.AccountID == "" || req.PackID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "account_id and pack_id are required"})
	}

	order, err := h.payments.CreateOrder(c.Context(), req.AccountID, req.PackID, req.Method)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":     order.OrderID,
		"redirect_url": order.RedirectURL,
		"expires_at":   order.ExpiresAt,
	})
}

func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(*security.Claims)
	accountID := ""
	if claims != nil {
		accountID = claims.AccountID
	}

	if err := h.payments.CancelOrder(c.Context(), c.Params("id"), accountID); err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cancelled"})
}

func (h *Handler) RetryOrder(c *fiber.Ctx) error {
	order, err := h.payments.RetryOrder(c.Context(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"order_id":     order.OrderID,
		"redirect_url": order.RedirectURL,
		"expires_at":   order.ExpiresAt,
	})
}

func (h *Handler) SyncOrder(c *fiber.Ctx) error {
	if err := h.payments.SyncOrder(c.Context(), c.Params("id")); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"status": "synced"})
}

// PaymentWebhook ingests asynchronous gateway notifications. Deliveries
// are at-least-once and possibly out of order, so everything except a
// malformed payload is acknowledged with 200 — a non-2xx answer only
// makes the gateway redeliver. Transient gateway errors return 503 so
// the delivery is retried later.
func (h *Handler) PaymentWebhook(c *fiber.Ctx) error {
	event, err := gateway.ParseEvent(c.Body())
	if err != nil {
		logger.Warn("Rejected webhook payload", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unrecognized payload"})
	}

	if err := h.payments.HandleGatewayEvent(c.Context(), event); err != nil {
		switch errors.Code(err) {
		case errors.ErrCodeNotFound:
			// Order unknown to us. Acknowledge so the gateway stops
			// redelivering; the mismatch is logged for investigation.
			logger.Warn("Webhook for unknown order", "gateway_order_id", event.GatewayOrderID)
			return c.JSON(fiber.Map{"status": "ignored"})
		case errors.ErrCodeGatewayUnavailable, errors.ErrCodeUnavailable:
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "retry"})
		default:
			return respondError(c, err)
		}
	}

	return c.JSON(fiber.Map{"status": "ok"})
}

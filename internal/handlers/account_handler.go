package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/playarena/credit_engine/internal/models"
)

func (h *Handler) GetBalance(c *fiber.Ctx) error {
	account, err := h.store.Accounts().GetByAccountID(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"account_id": account.AccountID,
		"credits":    account.Credits,
		"status":     account.Status,
	})
}

func (h *Handler) ListLedger(c *fiber.Ctx) error {
	account, err := h.store.Accounts().GetByAccountID(c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}

	filters := models.LedgerFilters{
		Kind: c.Query("kind"),
	}
	if limit, err := strconv.Atoi(c.Query("limit", "100")); err == nil {
		filters.Limit = limit
	}

	entries, err := h.store.Ledger().ListByAccount(account.ID, filters)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"account_id": account.AccountID,
		"entries":    entries,
	})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/playarena/credit_engine/internal/services"
)

type startMatchRequest struct {
	PlayerID   string  `json:"player_id"`
	OpponentID *string `json:"opponent_id"`
	TemplateID uint    `json:"template_id"`
	Wager      int64   `json:"wager"`
	Ranked     bool    `json:"ranked"`
}

type finishMatchRequest struct {
	Status        string  `json:"status"`
	PlayerScore   *int    `json:"player_score"`
	OpponentScore *int    `json:"opponent_score"`
	Winner        *string `json:"winner"`
}

func (h *Handler) StartMatch(c *fiber.Ctx) error {
	var req startMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.PlayerID == "" || req.TemplateID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "player_id and template_id are required"})
	}

	match, err := h.matches.StartMatch(c.Context(), req.PlayerID, req.OpponentID, req.TemplateID, req.Wager, req.Ranked)
	if err != nil {
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(match)
}

func (h *Handler) FinishMatch(c *fiber.Ctx) error {
	var req finishMatchRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	match, err := h.matches.FinishMatch(c.Context(), c.Params("id"), services.FinishRequest{
		Status:           req.Status,
		PlayerScore:      req.PlayerScore,
		OpponentScore:    req.OpponentScore,
		ExplicitWinnerID: req.Winner,
	})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(match)
}

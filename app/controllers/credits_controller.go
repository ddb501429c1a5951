package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/ManuelReschke/creditsync/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// CreditsController exposes credit balances to internal callers.
type CreditsController struct {
	svc *billing.Service
}

func NewCreditsController(svc *billing.Service) *CreditsController {
	return &CreditsController{svc: svc}
}

// HandleGetBalance returns the ledger balance and the cached counter for a
// user. A mismatch between the two is logged.
func (h *CreditsController) HandleGetBalance(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userID"))
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id_required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	balance, err := h.svc.Balance(ctx, userID)
	if err != nil {
		log.Errorf("[Credits] balance for %s failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "balance_unavailable"})
	}
	cached, err := h.svc.CachedBalance(ctx, userID)
	if err != nil {
		log.Errorf("[Credits] cached balance for %s failed: %v", userID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "balance_unavailable"})
	}
	if cached != balance {
		log.Warnf("[Credits] cached balance %d for %s differs from ledger %d", cached, userID, balance)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"user_id": userID,
		"credits": balance,
	})
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/services"
	"github.com/holyloy/komarce/internal/utils"
)

// WalletHandler exposes balances and the transaction feed.
type WalletHandler struct {
	engine *services.Engine
}

// NewWalletHandler constructs WalletHandler.
func NewWalletHandler(engine *services.Engine) *WalletHandler {
	return &WalletHandler{engine: engine}
}

// GetWallet returns the caller's balances and Global Numbers.
func (h *WalletHandler) GetWallet(c *fiber.Ctx) error {
	ownerID, ownerType, err := currentOwner(c)
	if err != nil {
		return err
	}

	summary, err := h.engine.WalletSummary(c.UserContext(), ownerID, ownerType)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

// ListTransactions pages through the caller's wallet transactions.
func (h *WalletHandler) ListTransactions(c *fiber.Ctx) error {
	ownerID, ownerType, err := currentOwner(c)
	if err != nil {
		return err
	}

	pg := utils.ParsePagination(c)
	txns, total, err := h.engine.WalletTransactions(c.UserContext(), ownerID, ownerType, pg.Limit, pg.Offset)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    txns,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// currentOwner maps the authenticated account to its wallet owner.
func currentOwner(c *fiber.Ctx) (uuid.UUID, models.OwnerType, error) {
	accountID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return uuid.Nil, "", fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	switch middleware.GetCurrentRole(c) {
	case utils.RoleCustomer:
		return accountID, models.OwnerCustomer, nil
	case utils.RoleMerchant:
		return accountID, models.OwnerMerchant, nil
	}
	return uuid.Nil, "", fiber.NewError(fiber.StatusForbidden, "forbidden")
}

// respondCascade sends a successful response, downgraded to 202 Accepted when
// the triggering change committed but part of its reward cascade is pending.
func respondCascade(c *fiber.Ctx, status int, data any, err error) error {
	if err != nil {
		if !errors.Is(err, services.ErrCascadeIncomplete) {
			return serviceError(err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"success": true,
			"data":    data,
			"warning": "rewards are still being processed",
		})
	}
	return c.Status(status).JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

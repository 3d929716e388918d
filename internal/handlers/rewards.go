package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/services"
)

// RewardHandler serves the reward history feeds.
type RewardHandler struct {
	engine *services.Engine
}

// NewRewardHandler constructs RewardHandler.
func NewRewardHandler(engine *services.Engine) *RewardHandler {
	return &RewardHandler{engine: engine}
}

// StepUp lists the customer's StepUp rewards.
func (h *RewardHandler) StepUp(c *fiber.Ctx) error {
	customerID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	rewards, err := h.engine.StepUpRewards(c.UserContext(), customerID)
	if err != nil {
		return err
	}

	var total int64
	for _, r := range rewards {
		if r.IsAwarded {
			total += r.RewardPoints
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rewards,
		"summary": fiber.Map{
			"total_awarded_points": total,
			"count":                len(rewards),
		},
	})
}

// Ripple lists ripple rewards earned from referrals.
func (h *RewardHandler) Ripple(c *fiber.Ctx) error {
	ownerID, ownerType, err := currentOwner(c)
	if err != nil {
		return err
	}

	rewards, err := h.engine.RippleRewards(c.UserContext(), ownerID, ownerType)
	if err != nil {
		return err
	}

	var total int64
	for _, r := range rewards {
		total += r.RippleAmount
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    rewards,
		"summary": fiber.Map{
			"total_ripple_points": total,
			"count":               len(rewards),
		},
	})
}

// Infinity lists the customer's Infinity cycles.
func (h *RewardHandler) Infinity(c *fiber.Ctx) error {
	customerID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	cycles, err := h.engine.InfinityCycles(c.UserContext(), customerID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    cycles,
		"policy":  h.engine.Policy().Name(),
	})
}

// Affiliate summarises affiliate commissions.
func (h *RewardHandler) Affiliate(c *fiber.Ctx) error {
	ownerID, ownerType, err := currentOwner(c)
	if err != nil {
		return err
	}

	summary, err := h.engine.AffiliateSummary(c.UserContext(), ownerID, ownerType)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    summary,
	})
}

package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/services"
)

// QRTransferHandler issues and redeems QR transfer codes.
type QRTransferHandler struct {
	engine *services.Engine
}

// NewQRTransferHandler constructs QRTransferHandler.
func NewQRTransferHandler(engine *services.Engine) *QRTransferHandler {
	return &QRTransferHandler{engine: engine}
}

type generateQRRequest struct {
	Points            int64 `json:"points"`
	ExpirationMinutes int   `json:"expiration_minutes"`
}

// Generate issues a transfer code from the caller's wallet.
func (h *QRTransferHandler) Generate(c *fiber.Ctx) error {
	senderID, senderType, err := currentOwner(c)
	if err != nil {
		return err
	}

	var req generateQRRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	token, err := h.engine.GenerateQRTransfer(c.UserContext(), senderID, senderType, req.Points,
		time.Duration(req.ExpirationMinutes)*time.Minute)
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":         token.ID,
			"code":       token.Code,
			"points":     token.Points,
			"expires_at": token.ExpiresAt,
		},
	})
}

type redeemQRRequest struct {
	Code string `json:"code"`
}

// Redeem moves the points behind a code into the caller's wallet.
func (h *QRTransferHandler) Redeem(c *fiber.Ctx) error {
	receiverID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req redeemQRRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.Code == "" {
		return fiber.NewError(fiber.StatusBadRequest, "code is required")
	}

	redemption, err := h.engine.RedeemQRTransfer(c.UserContext(), req.Code, receiverID)
	if redemption == nil {
		return serviceError(err)
	}

	return respondCascade(c, fiber.StatusOK, fiber.Map{
		"points_received":        redemption.PointsReceived,
		"new_balance":            redemption.Earn.NewBalance,
		"accumulated_points":     redemption.Earn.AccumulatedPoints,
		"global_numbers_awarded": redemption.Earn.GlobalNumbersAwarded,
	}, err)
}

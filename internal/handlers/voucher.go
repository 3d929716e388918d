package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/services"
)

// VoucherHandler serves shopping vouchers and cash-out requests.
type VoucherHandler struct {
	engine *services.Engine
}

// NewVoucherHandler constructs VoucherHandler.
func NewVoucherHandler(engine *services.Engine) *VoucherHandler {
	return &VoucherHandler{engine: engine}
}

// ListVouchers returns the customer's vouchers.
func (h *VoucherHandler) ListVouchers(c *fiber.Ctx) error {
	customerID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	vouchers, err := h.engine.Vouchers(c.UserContext(), customerID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    vouchers,
	})
}

type cashOutRequest struct {
	Amount int64 `json:"amount"`
}

// RequestCashOut queues a voucher cash-out for admin review.
func (h *VoucherHandler) RequestCashOut(c *fiber.Ctx) error {
	customerID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req cashOutRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	request, err := h.engine.RequestVoucherCashOut(c.UserContext(), customerID, req.Amount)
	if err != nil {
		return serviceError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data":    request,
	})
}

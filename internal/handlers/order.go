package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/services"
	"github.com/holyloy/komarce/internal/utils"
)

// OrderHandler manages merchant order endpoints.
type OrderHandler struct {
	db     *gorm.DB
	engine *services.Engine
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(db *gorm.DB, engine *services.Engine) *OrderHandler {
	return &OrderHandler{db: db, engine: engine}
}

type completeOrderRequest struct {
	CustomerID  string          `json:"customer_id"`
	OrderNumber string          `json:"order_number"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Notes       string          `json:"notes"`
}

// CompleteOrder records a completed purchase and awards the customer points.
func (h *OrderHandler) CompleteOrder(c *fiber.Ctx) error {
	merchantID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req completeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid customer_id")
	}
	if req.Currency == "" {
		req.Currency = "UZS"
	}

	order, earn, err := h.engine.CompleteOrder(c.UserContext(), services.OrderCompletion{
		MerchantID:  merchantID,
		CustomerID:  customerID,
		OrderNumber: req.OrderNumber,
		TotalAmount: req.TotalAmount,
		Currency:    req.Currency,
		Notes:       req.Notes,
	})
	if order == nil {
		return serviceError(err)
	}

	return respondCascade(c, fiber.StatusCreated, fiber.Map{
		"order": order,
		"earn":  earn,
	}, err)
}

// ListOrders returns the merchant's completed orders.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	merchantID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.ParsePagination(c)
	query := h.db.Where("merchant_id = ?", merchantID).Model(&models.Order{})

	if customer := c.Query("customer_id"); customer != "" {
		customerID, err := uuid.Parse(customer)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid customer_id")
		}
		query = query.Where("customer_id = ?", customerID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type merchantTransferRequest struct {
	CustomerID  string `json:"customer_id"`
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

// Transfer sends points from the merchant wallet directly to a customer.
func (h *OrderHandler) Transfer(c *fiber.Ctx) error {
	merchantID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req merchantTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid customer_id")
	}

	result, err := h.engine.MerchantTransfer(c.UserContext(), merchantID, customerID, req.Points, req.Description)
	if result == nil {
		return serviceError(err)
	}

	return respondCascade(c, fiber.StatusOK, result, err)
}

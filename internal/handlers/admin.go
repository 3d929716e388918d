package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/services"
	"github.com/holyloy/komarce/internal/utils"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	db     *gorm.DB
	engine *services.Engine
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, engine *services.Engine) *AdminHandler {
	return &AdminHandler{db: db, engine: engine}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())

	var totalCustomers, totalMerchants int64
	if err := db.Model(&models.Customer{}).Count(&totalCustomers).Error; err != nil {
		return err
	}
	if err := db.Model(&models.Merchant{}).Count(&totalMerchants).Error; err != nil {
		return err
	}

	var counter models.GlobalNumberCounter
	if err := db.Where("name = ?", models.GlobalCounterName).First(&counter).Error; err != nil {
		return err
	}

	type statusCount struct {
		Status string `json:"status"`
		Count  int64  `json:"count"`
	}
	var taskCounts []statusCount
	if err := db.Model(&models.CascadeTask{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&taskCounts).Error; err != nil {
		return err
	}
	tasksByStatus := make(map[string]int64)
	for _, tc := range taskCounts {
		tasksByStatus[tc.Status] = tc.Count
	}

	var pendingCashOuts int64
	if err := db.Model(&models.CashOutRequest{}).
		Where("status = ?", models.CashOutPending).
		Count(&pendingCashOuts).Error; err != nil {
		return err
	}

	var infinityCycles int64
	if err := db.Model(&models.InfinityCycle{}).Count(&infinityCycles).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_customers":       totalCustomers,
			"total_merchants":       totalMerchants,
			"global_numbers_issued": counter.Value,
			"infinity_cycles":       infinityCycles,
			"pending_cash_outs":     pendingCashOuts,
			"cascade_tasks":         tasksByStatus,
			"infinity_cycle_policy": h.engine.Policy().Name(),
		},
	})
}

// ListCustomers returns registered customers with pagination and search.
func (h *AdminHandler) ListCustomers(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Customer{})

	if search := strings.ToLower(c.Query("search")); search != "" {
		query = query.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR phone LIKE ?",
			"%"+search+"%", "%"+search+"%", "%"+search+"%",
		)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return err
	}

	var customers []models.Customer
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&customers).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    customers,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type grantPointsRequest struct {
	RecipientID     string `json:"recipient_id"`
	RecipientType   string `json:"recipient_type"`
	Points          int64  `json:"points"`
	Description     string `json:"description"`
	TransactionType string `json:"transaction_type"`
}

// GrantPoints credits points to a customer or merchant by hand.
func (h *AdminHandler) GrantPoints(c *fiber.Ctx) error {
	adminID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req grantPointsRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	recipientID, err := uuid.Parse(req.RecipientID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid recipient_id")
	}
	recipientType := models.OwnerType(req.RecipientType)
	if recipientType == "" {
		recipientType = models.OwnerCustomer
	}
	if !recipientType.Valid() {
		return fiber.NewError(fiber.StatusBadRequest, "invalid recipient_type")
	}

	result, err := h.engine.AdminGeneratePoints(c.UserContext(), services.AdminGrant{
		AdminID:         adminID,
		RecipientID:     recipientID,
		RecipientType:   recipientType,
		Points:          req.Points,
		Description:     req.Description,
		TransactionType: req.TransactionType,
	})
	if result == nil {
		return serviceError(err)
	}

	return respondCascade(c, fiber.StatusCreated, result, err)
}

// ListCashOuts returns cash-out requests, pending ones by default.
func (h *AdminHandler) ListCashOuts(c *fiber.Ctx) error {
	status := models.CashOutStatus(c.Query("status", string(models.CashOutPending)))
	if c.Query("status") == "all" {
		status = ""
	}

	requests, err := h.engine.CashOutRequests(c.UserContext(), status)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    requests,
	})
}

type reviewCashOutRequest struct {
	Note string `json:"note"`
}

// ApproveCashOut approves a pending cash-out and consumes the vouchers.
func (h *AdminHandler) ApproveCashOut(c *fiber.Ctx) error {
	return h.reviewCashOut(c, true)
}

// RejectCashOut rejects a pending cash-out.
func (h *AdminHandler) RejectCashOut(c *fiber.Ctx) error {
	return h.reviewCashOut(c, false)
}

func (h *AdminHandler) reviewCashOut(c *fiber.Ctx, approve bool) error {
	adminID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req reviewCashOutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
	}

	request, err := h.engine.ReviewCashOut(c.UserContext(), adminID, id, approve, req.Note)
	if err != nil {
		return serviceError(err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    request,
	})
}

// Redrive re-runs pending cascade tasks older than min_age_seconds.
func (h *AdminHandler) Redrive(c *fiber.Ctx) error {
	minAge := time.Duration(c.QueryInt("min_age_seconds", 0)) * time.Second
	limit := c.QueryInt("limit", 100)

	count, err := h.engine.Redrive(c.UserContext(), minAge, limit)
	resp := fiber.Map{
		"success": err == nil,
		"data": fiber.Map{
			"attempted": count,
		},
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	return c.JSON(resp)
}

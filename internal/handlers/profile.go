package handlers

import (
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/utils"
)

// ProfileHandler serves the authenticated account's profile.
type ProfileHandler struct {
	db *gorm.DB
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{db: db}
}

// GetProfile returns the profile of whichever account the token belongs to.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	accountID, ok := middleware.GetCurrentAccountID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var data fiber.Map
	switch middleware.GetCurrentRole(c) {
	case utils.RoleCustomer:
		var customer models.Customer
		if err := h.db.First(&customer, "id = ?", accountID).Error; err != nil {
			return serviceError(err)
		}
		data = fiber.Map{
			"id":            customer.ID,
			"role":          utils.RoleCustomer,
			"first_name":    customer.FirstName,
			"last_name":     customer.LastName,
			"display_name":  customer.DisplayName,
			"phone":         customer.Phone,
			"referral_code": customer.ReferralCode,
			"created_at":    customer.CreatedAt,
		}
	case utils.RoleMerchant:
		var merchant models.Merchant
		if err := h.db.First(&merchant, "id = ?", accountID).Error; err != nil {
			return serviceError(err)
		}
		data = fiber.Map{
			"id":            merchant.ID,
			"role":          utils.RoleMerchant,
			"business_name": merchant.BusinessName,
			"phone":         merchant.Phone,
			"referral_code": merchant.ReferralCode,
			"created_at":    merchant.CreatedAt,
		}
	case utils.RoleAdmin:
		var admin models.Admin
		if err := h.db.First(&admin, "id = ?", accountID).Error; err != nil {
			return serviceError(err)
		}
		data = fiber.Map{
			"id":           admin.ID,
			"role":         utils.RoleAdmin,
			"display_name": admin.DisplayName,
			"phone":        admin.Phone,
			"created_at":   admin.CreatedAt,
		}
	default:
		return fiber.NewError(fiber.StatusForbidden, "forbidden")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
	})
}

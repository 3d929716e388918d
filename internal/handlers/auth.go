package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/config"
	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/services"
	"github.com/holyloy/komarce/internal/utils"
)

// AuthHandler bundles dependencies for authentication endpoints.
type AuthHandler struct {
	db     *gorm.DB
	cfg    *config.Config
	ledger *services.Ledger
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, ledger *services.Ledger) *AuthHandler {
	return &AuthHandler{db: db, cfg: cfg, ledger: ledger}
}

type registerRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code"`
}

// Register creates a customer account, its wallet and, when a referral code
// is supplied, the referral link.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Phone == "" || req.Password == "" || req.FirstName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	var existing int64
	if err := h.db.Model(&models.Customer{}).Where("phone = ?", req.Phone).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusConflict, "customer already exists")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	code, err := utils.GenerateReferralCode()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate referral code")
	}

	customer := models.Customer{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Phone:        req.Phone,
		DisplayName:  strings.TrimSpace(fmt.Sprintf("%s %s", req.FirstName, req.LastName)),
		PasswordHash: passwordHash,
		ReferralCode: code,
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&customer).Error; err != nil {
			return err
		}
		if req.ReferralCode == "" {
			return nil
		}
		referrerID, referrerType, err := findReferrer(tx, req.ReferralCode)
		if err != nil {
			return err
		}
		return tx.Create(&models.Referral{
			ReferrerID:       referrerID,
			ReferrerType:     referrerType,
			ReferredID:       customer.ID,
			ReferralCodeUsed: strings.ToUpper(req.ReferralCode),
		}).Error
	})
	if err != nil {
		return serviceError(err)
	}

	if _, err := h.ledger.EnsureWallet(c.UserContext(), customer.ID, models.OwnerCustomer); err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, customer.ID, utils.RoleCustomer, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":            customer.ID,
			"first_name":    customer.FirstName,
			"last_name":     customer.LastName,
			"phone":         customer.Phone,
			"display_name":  customer.DisplayName,
			"referral_code": customer.ReferralCode,
		},
		"token": token,
	})
}

var errUnknownReferralCode = fiber.NewError(fiber.StatusBadRequest, "unknown referral code")

func findReferrer(tx *gorm.DB, code string) (uuid.UUID, models.OwnerType, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	var customer models.Customer
	err := tx.Select("id").Where("referral_code = ?", code).First(&customer).Error
	if err == nil {
		return customer.ID, models.OwnerCustomer, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, "", err
	}

	var merchant models.Merchant
	err = tx.Select("id").Where("referral_code = ?", code).First(&merchant).Error
	if err == nil {
		return merchant.ID, models.OwnerMerchant, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, "", errUnknownReferralCode
	}
	return uuid.Nil, "", err
}

type loginRequest struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Login authenticates an existing customer.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var customer models.Customer
	if err := h.db.Where("phone = ?", req.Phone).First(&customer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !utils.CheckPassword(customer.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	return h.issueToken(c, customer.ID, utils.RoleCustomer, fiber.Map{
		"id":           customer.ID,
		"display_name": customer.DisplayName,
		"phone":        customer.Phone,
	})
}

type merchantRegisterRequest struct {
	BusinessName string `json:"business_name"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
}

// RegisterMerchant creates a merchant account and its wallet.
func (h *AuthHandler) RegisterMerchant(c *fiber.Ctx) error {
	var req merchantRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if req.Phone == "" || req.Password == "" || req.BusinessName == "" {
		return fiber.NewError(fiber.StatusBadRequest, "missing required fields")
	}

	var existing int64
	if err := h.db.Model(&models.Merchant{}).Where("phone = ?", req.Phone).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return fiber.NewError(fiber.StatusConflict, "merchant already exists")
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to hash password")
	}
	code, err := utils.GenerateReferralCode()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate referral code")
	}

	merchant := models.Merchant{
		BusinessName: req.BusinessName,
		Phone:        req.Phone,
		PasswordHash: passwordHash,
		ReferralCode: code,
	}
	if err := h.db.Create(&merchant).Error; err != nil {
		return serviceError(err)
	}
	if _, err := h.ledger.EnsureWallet(c.UserContext(), merchant.ID, models.OwnerMerchant); err != nil {
		return err
	}

	token, err := utils.GenerateToken(h.cfg.JWTSecret, merchant.ID, utils.RoleMerchant, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"user": fiber.Map{
			"id":            merchant.ID,
			"business_name": merchant.BusinessName,
			"phone":         merchant.Phone,
			"referral_code": merchant.ReferralCode,
		},
		"token": token,
	})
}

// LoginMerchant authenticates a merchant.
func (h *AuthHandler) LoginMerchant(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var merchant models.Merchant
	if err := h.db.Where("phone = ?", req.Phone).First(&merchant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !utils.CheckPassword(merchant.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	return h.issueToken(c, merchant.ID, utils.RoleMerchant, fiber.Map{
		"id":            merchant.ID,
		"business_name": merchant.BusinessName,
		"phone":         merchant.Phone,
	})
}

// LoginAdmin authenticates a back-office administrator.
func (h *AuthHandler) LoginAdmin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	var admin models.Admin
	if err := h.db.Where("phone = ?", req.Phone).First(&admin).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
		}
		return err
	}

	if !utils.CheckPassword(admin.PasswordHash, req.Password) {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid credentials")
	}

	return h.issueToken(c, admin.ID, utils.RoleAdmin, fiber.Map{
		"id":           admin.ID,
		"display_name": admin.DisplayName,
		"phone":        admin.Phone,
	})
}

func (h *AuthHandler) issueToken(c *fiber.Ctx, id uuid.UUID, role string, user fiber.Map) error {
	token, err := utils.GenerateToken(h.cfg.JWTSecret, id, role, h.cfg.TokenExpires)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "failed to generate token")
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    user,
		"token":   token,
	})
}

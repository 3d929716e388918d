package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type VoucherStatus string

const (
	VoucherActive  VoucherStatus = "active"
	VoucherUsed    VoucherStatus = "used"
	VoucherExpired VoucherStatus = "expired"
)

// ShoppingVoucher is merchant-scoped spendable value carved out of a customer's
// reward points. VoucherPoints is what is left, OriginalPoints what was issued.
type ShoppingVoucher struct {
	BaseModel
	CustomerID     uuid.UUID       `gorm:"type:uuid;index;not null" json:"customer_id"`
	MerchantID     uuid.UUID       `gorm:"type:uuid;index;not null" json:"merchant_id"`
	ConversionID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"conversion_id"`
	VoucherPoints  int64           `gorm:"not null" json:"voucher_points"`
	OriginalPoints int64           `gorm:"not null" json:"original_points"`
	Ratio          decimal.Decimal `gorm:"type:numeric(10,6);not null" json:"ratio"`
	Status         VoucherStatus   `gorm:"size:16;index;not null" json:"status"`
	ExpiresAt      *time.Time      `json:"expires_at"`
}

// VoucherConversion marks the one-time 6,000 point slice taken from a customer.
type VoucherConversion struct {
	BaseModel
	CustomerID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"customer_id"`
	PointsSliced   int64     `gorm:"not null" json:"points_sliced"`
	LifetimePoints int64     `gorm:"not null" json:"lifetime_points"`
}

type CashOutStatus string

const (
	CashOutPending  CashOutStatus = "pending"
	CashOutApproved CashOutStatus = "approved"
	CashOutRejected CashOutStatus = "rejected"
)

// CashOutRequest asks an administrator to pay out voucher points.
type CashOutRequest struct {
	BaseModel
	CustomerID uuid.UUID     `gorm:"type:uuid;index;not null" json:"customer_id"`
	Amount     int64         `gorm:"not null" json:"amount"`
	Status     CashOutStatus `gorm:"size:16;index;not null" json:"status"`
	ReviewedBy *uuid.UUID    `gorm:"type:uuid" json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time    `json:"reviewed_at,omitempty"`
	Note       string        `json:"note"`
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order is a completed purchase reported by a merchant. Orders are the
// transaction history used to split shopping vouchers across merchants.
type Order struct {
	BaseModel
	CustomerID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"customer_id"`
	Customer      *Customer       `json:"customer,omitempty"`
	MerchantID    uuid.UUID       `gorm:"type:uuid;index;not null" json:"merchant_id"`
	Merchant      *Merchant       `json:"merchant,omitempty"`
	OrderNumber   string          `gorm:"uniqueIndex" json:"order_number"`
	Status        string          `json:"status"`
	PlacedAt      time.Time       `json:"placed_at"`
	TotalAmount   decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"total_amount"`
	Currency      string          `json:"currency"`
	PointsAwarded int64           `json:"points_awarded"`
	Notes         string          `json:"notes"`
}

const OrderStatusCompleted = "completed"

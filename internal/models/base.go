package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides shared columns for all tables.
type BaseModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate ensures UUIDs are generated for new records.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// OwnerType tells customer and merchant accounts apart. Wallets, referrals and
// QR tokens are all keyed by (owner id, owner type).
type OwnerType string

const (
	OwnerCustomer OwnerType = "customer"
	OwnerMerchant OwnerType = "merchant"
)

// Valid reports whether t is a known owner type.
func (t OwnerType) Valid() bool {
	return t == OwnerCustomer || t == OwnerMerchant
}

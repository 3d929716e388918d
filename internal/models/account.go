package models

import (
	"github.com/google/uuid"
)

// Customer represents a shopper who earns and spends reward points.
type Customer struct {
	BaseModel
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `gorm:"uniqueIndex" json:"phone"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
	ReferralCode string `gorm:"uniqueIndex;size:16" json:"referral_code"`
}

// Merchant represents a store selling on the marketplace.
type Merchant struct {
	BaseModel
	BusinessName string `json:"business_name"`
	Phone        string `gorm:"uniqueIndex" json:"phone"`
	PasswordHash string `json:"-"`
	ReferralCode string `gorm:"uniqueIndex;size:16" json:"referral_code"`
}

// Admin is a back-office operator allowed to grant points and review cash-outs.
type Admin struct {
	BaseModel
	Phone        string `gorm:"uniqueIndex" json:"phone"`
	DisplayName  string `json:"display_name"`
	PasswordHash string `json:"-"`
}

// Referral links a referred customer to the customer or merchant who invited them.
// A customer can be referred at most once.
type Referral struct {
	BaseModel
	ReferrerID       uuid.UUID `gorm:"type:uuid;index;not null" json:"referrer_id"`
	ReferrerType     OwnerType `gorm:"size:16;not null" json:"referrer_type"`
	ReferredID       uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"referred_id"`
	ReferralCodeUsed string    `gorm:"size:16" json:"referral_code_used"`
}

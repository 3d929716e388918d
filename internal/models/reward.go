package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GlobalNumberSource records how a Global Number was obtained.
type GlobalNumberSource string

const (
	GlobalNumberEarned   GlobalNumberSource = "earned"
	GlobalNumberInfinity GlobalNumberSource = "infinity"
)

// GlobalSerialNumber is one Global Number owned by a customer. Immutable once created.
type GlobalSerialNumber struct {
	GlobalNumber    int64              `gorm:"primaryKey;autoIncrement:false" json:"global_number"`
	CustomerID      uuid.UUID          `gorm:"type:uuid;index;not null" json:"customer_id"`
	Source          GlobalNumberSource `gorm:"size:16;not null" json:"source"`
	InfinityCycleID *uuid.UUID         `gorm:"type:uuid;index" json:"infinity_cycle_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// GlobalCounterName is the counter row every Global Number is drawn from.
const GlobalCounterName = "global"

// GlobalNumberCounter is the persisted, strictly increasing source of Global Numbers.
type GlobalNumberCounter struct {
	Name  string `gorm:"primaryKey;size:32"`
	Value int64  `gorm:"not null;default:0"`
}

// StepUpReward is paid to the owner of RecipientGlobalNumber because
// TriggerGlobalNumber = RecipientGlobalNumber * MilestoneFactor.
type StepUpReward struct {
	BaseModel
	RecipientGlobalNumber int64      `gorm:"not null;uniqueIndex:idx_step_up_milestone" json:"recipient_global_number"`
	MilestoneFactor       int64      `gorm:"not null;uniqueIndex:idx_step_up_milestone" json:"milestone_factor"`
	RecipientCustomerID   uuid.UUID  `gorm:"type:uuid;index;not null" json:"recipient_customer_id"`
	TriggerGlobalNumber   int64      `gorm:"index;not null" json:"trigger_global_number"`
	RewardPoints          int64      `gorm:"not null" json:"reward_points"`
	IsAwarded             bool       `gorm:"not null;default:false" json:"is_awarded"`
	AwardedAt             *time.Time `json:"awarded_at"`
}

// RippleReward is the referrer's share of a StepUpReward.
type RippleReward struct {
	BaseModel
	SourceStepUpRewardID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"source_step_up_reward_id"`
	ReferrerID           uuid.UUID `gorm:"type:uuid;index;not null" json:"referrer_id"`
	ReferrerType         OwnerType `gorm:"size:16;not null" json:"referrer_type"`
	ReferredCustomerID   uuid.UUID `gorm:"type:uuid;index;not null" json:"referred_customer_id"`
	StepUpPoints         int64     `gorm:"not null" json:"step_up_points"`
	RippleAmount         int64     `gorm:"not null" json:"ripple_amount"`
}

// InfinityCycle is a batch of granted Global Numbers plus a lump income credit.
type InfinityCycle struct {
	BaseModel
	CustomerID          uuid.UUID                  `gorm:"type:uuid;not null;uniqueIndex:idx_infinity_cycle" json:"customer_id"`
	CycleNumber         int                        `gorm:"not null;uniqueIndex:idx_infinity_cycle" json:"cycle_number"`
	RewardNumbers       datatypes.JSONSlice[int64] `json:"reward_numbers_generated"`
	NumbersCount        int64                      `gorm:"not null" json:"numbers_count"`
	TotalPoints         int64                      `gorm:"not null" json:"total_points"`
	TriggerGlobalNumber int64                      `json:"trigger_global_number"`
	AwardedStepUpPoints int64                      `gorm:"not null" json:"awarded_step_up_points"`
}

// AffiliateCommission is the lifetime 5% share paid to a referrer on each earn
// event of the referred customer.
type AffiliateCommission struct {
	BaseModel
	ReferrerID          uuid.UUID       `gorm:"type:uuid;index;not null" json:"referrer_id"`
	ReferrerType        OwnerType       `gorm:"size:16;not null" json:"referrer_type"`
	ReferredCustomerID  uuid.UUID       `gorm:"type:uuid;index;not null" json:"referred_customer_id"`
	SourceTransactionID uuid.UUID       `gorm:"type:uuid;uniqueIndex;not null" json:"source_transaction_id"`
	SourcePoints        int64           `gorm:"not null" json:"source_points"`
	CommissionAmount    decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"commission_amount"`
}

// InstantCashback is the 10% income credit a merchant receives for points it
// transferred to a customer.
type InstantCashback struct {
	BaseModel
	MerchantID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"merchant_id"`
	CustomerID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"customer_id"`
	SourceReference   string          `gorm:"size:64;uniqueIndex;not null" json:"source_reference"`
	PointsTransferred int64           `gorm:"not null" json:"points_transferred"`
	CashbackAmount    decimal.Decimal `gorm:"type:numeric(20,4);not null" json:"cashback_amount"`
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// QRTransferToken is a single-use, time-boxed intent to move points from the
// sender's wallet to whoever redeems the code first.
type QRTransferToken struct {
	BaseModel
	Code           string     `gorm:"size:64;uniqueIndex;not null" json:"code"`
	SenderWalletID uuid.UUID  `gorm:"type:uuid;index;not null" json:"sender_wallet_id"`
	SenderID       uuid.UUID  `gorm:"type:uuid;index;not null" json:"sender_id"`
	SenderType     OwnerType  `gorm:"size:16;not null" json:"sender_type"`
	Points         int64      `gorm:"not null" json:"points"`
	ExpiresAt      time.Time  `gorm:"not null" json:"expires_at"`
	IsUsed         bool       `gorm:"not null;default:false" json:"is_used"`
	UsedAt         *time.Time `json:"used_at,omitempty"`
	ReceiverID     *uuid.UUID `gorm:"type:uuid" json:"receiver_id,omitempty"`
}

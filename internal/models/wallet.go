package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Wallet holds the balances of one customer or merchant.
//
// RewardPointBalance is spendable points. AccumulatedPoints is the pending
// conversion bucket and always stays below the Global Number threshold.
// IncomeBalance collects reward payouts (StepUp, Ripple, Infinity, Affiliate,
// Cashback) as a currency-equivalent decimal.
type Wallet struct {
	BaseModel
	OwnerID            uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_wallet_owner" json:"owner_id"`
	OwnerType          OwnerType       `gorm:"size:16;not null;uniqueIndex:idx_wallet_owner" json:"owner_type"`
	RewardPointBalance int64           `gorm:"not null;default:0" json:"reward_point_balance"`
	AccumulatedPoints  int64           `gorm:"not null;default:0" json:"accumulated_points"`
	IncomeBalance      decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"income_balance"`
	TotalIncome        decimal.Decimal `gorm:"type:numeric(20,4);not null;default:0" json:"total_income"`
	TotalEarned        int64           `gorm:"not null;default:0" json:"total_earned"`
	TotalSpent         int64           `gorm:"not null;default:0" json:"total_spent"`
	TotalTransferred   int64           `gorm:"not null;default:0" json:"total_transferred"`
}

// LedgerAccount names the balance a WalletTransaction moved.
type LedgerAccount string

const (
	AccountRewardPoints LedgerAccount = "reward_points"
	AccountIncome       LedgerAccount = "income"
)

// TransactionType is the direction of a balance mutation.
type TransactionType string

const (
	TransactionCredit TransactionType = "credit"
	TransactionDebit  TransactionType = "debit"
)

// TransactionKind tags why a balance moved.
type TransactionKind string

const (
	KindEarn                TransactionKind = "earn"
	KindAdminGrant          TransactionKind = "admin_grant"
	KindQRTransferIn        TransactionKind = "qr_transfer_in"
	KindQRTransferOut       TransactionKind = "qr_transfer_out"
	KindMerchantTransferIn  TransactionKind = "merchant_transfer_in"
	KindMerchantTransferOut TransactionKind = "merchant_transfer_out"
	KindStepUp              TransactionKind = "step_up"
	KindRipple              TransactionKind = "ripple"
	KindInfinity            TransactionKind = "infinity"
	KindAffiliate           TransactionKind = "affiliate"
	KindCashback            TransactionKind = "cashback"
	KindVoucherConversion   TransactionKind = "voucher_conversion"
)

// WalletTransaction is the append-only audit row written with every balance
// mutation. Rows are never updated or deleted.
type WalletTransaction struct {
	BaseModel
	WalletID     uuid.UUID         `gorm:"type:uuid;index;not null" json:"wallet_id"`
	Account      LedgerAccount     `gorm:"size:16;not null" json:"account"`
	Type         TransactionType   `gorm:"size:8;not null" json:"type"`
	Kind         TransactionKind   `gorm:"size:32;index;not null" json:"kind"`
	Amount       decimal.Decimal   `gorm:"type:numeric(20,4);not null" json:"amount"`
	BalanceAfter decimal.Decimal   `gorm:"type:numeric(20,4);not null" json:"balance_after"`
	Description  string            `json:"description"`
	ReferenceID  string            `gorm:"size:64;index" json:"reference_id"`
	MerchantID   *uuid.UUID        `gorm:"type:uuid;index" json:"merchant_id,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
}

package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
)

// WalletSummary is the dashboard view of one wallet.
type WalletSummary struct {
	Wallet        models.Wallet `json:"wallet"`
	GlobalNumbers []int64       `json:"global_numbers"`
}

// WalletSummary returns the owner's balances and, for customers, every Global
// Number they hold in ascending order. It never creates a wallet.
func (e *Engine) WalletSummary(ctx context.Context, ownerID uuid.UUID, ownerType models.OwnerType) (*WalletSummary, error) {
	db := e.db.WithContext(ctx)
	switch ownerType {
	case models.OwnerCustomer:
		if err := requireCustomer(db, ownerID); err != nil {
			return nil, err
		}
	case models.OwnerMerchant:
		if err := requireMerchant(db, ownerID); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown owner type %q", ownerType)
	}

	wallet, err := e.ledger.Wallet(ctx, ownerID, ownerType)
	if err != nil {
		return nil, err
	}

	summary := &WalletSummary{Wallet: *wallet, GlobalNumbers: []int64{}}
	if ownerType != models.OwnerCustomer {
		return summary, nil
	}

	if err := e.db.WithContext(ctx).Model(&models.GlobalSerialNumber{}).
		Where("customer_id = ?", ownerID).
		Order("global_number asc").
		Pluck("global_number", &summary.GlobalNumbers).Error; err != nil {
		return nil, err
	}
	return summary, nil
}

// StepUpRewards lists StepUp rewards paid to the customer, newest first.
func (e *Engine) StepUpRewards(ctx context.Context, customerID uuid.UUID) ([]models.StepUpReward, error) {
	var rewards []models.StepUpReward
	err := e.db.WithContext(ctx).
		Where("recipient_customer_id = ?", customerID).
		Order("created_at desc").
		Find(&rewards).Error
	return rewards, err
}

// RippleRewards lists ripple payouts received by a referrer.
func (e *Engine) RippleRewards(ctx context.Context, referrerID uuid.UUID, referrerType models.OwnerType) ([]models.RippleReward, error) {
	var rewards []models.RippleReward
	err := e.db.WithContext(ctx).
		Where("referrer_id = ? AND referrer_type = ?", referrerID, referrerType).
		Order("created_at desc").
		Find(&rewards).Error
	return rewards, err
}

// InfinityCycles lists the customer's unlocked cycles in cycle order.
func (e *Engine) InfinityCycles(ctx context.Context, customerID uuid.UUID) ([]models.InfinityCycle, error) {
	var cycles []models.InfinityCycle
	err := e.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("cycle_number asc").
		Find(&cycles).Error
	return cycles, err
}

// AffiliateSummary aggregates a referrer's affiliate earnings.
type AffiliateSummary struct {
	ReferralCount   int64                        `json:"referral_count"`
	CommissionCount int64                        `json:"commission_count"`
	TotalCommission decimal.Decimal              `json:"total_commission"`
	Recent          []models.AffiliateCommission `json:"recent"`
}

const affiliateRecentLimit = 20

// AffiliateSummary totals the commissions earned by a customer or merchant
// from the customers they referred.
func (e *Engine) AffiliateSummary(ctx context.Context, referrerID uuid.UUID, referrerType models.OwnerType) (*AffiliateSummary, error) {
	db := e.db.WithContext(ctx)
	summary := &AffiliateSummary{TotalCommission: decimal.Zero}

	if err := db.Model(&models.Referral{}).
		Where("referrer_id = ? AND referrer_type = ?", referrerID, referrerType).
		Count(&summary.ReferralCount).Error; err != nil {
		return nil, err
	}

	var commissions []models.AffiliateCommission
	if err := db.Where("referrer_id = ? AND referrer_type = ?", referrerID, referrerType).
		Order("created_at desc").
		Find(&commissions).Error; err != nil {
		return nil, err
	}

	summary.CommissionCount = int64(len(commissions))
	for _, c := range commissions {
		summary.TotalCommission = summary.TotalCommission.Add(c.CommissionAmount)
	}
	if len(commissions) > affiliateRecentLimit {
		commissions = commissions[:affiliateRecentLimit]
	}
	summary.Recent = commissions
	return summary, nil
}

// WalletTransactions pages through a wallet's audit trail, newest first.
func (e *Engine) WalletTransactions(ctx context.Context, ownerID uuid.UUID, ownerType models.OwnerType, limit, offset int) ([]models.WalletTransaction, int64, error) {
	wallet, err := e.ledger.Wallet(ctx, ownerID, ownerType)
	if err != nil {
		return nil, 0, err
	}

	db := e.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("wallet_id = ?", wallet.ID).
		Session(&gorm.Session{})

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txns []models.WalletTransaction
	if err := db.Order("created_at desc").Limit(limit).Offset(offset).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// Vouchers lists a customer's shopping vouchers, active ones first.
func (e *Engine) Vouchers(ctx context.Context, customerID uuid.UUID) ([]models.ShoppingVoucher, error) {
	var vouchers []models.ShoppingVoucher
	err := e.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("status asc").
		Order("created_at asc").
		Find(&vouchers).Error
	return vouchers, err
}

// CashOutRequests lists cash-out requests, optionally filtered by status.
func (e *Engine) CashOutRequests(ctx context.Context, status models.CashOutStatus) ([]models.CashOutRequest, error) {
	db := e.db.WithContext(ctx).Order("created_at asc")
	if status != "" {
		db = db.Where("status = ?", status)
	}
	var requests []models.CashOutRequest
	err := db.Find(&requests).Error
	return requests, err
}

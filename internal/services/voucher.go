package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/holyloy/komarce/internal/models"
)

const (
	// VoucherLifetimeThreshold is the lifetime points mark that triggers the
	// one-time voucher conversion.
	VoucherLifetimeThreshold int64 = 30000
	// VoucherSlicePoints is debited from the customer and split across merchants.
	VoucherSlicePoints int64 = 6000
)

// MerchantVolume is a customer's completed order volume at one merchant.
type MerchantVolume struct {
	MerchantID uuid.UUID
	Volume     decimal.Decimal
}

// VoucherShare is one merchant's slice of a voucher conversion.
type VoucherShare struct {
	MerchantID uuid.UUID
	Points     int64
	Ratio      decimal.Decimal
}

// SplitVoucherPoints distributes total points proportionally to volume. Each
// share is floored and the remainder goes to the largest-volume merchant, so
// the shares always sum to total. Merchants without volume are skipped.
func SplitVoucherPoints(total int64, volumes []MerchantVolume) []VoucherShare {
	filtered := make([]MerchantVolume, 0, len(volumes))
	sum := decimal.Zero
	for _, v := range volumes {
		if !v.Volume.IsPositive() {
			continue
		}
		filtered = append(filtered, v)
		sum = sum.Add(v.Volume)
	}
	if len(filtered) == 0 || total <= 0 {
		return nil
	}

	sort.Slice(filtered, func(i, j int) bool {
		return strings.Compare(filtered[i].MerchantID.String(), filtered[j].MerchantID.String()) < 0
	})

	shares := make([]VoucherShare, 0, len(filtered))
	largest := 0
	var assigned int64
	for i, v := range filtered {
		points := v.Volume.Mul(decimal.NewFromInt(total)).Div(sum).Floor().IntPart()
		shares = append(shares, VoucherShare{
			MerchantID: v.MerchantID,
			Points:     points,
			Ratio:      v.Volume.Div(sum).Round(6),
		})
		assigned += points
		if v.Volume.GreaterThan(filtered[largest].Volume) {
			largest = i
		}
	}
	shares[largest].Points += total - assigned
	return shares
}

// convertVouchers slices VoucherSlicePoints out of a customer's balance the
// first time lifetime points reach VoucherLifetimeThreshold. Without merchant
// history or enough balance the conversion waits for a later earn event.
func (e *Engine) convertVouchers(q *taskQueue, task *models.CascadeTask) error {
	if task.CustomerID == nil {
		return nil
	}
	customerID := *task.CustomerID

	wallet, err := lockWalletByOwner(q.tx, customerID, models.OwnerCustomer)
	if err != nil {
		return err
	}
	if wallet.TotalEarned < VoucherLifetimeThreshold {
		return nil
	}

	var converted int64
	if err := q.tx.Model(&models.VoucherConversion{}).
		Where("customer_id = ?", customerID).
		Count(&converted).Error; err != nil {
		return err
	}
	if converted > 0 {
		return nil
	}

	if wallet.RewardPointBalance < VoucherSlicePoints {
		e.log.Info("voucher conversion deferred: balance below slice",
			zap.String("customer_id", customerID.String()),
			zap.Int64("balance", wallet.RewardPointBalance))
		return nil
	}

	var volumes []MerchantVolume
	if err := q.tx.Model(&models.Order{}).
		Select("merchant_id, SUM(total_amount) AS volume").
		Where("customer_id = ? AND status = ?", customerID, models.OrderStatusCompleted).
		Group("merchant_id").
		Scan(&volumes).Error; err != nil {
		return err
	}

	shares := SplitVoucherPoints(VoucherSlicePoints, volumes)
	if len(shares) == 0 {
		e.log.Info("voucher conversion deferred: no merchant history",
			zap.String("customer_id", customerID.String()))
		return nil
	}

	conversion := models.VoucherConversion{
		CustomerID:     customerID,
		PointsSliced:   VoucherSlicePoints,
		LifetimePoints: wallet.TotalEarned,
	}
	if err := q.tx.Create(&conversion).Error; err != nil {
		return err
	}

	if _, err := applyPoints(q.tx, wallet, models.TransactionDebit, VoucherSlicePoints, Entry{
		Kind:        models.KindVoucherConversion,
		ReferenceID: conversion.ID.String(),
		Description: fmt.Sprintf("Converted %d points into shopping vouchers", VoucherSlicePoints),
	}); err != nil {
		return err
	}

	expiresAt := e.now().Add(e.opts.VoucherTTL)
	for _, share := range shares {
		if share.Points <= 0 {
			continue
		}
		voucher := models.ShoppingVoucher{
			CustomerID:     customerID,
			MerchantID:     share.MerchantID,
			ConversionID:   conversion.ID,
			VoucherPoints:  share.Points,
			OriginalPoints: share.Points,
			Ratio:          share.Ratio,
			Status:         models.VoucherActive,
		}
		if e.opts.VoucherTTL > 0 {
			voucher.ExpiresAt = &expiresAt
		}
		if err := q.tx.Create(&voucher).Error; err != nil {
			return err
		}
	}
	return nil
}

// RequestVoucherCashOut queues a cash-out of active voucher points for admin
// review. Points already claimed by pending requests are not available.
func (e *Engine) RequestVoucherCashOut(ctx context.Context, customerID uuid.UUID, amount int64) (*models.CashOutRequest, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var request models.CashOutRequest
	err := withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if _, err := lockWalletByOwner(tx, customerID, models.OwnerCustomer); err != nil {
				return err
			}

			available, err := availableVoucherPoints(tx, customerID)
			if err != nil {
				return err
			}
			if available < amount {
				return ErrInsufficientBalance
			}

			request = models.CashOutRequest{
				CustomerID: customerID,
				Amount:     amount,
				Status:     models.CashOutPending,
			}
			return tx.Create(&request).Error
		})
	})
	if err != nil {
		return nil, err
	}
	e.notify(ctx, "cash_out_requested", func(n AdminNotifier) error {
		return n.CashOutRequested(ctx, request)
	})
	return &request, nil
}

func availableVoucherPoints(tx *gorm.DB, customerID uuid.UUID) (int64, error) {
	var active int64
	if err := tx.Model(&models.ShoppingVoucher{}).
		Select("COALESCE(SUM(voucher_points), 0)").
		Where("customer_id = ? AND status = ?", customerID, models.VoucherActive).
		Row().Scan(&active); err != nil {
		return 0, err
	}

	var pending int64
	if err := tx.Model(&models.CashOutRequest{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("customer_id = ? AND status = ?", customerID, models.CashOutPending).
		Row().Scan(&pending); err != nil {
		return 0, err
	}
	return active - pending, nil
}

// ReviewCashOut approves or rejects a pending cash-out. Approval consumes
// active vouchers oldest first.
func (e *Engine) ReviewCashOut(ctx context.Context, adminID, requestID uuid.UUID, approve bool, note string) (*models.CashOutRequest, error) {
	var request models.CashOutRequest
	err := withRetry(ctx, func() error {
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				First(&request, "id = ?", requestID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrCashOutNotFound
				}
				return err
			}
			if request.Status != models.CashOutPending {
				return ErrCashOutNotPending
			}

			status := models.CashOutRejected
			if approve {
				if err := consumeVouchers(tx, request.CustomerID, request.Amount); err != nil {
					return err
				}
				status = models.CashOutApproved
			}

			now := e.now()
			request.Status = status
			request.ReviewedBy = &adminID
			request.ReviewedAt = &now
			request.Note = note
			return tx.Model(&request).Updates(map[string]any{
				"status":      request.Status,
				"reviewed_by": request.ReviewedBy,
				"reviewed_at": request.ReviewedAt,
				"note":        request.Note,
			}).Error
		})
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("cash-out reviewed",
		zap.String("request_id", request.ID.String()),
		zap.String("admin_id", adminID.String()),
		zap.String("status", string(request.Status)))
	return &request, nil
}

func consumeVouchers(tx *gorm.DB, customerID uuid.UUID, amount int64) error {
	var vouchers []models.ShoppingVoucher
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND status = ?", customerID, models.VoucherActive).
		Order("created_at asc").
		Find(&vouchers).Error; err != nil {
		return err
	}

	remaining := amount
	for i := range vouchers {
		if remaining == 0 {
			break
		}
		v := &vouchers[i]
		take := v.VoucherPoints
		if take > remaining {
			take = remaining
		}
		v.VoucherPoints -= take
		remaining -= take

		updates := map[string]any{"voucher_points": v.VoucherPoints}
		if v.VoucherPoints == 0 {
			updates["status"] = models.VoucherUsed
		}
		if err := tx.Model(v).Updates(updates).Error; err != nil {
			return err
		}
	}
	if remaining > 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// ExpireVouchers marks active vouchers past their expiry as expired.
func (e *Engine) ExpireVouchers(ctx context.Context) (int64, error) {
	res := e.db.WithContext(ctx).Model(&models.ShoppingVoucher{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.VoucherActive, e.now()).
		Update("status", models.VoucherExpired)
	return res.RowsAffected, res.Error
}

package services

import (
	"fmt"

	"github.com/holyloy/komarce/internal/models"
)

// CashbackPercent is credited back to a merchant on every transfer to a customer.
const CashbackPercent int64 = 10

// evaluateCashback credits the merchant's income wallet with 10% of the
// points it transferred. Each transfer reference pays once.
func (e *Engine) evaluateCashback(q *taskQueue, task *models.CascadeTask) error {
	if task.MerchantID == nil || task.CustomerID == nil {
		return nil
	}
	if task.Points < 1 {
		return ErrInvalidAmount
	}

	var existing int64
	if err := q.tx.Model(&models.InstantCashback{}).
		Where("source_reference = ?", task.SourceReference).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	wallet, err := lockWalletByOwner(q.tx, *task.MerchantID, models.OwnerMerchant)
	if err != nil {
		return err
	}

	amount := percentOf(task.Points, CashbackPercent)
	cashback := models.InstantCashback{
		MerchantID:        *task.MerchantID,
		CustomerID:        *task.CustomerID,
		SourceReference:   task.SourceReference,
		PointsTransferred: task.Points,
		CashbackAmount:    amount,
	}
	if err := q.tx.Create(&cashback).Error; err != nil {
		return err
	}

	if _, err := applyIncome(q.tx, wallet, models.TransactionCredit, amount, Entry{
		Kind:        models.KindCashback,
		ReferenceID: cashback.ID.String(),
		Description: fmt.Sprintf("Instant cashback on %d points transferred", task.Points),
	}); err != nil {
		return err
	}
	e.metrics.ObserveRewardPoints(string(models.KindCashback), amount.InexactFloat64())
	return nil
}

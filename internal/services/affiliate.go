package services

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/holyloy/komarce/internal/models"
)

// AffiliateCommissionPercent is the lifetime share a referrer receives from
// every earn event of the referred customer.
const AffiliateCommissionPercent int64 = 5

// evaluateAffiliate pays the referrer 5% of one earn event. The source
// transaction id makes the payout idempotent.
func (e *Engine) evaluateAffiliate(q *taskQueue, task *models.CascadeTask) error {
	if task.CustomerID == nil || task.Points <= 0 {
		return nil
	}
	sourceID, err := uuid.Parse(task.SourceReference)
	if err != nil {
		return fmt.Errorf("affiliate task without source transaction: %w", err)
	}

	referral, err := findReferral(q.tx, *task.CustomerID)
	if err != nil || referral == nil {
		return err
	}

	var existing int64
	if err := q.tx.Model(&models.AffiliateCommission{}).
		Where("source_transaction_id = ?", sourceID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	amount := percentOf(task.Points, AffiliateCommissionPercent)
	if !amount.IsPositive() {
		return nil
	}

	wallet, err := lockWalletByOwner(q.tx, referral.ReferrerID, referral.ReferrerType)
	if err != nil {
		return err
	}

	commission := models.AffiliateCommission{
		ReferrerID:          referral.ReferrerID,
		ReferrerType:        referral.ReferrerType,
		ReferredCustomerID:  *task.CustomerID,
		SourceTransactionID: sourceID,
		SourcePoints:        task.Points,
		CommissionAmount:    amount,
	}
	if err := q.tx.Create(&commission).Error; err != nil {
		return err
	}

	if _, err := applyIncome(q.tx, wallet, models.TransactionCredit, amount, Entry{
		Kind:        models.KindAffiliate,
		ReferenceID: commission.ID.String(),
		Description: fmt.Sprintf("Affiliate commission on %d points earned by referral", task.Points),
	}); err != nil {
		return err
	}
	e.metrics.ObserveRewardPoints(string(models.KindAffiliate), amount.InexactFloat64())
	return nil
}

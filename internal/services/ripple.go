package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
)

// RippleTable maps a StepUp payout to the referrer's ripple share.
var RippleTable = map[int64]int64{
	500:    50,
	1500:   100,
	3000:   150,
	30000:  700,
	160000: 1500,
}

// evaluateRipple credits the StepUp recipient's referrer, at most once per
// StepUp reward. No referrer means nothing to do.
func (e *Engine) evaluateRipple(q *taskQueue, task *models.CascadeTask) error {
	if task.StepUpRewardID == nil {
		return nil
	}

	var reward models.StepUpReward
	if err := q.tx.First(&reward, "id = ?", *task.StepUpRewardID).Error; err != nil {
		return fmt.Errorf("load step-up reward: %w", err)
	}
	if !reward.IsAwarded {
		return nil
	}

	amount, ok := RippleTable[reward.RewardPoints]
	if !ok {
		return nil
	}

	referral, err := findReferral(q.tx, reward.RecipientCustomerID)
	if err != nil || referral == nil {
		return err
	}

	var existing int64
	if err := q.tx.Model(&models.RippleReward{}).
		Where("source_step_up_reward_id = ?", reward.ID).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	wallet, err := lockWalletByOwner(q.tx, referral.ReferrerID, referral.ReferrerType)
	if err != nil {
		return err
	}

	ripple := models.RippleReward{
		SourceStepUpRewardID: reward.ID,
		ReferrerID:           referral.ReferrerID,
		ReferrerType:         referral.ReferrerType,
		ReferredCustomerID:   reward.RecipientCustomerID,
		StepUpPoints:         reward.RewardPoints,
		RippleAmount:         amount,
	}
	if err := q.tx.Create(&ripple).Error; err != nil {
		return err
	}

	if _, err := applyIncome(q.tx, wallet, models.TransactionCredit, pointsDecimal(amount), Entry{
		Kind:        models.KindRipple,
		ReferenceID: ripple.ID.String(),
		Description: fmt.Sprintf("Ripple reward from referral's %d point StepUp", reward.RewardPoints),
	}); err != nil {
		return err
	}
	e.metrics.ObserveRewardPoints(string(models.KindRipple), float64(amount))
	return nil
}

// findReferral returns who referred customerID, or nil when nobody did.
func findReferral(tx *gorm.DB, customerID uuid.UUID) (*models.Referral, error) {
	var referral models.Referral
	if err := tx.Where("referred_id = ?", customerID).First(&referral).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &referral, nil
}

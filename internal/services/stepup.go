package services

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
)

// Milestone pairs a StepUp factor with the points it pays.
type Milestone struct {
	Factor int64
	Reward int64
}

// StepUpMilestones are checked for every new Global Number N: the owner of
// N / Factor receives Reward.
var StepUpMilestones = []Milestone{
	{Factor: 5, Reward: 500},
	{Factor: 25, Reward: 1500},
	{Factor: 125, Reward: 3000},
	{Factor: 500, Reward: 30000},
	{Factor: 2500, Reward: 160000},
}

type stepUpCandidate struct {
	milestone Milestone
	recipient models.GlobalSerialNumber
}

// evaluateStepUp pays every milestone the new Global Number reaches. A
// recipient number that does not exist yet earns nothing and is not revisited.
func (e *Engine) evaluateStepUp(q *taskQueue, task *models.CascadeTask) error {
	trigger := task.GlobalNumber
	if trigger <= 0 {
		return nil
	}

	var candidates []stepUpCandidate
	for _, m := range StepUpMilestones {
		if trigger%m.Factor != 0 {
			continue
		}
		recipientNumber := trigger / m.Factor

		var owner models.GlobalSerialNumber
		if err := q.tx.First(&owner, "global_number = ?", recipientNumber).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}

		if err := ensureMilestoneOpen(q.tx, recipientNumber, m.Factor); err != nil {
			if errors.Is(err, ErrDuplicateMilestone) {
				e.log.Debug("step-up milestone already awarded",
					zap.Int64("recipient_number", recipientNumber),
					zap.Int64("factor", m.Factor))
				continue
			}
			return err
		}
		candidates = append(candidates, stepUpCandidate{milestone: m, recipient: owner})
	}
	if len(candidates) == 0 {
		return nil
	}

	owners := make([]walletOwner, 0, len(candidates))
	for _, c := range candidates {
		owners = append(owners, walletOwner{ID: c.recipient.CustomerID, Type: models.OwnerCustomer})
	}
	wallets, err := lockWalletsOrdered(q.tx, owners)
	if err != nil {
		return err
	}

	now := e.now()
	for _, c := range candidates {
		reward := models.StepUpReward{
			RecipientGlobalNumber: c.recipient.GlobalNumber,
			MilestoneFactor:       c.milestone.Factor,
			RecipientCustomerID:   c.recipient.CustomerID,
			TriggerGlobalNumber:   trigger,
			RewardPoints:          c.milestone.Reward,
			IsAwarded:             true,
			AwardedAt:             &now,
		}
		if err := q.tx.Create(&reward).Error; err != nil {
			return err
		}

		wallet := wallets[walletOwner{ID: c.recipient.CustomerID, Type: models.OwnerCustomer}]
		if _, err := applyIncome(q.tx, wallet, models.TransactionCredit, pointsDecimal(c.milestone.Reward), Entry{
			Kind:        models.KindStepUp,
			ReferenceID: reward.ID.String(),
			Description: stepUpDescription(c.recipient.GlobalNumber, trigger, c.milestone.Factor),
		}); err != nil {
			return err
		}
		e.metrics.ObserveRewardPoints(string(models.KindStepUp), float64(c.milestone.Reward))

		rewardID := reward.ID
		recipient := c.recipient.CustomerID
		if err := q.push(models.CascadeTask{
			Kind:           models.TaskRipple,
			CustomerID:     &recipient,
			StepUpRewardID: &rewardID,
			Points:         reward.RewardPoints,
		}); err != nil {
			return err
		}
		if err := q.push(models.CascadeTask{
			Kind:         models.TaskInfinity,
			CustomerID:   &recipient,
			GlobalNumber: trigger,
		}); err != nil {
			return err
		}
	}
	return nil
}

func ensureMilestoneOpen(tx *gorm.DB, recipientNumber, factor int64) error {
	var count int64
	if err := tx.Model(&models.StepUpReward{}).
		Where("recipient_global_number = ? AND milestone_factor = ?", recipientNumber, factor).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrDuplicateMilestone
	}
	return nil
}

func stepUpDescription(recipient, trigger, factor int64) string {
	return fmt.Sprintf("StepUp reward: Global #%d reached x%d milestone via Global #%d", recipient, factor, trigger)
}

package services

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/holyloy/komarce/internal/models"
)

const (
	// InfinityThreshold is the awarded StepUp total that unlocks cycle 1.
	InfinityThreshold int64 = 30000
	// InfinityPointsPerNumber is credited for every Global Number a cycle mints.
	InfinityPointsPerNumber int64 = 195000
	// infinityBaseNumbers is how many numbers cycle 1 mints.
	infinityBaseNumbers int64 = 4
)

// CyclePolicy decides when the next Infinity cycle unlocks.
//
// Cycle 1 always requires InfinityThreshold awarded StepUp points. How later
// cycles unlock has not been settled by product, so it lives behind this
// interface.
type CyclePolicy interface {
	Name() string
	// Eligible reports whether cycle next may be created for a customer whose
	// awarded StepUp points total awarded.
	Eligible(awarded int64, next int) bool
}

// FirstCycleOnly unlocks cycle 1 and never anything after it.
type FirstCycleOnly struct{}

func (FirstCycleOnly) Name() string { return "first-cycle-only" }

func (FirstCycleOnly) Eligible(awarded int64, next int) bool {
	return next == 1 && awarded >= InfinityThreshold
}

// LinearThreshold unlocks cycle n once awarded StepUp points reach n times
// InfinityThreshold.
type LinearThreshold struct{}

func (LinearThreshold) Name() string { return "linear-threshold" }

func (LinearThreshold) Eligible(awarded int64, next int) bool {
	return next >= 1 && awarded >= InfinityThreshold*int64(next)
}

// CyclePolicyByName resolves a configured policy name. Unknown names fall
// back to FirstCycleOnly.
func CyclePolicyByName(name string) CyclePolicy {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LinearThreshold{}.Name():
		return LinearThreshold{}
	default:
		return FirstCycleOnly{}
	}
}

// CycleNumbers is how many Global Numbers cycle n mints: 4, 16, 64, ...
func CycleNumbers(n int) int64 {
	if n < 1 {
		return 0
	}
	count := infinityBaseNumbers
	for i := 1; i < n; i++ {
		count *= 4
	}
	return count
}

// CyclePoints is the income credited for cycle n.
func CyclePoints(n int) int64 {
	return CycleNumbers(n) * InfinityPointsPerNumber
}

// evaluateInfinity creates every cycle the policy allows for the customer.
// The customer's wallet row is locked first, which serialises concurrent
// checks for the same customer.
func (e *Engine) evaluateInfinity(q *taskQueue, task *models.CascadeTask) error {
	if task.CustomerID == nil {
		return nil
	}
	customerID := *task.CustomerID

	wallet, err := lockWalletByOwner(q.tx, customerID, models.OwnerCustomer)
	if err != nil {
		return err
	}

	var awarded int64
	if err := q.tx.Model(&models.StepUpReward{}).
		Select("COALESCE(SUM(reward_points), 0)").
		Where("recipient_customer_id = ? AND is_awarded = ?", customerID, true).
		Row().Scan(&awarded); err != nil {
		return err
	}

	var completed int64
	if err := q.tx.Model(&models.InfinityCycle{}).
		Where("customer_id = ?", customerID).
		Count(&completed).Error; err != nil {
		return err
	}

	next := int(completed) + 1
	for e.policy.Eligible(awarded, next) {
		if err := e.createCycle(q, wallet, next, awarded, task.GlobalNumber); err != nil {
			return err
		}
		next++
	}
	return nil
}

func (e *Engine) createCycle(q *taskQueue, wallet *models.Wallet, n int, awarded, trigger int64) error {
	count := CycleNumbers(n)
	cycle := models.InfinityCycle{
		CustomerID:          wallet.OwnerID,
		CycleNumber:         n,
		NumbersCount:        count,
		TotalPoints:         CyclePoints(n),
		TriggerGlobalNumber: trigger,
		AwardedStepUpPoints: awarded,
	}
	if err := q.tx.Create(&cycle).Error; err != nil {
		return err
	}

	cycleID := cycle.ID
	numbers := make([]int64, 0, count)
	for i := int64(0); i < count; i++ {
		serial, err := e.mintGlobalNumber(q, wallet.OwnerID, models.GlobalNumberInfinity, &cycleID)
		if err != nil {
			return err
		}
		numbers = append(numbers, serial.GlobalNumber)
	}

	if err := q.tx.Model(&cycle).Update("reward_numbers", datatypes.JSONSlice[int64](numbers)).Error; err != nil {
		return err
	}
	cycle.RewardNumbers = datatypes.JSONSlice[int64](numbers)

	if _, err := applyIncome(q.tx, wallet, models.TransactionCredit, pointsDecimal(cycle.TotalPoints), Entry{
		Kind:        models.KindInfinity,
		ReferenceID: cycle.ID.String(),
		Description: fmt.Sprintf("Infinity cycle %d: %d reward numbers", n, count),
	}); err != nil {
		return err
	}
	e.metrics.ObserveRewardPoints(string(models.KindInfinity), float64(cycle.TotalPoints))
	q.unlocked = append(q.unlocked, cycle)

	e.log.Info("infinity cycle unlocked",
		zap.String("customer_id", wallet.OwnerID.String()),
		zap.Int("cycle", n),
		zap.Int64("numbers", count),
		zap.String("policy", e.policy.Name()))
	return nil
}

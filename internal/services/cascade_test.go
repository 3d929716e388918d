package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holyloy/komarce/internal/models"
)

func TestPendingTasksPopsByStageThenAge(t *testing.T) {
	work := &pendingTasks{}
	work.push(
		models.CascadeTask{Kind: models.TaskCashback, SourceReference: "cashback"},
		models.CascadeTask{Kind: models.TaskInfinity, SourceReference: "infinity-1"},
		models.CascadeTask{Kind: models.TaskStepUp, SourceReference: "step-up-1"},
		models.CascadeTask{Kind: models.TaskVoucher, SourceReference: "voucher"},
		models.CascadeTask{Kind: models.TaskRipple, SourceReference: "ripple"},
		models.CascadeTask{Kind: models.TaskStepUp, SourceReference: "step-up-2"},
		models.CascadeTask{Kind: models.TaskAffiliate, SourceReference: "affiliate"},
		models.CascadeTask{Kind: models.TaskInfinity, SourceReference: "infinity-2"},
	)

	var order []string
	for {
		task, ok := work.pop()
		if !ok {
			break
		}
		order = append(order, task.SourceReference)
	}
	assert.Equal(t, []string{
		"affiliate",
		"step-up-1",
		"step-up-2",
		"ripple",
		"infinity-1",
		"infinity-2",
		"voucher",
		"cashback",
	}, order)
}

func TestFailedTaskStaysPendingUntilRedriven(t *testing.T) {
	clock := newTestClock()
	e, db := newTestEngine(t, Options{Now: clock.Now, MaxTaskAttempts: 3})
	ctx := context.Background()
	merchant := createMerchant(t, db, "late wallet")
	customer := createCustomer(t, db, "lia")

	// The merchant has no wallet yet, so the cashback cannot be credited.
	task := enqueue(t, db, models.CascadeTask{
		Kind:            models.TaskCashback,
		CustomerID:      &customer.ID,
		MerchantID:      &merchant.ID,
		Points:          200,
		SourceReference: "transfer-1",
	})

	err := e.drain(ctx, []models.CascadeTask{task})
	require.ErrorIs(t, err, ErrWalletNotFound)

	var stored models.CascadeTask
	require.NoError(t, db.First(&stored, "id = ?", task.ID).Error)
	assert.Equal(t, models.TaskPending, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	assert.Contains(t, stored.LastError, ErrWalletNotFound.Error())

	_, err = e.Ledger().EnsureWallet(ctx, merchant.ID, models.OwnerMerchant)
	require.NoError(t, err)

	// Too young for a sweep with a one minute minimum age.
	count, err := e.Redrive(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Zero(t, count)

	clock.Advance(2 * time.Minute)
	count, err = e.Redrive(ctx, time.Minute, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.First(&stored, "id = ?", task.ID).Error)
	assert.Equal(t, models.TaskDone, stored.Status)
	requireDecimal(t, 20, walletOf(t, e, merchant.ID, models.OwnerMerchant).IncomeBalance)

	// Done tasks are never picked up again.
	count, err = e.Redrive(ctx, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestTaskFailsAfterMaxAttempts(t *testing.T) {
	e, db := newTestEngine(t, Options{MaxTaskAttempts: 2})
	ctx := context.Background()
	merchant := createMerchant(t, db, "no wallet")
	customer := createCustomer(t, db, "max")

	task := enqueue(t, db, models.CascadeTask{
		Kind:            models.TaskCashback,
		CustomerID:      &customer.ID,
		MerchantID:      &merchant.ID,
		Points:          200,
		SourceReference: "transfer-2",
	})

	require.Error(t, e.drain(ctx, []models.CascadeTask{task}))

	var stored models.CascadeTask
	require.NoError(t, db.First(&stored, "id = ?", task.ID).Error)
	require.Equal(t, models.TaskPending, stored.Status)

	require.Error(t, e.drain(ctx, []models.CascadeTask{stored}))
	require.NoError(t, db.First(&stored, "id = ?", task.ID).Error)
	assert.Equal(t, models.TaskFailed, stored.Status)
	assert.Equal(t, 2, stored.Attempts)
}

func TestEarnReportsIncompleteCascade(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	merchant := createMerchant(t, db, "referrer without wallet")
	customer := createCustomer(t, db, "nia")
	refer(t, db, merchant.ID, models.OwnerMerchant, customer.ID)

	result, err := e.EarnPoints(ctx, EarnRequest{CustomerID: customer.ID, Points: 1600, Description: "purchase"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCascadeIncomplete))
	require.NotNil(t, result, "the earn itself committed")
	assert.Equal(t, int64(1600), result.NewBalance)
	assert.Equal(t, []int64{1}, result.GlobalNumbersAwarded)

	wallet := walletOf(t, e, customer.ID, models.OwnerCustomer)
	assert.Equal(t, int64(1600), wallet.RewardPointBalance)
	assert.Equal(t, int64(100), wallet.AccumulatedPoints)

	var pending int64
	require.NoError(t, db.Model(&models.CascadeTask{}).
		Where("status = ?", models.TaskPending).
		Count(&pending).Error)
	// The affiliate task failed first, so the StepUp for #1 never ran.
	assert.Equal(t, int64(2), pending)

	_, err = e.Ledger().EnsureWallet(ctx, merchant.ID, models.OwnerMerchant)
	require.NoError(t, err)
	count, err := e.Redrive(ctx, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	requireDecimal(t, 80, walletOf(t, e, merchant.ID, models.OwnerMerchant).IncomeBalance)
}

package services

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/models"
)

func TestCycleSizes(t *testing.T) {
	assert.Equal(t, int64(0), CycleNumbers(0))
	assert.Equal(t, int64(4), CycleNumbers(1))
	assert.Equal(t, int64(16), CycleNumbers(2))
	assert.Equal(t, int64(64), CycleNumbers(3))

	assert.Equal(t, int64(780000), CyclePoints(1))
	assert.Equal(t, int64(3120000), CyclePoints(2))
	assert.Equal(t, int64(12480000), CyclePoints(3))
}

func TestCyclePolicies(t *testing.T) {
	first := FirstCycleOnly{}
	assert.False(t, first.Eligible(29999, 1))
	assert.True(t, first.Eligible(30000, 1))
	assert.False(t, first.Eligible(1_000_000, 2))

	linear := LinearThreshold{}
	assert.True(t, linear.Eligible(30000, 1))
	assert.False(t, linear.Eligible(59999, 2))
	assert.True(t, linear.Eligible(60000, 2))
	assert.False(t, linear.Eligible(60000, 0))

	assert.Equal(t, "linear-threshold", CyclePolicyByName(" Linear-Threshold ").Name())
	assert.Equal(t, "first-cycle-only", CyclePolicyByName("").Name())
	assert.Equal(t, "first-cycle-only", CyclePolicyByName("unknown").Name())
}

var seededRecipient int64 = 10_000

// seedStepUp records an awarded StepUp reward for customerID without running
// the cascade that would normally produce it.
func seedStepUp(t *testing.T, db *gorm.DB, customerID uuid.UUID, points int64) {
	t.Helper()
	seededRecipient++
	require.NoError(t, db.Create(&models.StepUpReward{
		RecipientGlobalNumber: seededRecipient,
		MilestoneFactor:       500,
		RecipientCustomerID:   customerID,
		TriggerGlobalNumber:   seededRecipient * 500,
		RewardPoints:          points,
		IsAwarded:             true,
	}).Error)
}

func runInfinity(t *testing.T, e *Engine, db *gorm.DB, customerID uuid.UUID) {
	t.Helper()
	task := enqueue(t, db, models.CascadeTask{Kind: models.TaskInfinity, CustomerID: &customerID})
	require.NoError(t, e.drain(context.Background(), []models.CascadeTask{task}))
}

func TestInfinityFirstCycleOnly(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	ctx := context.Background()
	customer := createCustomer(t, db, "ivan")
	_, err := e.Ledger().EnsureWallet(ctx, customer.ID, models.OwnerCustomer)
	require.NoError(t, err)

	seedStepUp(t, db, customer.ID, 29500)
	runInfinity(t, e, db, customer.ID)

	cycles, err := e.InfinityCycles(ctx, customer.ID)
	require.NoError(t, err)
	assert.Empty(t, cycles, "below threshold")

	seedStepUp(t, db, customer.ID, 500)
	runInfinity(t, e, db, customer.ID)

	cycles, err = e.InfinityCycles(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	cycle := cycles[0]
	assert.Equal(t, 1, cycle.CycleNumber)
	assert.Equal(t, int64(4), cycle.NumbersCount)
	assert.Equal(t, int64(780000), cycle.TotalPoints)
	assert.Equal(t, int64(30000), cycle.AwardedStepUpPoints)
	assert.Equal(t, []int64{1, 2, 3, 4}, []int64(cycle.RewardNumbers))

	var minted []models.GlobalSerialNumber
	require.NoError(t, db.Where("infinity_cycle_id = ?", cycle.ID).Order("global_number asc").Find(&minted).Error)
	require.Len(t, minted, 4)
	for _, serial := range minted {
		assert.Equal(t, models.GlobalNumberInfinity, serial.Source)
		assert.Equal(t, customer.ID, serial.CustomerID)
	}

	wallet := walletOf(t, e, customer.ID, models.OwnerCustomer)
	requireDecimal(t, 780000, wallet.IncomeBalance)
	assert.Zero(t, wallet.RewardPointBalance)

	// Far past the next threshold, the default policy still stops at cycle 1.
	seedStepUp(t, db, customer.ID, 160000)
	runInfinity(t, e, db, customer.ID)

	cycles, err = e.InfinityCycles(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func TestInfinityLinearThreshold(t *testing.T) {
	e, db := newTestEngine(t, Options{CyclePolicy: LinearThreshold{}})
	ctx := context.Background()
	customer := createCustomer(t, db, "lena")
	_, err := e.Ledger().EnsureWallet(ctx, customer.ID, models.OwnerCustomer)
	require.NoError(t, err)

	seedStepUp(t, db, customer.ID, 30000)
	seedStepUp(t, db, customer.ID, 30000)
	runInfinity(t, e, db, customer.ID)

	cycles, err := e.InfinityCycles(ctx, customer.ID)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, 1, cycles[0].CycleNumber)
	assert.Equal(t, 2, cycles[1].CycleNumber)
	assert.Equal(t, int64(16), cycles[1].NumbersCount)
	assert.Len(t, cycles[1].RewardNumbers, 16)

	assert.Len(t, globalNumbersOf(t, db, customer.ID), 4+16)

	// #5, #10, #15 and #20 are cycle numbers too, so the x5 milestone of
	// #1 to #4 pays the customer 500 each.
	wallet := walletOf(t, e, customer.ID, models.OwnerCustomer)
	requireDecimal(t, 780000+3120000+4*500, wallet.IncomeBalance)

	// Nothing new unlocks until awarded points reach 90,000.
	runInfinity(t, e, db, customer.ID)
	cycles, err = e.InfinityCycles(ctx, customer.ID)
	require.NoError(t, err)
	assert.Len(t, cycles, 2)
}

func TestInfinityUnlocksThroughStepUpCascade(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates 500 Global Numbers")
	}
	e, db := newTestEngine(t, Options{})
	alice := createCustomer(t, db, "alice")
	bob := createCustomer(t, db, "bob")

	earn(t, e, alice.ID, ConversionThreshold)
	earn(t, e, bob.ID, 499*ConversionThreshold)

	// #5, #25, #125 and #500 pay alice 500 + 1500 + 3000 + 30000.
	rewards, err := e.StepUpRewards(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, rewards, 4)

	cycles, err := e.InfinityCycles(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, cycles, 1)
	assert.Equal(t, int64(4), cycles[0].NumbersCount)
	assert.Len(t, cycles[0].RewardNumbers, 4)
	assert.Equal(t, int64(35000), cycles[0].AwardedStepUpPoints)

	numbers := globalNumbersOf(t, db, alice.ID)
	require.Len(t, numbers, 5)
	assert.Equal(t, int64(1), numbers[0])
	for i := 2; i < len(numbers); i++ {
		assert.Equal(t, numbers[i-1]+1, numbers[i])
	}

	wallet := walletOf(t, e, alice.ID, models.OwnerCustomer)
	requireDecimal(t, 35000+780000, wallet.IncomeBalance)

	var counter models.GlobalNumberCounter
	require.NoError(t, db.First(&counter, "name = ?", models.GlobalCounterName).Error)
	var issued int64
	require.NoError(t, db.Model(&models.GlobalSerialNumber{}).Count(&issued).Error)
	assert.Equal(t, counter.Value, issued)
}

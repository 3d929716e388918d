package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holyloy/komarce/internal/models"
)

func TestEarnPointsConvertsEveryFullThreshold(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	customer := createCustomer(t, db, "alice")

	result := earn(t, e, customer.ID, 3200)

	assert.Equal(t, int64(3200), result.NewBalance)
	assert.Equal(t, int64(200), result.AccumulatedPoints)
	assert.Equal(t, []int64{1, 2}, result.GlobalNumbersAwarded)

	wallet := walletOf(t, e, customer.ID, models.OwnerCustomer)
	assert.Equal(t, int64(3200), wallet.RewardPointBalance)
	assert.Equal(t, int64(200), wallet.AccumulatedPoints)
	assert.Equal(t, int64(3200), wallet.TotalEarned)
	assert.Equal(t, []int64{1, 2}, globalNumbersOf(t, db, customer.ID))
}

func TestAccumulationStaysBelowThreshold(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	customer := createCustomer(t, db, "bob")

	var total int64
	for _, points := range []int64{1, 1499, 700, 2999, 1, 4500, 10, 1490} {
		result := earn(t, e, customer.ID, points)
		total += points

		assert.GreaterOrEqual(t, result.AccumulatedPoints, int64(0))
		assert.Less(t, result.AccumulatedPoints, ConversionThreshold)
		assert.Equal(t, total%ConversionThreshold, result.AccumulatedPoints)
		assert.Len(t, globalNumbersOf(t, db, customer.ID), int(total/ConversionThreshold))
	}
}

func TestEarnPointsRejectsInvalidInput(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	customer := createCustomer(t, db, "carol")
	ctx := context.Background()

	_, err := e.EarnPoints(ctx, EarnRequest{CustomerID: customer.ID, Points: 0})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = e.EarnPoints(ctx, EarnRequest{CustomerID: customer.ID, Points: -10})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = e.EarnPoints(ctx, EarnRequest{CustomerID: createMerchant(t, db, "shop").ID, Points: 10})
	assert.ErrorIs(t, err, ErrCustomerNotFound)

	var counter models.GlobalNumberCounter
	require.NoError(t, db.First(&counter, "name = ?", models.GlobalCounterName).Error)
	assert.Zero(t, counter.Value)
}

func TestConcurrentEarnsAllocateUniqueGaplessNumbers(t *testing.T) {
	e, db := newTestEngine(t, Options{})

	const customers = 8
	ids := make([]models.Customer, 0, customers)
	for i := 0; i < customers; i++ {
		ids = append(ids, createCustomer(t, db, "buyer"))
	}

	var wg sync.WaitGroup
	errs := make(chan error, customers)
	for _, c := range ids {
		wg.Add(1)
		go func(c models.Customer) {
			defer wg.Done()
			_, err := e.EarnPoints(context.Background(), EarnRequest{
				CustomerID:  c.ID,
				Points:      3000,
				Description: "concurrent earn",
			})
			errs <- err
		}(c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var numbers []int64
	require.NoError(t, db.Model(&models.GlobalSerialNumber{}).
		Order("global_number asc").
		Pluck("global_number", &numbers).Error)
	require.Len(t, numbers, customers*2)
	for i, n := range numbers {
		assert.Equal(t, int64(i+1), n)
	}

	for _, c := range ids {
		assert.Len(t, globalNumbersOf(t, db, c.ID), 2)
	}

	var counter models.GlobalNumberCounter
	require.NoError(t, db.First(&counter, "name = ?", models.GlobalCounterName).Error)
	assert.Equal(t, int64(customers*2), counter.Value)
}

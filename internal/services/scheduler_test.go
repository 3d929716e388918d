package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holyloy/komarce/internal/models"
)

func TestSweepsExpireVouchers(t *testing.T) {
	e, db := newTestEngine(t, Options{})
	customer := createCustomer(t, db, "rae")
	merchant := createMerchant(t, db, "stall")

	past := time.Now().UTC().Add(-time.Hour)
	voucher := models.ShoppingVoucher{
		CustomerID:     customer.ID,
		MerchantID:     merchant.ID,
		ConversionID:   uuid.New(),
		VoucherPoints:  6000,
		OriginalPoints: 6000,
		Ratio:          decimal.NewFromInt(1),
		Status:         models.VoucherActive,
		ExpiresAt:      &past,
	}
	require.NoError(t, db.Create(&voucher).Error)

	sched, err := e.StartSweeps(SweepConfig{VoucherInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sched.Shutdown() })

	require.Eventually(t, func() bool {
		var stored models.ShoppingVoucher
		if err := db.First(&stored, "id = ?", voucher.ID).Error; err != nil {
			return false
		}
		return stored.Status == models.VoucherExpired
	}, 2*time.Second, 20*time.Millisecond)

	assert.Len(t, sched.Jobs(), 1)
}

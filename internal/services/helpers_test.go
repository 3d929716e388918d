package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/holyloy/komarce/internal/database"
	"github.com/holyloy/komarce/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *gorm.DB) {
	t.Helper()
	db := setupTestDB(t)
	if opts.VoucherTTL == 0 {
		opts.VoucherTTL = 365 * 24 * time.Hour
	}
	return NewEngine(db, nil, opts), db
}

func createCustomer(t *testing.T, db *gorm.DB, name string) models.Customer {
	t.Helper()
	customer := models.Customer{
		FirstName:    name,
		Phone:        "+998" + uuid.NewString()[:9],
		DisplayName:  name,
		ReferralCode: uuid.NewString()[:8],
	}
	require.NoError(t, db.Create(&customer).Error)
	return customer
}

func createMerchant(t *testing.T, db *gorm.DB, name string) models.Merchant {
	t.Helper()
	merchant := models.Merchant{
		BusinessName: name,
		Phone:        "+998" + uuid.NewString()[:9],
		ReferralCode: uuid.NewString()[:8],
	}
	require.NoError(t, db.Create(&merchant).Error)
	return merchant
}

func createAdmin(t *testing.T, db *gorm.DB) models.Admin {
	t.Helper()
	admin := models.Admin{Phone: "+998" + uuid.NewString()[:9], DisplayName: "ops"}
	require.NoError(t, db.Create(&admin).Error)
	return admin
}

func refer(t *testing.T, db *gorm.DB, referrerID uuid.UUID, referrerType models.OwnerType, referred uuid.UUID) {
	t.Helper()
	require.NoError(t, db.Create(&models.Referral{
		ReferrerID:   referrerID,
		ReferrerType: referrerType,
		ReferredID:   referred,
	}).Error)
}

func earn(t *testing.T, e *Engine, customerID uuid.UUID, points int64) *EarnResult {
	t.Helper()
	result, err := e.EarnPoints(context.Background(), EarnRequest{
		CustomerID:  customerID,
		Points:      points,
		Description: "test earn",
	})
	require.NoError(t, err)
	return result
}

func walletOf(t *testing.T, e *Engine, ownerID uuid.UUID, ownerType models.OwnerType) *models.Wallet {
	t.Helper()
	wallet, err := e.Ledger().Wallet(context.Background(), ownerID, ownerType)
	require.NoError(t, err)
	return wallet
}

// enqueue persists a pending task so it can be drained directly.
func enqueue(t *testing.T, db *gorm.DB, task models.CascadeTask) models.CascadeTask {
	t.Helper()
	task.Status = models.TaskPending
	if task.RootReference == "" {
		task.RootReference = "test"
	}
	require.NoError(t, db.Create(&task).Error)
	return task
}

func requireDecimal(t *testing.T, expected int64, actual decimal.Decimal) {
	t.Helper()
	require.Truef(t, decimal.NewFromInt(expected).Equal(actual), "expected %d, got %s", expected, actual)
}

func globalNumbersOf(t *testing.T, db *gorm.DB, customerID uuid.UUID) []int64 {
	t.Helper()
	var numbers []int64
	require.NoError(t, db.Model(&models.GlobalSerialNumber{}).
		Where("customer_id = ?", customerID).
		Order("global_number asc").
		Pluck("global_number", &numbers).Error)
	return numbers
}

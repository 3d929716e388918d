package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/holyloy/komarce/internal/config"
	"github.com/holyloy/komarce/internal/database"
	"github.com/holyloy/komarce/internal/handlers"
	"github.com/holyloy/komarce/internal/models"
	"github.com/holyloy/komarce/internal/routes"
	"github.com/holyloy/komarce/internal/services"
)

type testServer struct {
	app    *fiber.App
	db     *gorm.DB
	engine *services.Engine
}

func setupServer(t *testing.T) *testServer {
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

	cfg := &config.Config{
		JWTSecret:    "test-secret",
		TokenExpires: time.Hour,
	}
	engine := services.NewEngine(db, zap.NewNop(), services.Options{})

	app := fiber.New(fiber.Config{ErrorHandler: handlers.ErrorHandler(zap.NewNop())})
	routes.Register(app, db, cfg, engine)
	return &testServer{app: app, db: db, engine: engine}
}

type envelope struct {
	Success    bool            `json:"success"`
	Error      string          `json:"error"`
	Warning    string          `json:"warning"`
	Token      string          `json:"token"`
	User       json.RawMessage `json:"user"`
	Data       json.RawMessage `json:"data"`
	Pagination json.RawMessage `json:"pagination"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

type account struct {
	ID           uuid.UUID `json:"id"`
	ReferralCode string    `json:"referral_code"`
}

func (s *testServer) registerCustomer(t *testing.T, phone, referral string) (account, string) {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"first_name":    "Test",
		"last_name":     "Customer",
		"phone":         phone,
		"password":      "secret123",
		"referral_code": referral,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var user account
	require.NoError(t, json.Unmarshal(env.User, &user))
	return user, env.Token
}

func (s *testServer) registerMerchant(t *testing.T, phone string) (account, string) {
	t.Helper()
	status, env := s.do(t, http.MethodPost, "/api/merchant/auth/register", "", map[string]string{
		"business_name": "Test Shop",
		"phone":         phone,
		"password":      "secret123",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var user account
	require.NoError(t, json.Unmarshal(env.User, &user))
	return user, env.Token
}

func (s *testServer) loginAdmin(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	created, err := database.EnsureAdmin(s.db, "+998900000001", "admin-pass")
	require.NoError(t, err)
	require.True(t, created)

	status, env := s.do(t, http.MethodPost, "/api/admin/auth/login", "", map[string]string{
		"phone":    "+998900000001",
		"password": "admin-pass",
	})
	require.Equal(t, http.StatusOK, status, env.Error)
	var user account
	require.NoError(t, json.Unmarshal(env.User, &user))
	return user.ID, env.Token
}

func TestCustomerRegisterAndLogin(t *testing.T) {
	s := setupServer(t)

	user, token := s.registerCustomer(t, "+998901112233", "")
	assert.NotEmpty(t, token)
	assert.Len(t, user.ReferralCode, 8)

	status, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"first_name": "Dup",
		"phone":      "+998901112233",
		"password":   "other",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.False(t, env.Success)

	status, _ = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"phone":    "+998901112233",
		"password": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"phone":    "+998901112233",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, env.Token)

	status, env = s.do(t, http.MethodGet, "/api/wallet", env.Token, nil)
	require.Equal(t, http.StatusOK, status)
	var summary services.WalletSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, user.ID, summary.Wallet.OwnerID)
	assert.Zero(t, summary.Wallet.RewardPointBalance)
	assert.Empty(t, summary.GlobalNumbers)
}

func TestRegisterWithReferralCode(t *testing.T) {
	s := setupServer(t)

	referrer, _ := s.registerCustomer(t, "+998901000001", "")
	merchant, _ := s.registerMerchant(t, "+998901000002")

	referred, _ := s.registerCustomer(t, "+998901000003", referrer.ReferralCode)
	var referral models.Referral
	require.NoError(t, s.db.First(&referral, "referred_id = ?", referred.ID).Error)
	assert.Equal(t, referrer.ID, referral.ReferrerID)
	assert.Equal(t, models.OwnerCustomer, referral.ReferrerType)

	viaMerchant, _ := s.registerCustomer(t, "+998901000004", merchant.ReferralCode)
	var merchantReferral models.Referral
	require.NoError(t, s.db.First(&merchantReferral, "referred_id = ?", viaMerchant.ID).Error)
	assert.Equal(t, merchant.ID, merchantReferral.ReferrerID)
	assert.Equal(t, models.OwnerMerchant, merchantReferral.ReferrerType)

	status, env := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"first_name":    "Nobody",
		"phone":         "+998901000005",
		"password":      "secret123",
		"referral_code": "ZZZZZZZZ",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown referral code", env.Error)

	var count int64
	require.NoError(t, s.db.Model(&models.Customer{}).Where("phone = ?", "+998901000005").Count(&count).Error)
	assert.Zero(t, count, "registration rolled back")
}

func TestOrderAndQRTransferFlow(t *testing.T) {
	s := setupServer(t)

	_, merchantToken := s.registerMerchant(t, "+998902000001")
	sender, senderToken := s.registerCustomer(t, "+998902000002", "")
	receiver, receiverToken := s.registerCustomer(t, "+998902000003", "")

	status, env := s.do(t, http.MethodPost, "/api/merchant/orders/complete", merchantToken, map[string]any{
		"customer_id":  sender.ID,
		"order_number": "ORD-1",
		"total_amount": 2000,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = s.do(t, http.MethodGet, "/api/wallet", senderToken, nil)
	require.Equal(t, http.StatusOK, status)
	var summary services.WalletSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(2000), summary.Wallet.RewardPointBalance)
	assert.Equal(t, int64(500), summary.Wallet.AccumulatedPoints)
	assert.Equal(t, []int64{1}, summary.GlobalNumbers)

	status, env = s.do(t, http.MethodPost, "/api/qr-transfers", senderToken, map[string]any{
		"points":             5000,
		"expiration_minutes": 10,
	})
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, services.ErrInsufficientBalance.Error(), env.Error)

	status, env = s.do(t, http.MethodPost, "/api/qr-transfers", senderToken, map[string]any{
		"points":             500,
		"expiration_minutes": 10,
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var token struct {
		Code   string `json:"code"`
		Points int64  `json:"points"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &token))
	assert.Equal(t, int64(500), token.Points)

	status, env = s.do(t, http.MethodPost, "/api/qr-transfers/redeem", senderToken, map[string]string{"code": token.Code})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrSelfTransfer.Error(), env.Error)

	status, env = s.do(t, http.MethodPost, "/api/qr-transfers/redeem", receiverToken, map[string]string{"code": token.Code})
	require.Equal(t, http.StatusOK, status, env.Error)
	var redeemed struct {
		PointsReceived int64 `json:"points_received"`
		NewBalance     int64 `json:"new_balance"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &redeemed))
	assert.Equal(t, int64(500), redeemed.PointsReceived)
	assert.Equal(t, int64(500), redeemed.NewBalance)

	status, _ = s.do(t, http.MethodPost, "/api/qr-transfers/redeem", receiverToken, map[string]string{"code": token.Code})
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/api/qr-transfers/redeem", receiverToken, map[string]string{"code": "missing"})
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodGet, "/api/wallet/transactions?limit=10", receiverToken, nil)
	require.Equal(t, http.StatusOK, status)
	var txns []models.WalletTransaction
	require.NoError(t, json.Unmarshal(env.Data, &txns))
	require.Len(t, txns, 1)
	assert.Equal(t, models.KindQRTransferIn, txns[0].Kind)
	assert.Equal(t, "500", txns[0].Amount.String())

	var stored models.QRTransferToken
	require.NoError(t, s.db.First(&stored, "code = ?", token.Code).Error)
	require.NotNil(t, stored.ReceiverID)
	assert.Equal(t, receiver.ID, *stored.ReceiverID)
}

func TestRoleGuards(t *testing.T) {
	s := setupServer(t)
	_, customerToken := s.registerCustomer(t, "+998903000001", "")
	_, merchantToken := s.registerMerchant(t, "+998903000002")

	status, env := s.do(t, http.MethodGet, "/api/wallet", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = s.do(t, http.MethodGet, "/api/wallet", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.do(t, http.MethodGet, "/api/admin/dashboard", customerToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodGet, "/api/rewards/step-up", merchantToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodPost, "/api/merchant/transfers", customerToken, map[string]any{})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(t, http.MethodGet, "/api/rewards/affiliate", merchantToken, nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestAdminEndpoints(t *testing.T) {
	s := setupServer(t)
	_, adminToken := s.loginAdmin(t)
	customer, customerToken := s.registerCustomer(t, "+998904000001", "")
	merchant, merchantToken := s.registerMerchant(t, "+998904000002")

	status, env := s.do(t, http.MethodPost, "/api/admin/points", adminToken, map[string]any{
		"recipient_id": customer.ID,
		"points":       1500,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.ErrDescriptionRequired.Error(), env.Error)

	status, env = s.do(t, http.MethodPost, "/api/admin/points", adminToken, map[string]any{
		"recipient_id": customer.ID,
		"points":           3000,
		"description":      "launch bonus",
		"transaction_type": "promotion",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)
	var earned services.EarnResult
	require.NoError(t, json.Unmarshal(env.Data, &earned))
	assert.Equal(t, []int64{1, 2}, earned.GlobalNumbersAwarded)

	var grantTxn models.WalletTransaction
	require.NoError(t, s.db.First(&grantTxn, "id = ?", earned.TransactionID).Error)
	assert.Equal(t, "promotion", grantTxn.Metadata["transaction_type"])

	status, env = s.do(t, http.MethodPost, "/api/admin/points", adminToken, map[string]any{
		"recipient_id":   merchant.ID,
		"recipient_type": "merchant",
		"points":         1000,
		"description":    "float",
	})
	require.Equal(t, http.StatusCreated, status, env.Error)

	status, env = s.do(t, http.MethodPost, "/api/merchant/transfers", merchantToken, map[string]any{
		"customer_id": customer.ID,
		"points":      400,
	})
	require.Equal(t, http.StatusOK, status, env.Error)

	status, env = s.do(t, http.MethodGet, "/api/wallet", merchantToken, nil)
	require.Equal(t, http.StatusOK, status)
	var summary services.WalletSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, int64(600), summary.Wallet.RewardPointBalance)
	assert.Equal(t, "40", summary.Wallet.IncomeBalance.String())

	status, env = s.do(t, http.MethodGet, "/api/admin/dashboard", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		TotalCustomers      int64  `json:"total_customers"`
		GlobalNumbersIssued int64  `json:"global_numbers_issued"`
		Policy              string `json:"infinity_cycle_policy"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, int64(1), stats.TotalCustomers)
	assert.Equal(t, int64(2), stats.GlobalNumbersIssued)
	assert.Equal(t, "first-cycle-only", stats.Policy)

	status, env = s.do(t, http.MethodGet, "/api/admin/cash-outs", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	var requests []models.CashOutRequest
	require.NoError(t, json.Unmarshal(env.Data, &requests))
	assert.Empty(t, requests)

	status, env = s.do(t, http.MethodPost, "/api/vouchers/cash-out", customerToken, map[string]any{"amount": 100})
	assert.Equal(t, http.StatusPaymentRequired, status, env.Error)

	status, _ = s.do(t, http.MethodPost, "/api/admin/cash-outs/"+uuid.NewString()+"/approve", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, env = s.do(t, http.MethodPost, "/api/admin/cascades/redrive", adminToken, nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

func TestHealthz(t *testing.T) {
	s := setupServer(t)
	status, env := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.True(t, env.Success)
}

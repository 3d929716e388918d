package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/config"
	"github.com/holyloy/komarce/internal/handlers"
	"github.com/holyloy/komarce/internal/middleware"
	"github.com/holyloy/komarce/internal/services"
	"github.com/holyloy/komarce/internal/utils"
)

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, cfg *config.Config, engine *services.Engine) {
	authHandler := handlers.NewAuthHandler(db, cfg, engine.Ledger())
	profileHandler := handlers.NewProfileHandler(db)
	walletHandler := handlers.NewWalletHandler(engine)
	rewardHandler := handlers.NewRewardHandler(engine)
	voucherHandler := handlers.NewVoucherHandler(engine)
	qrHandler := handlers.NewQRTransferHandler(engine)
	orderHandler := handlers.NewOrderHandler(db, engine)
	adminHandler := handlers.NewAdminHandler(db, engine)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.UserContext())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unavailable")
		}
		return c.JSON(fiber.Map{"success": true, "status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)

	merchantAuth := api.Group("/merchant/auth")
	merchantAuth.Post("/register", authHandler.RegisterMerchant)
	merchantAuth.Post("/login", authHandler.LoginMerchant)

	api.Post("/admin/auth/login", authHandler.LoginAdmin)

	// Protected routes
	protected := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret))
	customer := middleware.RequireRole(utils.RoleCustomer)
	merchant := middleware.RequireRole(utils.RoleMerchant)
	holder := middleware.RequireRole(utils.RoleCustomer, utils.RoleMerchant)
	admin := middleware.RequireRole(utils.RoleAdmin)

	qrLimit := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := middleware.GetCurrentAccountID(c); ok {
				return id.String()
			}
			return c.IP()
		},
	})

	protected.Get("/profile", profileHandler.GetProfile)

	protected.Get("/wallet", holder, walletHandler.GetWallet)
	protected.Get("/wallet/transactions", holder, walletHandler.ListTransactions)

	rewards := protected.Group("/rewards")
	rewards.Get("/step-up", customer, rewardHandler.StepUp)
	rewards.Get("/ripple", holder, rewardHandler.Ripple)
	rewards.Get("/infinity", customer, rewardHandler.Infinity)
	rewards.Get("/affiliate", holder, rewardHandler.Affiliate)

	protected.Get("/vouchers", customer, voucherHandler.ListVouchers)
	protected.Post("/vouchers/cash-out", customer, voucherHandler.RequestCashOut)

	protected.Post("/qr-transfers", customer, qrLimit, qrHandler.Generate)
	protected.Post("/qr-transfers/redeem", customer, qrLimit, qrHandler.Redeem)

	merchantAPI := protected.Group("/merchant", merchant)
	merchantAPI.Post("/qr-transfers", qrLimit, qrHandler.Generate)
	merchantAPI.Post("/transfers", orderHandler.Transfer)
	merchantAPI.Post("/orders/complete", orderHandler.CompleteOrder)
	merchantAPI.Get("/orders", orderHandler.ListOrders)

	adminAPI := protected.Group("/admin", admin)
	adminAPI.Get("/dashboard", adminHandler.DashboardStats)
	adminAPI.Get("/customers", adminHandler.ListCustomers)
	adminAPI.Post("/points", adminHandler.GrantPoints)
	adminAPI.Get("/cash-outs", adminHandler.ListCashOuts)
	adminAPI.Post("/cash-outs/:id/approve", adminHandler.ApproveCashOut)
	adminAPI.Post("/cash-outs/:id/reject", adminHandler.RejectCashOut)
	adminAPI.Post("/cascades/redrive", adminHandler.Redrive)
}

package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/holyloy/komarce/internal/config"
	"github.com/holyloy/komarce/internal/database"
	"github.com/holyloy/komarce/internal/handlers"
	"github.com/holyloy/komarce/internal/logger"
	"github.com/holyloy/komarce/internal/metrics"
	"github.com/holyloy/komarce/internal/routes"
	"github.com/holyloy/komarce/internal/services"
)

func main() {
	cfg := config.Load()

	logg, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	db, err := database.Connect(cfg.DatabaseURL, logg)
	if err != nil {
		logg.Fatal("database unavailable", zap.Error(err))
	}

	if created, err := database.EnsureAdmin(db, cfg.AdminBootstrapPhone, cfg.AdminBootstrapPassword); err != nil {
		logg.Fatal("failed to bootstrap admin", zap.Error(err))
	} else if created {
		logg.Info("bootstrap admin created", zap.String("phone", cfg.AdminBootstrapPhone))
	}

	opts := services.Options{
		CyclePolicy:           services.CyclePolicyByName(cfg.InfinityCyclePolicy),
		VoucherTTL:            cfg.VoucherTTL,
		QRMaxExpiration:       cfg.QRMaxExpiration,
		MaxTaskAttempts:       cfg.CascadeMaxAttempts,
		PointsPerCurrencyUnit: cfg.PointsPerCurrencyUnit,
		Metrics:               metrics.Default(),
	}
	if tg := services.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramAdminChatID); tg != nil {
		opts.Notifier = tg
	} else {
		logg.Info("telegram notifications disabled")
	}
	engine := services.NewEngine(db, logg, opts)

	sched, err := engine.StartSweeps(services.SweepConfig{
		CascadeInterval: cfg.CascadeSweepInterval,
		CascadeMinAge:   cfg.CascadeSweepInterval,
		CascadeBatch:    100,
		VoucherInterval: cfg.VoucherSweepInterval,
	})
	if err != nil {
		logg.Fatal("failed to start sweeps", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		AppName:      "KOMARCE Rewards",
		ErrorHandler: handlers.ErrorHandler(logg),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	routes.Register(app, db, cfg, engine)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logg.Info("shutting down")
		if err := sched.Shutdown(); err != nil {
			logg.Warn("scheduler shutdown", zap.Error(err))
		}
		_ = app.Shutdown()
	}()

	logg.Info("starting server",
		zap.String("port", cfg.AppPort),
		zap.String("infinity_policy", engine.Policy().Name()))
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		logg.Fatal("fiber.Listen error", zap.Error(err))
	}
}

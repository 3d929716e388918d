package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/config"
	"github.com/holyloy/komarce/internal/database"
	"github.com/holyloy/komarce/internal/logger"
	"github.com/holyloy/komarce/internal/services"
)

var globalFlags struct {
	DatabaseURL string
	LogLevel    string
	Pretty      bool
}

// rootCmd is the operator tool for the rewards database.
var rootCmd = &cobra.Command{
	Use:           "loyaltyctl",
	Short:         "Operate the KOMARCE reward points ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&globalFlags.DatabaseURL, "database-url", "", "Postgres DSN (default: $DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&globalFlags.LogLevel, "log-level", "", "log level (default: $LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&globalFlags.Pretty, "pretty", false, "indent JSON output")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(redriveCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(summaryCmd)
}

type runtime struct {
	cfg    *config.Config
	log    *zap.Logger
	db     *gorm.DB
	engine *services.Engine
}

// openRuntime connects to the database and builds an engine configured the
// same way as the server.
func openRuntime() (*runtime, error) {
	cfg := config.Read()
	if globalFlags.DatabaseURL != "" {
		cfg.DatabaseURL = globalFlags.DatabaseURL
	}
	if globalFlags.LogLevel != "" {
		cfg.LogLevel = globalFlags.LogLevel
	}

	logg, err := logger.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg.DatabaseURL, logg)
	if err != nil {
		return nil, err
	}

	engine := services.NewEngine(db, logg, services.Options{
		CyclePolicy:           services.CyclePolicyByName(cfg.InfinityCyclePolicy),
		VoucherTTL:            cfg.VoucherTTL,
		QRMaxExpiration:       cfg.QRMaxExpiration,
		MaxTaskAttempts:       cfg.CascadeMaxAttempts,
		PointsPerCurrencyUnit: cfg.PointsPerCurrencyUnit,
	})
	return &runtime{cfg: cfg, log: logg, db: db, engine: engine}, nil
}

func (r *runtime) close() {
	_ = r.log.Sync()
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if globalFlags.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

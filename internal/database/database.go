package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/holyloy/komarce/internal/models"
)

// Connect opens the Postgres database, creating it first when missing, and
// runs migrations.
func Connect(dsn string, log *zap.Logger) (*gorm.DB, error) {
	if err := ensureDatabase(dsn); err != nil {
		return nil, fmt.Errorf("ensure database: %w", err)
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := conn.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		log.Warn("failed to ensure uuid-ossp extension", zap.Error(err))
	}

	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return conn, nil
}

// Migrate creates or updates every table and seeds the Global Number counter.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.Customer{},
		&models.Merchant{},
		&models.Admin{},
		&models.Referral{},
		&models.Order{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.GlobalNumberCounter{},
		&models.GlobalSerialNumber{},
		&models.StepUpReward{},
		&models.RippleReward{},
		&models.InfinityCycle{},
		&models.AffiliateCommission{},
		&models.InstantCashback{},
		&models.ShoppingVoucher{},
		&models.VoucherConversion{},
		&models.CashOutRequest{},
		&models.QRTransferToken{},
		&models.CascadeTask{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}

	return seedCounter(conn)
}

func seedCounter(conn *gorm.DB) error {
	var counter models.GlobalNumberCounter
	err := conn.Where("name = ?", models.GlobalCounterName).First(&counter).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return conn.Create(&models.GlobalNumberCounter{Name: models.GlobalCounterName}).Error
}

func ensureDatabase(dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" {
		return nil
	}

	parsed.Path = "/postgres"
	masterDSN := parsed.String()

	sqlDB, err := sql.Open("postgres", masterDSN)
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		return err
	}

	var exists bool
	if err := sqlDB.QueryRow("SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}

	if exists {
		return nil
	}

	_, err = sqlDB.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName))
	return err
}

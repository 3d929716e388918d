package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/holyloy/komarce/internal/models"
)

// Entry describes why a balance moves. It becomes the WalletTransaction row.
type Entry struct {
	Kind        models.TransactionKind
	ReferenceID string
	Description string
	MerchantID  *uuid.UUID
	Metadata    map[string]any
}

// Ledger is the durable store of wallets and their append-only transactions.
// Every mutation updates the wallet and writes its WalletTransaction in one
// database transaction.
type Ledger struct {
	db *gorm.DB
}

// NewLedger constructs a Ledger on top of db.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// EnsureWallet returns the owner's wallet, creating an empty one on first access.
func (l *Ledger) EnsureWallet(ctx context.Context, ownerID uuid.UUID, ownerType models.OwnerType) (*models.Wallet, error) {
	return ensureWallet(l.db.WithContext(ctx), ownerID, ownerType)
}

// Wallet loads the owner's wallet. A missing wallet is ErrWalletNotFound.
func (l *Ledger) Wallet(ctx context.Context, ownerID uuid.UUID, ownerType models.OwnerType) (*models.Wallet, error) {
	var wallet models.Wallet
	err := l.db.WithContext(ctx).
		Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// CreditPoints adds reward points to a wallet. It does not run the Global
// Number conversion; customer earnings go through Engine.EarnPoints.
func (l *Ledger) CreditPoints(ctx context.Context, walletID uuid.UUID, points int64, entry Entry) (*models.WalletTransaction, error) {
	return l.mutate(ctx, walletID, func(tx *gorm.DB, wallet *models.Wallet) (*models.WalletTransaction, error) {
		return applyPoints(tx, wallet, models.TransactionCredit, points, entry)
	})
}

// DebitPoints removes reward points. It fails with ErrInsufficientBalance and
// writes nothing when the balance is too low.
func (l *Ledger) DebitPoints(ctx context.Context, walletID uuid.UUID, points int64, entry Entry) (*models.WalletTransaction, error) {
	return l.mutate(ctx, walletID, func(tx *gorm.DB, wallet *models.Wallet) (*models.WalletTransaction, error) {
		return applyPoints(tx, wallet, models.TransactionDebit, points, entry)
	})
}

// CreditIncome adds a currency-equivalent amount to the income balance.
func (l *Ledger) CreditIncome(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, entry Entry) (*models.WalletTransaction, error) {
	return l.mutate(ctx, walletID, func(tx *gorm.DB, wallet *models.Wallet) (*models.WalletTransaction, error) {
		return applyIncome(tx, wallet, models.TransactionCredit, amount, entry)
	})
}

// DebitIncome removes a currency-equivalent amount from the income balance.
func (l *Ledger) DebitIncome(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, entry Entry) (*models.WalletTransaction, error) {
	return l.mutate(ctx, walletID, func(tx *gorm.DB, wallet *models.Wallet) (*models.WalletTransaction, error) {
		return applyIncome(tx, wallet, models.TransactionDebit, amount, entry)
	})
}

func (l *Ledger) mutate(ctx context.Context, walletID uuid.UUID, fn func(tx *gorm.DB, wallet *models.Wallet) (*models.WalletTransaction, error)) (*models.WalletTransaction, error) {
	var result *models.WalletTransaction
	err := withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			wallet, err := lockWallet(tx, walletID)
			if err != nil {
				return err
			}
			txn, err := fn(tx, wallet)
			if err != nil {
				return err
			}
			result = txn
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func ensureWallet(db *gorm.DB, ownerID uuid.UUID, ownerType models.OwnerType) (*models.Wallet, error) {
	var wallet models.Wallet
	err := db.Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).Take(&wallet).Error
	if err == nil {
		return &wallet, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return createWallet(db, ownerID, ownerType)
}

// createWallet inserts an empty wallet unless a concurrent first access won
// the race, then reads back whichever row exists.
func createWallet(db *gorm.DB, ownerID uuid.UUID, ownerType models.OwnerType) (*models.Wallet, error) {
	fresh := models.Wallet{
		OwnerID:       ownerID,
		OwnerType:     ownerType,
		IncomeBalance: decimal.Zero,
		TotalIncome:   decimal.Zero,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "owner_type"}},
		DoNothing: true,
	}).Create(&fresh).Error; err != nil {
		return nil, err
	}

	var wallet models.Wallet
	if err := db.Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).Take(&wallet).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func lockWallet(tx *gorm.DB, walletID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&wallet, "id = ?", walletID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

func lockWalletByOwner(tx *gorm.DB, ownerID uuid.UUID, ownerType models.OwnerType) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		First(&wallet).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

type walletOwner struct {
	ID   uuid.UUID
	Type models.OwnerType
}

// lockWalletsOrdered locks several wallets in ascending wallet id order so
// concurrent multi-wallet transactions cannot deadlock.
func lockWalletsOrdered(tx *gorm.DB, owners []walletOwner) (map[walletOwner]*models.Wallet, error) {
	rows := make([]models.Wallet, 0, len(owners))
	for _, owner := range owners {
		var row models.Wallet
		err := tx.Select("id", "owner_id", "owner_type").
			Where("owner_id = ? AND owner_type = ?", owner.ID, owner.Type).
			First(&row).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrWalletNotFound
			}
			return nil, err
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		return strings.Compare(rows[i].ID.String(), rows[j].ID.String()) < 0
	})

	locked := make(map[walletOwner]*models.Wallet, len(rows))
	for _, row := range rows {
		key := walletOwner{ID: row.OwnerID, Type: row.OwnerType}
		if _, ok := locked[key]; ok {
			continue
		}
		wallet, err := lockWallet(tx, row.ID)
		if err != nil {
			return nil, err
		}
		locked[key] = wallet
	}
	return locked, nil
}

// applyPoints mutates the reward-point balance of an already locked wallet and
// appends the matching WalletTransaction.
func applyPoints(tx *gorm.DB, wallet *models.Wallet, typ models.TransactionType, points int64, entry Entry) (*models.WalletTransaction, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}

	switch typ {
	case models.TransactionCredit:
		wallet.RewardPointBalance += points
		wallet.TotalEarned += points
	case models.TransactionDebit:
		if wallet.RewardPointBalance < points {
			return nil, ErrInsufficientBalance
		}
		wallet.RewardPointBalance -= points
		if isTransferKind(entry.Kind) {
			wallet.TotalTransferred += points
		} else {
			wallet.TotalSpent += points
		}
	}

	if err := tx.Model(wallet).Updates(map[string]any{
		"reward_point_balance": wallet.RewardPointBalance,
		"total_earned":         wallet.TotalEarned,
		"total_spent":          wallet.TotalSpent,
		"total_transferred":    wallet.TotalTransferred,
	}).Error; err != nil {
		return nil, err
	}

	return appendTransaction(tx, wallet, models.AccountRewardPoints, typ,
		decimal.NewFromInt(points), decimal.NewFromInt(wallet.RewardPointBalance), entry)
}

// applyIncome mutates the income balance of an already locked wallet.
func applyIncome(tx *gorm.DB, wallet *models.Wallet, typ models.TransactionType, amount decimal.Decimal, entry Entry) (*models.WalletTransaction, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	switch typ {
	case models.TransactionCredit:
		wallet.IncomeBalance = wallet.IncomeBalance.Add(amount)
		wallet.TotalIncome = wallet.TotalIncome.Add(amount)
	case models.TransactionDebit:
		if wallet.IncomeBalance.LessThan(amount) {
			return nil, ErrInsufficientBalance
		}
		wallet.IncomeBalance = wallet.IncomeBalance.Sub(amount)
	}

	if err := tx.Model(wallet).Updates(map[string]any{
		"income_balance": wallet.IncomeBalance,
		"total_income":   wallet.TotalIncome,
	}).Error; err != nil {
		return nil, err
	}

	return appendTransaction(tx, wallet, models.AccountIncome, typ, amount, wallet.IncomeBalance, entry)
}

func appendTransaction(tx *gorm.DB, wallet *models.Wallet, account models.LedgerAccount, typ models.TransactionType, amount, balanceAfter decimal.Decimal, entry Entry) (*models.WalletTransaction, error) {
	txn := models.WalletTransaction{
		WalletID:     wallet.ID,
		Account:      account,
		Type:         typ,
		Kind:         entry.Kind,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Description:  entry.Description,
		ReferenceID:  entry.ReferenceID,
		MerchantID:   entry.MerchantID,
	}
	if len(entry.Metadata) > 0 {
		txn.Metadata = datatypes.JSONMap(entry.Metadata)
	}
	if err := tx.Create(&txn).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func isTransferKind(kind models.TransactionKind) bool {
	return kind == models.KindQRTransferOut || kind == models.KindMerchantTransferOut
}

func pointsDecimal(points int64) decimal.Decimal {
	return decimal.NewFromInt(points)
}

// percentOf returns pct percent of points as an exact decimal.
func percentOf(points, pct int64) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100))
}

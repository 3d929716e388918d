package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/holyloy/komarce/internal/metrics"
	"github.com/holyloy/komarce/internal/models"
)

// Options tunes an Engine. Zero values fall back to defaults.
type Options struct {
	CyclePolicy           CyclePolicy
	VoucherTTL            time.Duration
	QRMaxExpiration       time.Duration
	MaxTaskAttempts       int
	PointsPerCurrencyUnit int64
	Metrics               *metrics.Loyalty
	Notifier              AdminNotifier
	Now                   func() time.Time
}

// Engine runs the reward point ledger and every incentive cascade on top of
// one database.
type Engine struct {
	db       *gorm.DB
	log      *zap.Logger
	metrics  *metrics.Loyalty
	notifier AdminNotifier
	ledger   *Ledger
	policy   CyclePolicy
	opts     Options
}

// NewEngine wires an Engine. A nil logger discards output, nil metrics are
// not recorded and a nil notifier sends nothing.
func NewEngine(db *gorm.DB, log *zap.Logger, opts Options) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CyclePolicy == nil {
		opts.CyclePolicy = FirstCycleOnly{}
	}
	if opts.QRMaxExpiration <= 0 {
		opts.QRMaxExpiration = 24 * time.Hour
	}
	if opts.MaxTaskAttempts <= 0 {
		opts.MaxTaskAttempts = 10
	}
	if opts.PointsPerCurrencyUnit <= 0 {
		opts.PointsPerCurrencyUnit = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		db:       db,
		log:      log.Named("engine"),
		metrics:  opts.Metrics,
		notifier: opts.Notifier,
		ledger:   NewLedger(db),
		policy:   opts.CyclePolicy,
		opts:     opts,
	}
}

// Ledger exposes the underlying wallet store.
func (e *Engine) Ledger() *Ledger {
	return e.ledger
}

// Policy is the Infinity cycle policy in use.
func (e *Engine) Policy() CyclePolicy {
	return e.policy
}

func (e *Engine) now() time.Time {
	return e.opts.Now().UTC()
}

// EarnRequest is one reward point credit to a customer.
type EarnRequest struct {
	CustomerID  uuid.UUID
	Points      int64
	Description string
	Kind        models.TransactionKind
	ReferenceID string
	MerchantID  *uuid.UUID
	Metadata    map[string]any
}

// EarnResult reports the customer's state once the credit committed.
type EarnResult struct {
	TransactionID        uuid.UUID `json:"transaction_id"`
	NewBalance           int64     `json:"new_balance"`
	AccumulatedPoints    int64     `json:"accumulated_points"`
	GlobalNumbersAwarded []int64   `json:"global_numbers_awarded"`
}

// EarnPoints credits a customer and runs the resulting cascade to completion.
//
// The credit, the Global Number conversion and the first wave of cascade
// tasks commit together. When a later task fails the result is still
// returned together with an error wrapping ErrCascadeIncomplete.
func (e *Engine) EarnPoints(ctx context.Context, req EarnRequest) (*EarnResult, error) {
	if req.Points <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.Kind == "" {
		req.Kind = models.KindEarn
	}
	ctx = context.WithoutCancel(ctx)

	var (
		result *EarnResult
		seeds  []models.CascadeTask
	)
	err := withRetry(ctx, func() error {
		result, seeds = nil, nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireCustomer(tx, req.CustomerID); err != nil {
				return err
			}
			wallet, err := ensureWallet(tx, req.CustomerID, models.OwnerCustomer)
			if err != nil {
				return err
			}
			if wallet, err = lockWallet(tx, wallet.ID); err != nil {
				return err
			}

			q := newTaskQueue(tx, "")
			result, err = e.earnTx(q, wallet, req.Points, Entry{
				Kind:        req.Kind,
				ReferenceID: req.ReferenceID,
				Description: req.Description,
				MerchantID:  req.MerchantID,
				Metadata:    req.Metadata,
			})
			if err != nil {
				return err
			}
			seeds = q.created
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, e.finishCascade(ctx, seeds)
}

// earnTx is the earn path shared by every reward point credit to a customer:
// credit, affiliate commission, Global Number conversion and the voucher
// check. wallet must already be locked.
func (e *Engine) earnTx(q *taskQueue, wallet *models.Wallet, points int64, entry Entry) (*EarnResult, error) {
	txn, err := applyPoints(q.tx, wallet, models.TransactionCredit, points, entry)
	if err != nil {
		return nil, err
	}
	if q.root == "" {
		q.root = txn.ID.String()
	}

	referral, err := findReferral(q.tx, wallet.OwnerID)
	if err != nil {
		return nil, err
	}
	if referral != nil {
		customerID := wallet.OwnerID
		if err := q.push(models.CascadeTask{
			Kind:            models.TaskAffiliate,
			CustomerID:      &customerID,
			Points:          points,
			SourceReference: txn.ID.String(),
		}); err != nil {
			return nil, err
		}
	}

	minted, err := e.maybeConvert(q, wallet, points)
	if err != nil {
		return nil, err
	}

	if wallet.TotalEarned >= VoucherLifetimeThreshold {
		var converted int64
		if err := q.tx.Model(&models.VoucherConversion{}).
			Where("customer_id = ?", wallet.OwnerID).
			Count(&converted).Error; err != nil {
			return nil, err
		}
		if converted == 0 {
			customerID := wallet.OwnerID
			if err := q.push(models.CascadeTask{
				Kind:       models.TaskVoucher,
				CustomerID: &customerID,
			}); err != nil {
				return nil, err
			}
		}
	}

	numbers := make([]int64, 0, len(minted))
	for _, serial := range minted {
		numbers = append(numbers, serial.GlobalNumber)
	}
	return &EarnResult{
		TransactionID:        txn.ID,
		NewBalance:           wallet.RewardPointBalance,
		AccumulatedPoints:    wallet.AccumulatedPoints,
		GlobalNumbersAwarded: numbers,
	}, nil
}

func (e *Engine) finishCascade(ctx context.Context, seeds []models.CascadeTask) error {
	if err := e.drain(ctx, seeds); err != nil {
		return fmt.Errorf("%w: %v", ErrCascadeIncomplete, err)
	}
	return nil
}

// AdminGrant is a manual point grant by an administrator. TransactionType is
// recorded in the transaction metadata and defaults to DefaultGrantType.
type AdminGrant struct {
	AdminID         uuid.UUID
	RecipientID     uuid.UUID
	RecipientType   models.OwnerType
	Points          int64
	Description     string
	TransactionType string
}

// DefaultGrantType labels admin grants that name no transaction type.
const DefaultGrantType = "admin_generated"

// AdminGeneratePoints credits points on behalf of an administrator. Customer
// grants go through the earn path; merchant grants are a plain ledger credit.
func (e *Engine) AdminGeneratePoints(ctx context.Context, grant AdminGrant) (*EarnResult, error) {
	description := strings.TrimSpace(grant.Description)
	if description == "" {
		return nil, ErrDescriptionRequired
	}
	if grant.Points <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := requireAdmin(e.db.WithContext(ctx), grant.AdminID); err != nil {
		return nil, err
	}

	transactionType := strings.TrimSpace(grant.TransactionType)
	if transactionType == "" {
		transactionType = DefaultGrantType
	}
	metadata := map[string]any{
		"admin_id":         grant.AdminID.String(),
		"transaction_type": transactionType,
	}

	var (
		result *EarnResult
		err    error
	)
	switch grant.RecipientType {
	case models.OwnerCustomer:
		result, err = e.EarnPoints(ctx, EarnRequest{
			CustomerID:  grant.RecipientID,
			Points:      grant.Points,
			Description: description,
			Kind:        models.KindAdminGrant,
			Metadata:    metadata,
		})
	case models.OwnerMerchant:
		result, err = e.grantMerchant(ctx, grant.RecipientID, grant.Points, description, metadata)
	default:
		return nil, fmt.Errorf("unknown recipient type %q", grant.RecipientType)
	}
	if result != nil {
		e.log.Info("admin granted points",
			zap.String("admin_id", grant.AdminID.String()),
			zap.String("recipient_id", grant.RecipientID.String()),
			zap.String("recipient_type", string(grant.RecipientType)),
			zap.Int64("points", grant.Points))
	}
	return result, err
}

func (e *Engine) grantMerchant(ctx context.Context, merchantID uuid.UUID, points int64, description string, metadata map[string]any) (*EarnResult, error) {
	if err := requireMerchant(e.db.WithContext(ctx), merchantID); err != nil {
		return nil, err
	}
	wallet, err := e.ledger.EnsureWallet(ctx, merchantID, models.OwnerMerchant)
	if err != nil {
		return nil, err
	}
	txn, err := e.ledger.CreditPoints(ctx, wallet.ID, points, Entry{
		Kind:        models.KindAdminGrant,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return nil, err
	}
	return &EarnResult{
		TransactionID:        txn.ID,
		NewBalance:           txn.BalanceAfter.IntPart(),
		GlobalNumbersAwarded: []int64{},
	}, nil
}

// MerchantTransfer moves points from a merchant wallet straight to a
// customer. The customer side takes the earn path and the merchant receives
// instant cashback.
func (e *Engine) MerchantTransfer(ctx context.Context, merchantID, customerID uuid.UUID, points int64, description string) (*EarnResult, error) {
	if points <= 0 {
		return nil, ErrInvalidAmount
	}
	if description == "" {
		description = fmt.Sprintf("Transfer of %d points from merchant", points)
	}
	ctx = context.WithoutCancel(ctx)

	var (
		result *EarnResult
		seeds  []models.CascadeTask
	)
	err := withRetry(ctx, func() error {
		result, seeds = nil, nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireMerchant(tx, merchantID); err != nil {
				return err
			}
			if err := requireCustomer(tx, customerID); err != nil {
				return err
			}
			if _, err := ensureWallet(tx, customerID, models.OwnerCustomer); err != nil {
				return err
			}
			if _, err := ensureWallet(tx, merchantID, models.OwnerMerchant); err != nil {
				return err
			}

			merchantKey := walletOwner{ID: merchantID, Type: models.OwnerMerchant}
			customerKey := walletOwner{ID: customerID, Type: models.OwnerCustomer}
			wallets, err := lockWalletsOrdered(tx, []walletOwner{merchantKey, customerKey})
			if err != nil {
				return err
			}

			debit, err := applyPoints(tx, wallets[merchantKey], models.TransactionDebit, points, Entry{
				Kind:        models.KindMerchantTransferOut,
				Description: description,
				MerchantID:  &merchantID,
			})
			if err != nil {
				return err
			}

			q := newTaskQueue(tx, debit.ID.String())
			result, err = e.earnTx(q, wallets[customerKey], points, Entry{
				Kind:        models.KindMerchantTransferIn,
				ReferenceID: debit.ID.String(),
				Description: description,
				MerchantID:  &merchantID,
			})
			if err != nil {
				return err
			}

			if err := q.push(models.CascadeTask{
				Kind:            models.TaskCashback,
				CustomerID:      &customerID,
				MerchantID:      &merchantID,
				Points:          points,
				SourceReference: debit.ID.String(),
			}); err != nil {
				return err
			}
			seeds = q.created
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, e.finishCascade(ctx, seeds)
}

// OrderCompletion is a merchant reporting a finished purchase.
type OrderCompletion struct {
	MerchantID  uuid.UUID
	CustomerID  uuid.UUID
	OrderNumber string
	TotalAmount decimal.Decimal
	Currency    string
	Notes       string
}

// CompleteOrder records a completed order and credits the customer with
// floor(total * PointsPerCurrencyUnit) points.
func (e *Engine) CompleteOrder(ctx context.Context, in OrderCompletion) (*models.Order, *EarnResult, error) {
	if !in.TotalAmount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if strings.TrimSpace(in.OrderNumber) == "" {
		return nil, nil, ErrOrderNumberRequired
	}
	points := in.TotalAmount.Mul(decimal.NewFromInt(e.opts.PointsPerCurrencyUnit)).Floor().IntPart()
	ctx = context.WithoutCancel(ctx)

	var (
		order  models.Order
		result *EarnResult
		seeds  []models.CascadeTask
	)
	err := withRetry(ctx, func() error {
		result, seeds = nil, nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := requireMerchant(tx, in.MerchantID); err != nil {
				return err
			}
			if err := requireCustomer(tx, in.CustomerID); err != nil {
				return err
			}

			order = models.Order{
				CustomerID:    in.CustomerID,
				MerchantID:    in.MerchantID,
				OrderNumber:   in.OrderNumber,
				Status:        models.OrderStatusCompleted,
				PlacedAt:      e.now(),
				TotalAmount:   in.TotalAmount,
				Currency:      in.Currency,
				PointsAwarded: points,
				Notes:         in.Notes,
			}
			if err := tx.Omit("Customer", "Merchant").Create(&order).Error; err != nil {
				return err
			}
			if points <= 0 {
				return nil
			}

			wallet, err := ensureWallet(tx, in.CustomerID, models.OwnerCustomer)
			if err != nil {
				return err
			}
			if wallet, err = lockWallet(tx, wallet.ID); err != nil {
				return err
			}

			merchantID := in.MerchantID
			q := newTaskQueue(tx, order.ID.String())
			result, err = e.earnTx(q, wallet, points, Entry{
				Kind:        models.KindEarn,
				ReferenceID: order.ID.String(),
				Description: fmt.Sprintf("Order %s completed", order.OrderNumber),
				MerchantID:  &merchantID,
				Metadata:    map[string]any{"order_number": order.OrderNumber},
			})
			if err != nil {
				return err
			}
			seeds = q.created
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	e.log.Info("order completed",
		zap.String("order_id", order.ID.String()),
		zap.String("merchant_id", in.MerchantID.String()),
		zap.Int64("points", points))
	return &order, result, e.finishCascade(ctx, seeds)
}

func requireCustomer(db *gorm.DB, id uuid.UUID) error {
	return requireRow(db, &models.Customer{}, id, ErrCustomerNotFound)
}

func requireMerchant(db *gorm.DB, id uuid.UUID) error {
	return requireRow(db, &models.Merchant{}, id, ErrMerchantNotFound)
}

func requireAdmin(db *gorm.DB, id uuid.UUID) error {
	return requireRow(db, &models.Admin{}, id, ErrAdminNotFound)
}

func requireRow(db *gorm.DB, model any, id uuid.UUID, missing error) error {
	var count int64
	if err := db.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return missing
	}
	return nil
}

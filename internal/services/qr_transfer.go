package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/holyloy/komarce/internal/models"
)

// QRRedemption is the outcome of redeeming a transfer code.
type QRRedemption struct {
	Token          models.QRTransferToken `json:"token"`
	PointsReceived int64                  `json:"points_received"`
	Earn           *EarnResult            `json:"earn"`
}

// GenerateQRTransfer issues a single-use code worth points from the sender's
// wallet. The balance is checked now but not reserved; Redeem checks again.
func (e *Engine) GenerateQRTransfer(ctx context.Context, senderID uuid.UUID, senderType models.OwnerType, points int64, expiresIn time.Duration) (*models.QRTransferToken, error) {
	if points < 1 {
		return nil, ErrInvalidAmount
	}
	if expiresIn < time.Minute || expiresIn > e.opts.QRMaxExpiration {
		return nil, ErrInvalidExpiration
	}
	if !senderType.Valid() {
		return nil, fmt.Errorf("unknown sender type %q", senderType)
	}

	wallet, err := e.ledger.EnsureWallet(ctx, senderID, senderType)
	if err != nil {
		return nil, err
	}
	if wallet.RewardPointBalance < points {
		return nil, ErrInsufficientBalance
	}

	code, err := newTransferCode()
	if err != nil {
		return nil, err
	}

	token := models.QRTransferToken{
		Code:           code,
		SenderWalletID: wallet.ID,
		SenderID:       senderID,
		SenderType:     senderType,
		Points:         points,
		ExpiresAt:      e.now().Add(expiresIn),
	}
	if err := e.db.WithContext(ctx).Create(&token).Error; err != nil {
		return nil, err
	}
	return &token, nil
}

// RedeemQRTransfer moves the token's points from the sender to receiverID.
// Debit, credit through the earn path and marking the token used commit
// together; any failure leaves the token redeemable.
func (e *Engine) RedeemQRTransfer(ctx context.Context, code string, receiverID uuid.UUID) (*QRRedemption, error) {
	ctx = context.WithoutCancel(ctx)

	var (
		redemption *QRRedemption
		seeds      []models.CascadeTask
	)
	err := withRetry(ctx, func() error {
		redemption, seeds = nil, nil
		return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var token models.QRTransferToken
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("code = ?", code).
				First(&token).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrTokenNotFound
				}
				return err
			}

			now := e.now()
			switch {
			case token.IsUsed:
				return ErrTokenAlreadyUsed
			case now.After(token.ExpiresAt):
				return ErrTokenExpired
			case token.SenderType == models.OwnerCustomer && token.SenderID == receiverID:
				return ErrSelfTransfer
			}

			if err := requireCustomer(tx, receiverID); err != nil {
				return err
			}
			if _, err := ensureWallet(tx, receiverID, models.OwnerCustomer); err != nil {
				return err
			}

			senderKey := walletOwner{ID: token.SenderID, Type: token.SenderType}
			receiverKey := walletOwner{ID: receiverID, Type: models.OwnerCustomer}
			wallets, err := lockWalletsOrdered(tx, []walletOwner{senderKey, receiverKey})
			if err != nil {
				return err
			}

			var merchantID *uuid.UUID
			if token.SenderType == models.OwnerMerchant {
				id := token.SenderID
				merchantID = &id
			}

			if _, err := applyPoints(tx, wallets[senderKey], models.TransactionDebit, token.Points, Entry{
				Kind:        models.KindQRTransferOut,
				ReferenceID: token.ID.String(),
				Description: fmt.Sprintf("QR transfer of %d points", token.Points),
				MerchantID:  merchantID,
			}); err != nil {
				return err
			}

			q := newTaskQueue(tx, token.ID.String())
			earn, err := e.earnTx(q, wallets[receiverKey], token.Points, Entry{
				Kind:        models.KindQRTransferIn,
				ReferenceID: token.ID.String(),
				Description: fmt.Sprintf("Received %d points by QR transfer", token.Points),
				MerchantID:  merchantID,
			})
			if err != nil {
				return err
			}

			res := tx.Model(&models.QRTransferToken{}).
				Where("id = ? AND is_used = ?", token.ID, false).
				Updates(map[string]any{
					"is_used":     true,
					"used_at":     now,
					"receiver_id": receiverID,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrTokenAlreadyUsed
			}
			token.IsUsed = true
			token.UsedAt = &now
			token.ReceiverID = &receiverID

			if merchantID != nil {
				if err := q.push(models.CascadeTask{
					Kind:            models.TaskCashback,
					CustomerID:      &receiverID,
					MerchantID:      merchantID,
					Points:          token.Points,
					SourceReference: token.ID.String(),
				}); err != nil {
					return err
				}
			}

			redemption = &QRRedemption{Token: token, PointsReceived: token.Points, Earn: earn}
			seeds = q.created
			return nil
		})
	})
	if err != nil {
		e.metrics.ObserveQRRedemption(redemptionOutcome(err))
		return nil, err
	}
	e.metrics.ObserveQRRedemption("redeemed")
	e.log.Info("qr transfer redeemed",
		zap.String("token_id", redemption.Token.ID.String()),
		zap.String("sender_type", string(redemption.Token.SenderType)),
		zap.Int64("points", redemption.PointsReceived))

	return redemption, e.finishCascade(ctx, seeds)
}

func redemptionOutcome(err error) string {
	switch {
	case errors.Is(err, ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenAlreadyUsed):
		return "already_used"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrSelfTransfer):
		return "self_transfer"
	default:
		return "error"
	}
}

func newTransferCode() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate transfer code: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

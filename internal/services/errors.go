package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrInsufficientBalance is returned when a debit exceeds the wallet balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidAmount rejects zero or negative point and currency amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrTokenNotFound means no QR transfer token exists for the code.
	ErrTokenNotFound = errors.New("qr transfer token not found")
	// ErrTokenExpired means the QR transfer token is past its expiry.
	ErrTokenExpired = errors.New("qr transfer token expired")
	// ErrTokenAlreadyUsed means the QR transfer token was already redeemed.
	ErrTokenAlreadyUsed = errors.New("qr transfer token already used")
	// ErrInvalidExpiration rejects QR expirations outside the allowed window.
	ErrInvalidExpiration = errors.New("invalid qr transfer expiration")
	// ErrSelfTransfer rejects redeeming your own QR transfer.
	ErrSelfTransfer = errors.New("cannot transfer points to yourself")
	// ErrDuplicateMilestone guards StepUp rewards that were already awarded.
	// It never leaves the engine.
	ErrDuplicateMilestone = errors.New("step-up milestone already awarded")
	// ErrAllocationConflict is reported only after concurrent transactions kept
	// conflicting past the retry budget.
	ErrAllocationConflict = errors.New("allocation conflict")
	ErrCustomerNotFound   = errors.New("customer not found")
	ErrMerchantNotFound   = errors.New("merchant not found")
	ErrAdminNotFound      = errors.New("admin not found")
	ErrWalletNotFound     = errors.New("wallet not found")
	// ErrDescriptionRequired is returned for admin grants without an audit description.
	ErrDescriptionRequired = errors.New("description is required")
	ErrOrderNumberRequired = errors.New("order number is required")
	ErrCashOutNotFound     = errors.New("cash-out request not found")
	ErrCashOutNotPending   = errors.New("cash-out request already reviewed")
	// ErrCascadeIncomplete wraps a reward cascade that stopped on a failing
	// task. The triggering change is committed and the rest can be re-driven.
	ErrCascadeIncomplete = errors.New("reward cascade incomplete")
)

const maxConflictRetries = 5

// withRetry re-runs fn while Postgres reports a serialization failure or a
// deadlock. Any other error is returned unchanged.
func withRetry(ctx context.Context, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		if attempt >= maxConflictRetries {
			return fmt.Errorf("%w: %v", ErrAllocationConflict, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 15 * time.Millisecond):
		}
	}
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

// Package ledger owns the credit balance. Reservations decrement immediately
// under an optimistic version check, so two concurrent requests can never both
// spend the same credit; a failed generation is compensated by an explicit
// refund.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adpilot/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInsufficientCredits is the quota outcome. It is not retriable and the
// caller must not invoke the remote provider after seeing it.
var ErrInsufficientCredits = errors.New("insufficient credits")

const (
	TransactionDebit  = "debit"
	TransactionRefund = "refund"
	TransactionTopUp  = "topup"
)

// reserveAttempts bounds the optimistic read-compare-swap loop under
// concurrent reservations against the same account.
const reserveAttempts = 3

// Reservation is the in-flight hold handed back by CheckAndReserve. The key
// doubles as the commit idempotency key for this attempt.
type Reservation struct {
	AccountID int64
	Amount    int
	Key       string
	CreatedAt time.Time
}

type Ledger struct {
	store  store.Storage
	logger *zap.SugaredLogger
}

func New(storage store.Storage, logger *zap.SugaredLogger) *Ledger {
	return &Ledger{store: storage, logger: logger}
}

// CheckAndReserve debits the balance for one attempt. On a version conflict
// (a concurrent reservation won the race) the read and conditional update are
// repeated against the fresh balance.
func (l *Ledger) CheckAndReserve(ctx context.Context, accountID int64, amount int) (*Reservation, error) {
	for i := 0; i < reserveAttempts; i++ {
		acct, err := l.store.CreditAccounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("ledger read: %w", err)
		}

		if acct.Balance < amount {
			return nil, ErrInsufficientCredits
		}

		err = l.store.CreditAccounts.ReserveBalance(ctx, accountID, amount, acct.Version)
		if err == nil {
			return &Reservation{
				AccountID: accountID,
				Amount:    amount,
				Key:       uuid.NewString(),
				CreatedAt: time.Now(),
			}, nil
		}
		if !errors.Is(err, store.ErrVersionConflict) {
			return nil, fmt.Errorf("ledger reserve: %w", err)
		}
	}

	return nil, fmt.Errorf("ledger reserve: %w", store.ErrVersionConflict)
}

// Commit records the permanent debit for a reservation. Replaying the same
// reservation key is a no-op, so a retried commit cannot double-debit.
func (l *Ledger) Commit(ctx context.Context, res *Reservation) error {
	err := l.store.CreditAccounts.RecordTransaction(ctx, &store.CreditTransaction{
		AccountID:      res.AccountID,
		Amount:         -res.Amount,
		Kind:           TransactionDebit,
		IdempotencyKey: res.Key,
	})
	if errors.Is(err, store.ErrConflict) {
		l.logger.Infow("commit replayed", "account_id", res.AccountID, "key", res.Key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger commit: %w", err)
	}

	return nil
}

// Refund compensates a reservation whose guarded operation failed: the held
// amount goes back on the balance and the refund is recorded against the same
// reservation key.
func (l *Ledger) Refund(ctx context.Context, res *Reservation) error {
	if err := l.store.CreditAccounts.AddBalance(ctx, res.AccountID, res.Amount); err != nil {
		return fmt.Errorf("ledger refund: %w", err)
	}

	err := l.store.CreditAccounts.RecordTransaction(ctx, &store.CreditTransaction{
		AccountID:      res.AccountID,
		Amount:         res.Amount,
		Kind:           TransactionRefund,
		IdempotencyKey: res.Key + ":refund",
	})
	if errors.Is(err, store.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger refund record: %w", err)
	}

	return nil
}

// TopUp credits an account from a payment-processor event. The processor's
// transaction reference is the idempotency key, so redelivered webhooks do not
// credit twice.
func (l *Ledger) TopUp(ctx context.Context, accountID int64, amount int, reference string) error {
	if amount <= 0 {
		return fmt.Errorf("top-up amount must be positive, got %d", amount)
	}

	err := l.store.CreditAccounts.RecordTransaction(ctx, &store.CreditTransaction{
		AccountID:      accountID,
		Amount:         amount,
		Kind:           TransactionTopUp,
		IdempotencyKey: reference,
	})
	if errors.Is(err, store.ErrConflict) {
		l.logger.Infow("top-up replayed", "account_id", accountID, "reference", reference)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ledger top-up record: %w", err)
	}

	if err := l.store.CreditAccounts.AddBalance(ctx, accountID, amount); err != nil {
		// The transaction row exists but the balance was not incremented.
		// Surface loudly for manual reconciliation instead of losing the credit.
		l.logger.Errorw("top-up recorded but balance not incremented",
			"account_id", accountID, "reference", reference, "error", err)
		return fmt.Errorf("ledger top-up apply: %w", err)
	}

	return nil
}

// Balance reads the current balance.
func (l *Ledger) Balance(ctx context.Context, accountID int64) (int, error) {
	acct, err := l.store.CreditAccounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("ledger read: %w", err)
	}
	return acct.Balance, nil
}

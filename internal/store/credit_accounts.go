package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CreditAccount is the paying principal. Balance is mutated only through the
// ledger operations below; the version column guards concurrent reservations.
type CreditAccount struct {
	ID            int64     `json:"id"`
	Email         string    `json:"email"`
	Balance       int       `json:"balance"`
	Version       int64     `json:"-"`
	AdAccountID   *string   `json:"ad_account_id,omitempty"`
	AdAccessToken *string   `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreditTransaction is the permanent record of a balance mutation. The unique
// idempotency key makes replayed commits and webhook deliveries no-ops.
type CreditTransaction struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	Amount         int       `json:"amount"`
	Kind           string    `json:"kind"` // debit, refund, topup
	IdempotencyKey string    `json:"idempotency_key"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreditAccountsStore struct {
	db *pgxpool.Pool
}

func (s *CreditAccountsStore) GetByID(ctx context.Context, id int64) (*CreditAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		SELECT id, email, balance, version, ad_account_id, ad_access_token, created_at, updated_at
		FROM credit_accounts
		WHERE id = $1
	`

	var acct CreditAccount
	err := s.db.QueryRow(ctx, query, id).Scan(
		&acct.ID, &acct.Email, &acct.Balance, &acct.Version,
		&acct.AdAccountID, &acct.AdAccessToken, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get credit account: %w", err)
	}

	return &acct, nil
}

// ReserveBalance decrements the balance under an optimistic version check.
// The WHERE clause refuses both a stale version and an overdraft, so the
// balance can never go negative. Callers distinguish the two by re-reading.
func (s *CreditAccountsStore) ReserveBalance(ctx context.Context, accountID int64, amount int, version int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		UPDATE credit_accounts
		SET balance = balance - $2, version = version + 1, updated_at = NOW()
		WHERE id = $1 AND version = $3 AND balance >= $2
	`

	cmdTag, err := s.db.Exec(ctx, query, accountID, amount, version)
	if err != nil {
		return fmt.Errorf("failed to reserve balance: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrVersionConflict
	}

	return nil
}

// AddBalance increments the balance. Used by refunds and webhook top-ups.
func (s *CreditAccountsStore) AddBalance(ctx context.Context, accountID int64, amount int) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		UPDATE credit_accounts
		SET balance = balance + $2, version = version + 1, updated_at = NOW()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, accountID, amount)
	if err != nil {
		return fmt.Errorf("failed to add balance: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// RecordTransaction inserts the permanent ledger row. A duplicate idempotency
// key returns ErrConflict so the caller can treat the replay as already applied.
func (s *CreditAccountsStore) RecordTransaction(ctx context.Context, tx *CreditTransaction) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		INSERT INTO credit_transactions (account_id, amount, kind, idempotency_key)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query, tx.AccountID, tx.Amount, tx.Kind, tx.IdempotencyKey).
		Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("failed to record credit transaction: %w", err)
	}

	return nil
}

func (s *CreditAccountsStore) ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]CreditTransaction, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		SELECT id, account_id, amount, kind, idempotency_key, created_at
		FROM credit_transactions
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit transactions: %w", err)
	}
	defer rows.Close()

	var txs []CreditTransaction
	for rows.Next() {
		var tx CreditTransaction
		err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Amount, &tx.Kind, &tx.IdempotencyKey, &tx.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit transaction row: %w", err)
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return txs, nil
}

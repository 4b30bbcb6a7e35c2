package ledger

import (
	"context"
	"sync"
	"testing"

	"adpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeCreditAccounts mirrors the Postgres semantics of the real store: a
// versioned conditional decrement and a unique idempotency key on
// transactions.
type fakeCreditAccounts struct {
	mu       sync.Mutex
	accounts map[int64]*store.CreditAccount
	txs      map[string]store.CreditTransaction
}

func newFakeCreditAccounts() *fakeCreditAccounts {
	return &fakeCreditAccounts{
		accounts: make(map[int64]*store.CreditAccount),
		txs:      make(map[string]store.CreditTransaction),
	}
}

func (f *fakeCreditAccounts) add(id int64, balance int) {
	f.accounts[id] = &store.CreditAccount{ID: id, Balance: balance}
}

func (f *fakeCreditAccounts) GetByID(_ context.Context, id int64) (*store.CreditAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	snapshot := *acct
	return &snapshot, nil
}

func (f *fakeCreditAccounts) ReserveBalance(_ context.Context, accountID int64, amount int, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[accountID]
	if !ok || acct.Version != version || acct.Balance < amount {
		return store.ErrVersionConflict
	}
	acct.Balance -= amount
	acct.Version++
	return nil
}

func (f *fakeCreditAccounts) AddBalance(_ context.Context, accountID int64, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	acct, ok := f.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	acct.Balance += amount
	acct.Version++
	return nil
}

func (f *fakeCreditAccounts) RecordTransaction(_ context.Context, tx *store.CreditTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.txs[tx.IdempotencyKey]; exists {
		return store.ErrConflict
	}
	f.txs[tx.IdempotencyKey] = *tx
	return nil
}

func (f *fakeCreditAccounts) ListTransactions(_ context.Context, accountID int64, limit, offset int) ([]store.CreditTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.CreditTransaction
	for _, tx := range f.txs {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func newTestLedger(accounts *fakeCreditAccounts) *Ledger {
	return New(store.Storage{CreditAccounts: accounts}, zap.NewNop().Sugar())
}

func TestCheckAndReserveDebitsImmediately(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 5)
	l := newTestLedger(accounts)

	res, err := l.CheckAndReserve(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.AccountID)
	assert.Equal(t, 2, res.Amount)
	assert.NotEmpty(t, res.Key)

	balance, err := l.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, balance, "reservation must decrement the balance immediately")
}

func TestCheckAndReserveInsufficientCredits(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 1)
	l := newTestLedger(accounts)

	_, err := l.CheckAndReserve(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err := l.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, balance)
}

func TestBalanceNeverGoesNegativeUnderConcurrency(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 3)
	l := newTestLedger(accounts)

	var wg sync.WaitGroup
	granted := make(chan *Reservation, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if res, err := l.CheckAndReserve(context.Background(), 1, 1); err == nil {
				granted <- res
			}
		}()
	}
	wg.Wait()
	close(granted)

	count := 0
	for range granted {
		count++
	}
	assert.LessOrEqual(t, count, 3, "no more reservations than credits")

	balance, err := l.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, balance, 0)
	assert.Equal(t, 3-count, balance)
}

func TestCommitIsIdempotent(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 5)
	l := newTestLedger(accounts)

	res, err := l.CheckAndReserve(context.Background(), 1, 1)
	require.NoError(t, err)

	require.NoError(t, l.Commit(context.Background(), res))
	require.NoError(t, l.Commit(context.Background(), res), "replaying a commit must be a no-op")

	assert.Len(t, accounts.txs, 1)

	balance, err := l.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, balance, "a replayed commit must not double-debit")
}

func TestRefundRestoresBalance(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 5)
	l := newTestLedger(accounts)

	res, err := l.CheckAndReserve(context.Background(), 1, 2)
	require.NoError(t, err)

	require.NoError(t, l.Refund(context.Background(), res))

	balance, err := l.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	tx, ok := accounts.txs[res.Key+":refund"]
	require.True(t, ok, "refund must be recorded against the reservation key")
	assert.Equal(t, TransactionRefund, tx.Kind)
	assert.Equal(t, 2, tx.Amount)
}

func TestTopUpIsIdempotentOnReference(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 0)
	l := newTestLedger(accounts)

	require.NoError(t, l.TopUp(context.Background(), 1, 10, "evt_123"))
	require.NoError(t, l.TopUp(context.Background(), 1, 10, "evt_123"), "redelivered webhook must be a no-op")

	balance, err := l.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 10, balance, "the redelivery must not credit twice")
}

func TestTopUpRejectsNonPositiveAmount(t *testing.T) {
	accounts := newFakeCreditAccounts()
	accounts.add(1, 0)
	l := newTestLedger(accounts)

	require.Error(t, l.TopUp(context.Background(), 1, 0, "evt_0"))
	require.Error(t, l.TopUp(context.Background(), 1, -5, "evt_neg"))
}

package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adpilot/internal/ledger"
	"adpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

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

func (f *fakeCreditAccounts) ListTransactions(context.Context, int64, int, int) ([]store.CreditTransaction, error) {
	return nil, nil
}

type fakeArtifacts struct {
	mu        sync.Mutex
	artifacts []*store.Artifact
	createErr error
}

func (f *fakeArtifacts) Create(_ context.Context, a *store.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	a.ID = int64(len(f.artifacts) + 1)
	f.artifacts = append(f.artifacts, a)
	return nil
}

func (f *fakeArtifacts) GetByID(context.Context, int64) (*store.Artifact, error) {
	return nil, store.ErrNotFound
}

func (f *fakeArtifacts) ListByAccount(context.Context, int64, int, int) ([]store.Artifact, error) {
	return nil, nil
}

type fakeImageAssets struct {
	mu      sync.Mutex
	created []*store.ImageAsset
}

func (f *fakeImageAssets) Create(_ context.Context, a *store.ImageAsset) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = int64(len(f.created) + 1)
	f.created = append(f.created, a)
	return nil
}

func (f *fakeImageAssets) GetByID(context.Context, int64) (*store.ImageAsset, error) {
	return nil, store.ErrNotFound
}
func (f *fakeImageAssets) SetProcessing(context.Context, int64) error       { return nil }
func (f *fakeImageAssets) SetReady(context.Context, int64, string) error    { return nil }
func (f *fakeImageAssets) SetFailed(context.Context, int64, string) error   { return nil }
func (f *fakeImageAssets) ListByStatus(context.Context, string, int) ([]store.ImageAsset, error) {
	return nil, nil
}

type scriptedProvider struct {
	mu      sync.Mutex
	calls   int
	results []func() (*Result, error)
}

func (p *scriptedProvider) Generate(_ context.Context, _ Request) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := p.calls
	p.calls++
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	return p.results[idx]()
}

func succeed(content string, urls ...string) func() (*Result, error) {
	return func() (*Result, error) {
		return &Result{Content: content, ImageURLs: urls}, nil
	}
}

func failWith(err error) func() (*Result, error) {
	return func() (*Result, error) { return nil, err }
}

type fixture struct {
	accounts  *fakeCreditAccounts
	artifacts *fakeArtifacts
	assets    *fakeImageAssets
	provider  *scriptedProvider
	orch      *Orchestrator
}

func newFixture(balance int, provider *scriptedProvider) *fixture {
	accounts := newFakeCreditAccounts()
	accounts.accounts[1] = &store.CreditAccount{ID: 1, Balance: balance}
	artifacts := &fakeArtifacts{}
	assets := &fakeImageAssets{}

	storage := store.Storage{
		CreditAccounts: accounts,
		Artifacts:      artifacts,
		ImageAssets:    assets,
	}
	logger := zap.NewNop().Sugar()
	orch := NewOrchestrator(storage, ledger.New(storage, logger), provider, logger).
		WithRetryPolicy(3, time.Millisecond)

	return &fixture{accounts: accounts, artifacts: artifacts, assets: assets, provider: provider, orch: orch}
}

func (fx *fixture) balance(t *testing.T) int {
	t.Helper()
	acct, err := fx.accounts.GetByID(context.Background(), 1)
	require.NoError(t, err)
	return acct.Balance
}

func TestGenerateDebitsOneCreditOnSuccess(t *testing.T) {
	fx := newFixture(1, &scriptedProvider{results: []func() (*Result, error){
		succeed("an ad about shoes"),
	}})

	artifact, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindText, Prompt: "write an ad"})
	require.NoError(t, err)
	assert.Equal(t, "an ad about shoes", artifact.Content)
	assert.NotZero(t, artifact.ID)

	assert.Equal(t, 0, fx.balance(t))
	assert.Equal(t, 1, fx.provider.calls)

	tx, ok := fx.accounts.txs[artifact.IdempotencyKey]
	require.True(t, ok, "the debit must be committed under the reservation key")
	assert.Equal(t, ledger.TransactionDebit, tx.Kind)
}

func TestGenerateWithZeroBalanceNeverCallsProvider(t *testing.T) {
	fx := newFixture(0, &scriptedProvider{results: []func() (*Result, error){
		succeed("should never happen"),
	}})

	_, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindText, Prompt: "write an ad"})
	require.ErrorIs(t, err, ledger.ErrInsufficientCredits)
	assert.Zero(t, fx.provider.calls, "the quota check must run before the provider")
	assert.Equal(t, 0, fx.balance(t))
}

func TestGenerateRefundsAfterExhaustedRetries(t *testing.T) {
	providerErr := errors.New("upstream overloaded")
	fx := newFixture(2, &scriptedProvider{results: []func() (*Result, error){
		failWith(providerErr),
	}})

	_, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindText, Prompt: "write an ad"})
	require.ErrorIs(t, err, providerErr)
	assert.Equal(t, 3, fx.provider.calls, "transient failures retry up to the budget")
	assert.Equal(t, 2, fx.balance(t), "the reserved credit must come back after the final failure")
	assert.Empty(t, fx.artifacts.artifacts)
}

func TestGenerateRecoversWithinRetryBudget(t *testing.T) {
	fx := newFixture(1, &scriptedProvider{results: []func() (*Result, error){
		failWith(errors.New("flaky")),
		failWith(errors.New("flaky")),
		succeed("third time lucky"),
	}})

	artifact, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindText, Prompt: "write an ad"})
	require.NoError(t, err)
	assert.Equal(t, "third time lucky", artifact.Content)
	assert.Equal(t, 3, fx.provider.calls)
	assert.Equal(t, 0, fx.balance(t))
}

func TestGenerateBlockedPromptIsNotRetried(t *testing.T) {
	fx := newFixture(1, &scriptedProvider{results: []func() (*Result, error){
		failWith(ErrBlocked),
	}})

	_, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindText, Prompt: "something unsafe"})
	require.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, 1, fx.provider.calls, "a blocked request is terminal")
	assert.Equal(t, 1, fx.balance(t), "the credit comes back")
}

func TestGenerateQueuesReferencedImagesForMigration(t *testing.T) {
	fx := newFixture(1, &scriptedProvider{results: []func() (*Result, error){
		succeed("ad with images",
			"https://pics.example.com/a.png",
			"https://pics.example.com/b.jpg",
		),
	}})

	artifact, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindImage, Prompt: "make images"})
	require.NoError(t, err)
	assert.Len(t, artifact.ImageURLs, 2)

	require.Len(t, fx.assets.created, 2)
	assert.Equal(t, "https://pics.example.com/a.png", fx.assets.created[0].SourceURL)
	assert.Equal(t, store.AssetKindImage, fx.assets.created[0].Kind)
}

func TestGenerateRefundsWhenArtifactStoreFails(t *testing.T) {
	fx := newFixture(1, &scriptedProvider{results: []func() (*Result, error){
		succeed("generated fine"),
	}})
	fx.artifacts.createErr = errors.New("disk full")

	_, err := fx.orch.Generate(context.Background(), 1, Request{Kind: KindText, Prompt: "write an ad"})
	require.Error(t, err)
	assert.Equal(t, 1, fx.balance(t), "a failed persist must not cost a credit")
}

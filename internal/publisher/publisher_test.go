package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adpilot/internal/adplatform"
	"adpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeCampaigns struct {
	mu        sync.Mutex
	campaigns map[int64]*store.Campaign
}

func (f *fakeCampaigns) get(id int64) *store.Campaign {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id]
}

func (f *fakeCampaigns) Create(_ context.Context, c *store.Campaign) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.campaigns[c.ID] = c
	return nil
}

func (f *fakeCampaigns) GetByID(_ context.Context, id int64) (*store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	snapshot := *c
	return &snapshot, nil
}

func (f *fakeCampaigns) GetByReference(_ context.Context, ref string) (*store.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.campaigns {
		if c.Reference == ref {
			snapshot := *c
			return &snapshot, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeCampaigns) ListByOwner(_ context.Context, ownerID int64, limit, offset int) ([]store.Campaign, error) {
	return nil, nil
}

func (f *fakeCampaigns) SetCampaignCreated(_ context.Context, id int64, remoteCampaignID string) error {
	return f.transition(id, store.CampaignStatusPending, func(c *store.Campaign) {
		c.Status = store.CampaignStatusCampaignCreated
		c.RemoteCampaignID = &remoteCampaignID
	})
}

func (f *fakeCampaigns) SetAdSetCreated(_ context.Context, id int64, remoteAdSetID string) error {
	return f.transition(id, store.CampaignStatusCampaignCreated, func(c *store.Campaign) {
		c.Status = store.CampaignStatusAdSetCreated
		c.RemoteAdSetID = &remoteAdSetID
	})
}

func (f *fakeCampaigns) SetCompleted(_ context.Context, id int64, remoteCreativeID string) error {
	return f.transition(id, store.CampaignStatusAdSetCreated, func(c *store.Campaign) {
		c.Status = store.CampaignStatusCompleted
		c.RemoteCreativeID = &remoteCreativeID
	})
}

func (f *fakeCampaigns) SetFailed(_ context.Context, id int64, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Status == store.CampaignStatusCompleted || c.Status == store.CampaignStatusError {
		return store.ErrConflict
	}
	c.Status = store.CampaignStatusError
	c.ErrorMessage = &message
	return nil
}

func (f *fakeCampaigns) SetDeliveryStatus(_ context.Context, id int64, delivery string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Status != store.CampaignStatusCompleted {
		return store.ErrConflict
	}
	c.DeliveryStatus = &delivery
	return nil
}

func (f *fakeCampaigns) transition(id int64, expected string, apply func(*store.Campaign)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok {
		return store.ErrNotFound
	}
	if c.Status != expected {
		return store.ErrConflict
	}
	apply(c)
	return nil
}

type fakeAccounts struct {
	accounts map[int64]*store.CreditAccount
}

func (f *fakeAccounts) GetByID(_ context.Context, id int64) (*store.CreditAccount, error) {
	acct, ok := f.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return acct, nil
}

func (f *fakeAccounts) ReserveBalance(context.Context, int64, int, int64) error { return nil }
func (f *fakeAccounts) AddBalance(context.Context, int64, int) error            { return nil }
func (f *fakeAccounts) RecordTransaction(context.Context, *store.CreditTransaction) error {
	return nil
}
func (f *fakeAccounts) ListTransactions(context.Context, int64, int, int) ([]store.CreditTransaction, error) {
	return nil, nil
}

// fakePlatform scripts per-step outcomes and records the calls it saw.
type fakePlatform struct {
	mu            sync.Mutex
	calls         []string
	campaignErr   error
	adSetErr      error
	creativeErr   error
	statusErr     error
	failuresLeft  map[string]int
	statusUpdates []string
}

func (f *fakePlatform) record(step string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, step)
}

func (f *fakePlatform) flaky(step string, scripted error) error {
	f.record(step)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failuresLeft[step] > 0 {
		f.failuresLeft[step]--
		return &adplatform.APIError{StatusCode: 503, Message: "upstream unavailable"}
	}
	return scripted
}

func (f *fakePlatform) CreateCampaign(_ context.Context, _ string, _ adplatform.CampaignParams) (string, error) {
	if err := f.flaky("campaign", f.campaignErr); err != nil {
		return "", err
	}
	return "remote-campaign-1", nil
}

func (f *fakePlatform) CreateAdSet(_ context.Context, _ string, _ adplatform.AdSetParams) (string, error) {
	if err := f.flaky("adset", f.adSetErr); err != nil {
		return "", err
	}
	return "remote-adset-1", nil
}

func (f *fakePlatform) CreateCreative(_ context.Context, _ string, _ adplatform.CreativeParams) (string, error) {
	if err := f.flaky("creative", f.creativeErr); err != nil {
		return "", err
	}
	return "remote-creative-1", nil
}

func (f *fakePlatform) UpdateStatus(_ context.Context, _ string, _ string, status string) error {
	f.record("status")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusUpdates = append(f.statusUpdates, status)
	return nil
}

func (f *fakePlatform) Insights(_ context.Context, _, _ string) (*adplatform.Insights, error) {
	f.record("insights")
	return &adplatform.Insights{Impressions: 1000, Clicks: 40, SpendCents: 250, CTR: 0.04}, nil
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	statuses []string
}

func (r *recordingBroadcaster) Publish(c *store.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, c.Status)
}

func newTestSetup(campaign *store.Campaign) (*Publisher, *fakeCampaigns, *fakePlatform, *recordingBroadcaster) {
	adAccount, token := "act_1", "tok_1"
	campaigns := &fakeCampaigns{campaigns: map[int64]*store.Campaign{campaign.ID: campaign}}
	accounts := &fakeAccounts{accounts: map[int64]*store.CreditAccount{
		campaign.OwnerID: {ID: campaign.OwnerID, AdAccountID: &adAccount, AdAccessToken: &token},
	}}
	platform := &fakePlatform{failuresLeft: make(map[string]int)}
	broadcaster := &recordingBroadcaster{}

	storage := store.Storage{Campaigns: campaigns, CreditAccounts: accounts}
	p := New(storage, platform, broadcaster, zap.NewNop().Sugar()).
		WithRetryPolicy(3, time.Millisecond)

	return p, campaigns, platform, broadcaster
}

func pendingCampaign() *store.Campaign {
	return &store.Campaign{
		ID:               1,
		OwnerID:          10,
		Name:             "Spring Sale",
		Objective:        "LINK_CLICKS",
		DailyBudgetCents: 500,
		Headline:         "Save big",
		Body:             "Everything must go",
		LandingURL:       "https://example.com/sale",
		Status:           store.CampaignStatusPending,
	}
}

func TestPublishWalksAllStepsInOrder(t *testing.T) {
	campaign := pendingCampaign()
	p, campaigns, platform, broadcaster := newTestSetup(campaign)

	require.NoError(t, p.Publish(context.Background(), campaign.ID))

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.CampaignStatusCompleted, final.Status)
	assert.Equal(t, "remote-campaign-1", *final.RemoteCampaignID)
	assert.Equal(t, "remote-adset-1", *final.RemoteAdSetID)
	assert.Equal(t, "remote-creative-1", *final.RemoteCreativeID)

	assert.Equal(t, []string{"campaign", "adset", "creative"}, platform.calls)
	assert.Equal(t, []string{
		store.CampaignStatusCampaignCreated,
		store.CampaignStatusAdSetCreated,
		store.CampaignStatusCompleted,
	}, broadcaster.statuses, "every committed transition must be broadcast in order")
}

func TestPublishRetriesTransientFailures(t *testing.T) {
	campaign := pendingCampaign()
	p, campaigns, platform, _ := newTestSetup(campaign)
	platform.failuresLeft["adset"] = 2

	require.NoError(t, p.Publish(context.Background(), campaign.ID))

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.CampaignStatusCompleted, final.Status)
	assert.Equal(t, []string{"campaign", "adset", "adset", "adset", "creative"}, platform.calls)
}

func TestPublishStepFailureIsTerminal(t *testing.T) {
	campaign := pendingCampaign()
	p, campaigns, platform, broadcaster := newTestSetup(campaign)
	platform.adSetErr = &adplatform.APIError{StatusCode: 400, Code: "invalid_budget", Message: "budget too low"}

	require.NoError(t, p.Publish(context.Background(), campaign.ID))

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.CampaignStatusError, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "budget too low")
	// The campaign object was created before the failure and must be kept.
	assert.Equal(t, "remote-campaign-1", *final.RemoteCampaignID)

	assert.Equal(t, []string{"campaign", "adset"}, platform.calls, "no steps run after the failure")
	assert.Equal(t, store.CampaignStatusError, broadcaster.statuses[len(broadcaster.statuses)-1])
}

func TestPublishNonRetriableErrorSkipsRetries(t *testing.T) {
	campaign := pendingCampaign()
	p, _, platform, _ := newTestSetup(campaign)
	platform.campaignErr = &adplatform.APIError{StatusCode: 401, Message: "bad token"}

	require.NoError(t, p.Publish(context.Background(), campaign.ID))
	assert.Equal(t, []string{"campaign"}, platform.calls, "a 401 must not be retried")
}

func TestPublishResumesFromStoredState(t *testing.T) {
	remoteCampaign := "remote-campaign-old"
	campaign := pendingCampaign()
	campaign.Status = store.CampaignStatusCampaignCreated
	campaign.RemoteCampaignID = &remoteCampaign

	p, campaigns, platform, _ := newTestSetup(campaign)

	require.NoError(t, p.Publish(context.Background(), campaign.ID))

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.CampaignStatusCompleted, final.Status)
	assert.Equal(t, remoteCampaign, *final.RemoteCampaignID, "the stored remote id must be reused")
	assert.Equal(t, []string{"adset", "creative"}, platform.calls, "the walk resumes, it does not recreate")
}

func TestPublishWithoutConnectedAdAccount(t *testing.T) {
	campaign := pendingCampaign()
	p, campaigns, platform, _ := newTestSetup(campaign)

	accounts := &fakeAccounts{accounts: map[int64]*store.CreditAccount{
		campaign.OwnerID: {ID: campaign.OwnerID},
	}}
	p.store.CreditAccounts = accounts

	require.NoError(t, p.Publish(context.Background(), campaign.ID))

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.CampaignStatusError, final.Status)
	assert.Contains(t, *final.ErrorMessage, "no connected ad account")
	assert.Empty(t, platform.calls)
}

func TestPublishAutoActivate(t *testing.T) {
	campaign := pendingCampaign()
	campaign.AutoActivate = true
	p, campaigns, platform, _ := newTestSetup(campaign)

	require.NoError(t, p.Publish(context.Background(), campaign.ID))

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.CampaignStatusCompleted, final.Status)
	require.NotNil(t, final.DeliveryStatus)
	assert.Equal(t, store.DeliveryStatusActive, *final.DeliveryStatus)
	assert.Equal(t, []string{adplatform.RemoteStatusActive}, platform.statusUpdates)
}

func TestActivateRequiresCompletedCampaign(t *testing.T) {
	campaign := pendingCampaign()
	p, _, platform, _ := newTestSetup(campaign)

	_, err := p.Activate(context.Background(), campaign.ID)
	require.ErrorIs(t, err, ErrNotCompleted)
	assert.Empty(t, platform.calls)
}

func TestActivateAndPauseFlipDelivery(t *testing.T) {
	remoteCampaign, remoteAdSet, remoteCreative := "c1", "a1", "cr1"
	campaign := pendingCampaign()
	campaign.Status = store.CampaignStatusCompleted
	campaign.RemoteCampaignID = &remoteCampaign
	campaign.RemoteAdSetID = &remoteAdSet
	campaign.RemoteCreativeID = &remoteCreative

	p, campaigns, platform, _ := newTestSetup(campaign)

	updated, err := p.Activate(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DeliveryStatusActive, *updated.DeliveryStatus)

	// Activating twice is a harmless repeat of the same flip.
	_, err = p.Activate(context.Background(), campaign.ID)
	require.NoError(t, err)

	updated, err = p.Pause(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, store.DeliveryStatusPaused, *updated.DeliveryStatus)

	final := campaigns.get(campaign.ID)
	assert.Equal(t, store.DeliveryStatusPaused, *final.DeliveryStatus)
	assert.Equal(t, []string{
		adplatform.RemoteStatusActive,
		adplatform.RemoteStatusActive,
		adplatform.RemoteStatusPaused,
	}, platform.statusUpdates)
}

func TestPauseRemoteFailureLeavesLocalUntouched(t *testing.T) {
	remoteCampaign := "c1"
	campaign := pendingCampaign()
	campaign.Status = store.CampaignStatusCompleted
	campaign.RemoteCampaignID = &remoteCampaign

	p, campaigns, platform, _ := newTestSetup(campaign)
	platform.statusErr = &adplatform.APIError{StatusCode: 400, Message: "cannot pause"}

	_, err := p.Pause(context.Background(), campaign.ID)
	require.Error(t, err)

	final := campaigns.get(campaign.ID)
	assert.Nil(t, final.DeliveryStatus, "local delivery must only mirror a successful remote flip")
}

func TestInsightsRequiresCompletedCampaign(t *testing.T) {
	campaign := pendingCampaign()
	p, _, _, _ := newTestSetup(campaign)

	_, err := p.Insights(context.Background(), campaign.ID)
	require.ErrorIs(t, err, ErrNotCompleted)
}

func TestInsightsReadsRemoteMetrics(t *testing.T) {
	remoteCampaign := "c1"
	campaign := pendingCampaign()
	campaign.Status = store.CampaignStatusCompleted
	campaign.RemoteCampaignID = &remoteCampaign

	p, _, _, _ := newTestSetup(campaign)

	insights, err := p.Insights(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), insights.Impressions)
	assert.Equal(t, int64(40), insights.Clicks)
}

func TestPublishMissingCampaign(t *testing.T) {
	p, _, _, _ := newTestSetup(pendingCampaign())
	err := p.Publish(context.Background(), 999)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

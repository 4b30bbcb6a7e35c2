// Package publisher drives a draft campaign through the remote advertising
// platform's object hierarchy: campaign, then ad set, then creative. One
// goroutine owns the whole walk for a given campaign, every remote call goes
// through the retry executor, and each committed transition is broadcast.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adpilot/internal/adplatform"
	"adpilot/internal/retry"
	"adpilot/internal/store"

	"go.uber.org/zap"
)

// ErrNotCompleted guards activation/pause: only a fully published campaign has
// a remote object to flip.
var ErrNotCompleted = errors.New("campaign has not completed publishing")

// PlatformAPI is the slice of the remote platform the publisher needs.
type PlatformAPI interface {
	CreateCampaign(ctx context.Context, accessToken string, params adplatform.CampaignParams) (string, error)
	CreateAdSet(ctx context.Context, accessToken string, params adplatform.AdSetParams) (string, error)
	CreateCreative(ctx context.Context, accessToken string, params adplatform.CreativeParams) (string, error)
	UpdateStatus(ctx context.Context, accessToken, remoteCampaignID, status string) error
	Insights(ctx context.Context, accessToken, remoteCampaignID string) (*adplatform.Insights, error)
}

// Broadcaster receives the full campaign record after every committed
// transition.
type Broadcaster interface {
	Publish(campaign *store.Campaign)
}

type Publisher struct {
	store     store.Storage
	platform  PlatformAPI
	broadcast Broadcaster
	logger    *zap.SugaredLogger

	maxAttempts int
	baseDelay   time.Duration
}

func New(storage store.Storage, platform PlatformAPI, broadcast Broadcaster, logger *zap.SugaredLogger) *Publisher {
	return &Publisher{
		store:       storage,
		platform:    platform,
		broadcast:   broadcast,
		logger:      logger,
		maxAttempts: retry.DefaultMaxAttempts,
		baseDelay:   retry.DefaultBaseDelay,
	}
}

// WithRetryPolicy overrides the per-step attempt budget. Used by tests to
// avoid real backoff sleeps.
func (p *Publisher) WithRetryPolicy(maxAttempts int, baseDelay time.Duration) *Publisher {
	p.maxAttempts = maxAttempts
	p.baseDelay = baseDelay
	return p
}

// Publish walks the campaign from its persisted state to completed, or to
// error on the first step that exhausts its retries. Already-stored remote ids
// are reused, so a walk resumed after a crash does not recreate objects.
func (p *Publisher) Publish(ctx context.Context, campaignID int64) error {
	campaign, err := p.store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return fmt.Errorf("load campaign: %w", err)
	}

	owner, err := p.store.CreditAccounts.GetByID(ctx, campaign.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner account: %w", err)
	}
	if owner.AdAccountID == nil || owner.AdAccessToken == nil {
		return p.fail(ctx, campaign, "no connected ad account")
	}
	adAccountID, token := *owner.AdAccountID, *owner.AdAccessToken

	state, err := StateFromRecord(campaign)
	if err != nil {
		return err
	}

	for {
		switch cur := state.(type) {
		case Pending:
			var remoteID string
			err := p.callRemote(ctx, func() error {
				var err error
				remoteID, err = p.platform.CreateCampaign(ctx, token, adplatform.CampaignParams{
					AdAccountID: adAccountID,
					Name:        campaign.Name,
					Objective:   campaign.Objective,
				})
				return err
			})
			if err != nil {
				return p.fail(ctx, campaign, err.Error())
			}
			if err := p.store.Campaigns.SetCampaignCreated(ctx, campaign.ID, remoteID); err != nil {
				return fmt.Errorf("persist campaign_created: %w", err)
			}
			state, err = Next(cur, CampaignProvisioned{RemoteID: remoteID})
			if err != nil {
				return err
			}
			campaign.Status = state.Status()
			campaign.RemoteCampaignID = &remoteID
			p.emit(campaign)

		case CampaignCreated:
			var remoteID string
			err := p.callRemote(ctx, func() error {
				var err error
				remoteID, err = p.platform.CreateAdSet(ctx, token, adplatform.AdSetParams{
					AdAccountID:      adAccountID,
					RemoteCampaignID: cur.RemoteCampaignID,
					Name:             campaign.Name + " - ad set",
					DailyBudgetCents: campaign.DailyBudgetCents,
				})
				return err
			})
			if err != nil {
				return p.fail(ctx, campaign, err.Error())
			}
			if err := p.store.Campaigns.SetAdSetCreated(ctx, campaign.ID, remoteID); err != nil {
				return fmt.Errorf("persist adset_created: %w", err)
			}
			state, err = Next(cur, AdSetProvisioned{RemoteID: remoteID})
			if err != nil {
				return err
			}
			campaign.Status = state.Status()
			campaign.RemoteAdSetID = &remoteID
			p.emit(campaign)

		case AdSetCreated:
			var remoteID string
			err := p.callRemote(ctx, func() error {
				var err error
				remoteID, err = p.platform.CreateCreative(ctx, token, adplatform.CreativeParams{
					AdAccountID:   adAccountID,
					RemoteAdSetID: cur.RemoteAdSetID,
					Headline:      campaign.Headline,
					Body:          campaign.Body,
					ImageURL:      deref(campaign.ImageURL),
					LandingURL:    campaign.LandingURL,
				})
				return err
			})
			if err != nil {
				return p.fail(ctx, campaign, err.Error())
			}
			if campaign.AutoActivate {
				err := p.callRemote(ctx, func() error {
					return p.platform.UpdateStatus(ctx, token, cur.RemoteCampaignID, adplatform.RemoteStatusActive)
				})
				if err != nil {
					return p.fail(ctx, campaign, err.Error())
				}
			}
			if err := p.store.Campaigns.SetCompleted(ctx, campaign.ID, remoteID); err != nil {
				return fmt.Errorf("persist completed: %w", err)
			}
			state, err = Next(cur, CreativeAttached{RemoteID: remoteID})
			if err != nil {
				return err
			}
			campaign.Status = state.Status()
			campaign.RemoteCreativeID = &remoteID
			if campaign.AutoActivate {
				delivery := store.DeliveryStatusActive
				campaign.DeliveryStatus = &delivery
				if err := p.store.Campaigns.SetDeliveryStatus(ctx, campaign.ID, delivery); err != nil {
					p.logger.Errorw("failed to mirror delivery status", "campaign_id", campaign.ID, "error", err)
				}
			}
			p.emit(campaign)

		case Completed:
			p.logger.Infow("campaign published",
				"campaign_id", campaign.ID,
				"remote_campaign_id", cur.RemoteCampaignID,
			)
			return nil

		case Failed:
			return nil
		}
	}
}

// Activate flips the remote campaign to ACTIVE and mirrors it locally on
// success only. Safe to repeat.
func (p *Publisher) Activate(ctx context.Context, campaignID int64) (*store.Campaign, error) {
	return p.setDelivery(ctx, campaignID, adplatform.RemoteStatusActive, store.DeliveryStatusActive)
}

// Pause flips the remote campaign to PAUSED and mirrors it locally on success
// only. Safe to repeat.
func (p *Publisher) Pause(ctx context.Context, campaignID int64) (*store.Campaign, error) {
	return p.setDelivery(ctx, campaignID, adplatform.RemoteStatusPaused, store.DeliveryStatusPaused)
}

func (p *Publisher) setDelivery(ctx context.Context, campaignID int64, remoteStatus, delivery string) (*store.Campaign, error) {
	campaign, err := p.store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status != store.CampaignStatusCompleted || campaign.RemoteCampaignID == nil {
		return nil, ErrNotCompleted
	}

	owner, err := p.store.CreditAccounts.GetByID(ctx, campaign.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner account: %w", err)
	}
	if owner.AdAccessToken == nil {
		return nil, errors.New("no connected ad account")
	}

	err = p.callRemote(ctx, func() error {
		return p.platform.UpdateStatus(ctx, *owner.AdAccessToken, *campaign.RemoteCampaignID, remoteStatus)
	})
	if err != nil {
		return nil, err
	}

	if err := p.store.Campaigns.SetDeliveryStatus(ctx, campaign.ID, delivery); err != nil {
		return nil, fmt.Errorf("persist delivery status: %w", err)
	}

	campaign.DeliveryStatus = &delivery
	p.emit(campaign)
	return campaign, nil
}

// Insights reads delivery metrics for a completed campaign.
func (p *Publisher) Insights(ctx context.Context, campaignID int64) (*adplatform.Insights, error) {
	campaign, err := p.store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if campaign.Status != store.CampaignStatusCompleted || campaign.RemoteCampaignID == nil {
		return nil, ErrNotCompleted
	}

	owner, err := p.store.CreditAccounts.GetByID(ctx, campaign.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load owner account: %w", err)
	}
	if owner.AdAccessToken == nil {
		return nil, errors.New("no connected ad account")
	}

	var insights *adplatform.Insights
	err = p.callRemote(ctx, func() error {
		var err error
		insights, err = p.platform.Insights(ctx, *owner.AdAccessToken, *campaign.RemoteCampaignID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return insights, nil
}

func (p *Publisher) callRemote(ctx context.Context, op func() error) error {
	return retry.Do(ctx, op,
		retry.WithMaxAttempts(p.maxAttempts),
		retry.WithBaseDelay(p.baseDelay),
		retry.WithRetryIf(adplatform.IsRetriable),
	)
}

// fail records the terminal error state and broadcasts it. The row is kept for
// audit; operators retry with a fresh publish attempt.
func (p *Publisher) fail(ctx context.Context, campaign *store.Campaign, message string) error {
	p.logger.Errorw("publish step failed",
		"campaign_id", campaign.ID,
		"status", campaign.Status,
		"error", message,
	)

	if err := p.store.Campaigns.SetFailed(ctx, campaign.ID, message); err != nil {
		return fmt.Errorf("persist error state: %w", err)
	}

	campaign.Status = store.CampaignStatusError
	campaign.ErrorMessage = &message
	p.emit(campaign)
	return nil
}

func (p *Publisher) emit(campaign *store.Campaign) {
	if p.broadcast == nil {
		return
	}
	snapshot := *campaign
	p.broadcast.Publish(&snapshot)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

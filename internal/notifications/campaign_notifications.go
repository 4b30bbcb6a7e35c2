package notifications

import (
	"context"
	"fmt"

	"adpilot/internal/store"

	"github.com/9ssi7/exponent"
)

type CampaignEvent string

const (
	CampaignPublished CampaignEvent = "PUBLISHED"
	CampaignFailed    CampaignEvent = "FAILED"
)

// SendCampaignNotification pushes a terminal publish outcome to every device
// registered for the owning account.
func SendCampaignNotification(ctx context.Context, push PushSender, storage store.Storage, campaign *store.Campaign, event CampaignEvent) error {
	tokens, err := storage.PushTokens.GetTokensForAccount(ctx, campaign.OwnerID)
	if err != nil {
		return err
	}

	var title, body string
	switch event {
	case CampaignPublished:
		title = "Campaign Published"
		body = fmt.Sprintf("%q is live on your ad account 🎉", campaign.Name)
	case CampaignFailed:
		title = "Campaign Publish Failed"
		body = fmt.Sprintf("%q could not be published. Open the app to see why.", campaign.Name)
	default:
		title = "Campaign Update"
		body = fmt.Sprintf("%q has an update.", campaign.Name)
	}

	msgs := make([]*exponent.Message, 0, len(tokens))
	for _, t := range tokens {
		token := exponent.Token(t)
		msg := &exponent.Message{
			To:    []*exponent.Token{&token},
			Title: title,
			Body:  body,
			Data: map[string]string{
				"type":     "campaign",
				"event":    string(event),
				"campaign": campaign.Reference,
				"screen":   "campaign-detail-screen",
			},
		}
		msgs = append(msgs, msg)
	}

	_, err = push.Publish(ctx, msgs)
	return err
}

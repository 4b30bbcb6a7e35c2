package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"adpilot/internal/mailer"
	"adpilot/internal/notifications"
	"adpilot/internal/publisher"
	"adpilot/internal/store"

	"github.com/go-chi/chi/v5"
)

// publishTimeout bounds one detached publish walk, retries and backoff
// included.
const publishTimeout = 5 * time.Minute

type CreateCampaignPayload struct {
	Name             string  `json:"name" validate:"required,max=120"`
	Objective        string  `json:"objective" validate:"required,max=60"`
	DailyBudgetCents int     `json:"daily_budget_cents" validate:"required,min=100"`
	Headline         string  `json:"headline" validate:"required,max=80"`
	Body             string  `json:"body" validate:"required,max=500"`
	ImageURL         *string `json:"image_url" validate:"omitempty,url"`
	LandingURL       string  `json:"landing_url" validate:"required,url"`
	ProjectRef       string  `json:"project_ref" validate:"omitempty,max=100"`
	AutoActivate     bool    `json:"auto_activate"`
}

// createCampaignHandler godoc
//
//	@Summary		Create and publish a campaign
//	@Description	Persists the draft and starts the publish walk against the remote ad platform in the background. Watch /campaigns/{campaignID}/events for progress.
//	@Tags			campaigns
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreateCampaignPayload	true	"Campaign draft"
//	@Success		202		{object}	store.Campaign
//	@Failure		400		{object}	error
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/campaigns [post]
func (app *application) createCampaignHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateCampaignPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	account := getAccountFromContext(r)

	reference, err := app.refs.Encode(time.Now().UnixNano())
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	campaign := &store.Campaign{
		OwnerID:          account.ID,
		Reference:        reference,
		ProjectRef:       payload.ProjectRef,
		Name:             payload.Name,
		Objective:        payload.Objective,
		DailyBudgetCents: payload.DailyBudgetCents,
		Headline:         payload.Headline,
		Body:             payload.Body,
		ImageURL:         payload.ImageURL,
		LandingURL:       payload.LandingURL,
		AutoActivate:     payload.AutoActivate,
	}

	if err := app.store.Campaigns.Create(r.Context(), campaign); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	// The publish walk outlives the request. The detached context gets its own
	// deadline so a dead remote platform cannot pin the goroutine forever.
	go func(campaignID int64) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := app.publisher.Publish(ctx, campaignID); err != nil {
			app.logger.Errorw("publish walk aborted", "campaign_id", campaignID, "error", err)
			return
		}

		app.notifyPublishOutcome(ctx, campaignID)
	}(campaign.ID)

	if err := app.jsonResponse(w, http.StatusAccepted, campaign); err != nil {
		app.internalServerError(w, r, err)
	}
}

// notifyPublishOutcome reloads the campaign after the walk and tells the owner
// how it ended. Notification failures are logged, never surfaced.
func (app *application) notifyPublishOutcome(ctx context.Context, campaignID int64) {
	campaign, err := app.store.Campaigns.GetByID(ctx, campaignID)
	if err != nil {
		app.logger.Errorw("failed to reload campaign after publish", "campaign_id", campaignID, "error", err)
		return
	}

	var event notifications.CampaignEvent
	switch campaign.Status {
	case store.CampaignStatusCompleted:
		event = notifications.CampaignPublished
	case store.CampaignStatusError:
		event = notifications.CampaignFailed
	default:
		return
	}

	if err := notifications.SendCampaignNotification(ctx, app.push, app.store, campaign, event); err != nil {
		if !errors.Is(err, store.ErrNoTokens) {
			app.logger.Errorw("failed to push campaign notification", "campaign_id", campaignID, "error", err)
		}
	}

	if event == notifications.CampaignFailed {
		app.sendPublishFailureMail(ctx, campaign)
	}
}

func (app *application) sendPublishFailureMail(ctx context.Context, campaign *store.Campaign) {
	owner, err := app.store.CreditAccounts.GetByID(ctx, campaign.OwnerID)
	if err != nil {
		app.logger.Errorw("failed to load owner for failure mail", "campaign_id", campaign.ID, "error", err)
		return
	}

	username := owner.Email
	if at := strings.Index(username, "@"); at > 0 {
		username = username[:at]
	}

	vars := struct {
		CampaignName string
		Username     string
		ErrorMessage string
		CampaignURL  string
	}{
		CampaignName: campaign.Name,
		Username:     username,
		ErrorMessage: deref(campaign.ErrorMessage),
		CampaignURL:  fmt.Sprintf("%s/campaigns/%s", app.config.frontendURL, campaign.Reference),
	}

	status, err := app.mailer.Send(mailer.CampaignFailedTemplate, username, owner.Email, vars)
	if err != nil {
		app.logger.Errorw("failed to send publish failure email", "campaign_id", campaign.ID, "error", err)
		return
	}

	app.logger.Infow("publish failure email sent", "campaign_id", campaign.ID, "status_code", status)
}

// listCampaignsHandler godoc
//
//	@Summary		List campaigns
//	@Description	Lists the authenticated account's campaigns, newest first
//	@Tags			campaigns
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{array}		store.Campaign
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/campaigns [get]
func (app *application) listCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	account := getAccountFromContext(r)
	limit, offset := paginationParams(r)

	campaigns, err := app.store.Campaigns.ListByOwner(r.Context(), account.ID, limit, offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, campaigns); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getCampaignHandler godoc
//
//	@Summary		Get a campaign
//	@Description	Fetches one campaign by row id or by its public cmp_ reference code
//	@Tags			campaigns
//	@Produce		json
//	@Param			campaignID	path		string	true	"Campaign ID or reference code"
//	@Success		200			{object}	store.Campaign
//	@Failure		404			{object}	error
//	@Failure		500			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/campaigns/{campaignID} [get]
func (app *application) getCampaignHandler(w http.ResponseWriter, r *http.Request) {
	campaign, ok := app.resolveCampaign(w, r)
	if !ok {
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, campaign); err != nil {
		app.internalServerError(w, r, err)
	}
}

// activateCampaignHandler godoc
//
//	@Summary		Activate a campaign
//	@Description	Flips delivery of a fully published campaign to active. Safe to repeat.
//	@Tags			campaigns
//	@Produce		json
//	@Param			campaignID	path		string	true	"Campaign ID or reference code"
//	@Success		200			{object}	store.Campaign
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error	"Campaign has not completed publishing"
//	@Security		ApiKeyAuth
//	@Router			/campaigns/{campaignID}/activate [post]
func (app *application) activateCampaignHandler(w http.ResponseWriter, r *http.Request) {
	app.setCampaignDelivery(w, r, app.publisher.Activate)
}

// pauseCampaignHandler godoc
//
//	@Summary		Pause a campaign
//	@Description	Flips delivery of a fully published campaign to paused. Safe to repeat.
//	@Tags			campaigns
//	@Produce		json
//	@Param			campaignID	path		string	true	"Campaign ID or reference code"
//	@Success		200			{object}	store.Campaign
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error	"Campaign has not completed publishing"
//	@Security		ApiKeyAuth
//	@Router			/campaigns/{campaignID}/pause [post]
func (app *application) pauseCampaignHandler(w http.ResponseWriter, r *http.Request) {
	app.setCampaignDelivery(w, r, app.publisher.Pause)
}

func (app *application) setCampaignDelivery(w http.ResponseWriter, r *http.Request, flip func(context.Context, int64) (*store.Campaign, error)) {
	campaign, ok := app.resolveCampaign(w, r)
	if !ok {
		return
	}

	updated, err := flip(r.Context(), campaign.ID)
	if err != nil {
		if errors.Is(err, publisher.ErrNotCompleted) {
			app.conflictResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, updated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// campaignInsightsHandler godoc
//
//	@Summary		Campaign insights
//	@Description	Reads delivery metrics from the remote ad platform for a published campaign
//	@Tags			campaigns
//	@Produce		json
//	@Param			campaignID	path		string	true	"Campaign ID or reference code"
//	@Success		200			{object}	adplatform.Insights
//	@Failure		404			{object}	error
//	@Failure		409			{object}	error	"Campaign has not completed publishing"
//	@Security		ApiKeyAuth
//	@Router			/campaigns/{campaignID}/insights [get]
func (app *application) campaignInsightsHandler(w http.ResponseWriter, r *http.Request) {
	campaign, ok := app.resolveCampaign(w, r)
	if !ok {
		return
	}

	insights, err := app.publisher.Insights(r.Context(), campaign.ID)
	if err != nil {
		if errors.Is(err, publisher.ErrNotCompleted) {
			app.conflictResponse(w, r, err)
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, insights); err != nil {
		app.internalServerError(w, r, err)
	}
}

// resolveCampaign loads the campaign from the URL param, which is either a row
// id or a public cmp_ reference code, and enforces ownership. Foreign campaigns
// come back as 404.
func (app *application) resolveCampaign(w http.ResponseWriter, r *http.Request) (*store.Campaign, bool) {
	param := chi.URLParam(r, "campaignID")
	account := getAccountFromContext(r)

	var (
		campaign *store.Campaign
		err      error
	)

	if strings.HasPrefix(param, "cmp_") {
		if _, decodeErr := app.refs.Decode(param); decodeErr != nil {
			app.badRequestResponse(w, r, decodeErr)
			return nil, false
		}
		campaign, err = app.store.Campaigns.GetByReference(r.Context(), param)
	} else {
		id, parseErr := strconv.ParseInt(param, 10, 64)
		if parseErr != nil {
			app.badRequestResponse(w, r, parseErr)
			return nil, false
		}
		campaign, err = app.store.Campaigns.GetByID(r.Context(), id)
	}

	if err != nil {
		app.handleStoreError(w, r, err)
		return nil, false
	}

	if campaign.OwnerID != account.ID {
		app.notFoundResponse(w, r, errors.New("campaign does not belong to account"))
		return nil, false
	}

	return campaign, true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

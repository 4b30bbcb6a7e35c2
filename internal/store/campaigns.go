package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Campaign publish statuses. Rows only ever move forward through these; the
// conditional updates below enforce it at the database level.
const (
	CampaignStatusPending         = "pending"
	CampaignStatusCampaignCreated = "campaign_created"
	CampaignStatusAdSetCreated    = "adset_created"
	CampaignStatusCompleted       = "completed"
	CampaignStatusError           = "error"
)

// Delivery mirror of the remote platform status, meaningful only once the
// publish walk has completed.
const (
	DeliveryStatusActive = "active"
	DeliveryStatusPaused = "paused"
)

type Campaign struct {
	ID               int64     `json:"id"`
	OwnerID          int64     `json:"owner_id"`
	Reference        string    `json:"reference"`
	ProjectRef       string    `json:"project_ref"`
	Name             string    `json:"name"`
	Objective        string    `json:"objective"`
	DailyBudgetCents int       `json:"daily_budget_cents"`
	Headline         string    `json:"headline"`
	Body             string    `json:"body"`
	ImageURL         *string   `json:"image_url"`
	LandingURL       string    `json:"landing_url"`
	AutoActivate     bool      `json:"auto_activate"`
	Status           string    `json:"status"`
	DeliveryStatus   *string   `json:"delivery_status"`
	RemoteCampaignID *string   `json:"remote_campaign_id"`
	RemoteAdSetID    *string   `json:"remote_adset_id"`
	RemoteCreativeID *string   `json:"remote_creative_id"`
	ErrorMessage     *string   `json:"error_message"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type CampaignsStore struct {
	db *pgxpool.Pool
}

const campaignColumns = `
	id, owner_id, reference, project_ref, name, objective, daily_budget_cents,
	headline, body, image_url, landing_url, auto_activate, status, delivery_status,
	remote_campaign_id, remote_adset_id, remote_creative_id, error_message,
	created_at, updated_at
`

func scanCampaign(row pgx.Row, c *Campaign) error {
	return row.Scan(
		&c.ID, &c.OwnerID, &c.Reference, &c.ProjectRef, &c.Name, &c.Objective,
		&c.DailyBudgetCents, &c.Headline, &c.Body, &c.ImageURL, &c.LandingURL,
		&c.AutoActivate, &c.Status, &c.DeliveryStatus, &c.RemoteCampaignID,
		&c.RemoteAdSetID, &c.RemoteCreativeID, &c.ErrorMessage,
		&c.CreatedAt, &c.UpdatedAt,
	)
}

func (s *CampaignsStore) Create(ctx context.Context, c *Campaign) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		INSERT INTO campaigns (owner_id, reference, project_ref, name, objective,
			daily_budget_cents, headline, body, image_url, landing_url, auto_activate, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, status, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query,
		c.OwnerID, c.Reference, c.ProjectRef, c.Name, c.Objective,
		c.DailyBudgetCents, c.Headline, c.Body, c.ImageURL, c.LandingURL,
		c.AutoActivate, CampaignStatusPending,
	).Scan(&c.ID, &c.Status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

func (s *CampaignsStore) GetByID(ctx context.Context, id int64) (*Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id = $1`

	var c Campaign
	if err := scanCampaign(s.db.QueryRow(ctx, query, id), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return &c, nil
}

func (s *CampaignsStore) GetByReference(ctx context.Context, reference string) (*Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE reference = $1`

	var c Campaign
	if err := scanCampaign(s.db.QueryRow(ctx, query, reference), &c); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get campaign by reference: %w", err)
	}

	return &c, nil
}

func (s *CampaignsStore) ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `SELECT ` + campaignColumns + `
		FROM campaigns
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []Campaign
	for rows.Next() {
		var c Campaign
		if err := scanCampaign(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan campaign row: %w", err)
		}
		campaigns = append(campaigns, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return campaigns, nil
}

// transition performs a conditional status update. RowsAffected == 0 means the
// row was not in the expected state, which callers surface as ErrConflict.
func (s *CampaignsStore) transition(ctx context.Context, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	cmdTag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition campaign: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrConflict
	}

	return nil
}

func (s *CampaignsStore) SetCampaignCreated(ctx context.Context, id int64, remoteCampaignID string) error {
	query := `
		UPDATE campaigns
		SET status = $2, remote_campaign_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	return s.transition(ctx, query, id, CampaignStatusCampaignCreated, remoteCampaignID, CampaignStatusPending)
}

func (s *CampaignsStore) SetAdSetCreated(ctx context.Context, id int64, remoteAdSetID string) error {
	query := `
		UPDATE campaigns
		SET status = $2, remote_adset_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	return s.transition(ctx, query, id, CampaignStatusAdSetCreated, remoteAdSetID, CampaignStatusCampaignCreated)
}

func (s *CampaignsStore) SetCompleted(ctx context.Context, id int64, remoteCreativeID string) error {
	query := `
		UPDATE campaigns
		SET status = $2, remote_creative_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`
	return s.transition(ctx, query, id, CampaignStatusCompleted, remoteCreativeID, CampaignStatusAdSetCreated)
}

// SetFailed is reachable from any non-terminal status, so it only refuses to
// overwrite the terminal ones.
func (s *CampaignsStore) SetFailed(ctx context.Context, id int64, message string) error {
	query := `
		UPDATE campaigns
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1 AND status NOT IN ($4, $5)
	`
	return s.transition(ctx, query, id, CampaignStatusError, message, CampaignStatusCompleted, CampaignStatusError)
}

func (s *CampaignsStore) SetDeliveryStatus(ctx context.Context, id int64, delivery string) error {
	query := `
		UPDATE campaigns
		SET delivery_status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`
	return s.transition(ctx, query, id, delivery, CampaignStatusCompleted)
}

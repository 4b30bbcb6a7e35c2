package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource already exists")
	ErrVersionConflict   = errors.New("stale account version")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	CreditAccounts interface {
		GetByID(context.Context, int64) (*CreditAccount, error)
		ReserveBalance(ctx context.Context, accountID int64, amount int, version int64) error
		AddBalance(ctx context.Context, accountID int64, amount int) error
		RecordTransaction(context.Context, *CreditTransaction) error
		ListTransactions(ctx context.Context, accountID int64, limit, offset int) ([]CreditTransaction, error)
	}
	Campaigns interface {
		Create(context.Context, *Campaign) error
		GetByID(context.Context, int64) (*Campaign, error)
		GetByReference(context.Context, string) (*Campaign, error)
		ListByOwner(ctx context.Context, ownerID int64, limit, offset int) ([]Campaign, error)
		SetCampaignCreated(ctx context.Context, id int64, remoteCampaignID string) error
		SetAdSetCreated(ctx context.Context, id int64, remoteAdSetID string) error
		SetCompleted(ctx context.Context, id int64, remoteCreativeID string) error
		SetFailed(ctx context.Context, id int64, message string) error
		SetDeliveryStatus(ctx context.Context, id int64, delivery string) error
	}
	Artifacts interface {
		Create(context.Context, *Artifact) error
		GetByID(context.Context, int64) (*Artifact, error)
		ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]Artifact, error)
	}
	ImageAssets interface {
		Create(context.Context, *ImageAsset) error
		GetByID(context.Context, int64) (*ImageAsset, error)
		SetProcessing(ctx context.Context, id int64) error
		SetReady(ctx context.Context, id int64, storageURL string) error
		SetFailed(ctx context.Context, id int64, message string) error
		ListByStatus(ctx context.Context, status string, limit int) ([]ImageAsset, error)
	}
	PushTokens interface {
		AddOrUpdatePushToken(ctx context.Context, accountID int64, token string) error
		RemovePushToken(ctx context.Context, accountID int64, token string) error
		GetTokensForAccount(ctx context.Context, accountID int64) ([]string, error)
	}
}

func NewStorage(db *pgxpool.Pool) Storage {
	return Storage{
		CreditAccounts: &CreditAccountsStore{db},
		Campaigns:      &CampaignsStore{db},
		Artifacts:      &ArtifactsStore{db},
		ImageAssets:    &ImageAssetsStore{db},
		PushTokens:     &PushTokensStore{db},
	}
}

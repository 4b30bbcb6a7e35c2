package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	AssetStatusPending    = "pending"
	AssetStatusProcessing = "processing"
	AssetStatusReady      = "ready"
	AssetStatusFailed     = "failed"
)

const (
	AssetKindImage = "image"
	AssetKindVideo = "video"
)

type ImageAsset struct {
	ID           int64     `json:"id"`
	AccountID    int64     `json:"account_id"`
	Kind         string    `json:"kind"`
	SourceURL    string    `json:"source_url"`
	StorageURL   *string   `json:"storage_url"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type ImageAssetsStore struct {
	db *pgxpool.Pool
}

func (s *ImageAssetsStore) Create(ctx context.Context, a *ImageAsset) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		INSERT INTO image_assets (account_id, kind, source_url, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at, updated_at
	`

	err := s.db.QueryRow(ctx, query, a.AccountID, a.Kind, a.SourceURL, AssetStatusPending).
		Scan(&a.ID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create image asset: %w", err)
	}

	return nil
}

func (s *ImageAssetsStore) GetByID(ctx context.Context, id int64) (*ImageAsset, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		SELECT id, account_id, kind, source_url, storage_url, status, error_message, created_at, updated_at
		FROM image_assets
		WHERE id = $1
	`

	var a ImageAsset
	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.AccountID, &a.Kind, &a.SourceURL, &a.StorageURL,
		&a.Status, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get image asset: %w", err)
	}

	return &a, nil
}

func (s *ImageAssetsStore) SetProcessing(ctx context.Context, id int64) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		UPDATE image_assets
		SET status = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, AssetStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark asset processing: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *ImageAssetsStore) SetReady(ctx context.Context, id int64, storageURL string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		UPDATE image_assets
		SET status = $2, storage_url = $3, error_message = NULL, updated_at = NOW()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, AssetStatusReady, storageURL)
	if err != nil {
		return fmt.Errorf("failed to mark asset ready: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *ImageAssetsStore) SetFailed(ctx context.Context, id int64, message string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		UPDATE image_assets
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1
	`

	cmdTag, err := s.db.Exec(ctx, query, id, AssetStatusFailed, message)
	if err != nil {
		return fmt.Errorf("failed to mark asset failed: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *ImageAssetsStore) ListByStatus(ctx context.Context, status string, limit int) ([]ImageAsset, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		SELECT id, account_id, kind, source_url, storage_url, status, error_message, created_at, updated_at
		FROM image_assets
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query image assets: %w", err)
	}
	defer rows.Close()

	var assets []ImageAsset
	for rows.Next() {
		var a ImageAsset
		err := rows.Scan(
			&a.ID, &a.AccountID, &a.Kind, &a.SourceURL, &a.StorageURL,
			&a.Status, &a.ErrorMessage, &a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image asset row: %w", err)
		}
		assets = append(assets, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return assets, nil
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Artifact is a stored generation result. ImageURLs holds any externally
// hosted images referenced by the content; the asset pipeline re-hosts them
// asynchronously.
type Artifact struct {
	ID             int64     `json:"id"`
	AccountID      int64     `json:"account_id"`
	Kind           string    `json:"kind"` // text, image
	ProjectRef     string    `json:"project_ref"`
	Prompt         string    `json:"prompt"`
	Content        string    `json:"content"`
	ImageURLs      []string  `json:"image_urls"`
	IdempotencyKey string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type ArtifactsStore struct {
	db *pgxpool.Pool
}

func (s *ArtifactsStore) Create(ctx context.Context, a *Artifact) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		INSERT INTO generation_artifacts (account_id, kind, project_ref, prompt, content, image_urls, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := s.db.QueryRow(ctx, query,
		a.AccountID, a.Kind, a.ProjectRef, a.Prompt, a.Content, a.ImageURLs, a.IdempotencyKey,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}

	return nil
}

func (s *ArtifactsStore) GetByID(ctx context.Context, id int64) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		SELECT id, account_id, kind, project_ref, prompt, content, image_urls, idempotency_key, created_at
		FROM generation_artifacts
		WHERE id = $1
	`

	var a Artifact
	err := s.db.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.AccountID, &a.Kind, &a.ProjectRef, &a.Prompt, &a.Content,
		&a.ImageURLs, &a.IdempotencyKey, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return &a, nil
}

func (s *ArtifactsStore) ListByAccount(ctx context.Context, accountID int64, limit, offset int) ([]Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	query := `
		SELECT id, account_id, kind, project_ref, prompt, content, image_urls, idempotency_key, created_at
		FROM generation_artifacts
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := s.db.Query(ctx, query, accountID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		err := rows.Scan(
			&a.ID, &a.AccountID, &a.Kind, &a.ProjectRef, &a.Prompt, &a.Content,
			&a.ImageURLs, &a.IdempotencyKey, &a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact row: %w", err)
		}
		artifacts = append(artifacts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	return artifacts, nil
}

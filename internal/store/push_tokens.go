package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNoTokens = errors.New("no push tokens")

type PushTokensStore struct {
	db *pgxpool.Pool
}

// AddOrUpdatePushToken upserts an Expo push token for an account.
func (s *PushTokensStore) AddOrUpdatePushToken(ctx context.Context, accountID int64, token string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	q := `
	INSERT INTO account_push_tokens (account_id, expo_push_token, last_updated)
	VALUES ($1, $2, NOW())
	ON CONFLICT (account_id, expo_push_token)
	DO UPDATE SET last_updated = NOW();
	`

	_, err := s.db.Exec(ctx, q, accountID, token)
	return err
}

// RemovePushToken deletes a token for an account.
func (s *PushTokensStore) RemovePushToken(ctx context.Context, accountID int64, token string) error {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	q := `DELETE FROM account_push_tokens WHERE account_id = $1 AND expo_push_token = $2`
	_, err := s.db.Exec(ctx, q, accountID, token)
	return err
}

// GetTokensForAccount returns every registered token for one account.
func (s *PushTokensStore) GetTokensForAccount(ctx context.Context, accountID int64) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	q := `SELECT expo_push_token FROM account_push_tokens WHERE account_id = $1`

	rows, err := s.db.Query(ctx, q, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query push tokens: %w", err)
	}
	defer rows.Close()

	var tokens []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("failed to scan push token row: %w", err)
		}
		tokens = append(tokens, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}

	if len(tokens) == 0 {
		return nil, ErrNoTokens
	}

	return tokens, nil
}

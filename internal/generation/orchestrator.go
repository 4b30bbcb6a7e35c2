// Package generation wraps the external content provider with the credit
// ledger: reserve before the call, commit only after the artifact is stored,
// refund when the provider fails for good.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adpilot/internal/ledger"
	"adpilot/internal/retry"
	"adpilot/internal/store"

	"go.uber.org/zap"
)

// CostPerGeneration is the ledger price of one provider call.
const CostPerGeneration = 1

type Orchestrator struct {
	store    store.Storage
	ledger   *ledger.Ledger
	provider Provider
	logger   *zap.SugaredLogger

	maxAttempts int
	baseDelay   time.Duration
}

func NewOrchestrator(storage store.Storage, l *ledger.Ledger, provider Provider, logger *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		store:       storage,
		ledger:      l,
		provider:    provider,
		logger:      logger,
		maxAttempts: retry.DefaultMaxAttempts,
		baseDelay:   retry.DefaultBaseDelay,
	}
}

// WithRetryPolicy overrides the provider attempt budget. Used by tests.
func (o *Orchestrator) WithRetryPolicy(maxAttempts int, baseDelay time.Duration) *Orchestrator {
	o.maxAttempts = maxAttempts
	o.baseDelay = baseDelay
	return o
}

// Generate runs one credit-gated generation. Insufficient credits aborts
// before the provider is ever invoked; a provider failure after retries leaves
// the balance exactly where it started.
func (o *Orchestrator) Generate(ctx context.Context, accountID int64, req Request) (*store.Artifact, error) {
	res, err := o.ledger.CheckAndReserve(ctx, accountID, CostPerGeneration)
	if err != nil {
		return nil, err
	}

	var result *Result
	err = retry.Do(ctx, func() error {
		var err error
		result, err = o.provider.Generate(ctx, req)
		return err
	},
		retry.WithMaxAttempts(o.maxAttempts),
		retry.WithBaseDelay(o.baseDelay),
		retry.WithRetryIf(func(err error) bool {
			return !errors.Is(err, ErrBlocked) &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, context.DeadlineExceeded)
		}),
	)
	if err != nil {
		if refundErr := o.ledger.Refund(ctx, res); refundErr != nil {
			o.logger.Errorw("refund after provider failure did not apply",
				"account_id", accountID, "key", res.Key, "error", refundErr)
		}
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	artifact := &store.Artifact{
		AccountID:      accountID,
		Kind:           req.Kind,
		ProjectRef:     req.ProjectRef,
		Prompt:         req.Prompt,
		Content:        result.Content,
		ImageURLs:      result.ImageURLs,
		IdempotencyKey: res.Key,
	}
	if err := o.store.Artifacts.Create(ctx, artifact); err != nil {
		if refundErr := o.ledger.Refund(ctx, res); refundErr != nil {
			o.logger.Errorw("refund after artifact store failure did not apply",
				"account_id", accountID, "key", res.Key, "error", refundErr)
		}
		return nil, fmt.Errorf("store artifact: %w", err)
	}

	// Queue referenced external media for re-hosting. Failures here do not
	// fail the generation; the asset stays fetchable at its source URL.
	for _, u := range result.ImageURLs {
		asset := &store.ImageAsset{AccountID: accountID, Kind: store.AssetKindImage, SourceURL: u}
		if err := o.store.ImageAssets.Create(ctx, asset); err != nil {
			o.logger.Errorw("failed to queue image asset", "source_url", u, "error", err)
		}
	}

	if err := o.ledger.Commit(ctx, res); err != nil {
		// The artifact is already stored and returned to the caller. A debit
		// that failed to commit needs manual reconciliation; never claw back
		// the artifact silently.
		o.logger.Errorw("commit failed after successful generation; needs reconciliation",
			"account_id", accountID, "key", res.Key, "artifact_id", artifact.ID, "error", err)
	}

	return artifact, nil
}

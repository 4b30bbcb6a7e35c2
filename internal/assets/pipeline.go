// Package assets re-hosts externally referenced media in owned storage.
// Each asset migrates independently; a batch isolates per-asset failures and
// reports a result per id.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"adpilot/internal/retry"
	"adpilot/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAssetBytes caps a fetched asset. Anything bigger is not worth re-hosting
// through this pipeline.
const maxAssetBytes = 25 << 20

const defaultConcurrency = 4

type Result struct {
	AssetID    int64   `json:"asset_id"`
	Status     string  `json:"status"`
	StorageURL *string `json:"storage_url,omitempty"`
	Error      string  `json:"error,omitempty"`
}

type Pipeline struct {
	store       store.Storage
	uploader    Uploader
	client      *http.Client
	logger      *zap.SugaredLogger
	concurrency int

	maxAttempts int
	baseDelay   time.Duration
}

func NewPipeline(storage store.Storage, uploader Uploader, logger *zap.SugaredLogger) *Pipeline {
	return &Pipeline{
		store:       storage,
		uploader:    uploader,
		client:      &http.Client{Timeout: 30 * time.Second},
		logger:      logger,
		concurrency: defaultConcurrency,
		maxAttempts: retry.DefaultMaxAttempts,
		baseDelay:   retry.DefaultBaseDelay,
	}
}

// WithRetryPolicy overrides the fetch/upload attempt budget. Used by tests.
func (p *Pipeline) WithRetryPolicy(maxAttempts int, baseDelay time.Duration) *Pipeline {
	p.maxAttempts = maxAttempts
	p.baseDelay = baseDelay
	return p
}

// MigrateOne fetches the asset's source and uploads the bytes to owned
// storage. Any failure lands the asset in failed; it stays eligible for a
// later batch retry. Re-migrating a ready asset simply re-fetches and
// re-uploads.
func (p *Pipeline) MigrateOne(ctx context.Context, assetID int64) (*store.ImageAsset, error) {
	asset, err := p.store.ImageAssets.GetByID(ctx, assetID)
	if err != nil {
		return nil, fmt.Errorf("load asset: %w", err)
	}

	// Video is deliberately not re-transcoded or re-hosted; the source URL is
	// served as-is.
	if asset.Kind == store.AssetKindVideo {
		if err := p.store.ImageAssets.SetReady(ctx, asset.ID, asset.SourceURL); err != nil {
			return nil, fmt.Errorf("mark video ready: %w", err)
		}
		asset.Status = store.AssetStatusReady
		asset.StorageURL = &asset.SourceURL
		return asset, nil
	}

	if err := p.store.ImageAssets.SetProcessing(ctx, asset.ID); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	storageURL, err := p.rehost(ctx, asset)
	if err != nil {
		if failErr := p.store.ImageAssets.SetFailed(ctx, asset.ID, err.Error()); failErr != nil {
			p.logger.Errorw("failed to mark asset failed", "asset_id", asset.ID, "error", failErr)
		}
		asset.Status = store.AssetStatusFailed
		msg := err.Error()
		asset.ErrorMessage = &msg
		return asset, err
	}

	if err := p.store.ImageAssets.SetReady(ctx, asset.ID, storageURL); err != nil {
		return nil, fmt.Errorf("mark ready: %w", err)
	}

	asset.Status = store.AssetStatusReady
	asset.StorageURL = &storageURL
	asset.ErrorMessage = nil
	return asset, nil
}

// MigrateBatch fans MigrateOne out over the ids with bounded concurrency.
// One asset failing never flips the others; the batch itself always succeeds
// and reports per-asset outcomes.
func (p *Pipeline) MigrateBatch(ctx context.Context, assetIDs []int64) []Result {
	results := make([]Result, len(assetIDs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	for i, id := range assetIDs {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			asset, err := p.MigrateOne(ctx, id)
			if err != nil {
				status := store.AssetStatusFailed
				if asset != nil {
					status = asset.Status
				}
				results[i] = Result{AssetID: id, Status: status, Error: err.Error()}
				return
			}
			results[i] = Result{AssetID: id, Status: asset.Status, StorageURL: asset.StorageURL}
		}(i, id)
	}

	wg.Wait()
	return results
}

// rehost downloads the source and uploads the bytes under a fresh public ID.
// Both remote calls go through the retry executor; an HTTP 4xx on the source
// is terminal (the URL is simply wrong), 5xx and transport errors retry.
func (p *Pipeline) rehost(ctx context.Context, asset *store.ImageAsset) (string, error) {
	publicID := fmt.Sprintf("asset_%d_%s", asset.ID, uuid.NewString()[:8])

	var storageURL string
	err := retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.SourceURL, nil)
		if err != nil {
			return &fetchError{status: 0, err: fmt.Errorf("build fetch request: %w", err)}
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch source: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return &fetchError{status: resp.StatusCode, err: fmt.Errorf("fetch source: unexpected status %d", resp.StatusCode)}
		}

		body := http.MaxBytesReader(nil, resp.Body, maxAssetBytes)
		storageURL, err = p.uploader.Upload(ctx, body, publicID)
		return err
	},
		retry.WithMaxAttempts(p.maxAttempts),
		retry.WithBaseDelay(p.baseDelay),
		retry.WithRetryIf(func(err error) bool {
			var fe *fetchError
			if errors.As(err, &fe) {
				return fe.status >= 500
			}
			return true
		}),
	)
	if err != nil {
		return "", err
	}

	return storageURL, nil
}

type fetchError struct {
	status int
	err    error
}

func (e *fetchError) Error() string { return e.err.Error() }
func (e *fetchError) Unwrap() error { return e.err }

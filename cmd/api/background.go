package main

import (
	"context"
	"time"

	"adpilot/internal/store"
)

// sweepPendingAssets periodically retries assets that were queued but never
// migrated, e.g. when the process died between artifact persistence and
// migration.
func (app *application) sweepPendingAssets(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)

			pending, err := app.store.ImageAssets.ListByStatus(ctx, store.AssetStatusPending, 50)
			if err != nil {
				app.logger.Errorf("asset sweep: listing pending assets: %v", err)
				cancel()
				continue
			}

			if len(pending) == 0 {
				cancel()
				continue
			}

			ids := make([]int64, 0, len(pending))
			for _, a := range pending {
				ids = append(ids, a.ID)
			}

			results := app.pipeline.MigrateBatch(ctx, ids)
			ready := 0
			for _, res := range results {
				if res.Status == store.AssetStatusReady {
					ready++
				}
			}
			app.logger.Infow("asset sweep finished", "total", len(results), "ready", ready)
			cancel()
		}
	}()
}

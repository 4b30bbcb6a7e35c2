package main

import (
	"errors"
	"net/http"
	"strconv"

	"adpilot/internal/store"

	"github.com/go-chi/chi/v5"
)

type MigrateAssetBatchPayload struct {
	AssetIDs []int64 `json:"asset_ids" validate:"required,min=1,max=50,dive,min=1"`
}

// migrateAssetBatchHandler godoc
//
//	@Summary		Migrate a batch of assets
//	@Description	Re-hosts the given assets in owned storage. Assets migrate independently; the response carries one result per id.
//	@Tags			assets
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		MigrateAssetBatchPayload	true	"Asset ids to migrate"
//	@Success		200		{array}		assets.Result
//	@Failure		400		{object}	error
//	@Failure		404		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/assets/migrate [post]
func (app *application) migrateAssetBatchHandler(w http.ResponseWriter, r *http.Request) {
	var payload MigrateAssetBatchPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	account := getAccountFromContext(r)

	// Every id must belong to the caller before any migration starts.
	for _, id := range payload.AssetIDs {
		asset, err := app.store.ImageAssets.GetByID(r.Context(), id)
		if err != nil {
			app.handleStoreError(w, r, err)
			return
		}
		if asset.AccountID != account.ID {
			app.notFoundResponse(w, r, errors.New("asset does not belong to account"))
			return
		}
	}

	results := app.pipeline.MigrateBatch(r.Context(), payload.AssetIDs)

	if err := app.jsonResponse(w, http.StatusOK, results); err != nil {
		app.internalServerError(w, r, err)
	}
}

// migrateAssetHandler godoc
//
//	@Summary		Migrate one asset
//	@Description	Re-hosts a single asset in owned storage. A failed migration leaves the asset in failed with the error recorded; it stays eligible for retry.
//	@Tags			assets
//	@Produce		json
//	@Param			assetID	path		int	true	"Asset ID"
//	@Success		200		{object}	store.ImageAsset
//	@Failure		404		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/assets/{assetID}/migrate [post]
func (app *application) migrateAssetHandler(w http.ResponseWriter, r *http.Request) {
	asset, ok := app.resolveAsset(w, r)
	if !ok {
		return
	}

	migrated, err := app.pipeline.MigrateOne(r.Context(), asset.ID)
	if err != nil {
		if migrated != nil {
			// The asset record carries the failure; the call itself succeeded.
			if jsonErr := app.jsonResponse(w, http.StatusOK, migrated); jsonErr != nil {
				app.internalServerError(w, r, jsonErr)
			}
			return
		}
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, migrated); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getAssetHandler godoc
//
//	@Summary		Get an asset
//	@Description	Fetches one asset record owned by the authenticated account
//	@Tags			assets
//	@Produce		json
//	@Param			assetID	path		int	true	"Asset ID"
//	@Success		200		{object}	store.ImageAsset
//	@Failure		404		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/assets/{assetID} [get]
func (app *application) getAssetHandler(w http.ResponseWriter, r *http.Request) {
	asset, ok := app.resolveAsset(w, r)
	if !ok {
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, asset); err != nil {
		app.internalServerError(w, r, err)
	}
}

func (app *application) resolveAsset(w http.ResponseWriter, r *http.Request) (*store.ImageAsset, bool) {
	assetID, err := strconv.ParseInt(chi.URLParam(r, "assetID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return nil, false
	}

	account := getAccountFromContext(r)

	asset, err := app.store.ImageAssets.GetByID(r.Context(), assetID)
	if err != nil {
		app.handleStoreError(w, r, err)
		return nil, false
	}

	if asset.AccountID != account.ID {
		app.notFoundResponse(w, r, errors.New("asset does not belong to account"))
		return nil, false
	}

	return asset, true
}

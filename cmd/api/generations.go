package main

import (
	"errors"
	"net/http"
	"strconv"

	"adpilot/internal/generation"
	"adpilot/internal/ledger"

	"github.com/go-chi/chi/v5"
)

type CreateGenerationPayload struct {
	Kind       string `json:"kind" validate:"required,oneof=text image"`
	Prompt     string `json:"prompt" validate:"required,max=4000"`
	ProjectRef string `json:"project_ref" validate:"omitempty,max=100"`
}

// createGenerationHandler godoc
//
//	@Summary		Run a credit-gated generation
//	@Description	Reserves one credit, invokes the content provider and stores the resulting artifact. The credit is refunded if the provider fails.
//	@Tags			generations
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		CreateGenerationPayload	true	"Generation request"
//	@Success		201		{object}	store.Artifact
//	@Failure		400		{object}	error
//	@Failure		402		{object}	error	"Insufficient credits"
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/generations [post]
func (app *application) createGenerationHandler(w http.ResponseWriter, r *http.Request) {
	var payload CreateGenerationPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	account := getAccountFromContext(r)

	artifact, err := app.orchestrator.Generate(r.Context(), account.ID, generation.Request{
		Kind:       payload.Kind,
		Prompt:     payload.Prompt,
		ProjectRef: payload.ProjectRef,
	})
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInsufficientCredits):
			app.paymentRequiredResponse(w, r)
		case errors.Is(err, generation.ErrBlocked):
			app.badRequestResponse(w, r, err)
		default:
			app.internalServerError(w, r, err)
		}
		return
	}

	if err := app.jsonResponse(w, http.StatusCreated, artifact); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listArtifactsHandler godoc
//
//	@Summary		List generation artifacts
//	@Description	Lists the authenticated account's stored generation results, newest first
//	@Tags			generations
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{array}		store.Artifact
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/generations [get]
func (app *application) listArtifactsHandler(w http.ResponseWriter, r *http.Request) {
	account := getAccountFromContext(r)
	limit, offset := paginationParams(r)

	artifacts, err := app.store.Artifacts.ListByAccount(r.Context(), account.ID, limit, offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, artifacts); err != nil {
		app.internalServerError(w, r, err)
	}
}

// getArtifactHandler godoc
//
//	@Summary		Get a generation artifact
//	@Description	Fetches one stored generation result owned by the authenticated account
//	@Tags			generations
//	@Produce		json
//	@Param			artifactID	path		int	true	"Artifact ID"
//	@Success		200			{object}	store.Artifact
//	@Failure		404			{object}	error
//	@Failure		500			{object}	error
//	@Security		ApiKeyAuth
//	@Router			/generations/{artifactID} [get]
func (app *application) getArtifactHandler(w http.ResponseWriter, r *http.Request) {
	artifactID, err := strconv.ParseInt(chi.URLParam(r, "artifactID"), 10, 64)
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	account := getAccountFromContext(r)

	artifact, err := app.store.Artifacts.GetByID(r.Context(), artifactID)
	if err != nil {
		app.handleStoreError(w, r, err)
		return
	}

	// Ownership is enforced as a 404 so foreign ids are indistinguishable from
	// missing ones.
	if artifact.AccountID != account.ID {
		app.notFoundResponse(w, r, errors.New("artifact does not belong to account"))
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, artifact); err != nil {
		app.internalServerError(w, r, err)
	}
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit, offset = 20, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 100 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

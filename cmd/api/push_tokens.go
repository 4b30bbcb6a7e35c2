package main

import (
	"net/http"
)

type PushTokenPayload struct {
	Token string `json:"token" validate:"required,startswith=ExponentPushToken"`
}

// registerPushTokenHandler godoc
//
//	@Summary		Register a push token
//	@Description	Registers or refreshes an Expo push token for the authenticated account
//	@Tags			push-tokens
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		PushTokenPayload	true	"Expo push token"
//	@Success		204		{object}	nil
//	@Failure		400		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/push-tokens [post]
func (app *application) registerPushTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload PushTokenPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	account := getAccountFromContext(r)

	if err := app.store.PushTokens.AddOrUpdatePushToken(r.Context(), account.ID, payload.Token); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// removePushTokenHandler godoc
//
//	@Summary		Remove a push token
//	@Description	Removes an Expo push token from the authenticated account
//	@Tags			push-tokens
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		PushTokenPayload	true	"Expo push token"
//	@Success		204		{object}	nil
//	@Failure		400		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/push-tokens [delete]
func (app *application) removePushTokenHandler(w http.ResponseWriter, r *http.Request) {
	var payload PushTokenPayload
	if err := readJSON(w, r, &payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	if err := Validate.Struct(payload); err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	account := getAccountFromContext(r)

	if err := app.store.PushTokens.RemovePushToken(r.Context(), account.ID, payload.Token); err != nil {
		app.internalServerError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

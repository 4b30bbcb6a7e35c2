package main

import (
	"errors"
	"io"
	"net/http"

	"adpilot/internal/billing"

	"github.com/go-chi/chi/v5"
)

// paymentWebhookHandler godoc
//
//	@Summary		Payment processor webhook
//	@Description	Verifies the processor's signature and credits the account. Redelivered events are no-ops.
//	@Tags			webhooks
//	@Accept			json
//	@Produce		json
//	@Param			gateway	path		string	true	"Payment gateway name"
//	@Success		200		{object}	map[string]bool
//	@Failure		400		{object}	error
//	@Failure		401		{object}	error	"Signature mismatch"
//	@Router			/webhooks/payments/{gateway} [post]
func (app *application) paymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	gateway := chi.URLParam(r, "gateway")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		app.badRequestResponse(w, r, err)
		return
	}

	event, err := app.billing.VerifyWebhook(gateway, r, body)
	if err != nil {
		if errors.Is(err, billing.ErrBadSignature) {
			app.unauthorizedErrorResponse(w, r, err)
			return
		}
		app.badRequestResponse(w, r, err)
		return
	}

	if err := app.ledger.TopUp(r.Context(), event.AccountID, event.Credits, event.Reference); err != nil {
		// A non-2xx makes the processor redeliver; the idempotency key absorbs
		// the replay once the fault clears.
		app.internalServerError(w, r, err)
		return
	}

	app.logger.Infow("credits topped up",
		"gateway", gateway, "account_id", event.AccountID,
		"credits", event.Credits, "reference", event.Reference,
	)

	if err := app.jsonResponse(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		app.internalServerError(w, r, err)
	}
}

package main

import (
	"net/http"
)

// getBalanceHandler godoc
//
//	@Summary		Get credit balance
//	@Description	Returns the authenticated account's current credit balance
//	@Tags			credits
//	@Produce		json
//	@Success		200	{object}	map[string]int
//	@Failure		500	{object}	error
//	@Security		ApiKeyAuth
//	@Router			/credits [get]
func (app *application) getBalanceHandler(w http.ResponseWriter, r *http.Request) {
	account := getAccountFromContext(r)

	balance, err := app.ledger.Balance(r.Context(), account.ID)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, map[string]int{"balance": balance}); err != nil {
		app.internalServerError(w, r, err)
	}
}

// listTransactionsHandler godoc
//
//	@Summary		List credit transactions
//	@Description	Lists the authenticated account's ledger entries, newest first
//	@Tags			credits
//	@Produce		json
//	@Param			limit	query		int	false	"Page size"
//	@Param			offset	query		int	false	"Page offset"
//	@Success		200		{array}		store.CreditTransaction
//	@Failure		500		{object}	error
//	@Security		ApiKeyAuth
//	@Router			/credits/transactions [get]
func (app *application) listTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	account := getAccountFromContext(r)
	limit, offset := paginationParams(r)

	txs, err := app.store.CreditAccounts.ListTransactions(r.Context(), account.ID, limit, offset)
	if err != nil {
		app.internalServerError(w, r, err)
		return
	}

	if err := app.jsonResponse(w, http.StatusOK, txs); err != nil {
		app.internalServerError(w, r, err)
	}
}

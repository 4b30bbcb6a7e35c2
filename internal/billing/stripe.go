package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var ErrBadSignature = errors.New("webhook signature mismatch")

// StripeAdapter verifies checkout-completed webhooks. Verification is an HMAC
// over the raw body with the endpoint secret, compared against the signature
// header.
type StripeAdapter struct {
	SigningSecret string
}

func NewStripeAdapter(secret string) *StripeAdapter {
	return &StripeAdapter{SigningSecret: secret}
}

func (a *StripeAdapter) VerifyWebhook(r *http.Request, body []byte) (*TopUpEvent, error) {
	sig := r.Header.Get("Stripe-Signature")
	if sig == "" {
		return nil, ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(a.SigningSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return nil, ErrBadSignature
	}

	var payload struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			AccountID int64 `json:"account_id"`
			Credits   int   `json:"credits"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	if payload.Type != "checkout.session.completed" {
		return nil, fmt.Errorf("unhandled event type: %s", payload.Type)
	}
	if payload.Data.Credits <= 0 {
		return nil, fmt.Errorf("non-positive credit amount: %d", payload.Data.Credits)
	}

	return &TopUpEvent{
		AccountID: payload.Data.AccountID,
		Credits:   payload.Data.Credits,
		Reference: payload.ID,
	}, nil
}

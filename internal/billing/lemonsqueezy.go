package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// LemonSqueezyAdapter verifies order-created webhooks. The account id and
// credit amount travel in the order's custom data.
type LemonSqueezyAdapter struct {
	SigningSecret string
}

func NewLemonSqueezyAdapter(secret string) *LemonSqueezyAdapter {
	return &LemonSqueezyAdapter{SigningSecret: secret}
}

func (a *LemonSqueezyAdapter) VerifyWebhook(r *http.Request, body []byte) (*TopUpEvent, error) {
	sig := r.Header.Get("X-Signature")
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
		Meta struct {
			EventName  string `json:"event_name"`
			CustomData struct {
				AccountID string `json:"account_id"`
				Credits   string `json:"credits"`
			} `json:"custom_data"`
		} `json:"meta"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	if payload.Meta.EventName != "order_created" {
		return nil, fmt.Errorf("unhandled event type: %s", payload.Meta.EventName)
	}

	accountID, err := strconv.ParseInt(payload.Meta.CustomData.AccountID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid account id in custom data: %w", err)
	}
	credits, err := strconv.Atoi(payload.Meta.CustomData.Credits)
	if err != nil || credits <= 0 {
		return nil, fmt.Errorf("invalid credit amount in custom data")
	}

	return &TopUpEvent{
		AccountID: accountID,
		Credits:   credits,
		Reference: "ls_" + payload.Data.ID,
	}, nil
}

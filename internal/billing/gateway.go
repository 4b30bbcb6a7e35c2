package billing

import "net/http"

// TopUpEvent is the only thing the core cares about from a payment processor:
// which account gets how many credits, and a reference that makes redelivery
// idempotent.
type TopUpEvent struct {
	AccountID int64
	Credits   int
	Reference string
}

// Gateway verifies an incoming webhook request and extracts its top-up event.
// Each processor has its own signature scheme and payload shape.
type Gateway interface {
	VerifyWebhook(r *http.Request, body []byte) (*TopUpEvent, error)
}

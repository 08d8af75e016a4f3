package payments

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Normalized payment outcome reported by a provider webhook.
type WebhookStatus string

const (
	StatusSuccess WebhookStatus = "success"
	StatusFailed  WebhookStatus = "failed"
	StatusPending WebhookStatus = "pending"
)

// WebhookData is the provider-independent shape every adapter maps its
// native webhook into. EventID is the provider's unique event identifier and
// doubles as the idempotency key.
type WebhookData struct {
	Provider    string          `json:"provider"`
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	OrderID     string          `json:"order_id"`
	PaymentID   string          `json:"payment_id,omitempty"`
	Status      WebhookStatus   `json:"status"`
	AmountCents int             `json:"amount_cents,omitempty"`
	Currency    string          `json:"currency,omitempty"`
	RawPayload  json.RawMessage `json:"raw_payload,omitempty"`
}

var ErrInvalidWebhook = errors.New("invalid webhook data")

func (d WebhookData) Validate() error {
	if d.Provider == "" || d.EventID == "" || d.OrderID == "" {
		return fmt.Errorf("%w: provider, event_id and order_id are required", ErrInvalidWebhook)
	}
	switch d.Status {
	case StatusSuccess, StatusFailed, StatusPending:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidWebhook, d.Status)
	}
}

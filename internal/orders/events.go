package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventPaymentCompleted   = "PaymentCompleted"
	EventPaymentFailed      = "PaymentFailed"
	EventReservationExpired = "ReservationExpired"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // usually order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Items       []ItemQty `json:"items"`
	TotalCents  int       `json:"total_cents"`
	ReservedTo  time.Time `json:"reserved_to"`
}

type PaymentCompletedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Provider    string    `json:"provider"`
	PaymentID   string    `json:"payment_id"`
	Items       []ItemQty `json:"items"`
	AmountCents int       `json:"amount_cents"`
}

type PaymentFailedPayload struct {
	OrderID  string `json:"order_id"`
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

type ReservationExpiredPayload struct {
	OrderIDs []string  `json:"order_ids"`
	Count    int       `json:"count"`
	SweptAt  time.Time `json:"swept_at"`
}

package orders

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID                string
	SKU               string
	Name              string
	Stock             int
	PriceCents        int
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Order struct {
	ID                   string
	OrderNumber          string
	Status               Status
	PaymentStatus        PaymentStatus
	PaymentID            *string
	CustomerEmail        string
	ReservationExpiresAt time.Time
	SubtotalCents        int
	ShippingCents        int
	TaxCents             int
	TotalCents           int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type OrderItem struct {
	ID            int64
	OrderID       string
	ProductID     string
	Quantity      int
	PriceCents    int
	SubtotalCents int
}

// Release reasons stamped on a reservation when it leaves the reserved state.
const (
	ReleasePaymentSuccess = "payment_success"
	ReleasePaymentFailed  = "payment_failed"
	ReleaseTimeout        = "timeout"
)

const (
	ReservationReserved  = "reserved"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
)

type StockReservation struct {
	ID            int64
	OrderID       string
	ProductID     string
	Quantity      int
	Status        string
	ExpiresAt     time.Time
	ReleasedAt    *time.Time
	ReleaseReason *string
	CreatedAt     time.Time
}

type PaymentEvent struct {
	ID              int64
	OrderID         string
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         json.RawMessage
	Processed       bool
	ProcessedAt     *time.Time
	CreatedAt       time.Time
}

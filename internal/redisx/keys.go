package redisx

import "time"

const (
	// Payment status polling cache: pay_status:{order_id} -> JSON snapshot
	KeyPaymentStatus = "pay_status:%s"

	// Dedup for consumed bus events: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

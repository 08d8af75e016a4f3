package orders

const (
	TopicOrderCreated       = "shop.order.created"
	TopicPaymentCompleted   = "shop.payment.completed"
	TopicPaymentFailed      = "shop.payment.failed"
	TopicReservationExpired = "shop.reservation.expired"
)

// Partition key = order_id so all events of one order keep their order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

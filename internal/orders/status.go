package orders

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:    {StatusProcessing: true, StatusCancelled: true},
	StatusProcessing: {StatusShipped: true, StatusCancelled: true},
	StatusShipped:    {StatusDelivered: true},
	StatusDelivered:  {},
	StatusCancelled:  {},
}

var validNextPayment = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentPending:   {PaymentCompleted: true, PaymentFailed: true},
	PaymentCompleted: {},
	PaymentFailed:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return validNextPayment[from][to]
}

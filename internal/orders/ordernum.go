package orders

import (
	"crypto/rand"
	"fmt"
	"time"
)

const orderNumAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewOrderNumber returns a human-readable order number such as
// EST-1700000000-ABC12. The random suffix keeps numbers unique across
// orders created within the same second.
func NewOrderNumber(now time.Time) string {
	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	for i, b := range buf {
		buf[i] = orderNumAlphabet[int(b)%len(orderNumAlphabet)]
	}
	return fmt.Sprintf("EST-%d-%s", now.Unix(), buf)
}

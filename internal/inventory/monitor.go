package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/redisx"
)

type LowStockLister interface {
	LowStockForOrder(ctx context.Context, orderID string) ([]orders.Product, error)
}

// Monitor consumes payment.completed events and alerts when a commit pushed
// a product at or below its low-stock threshold.
type Monitor struct {
	Repo        LowStockLister
	Redis       *redis.Client
	ServiceName string
	Log         *slog.Logger
}

// HandlePaymentCompleted is wired as the consumer handler.
func (m *Monitor) HandlePaymentCompleted(ctx context.Context, msg kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventPaymentCompleted {
		return nil
	}

	// dedup across consumer group rebalances
	if m.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, m.ServiceName, env.EventID)
		if exists, _ := redisx.Exists(ctx, m.Redis, dkey); exists {
			return nil
		}
		_ = m.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	low, err := m.Repo.LowStockForOrder(ctx, p.OrderID)
	if err != nil {
		return err
	}
	for _, prod := range low {
		m.Log.Warn("low stock",
			"sku", prod.SKU,
			"name", prod.Name,
			"stock", prod.Stock,
			"threshold", prod.LowStockThreshold,
			"order_id", p.OrderID,
		)
	}
	return nil
}

package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/redisx"
)

type Applier interface {
	Apply(ctx context.Context, d WebhookData) (ApplyResult, error)
}

type ProcessedChecker interface {
	IsProcessed(ctx context.Context, providerEventID string) (bool, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Orchestrator is the single entry point for all provider webhooks and the
// only caller of the ledger's commit/release paths. Adapters normalize and
// verify; the orchestrator dedupes, applies and announces.
type Orchestrator struct {
	Store             Applier
	Events            ProcessedChecker
	CompletedProducer Publisher
	FailedProducer    Publisher
	Redis             *redis.Client
	ServiceName       string
	Log               *slog.Logger
}

// HandleWebhook applies one normalized provider event. A duplicate delivery
// returns (duplicate=true, nil): the HTTP layer answers 200 so the provider
// stops retrying. orders.ErrOrderNotFound means a misrouted or misconfigured
// webhook and must surface as a non-2xx.
func (o *Orchestrator) HandleWebhook(ctx context.Context, d WebhookData) (duplicate bool, err error) {
	if err := d.Validate(); err != nil {
		return false, err
	}

	log := o.Log.With("provider", d.Provider, "event_id", d.EventID, "order_id", d.OrderID)

	processed, err := o.Events.IsProcessed(ctx, d.EventID)
	if err != nil {
		return false, fmt.Errorf("idempotency check: %w", err)
	}
	if processed {
		log.Info("duplicate webhook ignored")
		return true, nil
	}

	res, err := o.Store.Apply(ctx, d)
	if err != nil {
		if errors.Is(err, orders.ErrOrderNotFound) {
			log.Error("webhook references unknown order")
			return false, err
		}
		return false, fmt.Errorf("apply webhook: %w", err)
	}
	if res.Duplicate {
		log.Info("duplicate webhook ignored")
		return true, nil
	}

	switch d.Status {
	case StatusSuccess:
		if res.Reacquired {
			log.Warn("commit after reservation expiry, stock re-acquired",
				"items", len(res.Committed))
		}
		if len(res.Unrecoverable) > 0 {
			log.Warn("paid order could not re-acquire stock, needs manual reconciliation",
				"items", len(res.Unrecoverable))
		}
		log.Info("payment committed", "order_number", res.OrderNumber)
		o.publishCompleted(d, res)
		o.cacheStatus(ctx, d.OrderID, res)
	case StatusFailed:
		log.Info("payment failed, holds released", "order_number", res.OrderNumber)
		o.publishFailed(d)
		o.cacheStatus(ctx, d.OrderID, res)
	case StatusPending:
		log.Info("pending payment event recorded")
	}
	return false, nil
}

func (o *Orchestrator) publishCompleted(d WebhookData, res ApplyResult) {
	if o.CompletedProducer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentCompleted,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.ServiceName,
		CorrelationID: d.OrderID,
		Payload: kafkax.MustMarshal(orders.PaymentCompletedPayload{
			OrderID:     d.OrderID,
			OrderNumber: res.OrderNumber,
			Provider:    d.Provider,
			PaymentID:   d.PaymentID,
			Items:       res.Committed,
			AmountCents: res.TotalCents,
		}),
	}
	o.CompletedProducer.Publish(orders.PartitionKey(d.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentCompleted)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (o *Orchestrator) publishFailed(d WebhookData) {
	if o.FailedProducer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventPaymentFailed,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      o.ServiceName,
		CorrelationID: d.OrderID,
		Payload: kafkax.MustMarshal(orders.PaymentFailedPayload{
			OrderID:  d.OrderID,
			Provider: d.Provider,
			Reason:   d.EventType,
		}),
	}
	o.FailedProducer.Publish(orders.PartitionKey(d.OrderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentFailed)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (o *Orchestrator) cacheStatus(ctx context.Context, orderID string, res ApplyResult) {
	if o.Redis == nil {
		return
	}
	b, _ := json.Marshal(orders.PaymentStatusView{
		OrderNumber:   res.OrderNumber,
		PaymentStatus: res.PaymentStatus,
		Status:        res.OrderStatus,
	})
	key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
	if err := o.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err(); err != nil {
		o.Log.Warn("status cache refresh failed", "order_id", orderID, "err", err)
	}
}

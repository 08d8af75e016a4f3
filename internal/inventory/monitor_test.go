package inventory

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/orders"
)

type mockLister struct{ mock.Mock }

func (m *mockLister) LowStockForOrder(ctx context.Context, orderID string) ([]orders.Product, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]orders.Product), args.Error(1)
}

func envelope(t *testing.T, eventType string, payload any) kafkago.Message {
	t.Helper()
	env := orders.Envelope{
		EventID:      "evt_1",
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     "test",
		Payload:      kafkax.MustMarshal(payload),
	}
	return kafkago.Message{Value: kafkax.MustMarshal(env)}
}

func newMonitor(repo LowStockLister) *Monitor {
	return &Monitor{
		Repo:        repo,
		ServiceName: "test",
		Log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestHandlePaymentCompleted(t *testing.T) {
	repo := &mockLister{}
	repo.On("LowStockForOrder", mock.Anything, "ord_1").Return([]orders.Product{
		{SKU: "SKU-1", Name: "Mug", Stock: 2, LowStockThreshold: 5},
	}, nil)

	m := newMonitor(repo)
	msg := envelope(t, orders.EventPaymentCompleted, orders.PaymentCompletedPayload{
		OrderID: "ord_1",
		Items:   []orders.ItemQty{{ProductID: "p1", Qty: 2}},
	})

	require.NoError(t, m.HandlePaymentCompleted(context.Background(), msg))
	repo.AssertExpectations(t)
}

func TestHandleIgnoresOtherEvents(t *testing.T) {
	repo := &mockLister{}
	m := newMonitor(repo)

	msg := envelope(t, orders.EventOrderCreated, orders.OrderCreatedPayload{OrderID: "ord_1"})
	require.NoError(t, m.HandlePaymentCompleted(context.Background(), msg))
	repo.AssertNotCalled(t, "LowStockForOrder", mock.Anything, mock.Anything)
}

func TestHandleBadEnvelope(t *testing.T) {
	repo := &mockLister{}
	m := newMonitor(repo)

	err := m.HandlePaymentCompleted(context.Background(), kafkago.Message{Value: []byte("{broken")})
	assert.Error(t, err)
}

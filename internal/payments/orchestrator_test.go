package payments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/estzone/storefront/internal/orders"
)

type mockApplier struct{ mock.Mock }

func (m *mockApplier) Apply(ctx context.Context, d WebhookData) (ApplyResult, error) {
	args := m.Called(ctx, d)
	return args.Get(0).(ApplyResult), args.Error(1)
}

type mockChecker struct{ mock.Mock }

func (m *mockChecker) IsProcessed(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type capturePublisher struct {
	mu   sync.Mutex
	keys [][]byte
}

func (p *capturePublisher) Publish(key, value []byte, headers ...kafkago.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.keys)
}

func newOrchestrator(store *mockApplier, events *mockChecker) (*Orchestrator, *capturePublisher, *capturePublisher) {
	completed := &capturePublisher{}
	failed := &capturePublisher{}
	return &Orchestrator{
		Store:             store,
		Events:            events,
		CompletedProducer: completed,
		FailedProducer:    failed,
		ServiceName:       "test",
		Log:               slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, completed, failed
}

func successData() WebhookData {
	return WebhookData{
		Provider:  "montonio",
		EventID:   "evt_1",
		EventType: "order.PAID",
		OrderID:   "ord_1",
		PaymentID: "pay_1",
		Status:    StatusSuccess,
	}
}

func TestHandleWebhook_Success(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, completed, failed := newOrchestrator(store, events)

	events.On("IsProcessed", mock.Anything, "evt_1").Return(false, nil)
	store.On("Apply", mock.Anything, mock.AnythingOfType("WebhookData")).Return(ApplyResult{
		OrderNumber:   "EST-1700000000-ABC12",
		TotalCents:    2000,
		OrderStatus:   orders.StatusProcessing,
		PaymentStatus: orders.PaymentCompleted,
		Committed:     []orders.ItemQty{{ProductID: "p1", Qty: 2}},
	}, nil)

	dup, err := o.HandleWebhook(context.Background(), successData())
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 1, completed.count())
	assert.Equal(t, 0, failed.count())
	store.AssertExpectations(t)
	events.AssertExpectations(t)
}

func TestHandleWebhook_AlreadyProcessed(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, completed, _ := newOrchestrator(store, events)

	events.On("IsProcessed", mock.Anything, "evt_1").Return(true, nil)

	dup, err := o.HandleWebhook(context.Background(), successData())
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, 0, completed.count())
	store.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

func TestHandleWebhook_DuplicateInsert(t *testing.T) {
	// Two concurrent deliveries: both pass the read check, the loser's
	// insert conflicts and must come back as a quiet duplicate.
	store, events := &mockApplier{}, &mockChecker{}
	o, completed, failed := newOrchestrator(store, events)

	events.On("IsProcessed", mock.Anything, "evt_1").Return(false, nil)
	store.On("Apply", mock.Anything, mock.Anything).Return(ApplyResult{Duplicate: true}, nil)

	dup, err := o.HandleWebhook(context.Background(), successData())
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, 0, completed.count())
	assert.Equal(t, 0, failed.count())
}

func TestHandleWebhook_Failed(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, completed, failed := newOrchestrator(store, events)

	d := successData()
	d.EventID = "evt_2"
	d.Status = StatusFailed

	events.On("IsProcessed", mock.Anything, "evt_2").Return(false, nil)
	store.On("Apply", mock.Anything, mock.Anything).Return(ApplyResult{
		OrderNumber:   "EST-1700000000-ABC12",
		OrderStatus:   orders.StatusCancelled,
		PaymentStatus: orders.PaymentFailed,
	}, nil)

	dup, err := o.HandleWebhook(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 0, completed.count())
	assert.Equal(t, 1, failed.count())
}

func TestHandleWebhook_Pending(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, completed, failed := newOrchestrator(store, events)

	d := successData()
	d.Status = StatusPending

	events.On("IsProcessed", mock.Anything, "evt_1").Return(false, nil)
	store.On("Apply", mock.Anything, mock.Anything).Return(ApplyResult{OrderNumber: "EST-1"}, nil)

	dup, err := o.HandleWebhook(context.Background(), d)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.Equal(t, 0, completed.count())
	assert.Equal(t, 0, failed.count())
}

func TestHandleWebhook_UnknownOrder(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, _, _ := newOrchestrator(store, events)

	events.On("IsProcessed", mock.Anything, "evt_1").Return(false, nil)
	store.On("Apply", mock.Anything, mock.Anything).Return(ApplyResult{}, orders.ErrOrderNotFound)

	_, err := o.HandleWebhook(context.Background(), successData())
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestHandleWebhook_ApplyError(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, completed, _ := newOrchestrator(store, events)

	events.On("IsProcessed", mock.Anything, "evt_1").Return(false, nil)
	store.On("Apply", mock.Anything, mock.Anything).Return(ApplyResult{}, errors.New("db down"))

	_, err := o.HandleWebhook(context.Background(), successData())
	require.Error(t, err)
	assert.Equal(t, 0, completed.count())
}

func TestHandleWebhook_Invalid(t *testing.T) {
	store, events := &mockApplier{}, &mockChecker{}
	o, _, _ := newOrchestrator(store, events)

	d := successData()
	d.EventID = ""

	_, err := o.HandleWebhook(context.Background(), d)
	assert.ErrorIs(t, err, ErrInvalidWebhook)
	events.AssertNotCalled(t, "IsProcessed", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Apply", mock.Anything, mock.Anything)
}

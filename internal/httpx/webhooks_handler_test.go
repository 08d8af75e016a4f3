package httpx

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/payments"
)

type mockOrchestrator struct{ mock.Mock }

func (m *mockOrchestrator) HandleWebhook(ctx context.Context, d payments.WebhookData) (bool, error) {
	args := m.Called(ctx, d)
	return args.Bool(0), args.Error(1)
}

const testSecret = "s3cret"

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newWebhookRouter(orch *mockOrchestrator) *chi.Mux {
	h := &WebhooksHandler{
		Adapters:     payments.NewRegistry(&payments.GenericAdapter{Name: "generic", Secret: testSecret}),
		Orchestrator: orch,
		Log:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	r := NewRouter()
	h.Register(r)
	return r
}

func postWebhook(r *chi.Mux, provider string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/webhooks/"+provider, bytes.NewReader(body))
	req.Header.Set("X-Webhook-Signature", signature)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

var webhookBody = []byte(`{"event_id":"evt_1","event_type":"payment.succeeded","order_id":"ord_1","status":"success"}`)

func TestWebhookApplied(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleWebhook", mock.Anything, mock.AnythingOfType("payments.WebhookData")).Return(false, nil)

	rec := postWebhook(newWebhookRouter(orch), "generic", webhookBody, signBody(webhookBody))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":false`)
	orch.AssertExpectations(t)
}

func TestWebhookDuplicateStillOK(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleWebhook", mock.Anything, mock.Anything).Return(true, nil)

	rec := postWebhook(newWebhookRouter(orch), "generic", webhookBody, signBody(webhookBody))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `"duplicate":true`)
}

func TestWebhookUnknownProvider(t *testing.T) {
	orch := &mockOrchestrator{}
	rec := postWebhook(newWebhookRouter(orch), "paypal", webhookBody, signBody(webhookBody))
	assert.Equal(t, 404, rec.Code)
	orch.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything)
}

func TestWebhookBadSignature(t *testing.T) {
	orch := &mockOrchestrator{}
	rec := postWebhook(newWebhookRouter(orch), "generic", webhookBody, "deadbeef")
	assert.Equal(t, 401, rec.Code)
	orch.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything)
}

func TestWebhookUnknownOrder(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleWebhook", mock.Anything, mock.Anything).Return(false, orders.ErrOrderNotFound)

	rec := postWebhook(newWebhookRouter(orch), "generic", webhookBody, signBody(webhookBody))
	assert.Equal(t, 404, rec.Code)
}

func TestWebhookTransactionFailure(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleWebhook", mock.Anything, mock.Anything).Return(false, errors.New("tx aborted"))

	rec := postWebhook(newWebhookRouter(orch), "generic", webhookBody, signBody(webhookBody))
	assert.Equal(t, 500, rec.Code)
}

func TestWebhookInvalidPayload(t *testing.T) {
	orch := &mockOrchestrator{}
	orch.On("HandleWebhook", mock.Anything, mock.Anything).Return(false, payments.ErrInvalidWebhook)

	body := []byte(`{"event_id":"evt_1","order_id":"ord_1","status":"refunded"}`)
	rec := postWebhook(newWebhookRouter(orch), "generic", body, signBody(body))
	assert.Equal(t, 400, rec.Code)
}

func TestCheckoutValidation(t *testing.T) {
	valid := CheckoutReq{
		CustomerEmail: "a@b.ee",
		Items:         []orders.ItemInput{{ProductID: "p1", Quantity: 1}},
	}

	tests := []struct {
		name   string
		mutate func(*CheckoutReq)
		wantOK bool
	}{
		{"valid", func(r *CheckoutReq) {}, true},
		{"bad email", func(r *CheckoutReq) { r.CustomerEmail = "nope" }, false},
		{"no items", func(r *CheckoutReq) { r.Items = nil }, false},
		{"zero quantity", func(r *CheckoutReq) { r.Items[0].Quantity = 0 }, false},
		{"missing product id", func(r *CheckoutReq) { r.Items[0].ProductID = "" }, false},
		{"negative shipping", func(r *CheckoutReq) { r.ShippingCents = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Items = append([]orders.ItemInput(nil), valid.Items...)
			tt.mutate(&req)
			msg := validateCheckout(req)
			if tt.wantOK {
				require.Empty(t, msg)
			} else {
				require.NotEmpty(t, msg)
			}
		})
	}
}

package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/payments"
)

type WebhookHandler interface {
	HandleWebhook(ctx context.Context, d payments.WebhookData) (duplicate bool, err error)
}

type WebhooksHandler struct {
	Adapters     *payments.Registry
	Orchestrator WebhookHandler
	Log          *slog.Logger
}

func (h *WebhooksHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/{provider}", h.handle)
}

// handle answers 2xx only when the event's effect is durably committed (or
// was already committed by an earlier delivery). Anything else is non-2xx so
// the provider retries.
func (h *WebhooksHandler) handle(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	adapter, ok := h.Adapters.Get(provider)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown provider"})
		return
	}

	data, err := adapter.Parse(r)
	if err != nil {
		if errors.Is(err, payments.ErrBadSignature) {
			h.Log.Warn("webhook signature rejected", "provider", provider)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "bad signature"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	duplicate, err := h.Orchestrator.HandleWebhook(ctx, data)
	switch {
	case errors.Is(err, payments.ErrInvalidWebhook):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "webhook processing failed"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": duplicate})
	}
}

package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/payments"
)

// AdminHandler exposes the reconciliation view: every recorded provider
// callback and every hold of an order, side by side. This is what operators
// read when a webhook was flagged for manual follow-up.
type AdminHandler struct {
	Ledger *orders.ReservationLedger
	Events *payments.EventStore
}

func (h *AdminHandler) Register(r *chi.Mux) {
	r.Get("/admin/orders/{id}/reconciliation", h.reconciliation)
}

func (h *AdminHandler) reconciliation(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	reservations, err := h.Ledger.ByOrder(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	events, err := h.Events.ByOrder(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":     orderID,
		"reservations": reservations,
		"events":       events,
	})
}

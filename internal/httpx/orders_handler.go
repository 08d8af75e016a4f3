package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/orders"
	"github.com/estzone/storefront/internal/redisx"
)

type CheckoutReq struct {
	CustomerEmail string             `json:"customer_email"`
	ShippingCents int                `json:"shipping_cents"`
	TaxCents      int                `json:"tax_cents"`
	Items         []orders.ItemInput `json:"items"`
}

type CheckoutResp struct {
	OrderID              string    `json:"order_id"`
	OrderNumber          string    `json:"order_number"`
	ReservationExpiresAt time.Time `json:"reservation_expires_at"`
	SubtotalCents        int       `json:"subtotal_cents"`
	ShippingCents        int       `json:"shipping_cents"`
	TaxCents             int       `json:"tax_cents"`
	TotalCents           int       `json:"total_cents"`
}

// OrderStore is what the handlers need from internal/orders.
type OrderStore interface {
	CreateOrderTx(ctx context.Context, in orders.CheckoutInput) (orders.Order, []orders.OrderItem, error)
	GetPaymentStatus(ctx context.Context, orderID string) (orders.PaymentStatusView, error)
	ListProducts(ctx context.Context) ([]orders.Product, error)
}

type OrdersHandler struct {
	Repo     OrderStore
	Producer *kafkax.Producer
	Redis    *redis.Client
	Service  string
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.checkout)
	r.Get("/orders/{id}/payment-status", h.paymentStatus)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func validateCheckout(req CheckoutReq) string {
	if _, err := mail.ParseAddress(req.CustomerEmail); err != nil {
		return "invalid customer_email"
	}
	if len(req.Items) == 0 {
		return "order needs at least one item"
	}
	for _, it := range req.Items {
		if it.ProductID == "" || it.Quantity <= 0 {
			return "each item needs product_id and a positive quantity"
		}
	}
	if req.ShippingCents < 0 || req.TaxCents < 0 {
		return "negative amounts not allowed"
	}
	return ""
}

func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if msg := validateCheckout(req); msg != "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, items, err := h.Repo.CreateOrderTx(ctx, orders.CheckoutInput{
		CustomerEmail: req.CustomerEmail,
		ShippingCents: req.ShippingCents,
		TaxCents:      req.TaxCents,
		Items:         req.Items,
	})
	if errors.Is(err, orders.ErrInvalidCheckout) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		// DB or connectivity trouble, not the caller's fault
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "checkout failed"})
		return
	}

	// warm the polling cache
	statusKey := fmt.Sprintf(redisx.KeyPaymentStatus, o.ID)
	cached, _ := json.Marshal(orders.PaymentStatusView{
		OrderNumber:   o.OrderNumber,
		PaymentStatus: o.PaymentStatus,
		Status:        o.Status,
	})
	_ = h.Redis.Set(ctx, statusKey, cached, redisx.TTLStatusCache).Err()

	itemQty := make([]orders.ItemQty, 0, len(items))
	for _, it := range items {
		itemQty = append(itemQty, orders.ItemQty{ProductID: it.ProductID, Qty: it.Quantity})
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderCreatedPayload{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			Items:       itemQty,
			TotalCents:  o.TotalCents,
			ReservedTo:  o.ReservationExpiresAt,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)

	writeJSON(w, http.StatusCreated, CheckoutResp{
		OrderID:              o.ID,
		OrderNumber:          o.OrderNumber,
		ReservationExpiresAt: o.ReservationExpiresAt,
		SubtotalCents:        o.SubtotalCents,
		ShippingCents:        o.ShippingCents,
		TaxCents:             o.TaxCents,
		TotalCents:           o.TotalCents,
	})
}

func (h *OrdersHandler) paymentStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyPaymentStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		var v orders.PaymentStatusView
		if json.Unmarshal([]byte(s), &v) == nil && v.PaymentStatus != orders.PaymentPending {
			// terminal snapshots are safe to serve from cache; pending ones
			// go to the DB so reservation_expired stays accurate
			writeJSON(w, http.StatusOK, v)
			return
		}
	}

	v, err := h.Repo.GetPaymentStatus(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	b, _ := json.Marshal(v)
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Repo.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

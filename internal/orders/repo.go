package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type CheckoutInput struct {
	CustomerEmail string
	ShippingCents int
	TaxCents      int
	Items         []ItemInput
}

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrInvalidCheckout = errors.New("invalid checkout")
)

// mergeItems folds duplicate product lines into one line per product,
// summing quantities, first-seen order preserved. One hold per order+product
// is all the ledger keeps, so the hold must carry the full quantity.
func mergeItems(items []ItemInput) []ItemInput {
	merged := make([]ItemInput, 0, len(items))
	index := map[string]int{}
	for _, it := range items {
		if i, ok := index[it.ProductID]; ok {
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged
}

type Repo struct {
	DB             *pgxpool.Pool
	ReservationTTL time.Duration
}

// CreateOrderTx creates the order, its items and one reserved hold per item
// in a single transaction. Prices come from the products table, never from
// the client. Stock is not checked or decremented here: a hold is pure
// bookkeeping until payment commits it.
func (r *Repo) CreateOrderTx(ctx context.Context, in CheckoutInput) (Order, []OrderItem, error) {
	in.Items = mergeItems(in.Items)

	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Order{}, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prices := map[string]int{}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return Order{}, nil, fmt.Errorf("%w: invalid quantity for product %s", ErrInvalidCheckout, it.ProductID)
		}
		var price int
		err := tx.QueryRow(ctx, `SELECT price_cents FROM products WHERE id=$1`, it.ProductID).Scan(&price)
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, nil, fmt.Errorf("%w: product not found: %s", ErrInvalidCheckout, it.ProductID)
		}
		if err != nil {
			return Order{}, nil, err
		}
		prices[it.ProductID] = price
	}

	now := time.Now().UTC()
	o := Order{
		ID:                   uuid.NewString(),
		OrderNumber:          NewOrderNumber(now),
		Status:               StatusPending,
		PaymentStatus:        PaymentPending,
		CustomerEmail:        in.CustomerEmail,
		ReservationExpiresAt: now.Add(r.ReservationTTL),
		ShippingCents:        in.ShippingCents,
		TaxCents:             in.TaxCents,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	items := make([]OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		price := prices[it.ProductID]
		items = append(items, OrderItem{
			OrderID:       o.ID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			PriceCents:    price,
			SubtotalCents: price * it.Quantity,
		})
		o.SubtotalCents += price * it.Quantity
	}
	o.TotalCents = o.SubtotalCents + o.ShippingCents + o.TaxCents

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, order_number, status, payment_status, customer_email,
		                   reservation_expires_at, subtotal_cents, shipping_cents, tax_cents, total_cents,
		                   created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
		o.ID, o.OrderNumber, o.Status, o.PaymentStatus, o.CustomerEmail,
		o.ReservationExpiresAt, o.SubtotalCents, o.ShippingCents, o.TaxCents, o.TotalCents, now)
	if err != nil {
		return Order{}, nil, err
	}

	for i := range items {
		it := &items[i]
		err := tx.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, quantity, price_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			it.OrderID, it.ProductID, it.Quantity, it.PriceCents, it.SubtotalCents).Scan(&it.ID)
		if err != nil {
			return Order{}, nil, err
		}
	}

	holds := make([]ReserveItem, 0, len(items))
	for _, it := range items {
		holds = append(holds, ReserveItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if err := ReserveTx(ctx, tx, o.ID, holds, o.ReservationExpiresAt); err != nil {
		return Order{}, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Order{}, nil, err
	}
	return o, items, nil
}

type PaymentStatusView struct {
	OrderNumber        string        `json:"order_number"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	Status             Status        `json:"status"`
	ReservationExpired bool          `json:"reservation_expired"`
}

func (r *Repo) GetPaymentStatus(ctx context.Context, orderID string) (PaymentStatusView, error) {
	var v PaymentStatusView
	var expiresAt time.Time
	err := r.DB.QueryRow(ctx, `
		SELECT order_number, payment_status, status, reservation_expires_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&v.OrderNumber, &v.PaymentStatus, &v.Status, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return v, ErrOrderNotFound
	}
	if err != nil {
		return v, err
	}
	v.ReservationExpired = v.PaymentStatus == PaymentPending && expiresAt.Before(time.Now().UTC())
	return v, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, low_stock_threshold, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// LowStockForOrder lists products on the order whose stock has fallen to or
// below their threshold. Used by the stock worker after a payment commit.
func (r *Repo) LowStockForOrder(ctx context.Context, orderID string) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT DISTINCT p.id, p.sku, p.name, p.stock, p.price_cents, p.low_stock_threshold, p.created_at, p.updated_at
		FROM products p
		JOIN order_items oi ON oi.product_id = p.id
		WHERE oi.order_id = $1 AND p.stock <= p.low_stock_threshold`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents, &p.LowStockThreshold, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estzone/storefront/internal/orders"
)

// ApplyResult reports what a webhook transaction actually changed.
type ApplyResult struct {
	Duplicate   bool
	OrderNumber string
	TotalCents  int
	// Final order state after the transaction; unchanged when the state
	// machine rejected the transition (e.g. a stray failed after success).
	OrderStatus   orders.Status
	PaymentStatus orders.PaymentStatus
	Committed     []orders.ItemQty
	Reacquired    bool
	// Unrecoverable lists items whose stock could not be re-acquired after a
	// late success webhook. The order is still marked paid; operators must
	// reconcile manually.
	Unrecoverable []orders.ItemQty
}

// orderState is the order snapshot loaded under FOR UPDATE.
type orderState struct {
	Number        string
	Status        orders.Status
	PaymentStatus orders.PaymentStatus
	TotalCents    int
}

// txOps are the steps applyWebhook composes. One implementation wraps a live
// pgx.Tx so every step shares a single transaction; tests substitute mocks
// to exercise the branching.
type txOps interface {
	RecordEvent(ctx context.Context, d WebhookData) (inserted bool, err error)
	LoadOrder(ctx context.Context, orderID string) (orderState, error)
	CommitHolds(ctx context.Context, orderID string) ([]orders.ItemQty, error)
	ReacquireHolds(ctx context.Context, orderID string) (reacquired, skipped []orders.ItemQty, err error)
	ReleaseHolds(ctx context.Context, orderID, reason string) (int, error)
	UpdateOrder(ctx context.Context, orderID string, st orders.Status, ps orders.PaymentStatus, paymentID *string) error
	MarkProcessed(ctx context.Context, providerEventID string) error
}

// applyWebhook is the webhook transaction body: record event, load order,
// commit or release the ledger, update the order, mark the event processed.
// Returning early on duplicate leaves the event untouched; returning an
// error makes the caller roll back everything including the event record,
// so the provider's retry gets a clean slate.
func applyWebhook(ctx context.Context, ops txOps, d WebhookData) (ApplyResult, error) {
	var res ApplyResult

	inserted, err := ops.RecordEvent(ctx, d)
	if err != nil {
		return res, err
	}
	if !inserted {
		// Delivered before; the earlier transaction committed its effect.
		res.Duplicate = true
		return res, nil
	}

	st, err := ops.LoadOrder(ctx, d.OrderID)
	if err != nil {
		return res, err
	}
	res.OrderNumber, res.TotalCents = st.Number, st.TotalCents
	res.OrderStatus, res.PaymentStatus = st.Status, st.PaymentStatus

	switch d.Status {
	case StatusSuccess:
		committed, err := ops.CommitHolds(ctx, d.OrderID)
		if err != nil {
			return res, err
		}
		if len(committed) == 0 && st.PaymentStatus == orders.PaymentPending {
			// Reaper got here first: holds are timeout-released. Best-effort
			// re-acquire, the customer has paid. Guarded on payment_status so
			// a second success event cannot decrement stock twice.
			reacquired, skipped, err := ops.ReacquireHolds(ctx, d.OrderID)
			if err != nil {
				return res, err
			}
			committed = reacquired
			res.Reacquired = len(reacquired) > 0
			res.Unrecoverable = skipped
		}
		res.Committed = committed

		if orders.CanTransitionPayment(st.PaymentStatus, orders.PaymentCompleted) {
			next := st.Status
			if orders.CanTransition(st.Status, orders.StatusProcessing) {
				next = orders.StatusProcessing
			}
			var pid *string
			if d.PaymentID != "" {
				pid = &d.PaymentID
			}
			if err := ops.UpdateOrder(ctx, d.OrderID, next, orders.PaymentCompleted, pid); err != nil {
				return res, err
			}
			res.OrderStatus, res.PaymentStatus = next, orders.PaymentCompleted
		}

	case StatusFailed:
		if _, err := ops.ReleaseHolds(ctx, d.OrderID, orders.ReleasePaymentFailed); err != nil {
			return res, err
		}
		if orders.CanTransitionPayment(st.PaymentStatus, orders.PaymentFailed) {
			next := st.Status
			if orders.CanTransition(st.Status, orders.StatusCancelled) {
				next = orders.StatusCancelled
			}
			if err := ops.UpdateOrder(ctx, d.OrderID, next, orders.PaymentFailed, nil); err != nil {
				return res, err
			}
			res.OrderStatus, res.PaymentStatus = next, orders.PaymentFailed
		}

	case StatusPending:
		// No ledger action, order untouched. The event is still recorded and
		// marked processed so retries of it short-circuit.
	}

	if err := ops.MarkProcessed(ctx, d.EventID); err != nil {
		return res, err
	}
	return res, nil
}

// pgxOps runs every step on the one shared transaction.
type pgxOps struct{ tx pgx.Tx }

func (p *pgxOps) RecordEvent(ctx context.Context, d WebhookData) (bool, error) {
	return RecordTx(ctx, p.tx, d)
}

func (p *pgxOps) LoadOrder(ctx context.Context, orderID string) (orderState, error) {
	var st orderState
	err := p.tx.QueryRow(ctx, `
		SELECT order_number, status, payment_status, total_cents
		FROM orders WHERE id=$1 FOR UPDATE`, orderID).
		Scan(&st.Number, &st.Status, &st.PaymentStatus, &st.TotalCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return st, orders.ErrOrderNotFound
	}
	return st, err
}

func (p *pgxOps) CommitHolds(ctx context.Context, orderID string) ([]orders.ItemQty, error) {
	return orders.CommitTx(ctx, p.tx, orderID)
}

func (p *pgxOps) ReacquireHolds(ctx context.Context, orderID string) ([]orders.ItemQty, []orders.ItemQty, error) {
	return orders.ReacquireTx(ctx, p.tx, orderID)
}

func (p *pgxOps) ReleaseHolds(ctx context.Context, orderID, reason string) (int, error) {
	return orders.ReleaseTx(ctx, p.tx, orderID, reason)
}

func (p *pgxOps) UpdateOrder(ctx context.Context, orderID string, st orders.Status, ps orders.PaymentStatus, paymentID *string) error {
	// COALESCE keeps an existing payment_id when the event carries none
	_, err := p.tx.Exec(ctx, `
		UPDATE orders SET payment_status=$2, status=$3, payment_id=COALESCE($4, payment_id), updated_at=now()
		WHERE id=$1`, orderID, ps, st, paymentID)
	return err
}

func (p *pgxOps) MarkProcessed(ctx context.Context, providerEventID string) error {
	return MarkProcessedTx(ctx, p.tx, providerEventID)
}

// Repo runs the webhook transaction against Postgres.
type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) Apply(ctx context.Context, d WebhookData) (ApplyResult, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ApplyResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := applyWebhook(ctx, &pgxOps{tx: tx}, d)
	if err != nil {
		return res, err
	}
	if res.Duplicate {
		return res, nil
	}
	return res, tx.Commit(ctx)
}

package orders

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReserveItem struct {
	ProductID string
	Quantity  int
}

// ReservationLedger owns every mutation of stock_reservations and the only
// mutation path of products.stock. Commit and release run against a caller
// transaction so the payment orchestrator can span event record, ledger and
// order update atomically.
type ReservationLedger struct{ DB *pgxpool.Pool }

// ReserveTx inserts one reserved hold per item sharing a single expiry.
// Stock is neither checked nor decremented: a hold is optimistic bookkeeping
// and only the commit path consumes stock. The partial unique index keeps at
// most one live hold per order+product, so replays are no-ops.
func ReserveTx(ctx context.Context, tx pgx.Tx, orderID string, items []ReserveItem, expiresAt time.Time) error {
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO stock_reservations(order_id, product_id, quantity, status, expires_at)
			VALUES ($1,$2,$3,'reserved',$4)
			ON CONFLICT (order_id, product_id) WHERE status='reserved' DO NOTHING`,
			orderID, it.ProductID, it.Quantity, expiresAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// CommitTx flips every still-reserved hold of the order to committed and
// decrements product stock by the held quantity. The decrement is relative
// (stock = stock - n), never read-then-write, so concurrent commits across
// orders cannot lose updates. Holds already terminal are untouched: calling
// commit twice, or after a release, affects zero rows.
func CommitTx(ctx context.Context, tx pgx.Tx, orderID string) ([]ItemQty, error) {
	rows, err := tx.Query(ctx, `
		UPDATE stock_reservations
		SET status='committed', released_at=now(), release_reason=$2
		WHERE order_id=$1 AND status='reserved'
		RETURNING product_id, quantity`, orderID, ReleasePaymentSuccess)
	if err != nil {
		return nil, err
	}
	committed, err := collectItems(rows)
	if err != nil {
		return nil, err
	}

	for _, it := range committed {
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Qty); err != nil {
			return nil, err
		}
	}
	return committed, nil
}

// ReacquireTx handles a success webhook that lost the race against the
// reaper: the holds are already released with reason timeout, but the
// customer paid. For each timed-out hold it re-checks stock under a row lock
// and, when enough remains, decrements and writes a fresh committed hold.
// Released rows are terminal and never flipped back. Items whose stock is
// gone are returned as skipped for manual reconciliation.
func ReacquireTx(ctx context.Context, tx pgx.Tx, orderID string) (reacquired, skipped []ItemQty, err error) {
	rows, err := tx.Query(ctx, `
		SELECT product_id, quantity FROM stock_reservations
		WHERE order_id=$1 AND status='released' AND release_reason=$2`, orderID, ReleaseTimeout)
	if err != nil {
		return nil, nil, err
	}
	timedOut, err := collectItems(rows)
	if err != nil {
		return nil, nil, err
	}

	for _, it := range timedOut {
		var stock int
		if err := tx.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1 FOR UPDATE`, it.ProductID).Scan(&stock); err != nil {
			return nil, nil, err
		}
		if stock < it.Qty {
			skipped = append(skipped, it)
			continue
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2, updated_at = now() WHERE id=$1`,
			it.ProductID, it.Qty); err != nil {
			return nil, nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO stock_reservations(order_id, product_id, quantity, status, expires_at, released_at, release_reason)
			VALUES ($1,$2,$3,'committed',now(),now(),$4)`,
			orderID, it.ProductID, it.Qty, ReleasePaymentSuccess); err != nil {
			return nil, nil, err
		}
		reacquired = append(reacquired, it)
	}
	return reacquired, skipped, nil
}

// ReleaseTx flips every still-reserved hold to released with the given
// reason. Stock is untouched, it was never decremented for a reserved hold.
// Idempotent: an order with no live holds releases zero rows.
func ReleaseTx(ctx context.Context, tx pgx.Tx, orderID, reason string) (int, error) {
	ct, err := tx.Exec(ctx, `
		UPDATE stock_reservations
		SET status='released', released_at=now(), release_reason=$2
		WHERE order_id=$1 AND status='reserved'`, orderID, reason)
	if err != nil {
		return 0, err
	}
	return int(ct.RowsAffected()), nil
}

// ExpireSweep releases every hold whose expiry is behind now, reason
// timeout, in one transaction of its own. The owning orders keep
// payment_status=pending: an abandoned checkout is not a failed payment.
// Returns the released count and the affected order ids.
func (l *ReservationLedger) ExpireSweep(ctx context.Context, now time.Time) (int, []string, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		UPDATE stock_reservations
		SET status='released', released_at=now(), release_reason=$2
		WHERE status='reserved' AND expires_at < $1
		RETURNING order_id`, now, ReleaseTimeout)
	if err != nil {
		return 0, nil, err
	}
	count := 0
	seen := map[string]bool{}
	var orderIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return 0, nil, err
		}
		count++
		if !seen[id] {
			seen[id] = true
			orderIDs = append(orderIDs, id)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, err
	}
	return count, orderIDs, nil
}

// ByOrder lists every hold of the order, terminal ones included. Serves the
// reconciliation view.
func (l *ReservationLedger) ByOrder(ctx context.Context, orderID string) ([]StockReservation, error) {
	rows, err := l.DB.Query(ctx, `
		SELECT id, order_id, product_id, quantity, status, expires_at, released_at, release_reason, created_at
		FROM stock_reservations WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StockReservation
	for rows.Next() {
		var sr StockReservation
		if err := rows.Scan(&sr.ID, &sr.OrderID, &sr.ProductID, &sr.Quantity, &sr.Status,
			&sr.ExpiresAt, &sr.ReleasedAt, &sr.ReleaseReason, &sr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func collectItems(rows pgx.Rows) ([]ItemQty, error) {
	defer rows.Close()
	var out []ItemQty
	for rows.Next() {
		var it ItemQty
		if err := rows.Scan(&it.ProductID, &it.Qty); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

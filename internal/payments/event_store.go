package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estzone/storefront/internal/orders"
)

// EventStore is the append-only record of every provider callback. The
// unique constraint on provider_event_id is what makes webhook handling
// at-most-once: a duplicate insert affects zero rows and the caller stops
// before any business effect.
type EventStore struct{ DB *pgxpool.Pool }

// RecordTx inserts the event with processed=false. Returns false when the
// provider event id was already recorded by an earlier delivery; that is a
// signal, not an error.
func RecordTx(ctx context.Context, tx pgx.Tx, d WebhookData) (bool, error) {
	ct, err := tx.Exec(ctx, `
		INSERT INTO payment_events(order_id, provider, provider_event_id, event_type, payload)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (provider_event_id) DO NOTHING`,
		d.OrderID, d.Provider, d.EventID, d.EventType, d.RawPayload)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// MarkProcessedTx stamps the event after its business effect has been
// applied, inside the same transaction as that effect.
func MarkProcessedTx(ctx context.Context, tx pgx.Tx, providerEventID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE payment_events SET processed=true, processed_at=now()
		WHERE provider_event_id=$1`, providerEventID)
	return err
}

// ByOrder lists every recorded callback for the order, processed or not.
// Serves the reconciliation view.
func (s *EventStore) ByOrder(ctx context.Context, orderID string) ([]orders.PaymentEvent, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, provider, provider_event_id, event_type, payload, processed, processed_at, created_at
		FROM payment_events WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.PaymentEvent
	for rows.Next() {
		var e orders.PaymentEvent
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Provider, &e.ProviderEventID, &e.EventType,
			&e.Payload, &e.Processed, &e.ProcessedAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// IsProcessed is the defensive read-only check run before opening the
// transaction at all.
func (s *EventStore) IsProcessed(ctx context.Context, providerEventID string) (bool, error) {
	var processed bool
	err := s.DB.QueryRow(ctx, `
		SELECT processed FROM payment_events WHERE provider_event_id=$1`,
		providerEventID).Scan(&processed)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return processed, nil
}

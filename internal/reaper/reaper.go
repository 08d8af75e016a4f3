package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	kafkax "github.com/estzone/storefront/internal/kafka"
	"github.com/estzone/storefront/internal/orders"
)

type Sweeper interface {
	ExpireSweep(ctx context.Context, now time.Time) (int, []string, error)
}

type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Reaper releases expired stock holds on a fixed interval, independent of
// webhook traffic. A sweep only touches holds still in reserved state, so it
// can race a late success webhook safely: whichever transaction lands first
// wins and the loser updates zero rows.
type Reaper struct {
	Ledger      Sweeper
	Interval    time.Duration
	Producer    Publisher
	ServiceName string
	Log         *slog.Logger
}

// Run blocks until ctx is cancelled. Started as a goroutine from main.
func (r *Reaper) Run(ctx context.Context) {
	t := time.NewTicker(r.Interval)
	defer t.Stop()

	r.Log.Info("reaper started", "interval", r.Interval.String())
	for {
		select {
		case <-ctx.Done():
			r.Log.Info("reaper stopped")
			return
		case now := <-t.C:
			r.sweep(ctx, now.UTC())
		}
	}
}

func (r *Reaper) sweep(ctx context.Context, now time.Time) {
	count, orderIDs, err := r.Ledger.ExpireSweep(ctx, now)
	if err != nil {
		r.Log.Error("expire sweep failed", "err", err)
		return
	}
	r.Log.Info("expire sweep done", "released", count, "orders", len(orderIDs))
	if count == 0 || r.Producer == nil {
		return
	}

	ev := orders.Envelope{
		EventID:      uuid.NewString(),
		EventType:    orders.EventReservationExpired,
		EventVersion: 1,
		OccurredAt:   now,
		Producer:     r.ServiceName,
		Payload: kafkax.MustMarshal(orders.ReservationExpiredPayload{
			OrderIDs: orderIDs,
			Count:    count,
			SweptAt:  now,
		}),
	}
	r.Producer.Publish([]byte(orders.EventReservationExpired), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventReservationExpired)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

package fulfillment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/events"
	"github.com/noah-isme/backend-blinds/internal/obs"
	"github.com/noah-isme/backend-blinds/internal/order"
	"github.com/noah-isme/backend-blinds/internal/queue"
)

// Notifier hands an order to the factory.
type Notifier interface {
	Notify(ctx context.Context, o order.Order) error
}

// Locker serialises work per key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// PointsLedger credits and refunds loyalty points.
type PointsLedger interface {
	Award(ctx context.Context, userID string, orderTotal float64, orderID string) (float64, error)
	Refund(ctx context.Context, userID string, points float64, orderID string) error
}

// Tasks holds the queue handlers fanned out from order events.
type Tasks struct {
	Orders  OrderSource
	Sheet   Notifier
	Loyalty PointsLedger
	Locker  Locker
	LockTTL time.Duration
	Logger  zerolog.Logger
}

// NotifyFulfillment forwards a placed order to the sheet. A per-order lock
// keeps a redelivered task from posting concurrently with a slow original.
func (t *Tasks) NotifyFulfillment(ctx context.Context, task queue.Task) error {
	ev, err := events.DecodeTask(task)
	if err != nil {
		return err
	}
	log := t.Logger.With().Str("order_id", ev.AggregateID).Int("attempt", task.Attempt).Logger()

	run := func(ctx context.Context) error {
		o, err := t.Orders.Get(ctx, ev.AggregateID)
		if err != nil {
			return fmt.Errorf("load order %s: %w", ev.AggregateID, err)
		}
		start := time.Now()
		err = t.Sheet.Notify(ctx, o)
		result := "delivered"
		switch {
		case err == nil:
		case task.MaxAttempts > 0 && task.Attempt >= task.MaxAttempts:
			result = "dlq"
		default:
			result = "failed"
		}
		recordNotification(result, time.Since(start))
		return err
	}

	if t.Locker == nil {
		err = run(ctx)
	} else {
		err = t.Locker.WithLock(ctx, "lock:fulfillment:"+ev.AggregateID, t.lockTTL(), run)
	}
	switch {
	case err == nil:
		log.Info().Msg("fulfillment sheet notified")
	case task.MaxAttempts > 0 && task.Attempt >= task.MaxAttempts:
		// order status stays as is; reconciliation happens from the DLQ
		log.Error().Err(err).Msg("fulfillment notification exhausted retries")
	default:
		log.Warn().Err(err).Msg("fulfillment notification failed")
	}
	return err
}

// AwardPoints credits points for a placed order. The ledger dedups by order,
// so redelivery is harmless.
func (t *Tasks) AwardPoints(ctx context.Context, task queue.Task) error {
	ev, err := events.DecodeTask(task)
	if err != nil {
		return err
	}
	var placed order.PlacedEvent
	if err := ev.Decode(&placed); err != nil {
		return err
	}
	if placed.UserID == "" {
		return nil
	}
	earned, err := t.Loyalty.Award(ctx, placed.UserID, placed.FinalTotal, placed.OrderID)
	if err != nil {
		t.Logger.Warn().Err(err).Str("order_id", placed.OrderID).Int("attempt", task.Attempt).Msg("award points failed")
		return err
	}
	t.Logger.Info().Str("order_id", placed.OrderID).Float64("points", earned).Msg("points awarded")
	return nil
}

// RefundPoints gives back points redeemed on a cancelled order.
func (t *Tasks) RefundPoints(ctx context.Context, task queue.Task) error {
	ev, err := events.DecodeTask(task)
	if err != nil {
		return err
	}
	var cancelled order.CancelledEvent
	if err := ev.Decode(&cancelled); err != nil {
		return err
	}
	if cancelled.UserID == "" || cancelled.PointsUsed <= 0 {
		return nil
	}
	if err := t.Loyalty.Refund(ctx, cancelled.UserID, cancelled.PointsUsed, cancelled.OrderID); err != nil {
		t.Logger.Warn().Err(err).Str("order_id", cancelled.OrderID).Msg("refund points failed")
		return err
	}
	return nil
}

// Handlers maps task kinds to their handler.
func (t *Tasks) Handlers() map[string]queue.Handler {
	return map[string]queue.Handler{
		events.TaskFulfillmentNotify: t.NotifyFulfillment,
		events.TaskPointsAward:       t.AwardPoints,
		events.TaskPointsRefund:      t.RefundPoints,
	}
}

func (t *Tasks) lockTTL() time.Duration {
	if t.LockTTL > 0 {
		return t.LockTTL
	}
	return 30 * time.Second
}

func recordNotification(result string, d time.Duration) {
	if obs.FulfillmentNotificationsTotal != nil {
		obs.FulfillmentNotificationsTotal.WithLabelValues(result).Inc()
	}
	if obs.FulfillmentAttemptLatency != nil {
		obs.FulfillmentAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(d))
	}
}


package order

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/events"
)

// Dispatcher publishes events already committed to the outbox.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) error
}

// Service applies admin status changes.
type Service struct {
	Store  Store
	Events Dispatcher
	Logger zerolog.Logger
}

// Transition moves an order along its lifecycle. Cancelling an order that
// redeemed points records an order.cancelled event so the points come back.
func (s *Service) Transition(ctx context.Context, id string, to Status, tracking Tracking) (Order, error) {
	var emitted []events.Event
	updated, err := s.Store.UpdateStatus(ctx, id, to, tracking, func(o Order) ([]events.Event, error) {
		if o.Status != StatusCancelled || o.UserID == "" || o.Totals.PointsUsed <= 0 {
			return nil, nil
		}
		ev, err := NewCancelledEvent(o)
		if err != nil {
			return nil, err
		}
		emitted = append(emitted, ev)
		return emitted, nil
	})
	if err != nil {
		return Order{}, err
	}
	s.Logger.Info().Str("order_id", id).Str("status", string(updated.Status)).Msg("order status changed")
	if s.Events != nil {
		for _, ev := range emitted {
			if err := s.Events.Dispatch(ctx, ev); err != nil {
				s.Logger.Warn().Err(err).Str("event_id", ev.ID.String()).Msg("dispatch deferred to relay")
			}
		}
	}
	return updated, nil
}

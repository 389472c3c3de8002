package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/queue"
)

// Scheduler turns an event into background work.
type Scheduler interface {
	Schedule(ctx context.Context, ev Event) error
}

// Notifier reacts to dispatched events synchronously (metrics, audit).
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Bus persists domain events and fans them out to downstream handlers.
type Bus struct {
	Store     Store
	Scheduler Scheduler
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records ev in the outbox and dispatches it.
func (b *Bus) Emit(ctx context.Context, ev Event) error {
	if b == nil || b.Store == nil {
		return errors.New("events: store not configured")
	}
	if err := b.Store.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("events: persist event: %w", err)
	}
	return b.Dispatch(ctx, ev)
}

// Dispatch schedules downstream work for an event already in the outbox. The
// event is marked dispatched only when scheduling succeeded; otherwise the
// relay picks it up again. Notifier failures are reported but do not hold the
// event back.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	if b == nil || b.Store == nil {
		return errors.New("events: store not configured")
	}
	var joined error
	scheduled := true
	if b.Scheduler != nil {
		if err := b.Scheduler.Schedule(ctx, ev); err != nil {
			scheduled = false
			joined = errors.Join(joined, fmt.Errorf("events: schedule %s: %w", ev.Topic, err))
		}
	}
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	if scheduled {
		if err := b.Store.MarkDispatched(ctx, ev.ID, b.now()); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: mark dispatched: %w", err))
		}
	}
	return joined
}

func (b *Bus) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}

// Enqueuer is the subset of queue.Enqueuer the scheduler needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// TaskScheduler enqueues one task per routed kind. The task payload is the
// full event envelope and the idempotency key is derived from the event id,
// so re-dispatching the same event never duplicates queued work.
type TaskScheduler struct {
	Queue  Enqueuer
	Routes map[string][]string
}

func (s TaskScheduler) Schedule(ctx context.Context, ev Event) error {
	kinds := s.Routes[ev.Topic]
	if len(kinds) == 0 {
		return nil
	}
	if s.Queue == nil {
		return errors.New("events: task queue not configured")
	}
	envelope, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	var joined error
	for _, kind := range kinds {
		task := queue.Task{
			Kind:           kind,
			Payload:        envelope,
			IdempotencyKey: ev.ID.String(),
		}
		if err := s.Queue.Enqueue(ctx, task); err != nil {
			joined = errors.Join(joined, fmt.Errorf("%s: %w", kind, err))
		}
	}
	return joined
}

// DecodeTask recovers the event envelope carried by a scheduled task.
func DecodeTask(t queue.Task) (Event, error) {
	var ev Event
	if err := json.Unmarshal(t.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("events: decode %s task: %w", t.Kind, err)
	}
	return ev, nil
}

// Relay redispatches events left undispatched, e.g. after a crash between
// commit and scheduling.
type Relay struct {
	Bus      *Bus
	Interval time.Duration
	// Grace skips events young enough that the inline dispatch may still be
	// running.
	Grace  time.Duration
	Batch  int
	Logger *zerolog.Logger
}

// Run sweeps the outbox until ctx is cancelled.
func (r Relay) Run(ctx context.Context) error {
	if r.Bus == nil || r.Bus.Store == nil {
		return errors.New("events: relay bus not configured")
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger().Warn().Err(err).Msg("outbox sweep")
			}
		}
	}
}

// Sweep dispatches one batch and reports how many events went out cleanly.
func (r Relay) Sweep(ctx context.Context) (int, error) {
	grace := r.Grace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	pending, err := r.Bus.Store.ListPending(ctx, r.Bus.now().Add(-grace), r.Batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, ev := range pending {
		if err := r.Bus.Dispatch(ctx, ev); err != nil {
			r.logger().Warn().Err(err).Str("event_id", ev.ID.String()).Str("topic", ev.Topic).Msg("redispatch event")
			continue
		}
		sent++
	}
	return sent, nil
}

func (r Relay) logger() *zerolog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	l := zerolog.Nop()
	return &l
}

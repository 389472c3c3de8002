package events_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-blinds/internal/events"
	"github.com/noah-isme/backend-blinds/internal/queue"
)

type captureQueue struct {
	tasks []queue.Task
	err   error
}

func (c *captureQueue) Enqueue(_ context.Context, t queue.Task) error {
	if c.err != nil {
		return c.err
	}
	c.tasks = append(c.tasks, t)
	return nil
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestNewEventEncodesPayload(t *testing.T) {
	ev, err := events.NewEvent(events.TopicOrderCreated, "ord-1", map[string]any{"orderId": "ord-1"})
	require.NoError(t, err)
	require.JSONEq(t, `{"orderId":"ord-1"}`, string(ev.Payload))
	require.False(t, ev.OccurredAt.IsZero())

	raw, err := events.NewEvent(events.TopicOrderCreated, "ord-1", `{"a":1}`)
	require.NoError(t, err)
	require.JSONEq(t, `{"a":1}`, string(raw.Payload))

	empty, err := events.NewEvent(events.TopicOrderCreated, "ord-1", nil)
	require.NoError(t, err)
	require.Equal(t, "{}", string(empty.Payload))

	_, err = events.NewEvent(events.TopicOrderCreated, "ord-1", []byte("{broken"))
	require.Error(t, err)
	_, err = events.NewEvent(" ", "ord-1", nil)
	require.Error(t, err)
	_, err = events.NewEvent(events.TopicOrderCreated, "", nil)
	require.Error(t, err)
}

func TestEmitSchedulesRoutedTasks(t *testing.T) {
	store := events.NewMemoryStore()
	q := &captureQueue{}
	notifier := &captureNotifier{}
	bus := events.Bus{
		Store:     store,
		Scheduler: events.TaskScheduler{Queue: q, Routes: events.DefaultRoutes()},
		Notifiers: []events.Notifier{notifier},
	}

	ev, err := events.NewEvent(events.TopicOrderCreated, "ord-1", map[string]any{"orderId": "ord-1"})
	require.NoError(t, err)
	require.NoError(t, bus.Emit(context.Background(), ev))

	require.Len(t, q.tasks, 2)
	require.Equal(t, events.TaskFulfillmentNotify, q.tasks[0].Kind)
	require.Equal(t, events.TaskPointsAward, q.tasks[1].Kind)
	require.Equal(t, ev.ID.String(), q.tasks[0].IdempotencyKey)
	require.Len(t, notifier.events, 1)

	decoded, err := events.DecodeTask(q.tasks[1])
	require.NoError(t, err)
	require.Equal(t, ev.ID, decoded.ID)
	require.Equal(t, "ord-1", decoded.AggregateID)

	stored, ok := store.Get(ev.ID)
	require.True(t, ok)
	require.NotNil(t, stored.DispatchedAt)

	require.ErrorIs(t, bus.Emit(context.Background(), ev), events.ErrDuplicateEvent)
}

func TestFailedScheduleLeavesEventForRelay(t *testing.T) {
	store := events.NewMemoryStore()
	q := &captureQueue{err: errors.New("redis down")}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{
		Store:     store,
		Scheduler: events.TaskScheduler{Queue: q, Routes: events.DefaultRoutes()},
		Now:       func() time.Time { return now },
	}

	ev, err := events.NewEvent(events.TopicOrderCreated, "ord-2", nil)
	require.NoError(t, err)
	ev.OccurredAt = now.Add(-time.Minute)
	require.Error(t, bus.Emit(context.Background(), ev))

	stored, _ := store.Get(ev.ID)
	require.Nil(t, stored.DispatchedAt)

	relay := events.Relay{Bus: bus, Grace: 30 * time.Second}
	sent, err := relay.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sent)

	q.err = nil
	sent, err = relay.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Len(t, q.tasks, 2)

	sent, err = relay.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sent)
}

func TestRelayRespectsGrace(t *testing.T) {
	store := events.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	bus := &events.Bus{Store: store, Now: func() time.Time { return now }}

	ev, err := events.NewEvent(events.TopicOrderCreated, "ord-3", nil)
	require.NoError(t, err)
	ev.OccurredAt = now.Add(-5 * time.Second)
	require.NoError(t, store.InsertEvent(context.Background(), ev))

	sent, err := events.Relay{Bus: bus, Grace: 30 * time.Second}.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sent)
}

func TestSchedulerDedupsThroughRedisQueue(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	enq := queue.Enqueuer{R: client, Prefix: "evt"}
	scheduler := events.TaskScheduler{Queue: enq, Routes: events.DefaultRoutes()}
	ev, err := events.NewEvent(events.TopicOrderCreated, "ord-4", nil)
	require.NoError(t, err)

	require.NoError(t, scheduler.Schedule(context.Background(), ev))
	require.NoError(t, scheduler.Schedule(context.Background(), ev))

	ready, _, err := enq.Depth(context.Background(), events.TaskFulfillmentNotify)
	require.NoError(t, err)
	require.Equal(t, int64(1), ready)
	ready, _, err = enq.Depth(context.Background(), events.TaskPointsAward)
	require.NoError(t, err)
	require.Equal(t, int64(1), ready)
}

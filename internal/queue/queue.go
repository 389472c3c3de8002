package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-blinds/internal/resilience"
)

const defaultMaxAttempts = 8

var nopLogger = zerolog.Nop()

// Task is a unit of background work. Attempt is filled in by the worker with
// the 1-based delivery count; on enqueue it seeds the counter for replays.
type Task struct {
	Kind           string
	Payload        []byte
	IdempotencyKey string
	MaxAttempts    int
	Attempt        int
	Delay          time.Duration
}

// Enqueuer publishes tasks onto Redis sorted sets scored by availability time.
type Enqueuer struct {
	R           redis.UniversalClient
	Prefix      string
	DedupTTL    time.Duration
	MaxAttempts int
}

// Enqueue schedules the task. Tasks sharing an idempotency key are accepted
// once per dedup window; later duplicates are silently dropped.
func (e Enqueuer) Enqueue(ctx context.Context, t Task) error {
	if e.R == nil {
		return errors.New("queue: redis client not configured")
	}
	kind := sanitizeKind(t.Kind)
	if kind == "" {
		return fmt.Errorf("queue: invalid task kind %q", t.Kind)
	}
	msg := taskMessage{
		Kind:        kind,
		Key:         t.IdempotencyKey,
		Payload:     t.Payload,
		Attempt:     max(t.Attempt, 0),
		MaxAttempts: t.MaxAttempts,
		AvailableAt: time.Now().Add(t.Delay).UnixNano(),
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = e.MaxAttempts
	}
	if msg.MaxAttempts <= 0 {
		msg.MaxAttempts = defaultMaxAttempts
	}

	k := keys{prefix: e.Prefix, kind: kind}
	if msg.Key != "" {
		ttl := e.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		ok, err := e.R.SetNX(ctx, k.dedup(msg.Key), "1", ttl).Result()
		if err != nil {
			return fmt.Errorf("queue: dedup %s: %w", kind, err)
		}
		if !ok {
			return nil
		}
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return e.R.ZAdd(ctx, k.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: raw}).Err()
}

// Depth reports ready and in-flight counts for a kind.
func (e Enqueuer) Depth(ctx context.Context, kind string) (ready, processing int64, err error) {
	k := keys{prefix: e.Prefix, kind: sanitizeKind(kind)}
	if ready, err = e.R.ZCard(ctx, k.ready()).Result(); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	if processing, err = e.R.ZCard(ctx, k.processing()).Result(); err != nil && !errors.Is(err, redis.Nil) {
		return 0, 0, err
	}
	return ready, processing, nil
}

func sanitizeKind(kind string) string {
	if kind == "" {
		return ""
	}
	for i := 0; i < len(kind); i++ {
		c := kind[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_', c == ':':
		default:
			return ""
		}
	}
	return kind
}

// Handler processes a single task delivery.
type Handler func(context.Context, Task) error

// Worker consumes one task kind. Deliveries sit in a processing set until
// acked; entries whose visibility deadline passes are returned to the ready
// set so a crashed worker never loses work.
type Worker struct {
	R                 redis.UniversalClient
	Prefix            string
	Kind              string
	Concurrency       int
	VisibilityTimeout time.Duration
	// SoftDeadline bounds a single handler invocation. Zero means the
	// visibility timeout.
	SoftDeadline time.Duration
	// HeartbeatInterval extends the visibility deadline of long-running
	// deliveries. Zero disables heartbeats.
	HeartbeatInterval time.Duration
	Handler           Handler
	RetryBase         time.Duration
	RetryJitter       float64
	PollInterval      time.Duration
	// Store receives exhausted tasks. Without one they are pushed onto a
	// Redis list instead.
	Store  Store
	Logger *zerolog.Logger
}

// Run blocks until ctx is cancelled, then waits for in-flight handlers.
func (w Worker) Run(ctx context.Context) error {
	if w.R == nil {
		return errors.New("queue: worker redis client not configured")
	}
	if w.Handler == nil {
		return errors.New("queue: worker handler not configured")
	}
	kind := sanitizeKind(w.Kind)
	if kind == "" {
		return fmt.Errorf("queue: invalid worker kind %q", w.Kind)
	}
	w.Kind = kind
	if w.Concurrency <= 0 {
		w.Concurrency = 1
	}
	if w.VisibilityTimeout <= 0 {
		w.VisibilityTimeout = 30 * time.Second
	}
	if w.SoftDeadline <= 0 || w.SoftDeadline > w.VisibilityTimeout {
		w.SoftDeadline = w.VisibilityTimeout
	}
	if w.RetryBase <= 0 {
		w.RetryBase = 200 * time.Millisecond
	}
	if w.PollInterval <= 0 {
		w.PollInterval = 100 * time.Millisecond
	}
	log := w.logger().With().Str("kind", kind).Logger()
	k := keys{prefix: w.Prefix, kind: kind}

	sem := make(chan struct{}, w.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	requeue := time.NewTicker(time.Second)
	defer requeue.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-requeue.C:
			if err := w.requeueExpired(ctx, k); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("requeue expired deliveries")
			}
			w.reportDepth(ctx, k)
			continue
		case sem <- struct{}{}:
		}

		raw, msg, ok, err := w.claim(ctx, k)
		if err != nil {
			<-sem
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !ok {
			<-sem
			if !sleepCtx(ctx, w.PollInterval) {
				return nil
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, k, raw, msg, log)
		}()
	}
}

// claim pops the earliest task and moves it into the processing set. Tasks
// that are not yet due go back untouched.
func (w Worker) claim(ctx context.Context, k keys) (string, taskMessage, bool, error) {
	res, err := w.R.ZPopMin(ctx, k.ready(), 1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", taskMessage{}, false, nil
		}
		return "", taskMessage{}, false, err
	}
	if len(res) == 0 {
		return "", taskMessage{}, false, nil
	}
	member, ok := res[0].Member.(string)
	if !ok {
		return "", taskMessage{}, false, nil
	}
	msg, err := decodeMessage(member)
	if err != nil {
		w.logger().Warn().Err(err).Str("kind", k.kind).Msg("dropping undecodable task")
		return "", taskMessage{}, false, nil
	}
	if msg.AvailableAt > time.Now().UnixNano() {
		if err := w.R.ZAdd(ctx, k.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: member}).Err(); err != nil {
			return "", taskMessage{}, false, err
		}
		return "", taskMessage{}, false, nil
	}

	msg.Attempt++
	encoded, err := json.Marshal(msg)
	if err != nil {
		return "", taskMessage{}, false, err
	}
	raw := string(encoded)
	deadline := time.Now().Add(w.VisibilityTimeout).UnixNano()
	if err := w.R.ZAdd(ctx, k.processing(), redis.Z{Score: float64(deadline), Member: raw}).Err(); err != nil {
		return "", taskMessage{}, false, err
	}
	return raw, msg, true, nil
}

func (w Worker) process(ctx context.Context, k keys, raw string, msg taskMessage, log zerolog.Logger) {
	jobCtx, cancel := context.WithTimeout(ctx, w.SoftDeadline)
	defer cancel()
	jobLog := log.With().Str("key", msg.Key).Int("attempt", msg.Attempt).Logger()
	jobCtx = jobLog.WithContext(jobCtx)

	if w.HeartbeatInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go w.heartbeat(jobCtx, k, raw, stop)
	}

	task := Task{
		Kind:           msg.Kind,
		Payload:        msg.Payload,
		IdempotencyKey: msg.Key,
		MaxAttempts:    msg.MaxAttempts,
		Attempt:        msg.Attempt,
	}
	err := w.Handler(jobCtx, task)

	// bookkeeping must survive worker shutdown
	bg := context.WithoutCancel(ctx)
	if err != nil {
		w.handleFailure(bg, k, raw, msg, err, log)
		return
	}
	w.ack(bg, k, raw, msg)
	countProcessed(k.kind, "ok")
}

func (w Worker) heartbeat(ctx context.Context, k keys, raw string, stop <-chan struct{}) {
	ticker := time.NewTicker(w.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(w.VisibilityTimeout).UnixNano()
			_ = w.R.ZAddXX(ctx, k.processing(), redis.Z{Score: float64(deadline), Member: raw}).Err()
		}
	}
}

func (w Worker) handleFailure(ctx context.Context, k keys, raw string, msg taskMessage, cause error, log zerolog.Logger) {
	_ = w.R.ZRem(ctx, k.processing(), raw).Err()

	if msg.MaxAttempts > 0 && msg.Attempt >= msg.MaxAttempts {
		w.deadLetter(ctx, k, raw, msg, cause, log)
		countProcessed(k.kind, "dlq")
		return
	}

	delay := resilience.Backoff(w.RetryBase, msg.Attempt, w.RetryJitter)
	msg.AvailableAt = time.Now().Add(delay).UnixNano()
	encoded, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := w.R.ZAdd(ctx, k.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: string(encoded)}).Err(); err != nil {
		log.Error().Err(err).Str("key", msg.Key).Msg("reschedule failed task")
	}
	log.Debug().Err(cause).Int("attempt", msg.Attempt).Dur("retry_in", delay).Msg("task failed, retrying")
	countProcessed(k.kind, "retry")
}

func (w Worker) deadLetter(ctx context.Context, k keys, raw string, msg taskMessage, cause error, log zerolog.Logger) {
	lastErr := cause.Error()
	log.Error().Err(cause).Str("key", msg.Key).Int("attempts", msg.Attempt).Msg("task exhausted retries")
	stored := false
	if w.Store != nil {
		_, err := w.Store.InsertQueueDlq(ctx, DLQEntry{
			Kind:           msg.Kind,
			IdempotencyKey: msg.Key,
			Payload:        []byte(raw),
			Attempts:       msg.Attempt,
			LastError:      &lastErr,
		})
		if err != nil {
			log.Error().Err(err).Msg("persist dead letter")
		} else {
			stored = true
		}
	}
	if !stored {
		_ = w.R.LPush(ctx, k.dlq(), raw).Err()
	}
	if msg.Key != "" {
		_ = w.R.Del(ctx, k.dedup(msg.Key)).Err()
	}
	if QueueDLQSize != nil {
		QueueDLQSize.WithLabelValues(queueLabel(k.kind)).Inc()
	}
}

func (w Worker) ack(ctx context.Context, k keys, raw string, msg taskMessage) {
	_ = w.R.ZRem(ctx, k.processing(), raw).Err()
	if msg.Key != "" {
		_ = w.R.Del(ctx, k.dedup(msg.Key)).Err()
	}
}

func (w Worker) requeueExpired(ctx context.Context, k keys) error {
	now := time.Now().UnixNano()
	due, err := w.R.ZRangeByScore(ctx, k.processing(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%d", now)}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	for _, raw := range due {
		removed, err := w.R.ZRem(ctx, k.processing(), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		msg, err := decodeMessage(raw)
		if err != nil {
			continue
		}
		msg.AvailableAt = time.Now().UnixNano()
		encoded, err := json.Marshal(msg)
		if err != nil {
			continue
		}
		_ = w.R.ZAdd(ctx, k.ready(), redis.Z{Score: float64(msg.AvailableAt), Member: encoded}).Err()
	}
	return nil
}

func (w Worker) reportDepth(ctx context.Context, k keys) {
	if QueueDepth == nil {
		return
	}
	if depth, err := w.R.ZCard(ctx, k.ready()).Result(); err == nil {
		QueueDepth.WithLabelValues(queueLabel(k.kind)).Set(float64(depth))
	}
}

func (w Worker) logger() *zerolog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return &nopLogger
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

type keys struct {
	prefix string
	kind   string
}

func (k keys) base() string {
	if k.prefix == "" {
		return "queue"
	}
	return k.prefix
}

func (k keys) ready() string          { return fmt.Sprintf("%s:queue:%s", k.base(), k.kind) }
func (k keys) processing() string     { return fmt.Sprintf("%s:%s:processing", k.base(), k.kind) }
func (k keys) dlq() string            { return fmt.Sprintf("%s:%s:dlq", k.base(), k.kind) }
func (k keys) dedup(key string) string { return fmt.Sprintf("%s:dedup:%s:%s", k.base(), k.kind, key) }

func decodeMessage(raw string) (taskMessage, error) {
	var msg taskMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return taskMessage{}, err
	}
	return msg, nil
}

type taskMessage struct {
	Kind        string `json:"kind"`
	Key         string `json:"key,omitempty"`
	Payload     []byte `json:"payload"`
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"max_attempts"`
	AvailableAt int64  `json:"available_at"`
}

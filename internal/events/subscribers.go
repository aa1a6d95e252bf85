package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// LogSubscriber writes one audit line per event.
type LogSubscriber struct {
	logger *slog.Logger
}

func NewLogSubscriber(logger *slog.Logger) *LogSubscriber {
	return &LogSubscriber{logger: logger}
}

func (s *LogSubscriber) Name() string { return "log" }

func (s *LogSubscriber) Deliver(ctx context.Context, e Event) error {
	level := slog.LevelInfo
	if e.Kind == KindInvariantViolation {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "booking event",
		"seq", e.Seq,
		"kind", e.Kind,
		"reservation_id", e.ReservationID,
		"resource_id", e.ResourceID,
		"principal_id", e.PrincipalID,
		"start", e.Start,
		"end", e.End,
		"quantity", e.Quantity,
		"detail", e.Detail,
	)
	return nil
}

const defaultStream = "booking:events"

// RedisStreamSubscriber appends events to a Redis stream used as the audit
// log. Consumers dedupe on the seq field.
type RedisStreamSubscriber struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

func NewRedisStreamSubscriber(client redis.Cmdable, stream string, maxLen int64) *RedisStreamSubscriber {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisStreamSubscriber{client: client, stream: stream, maxLen: maxLen}
}

func (s *RedisStreamSubscriber) Name() string { return "redis-stream" }

func (s *RedisStreamSubscriber) Deliver(ctx context.Context, e Event) error {
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"seq":            strconv.FormatUint(e.Seq, 10),
			"kind":           string(e.Kind),
			"reservation_id": e.ReservationID,
			"resource_id":    e.ResourceID,
			"principal_id":   e.PrincipalID,
			"start":          e.Start.Format(time.RFC3339),
			"end":            e.End.Format(time.RFC3339),
			"quantity":       strconv.Itoa(e.Quantity),
			"occurred_at":    e.OccurredAt.Format(time.RFC3339Nano),
			"detail":         e.Detail,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// TaskTypeBookingEvent is the asynq task type downstream workers register.
const TaskTypeBookingEvent = "booking:event"

// TaskEnqueuer is the part of *asynq.Client the subscriber needs.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskSubscriber hands events to background workers (email, reports) as
// asynq tasks. The task id is derived from the event so redeliveries of the
// same event do not enqueue twice.
type TaskSubscriber struct {
	client TaskEnqueuer
	queue  string
}

func NewTaskSubscriber(client TaskEnqueuer, queue string) *TaskSubscriber {
	if queue == "" {
		queue = "default"
	}
	return &TaskSubscriber{client: client, queue: queue}
}

func (s *TaskSubscriber) Name() string { return "asynq" }

func (s *TaskSubscriber) Deliver(ctx context.Context, e Event) error {
	task, err := NewEventTask(e)
	if err != nil {
		return err
	}
	_, err = s.client.EnqueueContext(ctx, task,
		asynq.Queue(s.queue),
		asynq.TaskID(TaskID(e)),
		asynq.MaxRetry(10),
	)
	if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", TaskTypeBookingEvent, err)
	}
	return nil
}

// TaskID identifies the task for one event.
func TaskID(e Event) string {
	return fmt.Sprintf("%s:%s:%d", e.Kind, e.ReservationID, e.Seq)
}

// NewEventTask encodes e as an asynq task payload.
func NewEventTask(e Event) (*asynq.Task, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event: %w", err)
	}
	return asynq.NewTask(TaskTypeBookingEvent, payload), nil
}

// DecodeEventTask is the consumer-side counterpart of NewEventTask.
func DecodeEventTask(t *asynq.Task) (Event, error) {
	if t.Type() != TaskTypeBookingEvent {
		return Event{}, fmt.Errorf("unexpected task type %q", t.Type())
	}
	var e Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return e, nil
}

package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Subscriber receives events. Delivery is at-least-once, so Deliver must
// tolerate seeing the same Seq twice.
type Subscriber interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

const (
	defaultQueueSize      = 1024
	defaultMaxBacklog     = 10000
	defaultDeliverTimeout = 5 * time.Second
)

// pending is an event that still owes a delivery. A nil sub means the event
// never reached dispatch (queue overflow or sequencing failure) and goes to
// every subscriber.
type pending struct {
	event Event
	sub   Subscriber
}

// Dispatcher fans events out to subscribers from a single goroutine.
// Emit never blocks: when the queue is full the event goes straight to the
// backlog that Redeliver drains.
type Dispatcher struct {
	queue          chan Event
	seq            Sequencer
	logger         *slog.Logger
	deliverTimeout time.Duration
	maxBacklog     int

	subsMu sync.RWMutex
	subs   []Subscriber

	mu      sync.Mutex
	backlog []pending
}

type DispatcherOption func(*Dispatcher)

// WithQueueSize sets the in-memory queue length.
func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan Event, n)
		}
	}
}

// WithDeliverTimeout bounds a single subscriber delivery.
func WithDeliverTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.deliverTimeout = t
		}
	}
}

// WithMaxBacklog caps the number of undelivered entries kept for retry.
func WithMaxBacklog(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxBacklog = n
		}
	}
}

func NewDispatcher(seq Sequencer, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if seq == nil {
		seq = &AtomicSequencer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		queue:          make(chan Event, defaultQueueSize),
		seq:            seq,
		logger:         logger,
		deliverTimeout: defaultDeliverTimeout,
		maxBacklog:     defaultMaxBacklog,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Subscribe(s Subscriber) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	d.subs = append(d.subs, s)
}

// Emit enqueues e for delivery and returns immediately.
func (d *Dispatcher) Emit(_ context.Context, e Event) {
	select {
	case d.queue <- e:
	default:
		d.logger.Warn("event queue full, deferring to backlog", "kind", e.Kind, "reservation_id", e.ReservationID)
		d.park(pending{event: e})
	}
}

// Run dispatches queued events until ctx is cancelled, then flushes what is
// left in the queue with a bounded grace period.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case e := <-d.queue:
			d.dispatch(ctx, e)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.deliverTimeout)
	defer cancel()
	for {
		select {
		case e := <-d.queue:
			d.dispatch(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, e Event) {
	if e.Seq == 0 {
		n, err := d.seq.Next(ctx)
		if err != nil {
			d.logger.Error("assign event sequence", "kind", e.Kind, "reservation_id", e.ReservationID, "error", err)
			d.park(pending{event: e})
			return
		}
		e.Seq = n
	}

	d.subsMu.RLock()
	subs := append([]Subscriber(nil), d.subs...)
	d.subsMu.RUnlock()

	for _, s := range subs {
		if err := d.deliver(ctx, s, e); err != nil {
			d.park(pending{event: e, sub: s})
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, s Subscriber, e Event) error {
	dctx, cancel := context.WithTimeout(ctx, d.deliverTimeout)
	defer cancel()
	if err := s.Deliver(dctx, e); err != nil {
		d.logger.Warn("event delivery failed", "subscriber", s.Name(), "seq", e.Seq, "kind", e.Kind, "error", err)
		return err
	}
	return nil
}

func (d *Dispatcher) park(p pending) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.backlog) >= d.maxBacklog {
		dropped := d.backlog[0]
		d.backlog = d.backlog[1:]
		d.logger.Error("event backlog full, dropping oldest entry", "seq", dropped.event.Seq, "kind", dropped.event.Kind, "reservation_id", dropped.event.ReservationID)
	}
	d.backlog = append(d.backlog, p)
}

// Redeliver retries every backlog entry once and returns how many remain.
func (d *Dispatcher) Redeliver(ctx context.Context) int {
	d.mu.Lock()
	batch := d.backlog
	d.backlog = nil
	d.mu.Unlock()

	for i, p := range batch {
		if ctx.Err() != nil {
			d.mu.Lock()
			d.backlog = append(batch[i:], d.backlog...)
			d.mu.Unlock()
			break
		}
		if p.sub == nil {
			d.dispatch(ctx, p.event)
			continue
		}
		if err := d.deliver(ctx, p.sub, p.event); err != nil {
			d.park(p)
		}
	}
	return d.Pending()
}

// Pending reports the backlog length.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.backlog)
}

// Package events hands committed booking side effects to asynchronous
// handlers. Emit never blocks the caller and handler failures never reach it.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
)

type Type string

const (
	BookingCreated   Type = "booking-created"
	BookingConfirmed Type = "booking-confirmed"
	BookingCancelled Type = "booking-cancelled"
	BookingNoShow    Type = "booking-no-show"
	Reminder         Type = "reminder"
	PaymentCharge    Type = "payment-charge"
	PaymentRefund    Type = "payment-refund"
)

// Notification reports whether the event goes to the notification collaborator.
func (t Type) Notification() bool {
	switch t {
	case BookingCreated, BookingConfirmed, BookingCancelled, BookingNoShow, Reminder:
		return true
	}
	return false
}

// Payment reports whether the event is a charge or refund request.
func (t Type) Payment() bool {
	return t == PaymentCharge || t == PaymentRefund
}

type Event struct {
	Type        Type
	BookingID   string
	UnitID      int64
	ResourceID  int64
	AmountCents int64
	Reason      string
	Booking     models.Booking
	OccurredAt  time.Time
}

// For builds an event carrying a snapshot of booking.
func For(t Type, booking models.Booking, at time.Time) Event {
	return Event{
		Type:       t,
		BookingID:  booking.ID,
		UnitID:     booking.UnitID,
		ResourceID: booking.ResourceID,
		Booking:    booking.Clone(),
		OccurredAt: at,
	}
}

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type HandlerFunc func(ctx context.Context, ev Event) error

func (f HandlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Emitter accepts fire-and-forget events.
type Emitter interface {
	Emit(ctx context.Context, evs ...Event)
}

type Options struct {
	QueueSize      int
	Workers        int
	HandlerTimeout time.Duration
	Metrics        *metrics.BookingMetrics
}

type envelope struct {
	ctx context.Context
	ev  Event
}

// Dispatcher fans events out to handlers on a bounded worker pool. When the
// queue is full new events are dropped and counted.
type Dispatcher struct {
	handlers []Handler
	opts     Options
	queue    chan envelope

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDispatcher(opts Options, handlers ...Handler) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 10 * time.Second
	}
	return &Dispatcher{
		handlers: handlers,
		opts:     opts,
		queue:    make(chan envelope, opts.QueueSize),
	}
}

// Start launches the workers. It is safe to call once.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true
	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

func (d *Dispatcher) Emit(ctx context.Context, evs ...Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Detach so request cancellation does not abort delivery; logger values survive.
	detached := context.WithoutCancel(ctx)
	for _, ev := range evs {
		if d.closed {
			d.drop(ctx, ev, "dispatcher closed")
			continue
		}
		select {
		case d.queue <- envelope{ctx: detached, ev: ev}:
		default:
			d.drop(ctx, ev, "queue full")
		}
	}
}

func (d *Dispatcher) drop(ctx context.Context, ev Event, reason string) {
	d.opts.Metrics.ObserveDropped(string(ev.Type))
	log.Ctx(ctx).Warn().
		Str("component", "event_dispatcher").
		Str("event_type", string(ev.Type)).
		Str("booking_id", ev.BookingID).
		Str("reason", reason).
		Msg("Dropped side-effect event")
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for env := range d.queue {
		d.deliver(env)
	}
}

func (d *Dispatcher) deliver(env envelope) {
	for _, handler := range d.handlers {
		d.call(env, handler)
	}
}

func (d *Dispatcher) call(env envelope, handler Handler) {
	ctx, cancel := context.WithTimeout(env.ctx, d.opts.HandlerTimeout)
	defer cancel()
	logger := log.Ctx(ctx).With().
		Str("component", "event_dispatcher").
		Str("event_type", string(env.ev.Type)).
		Str("booking_id", env.ev.BookingID).
		Logger()

	defer func() {
		if p := recover(); p != nil {
			d.opts.Metrics.ObserveDispatchError(string(env.ev.Type))
			logger.Error().Interface("panic", p).Msg("Side-effect handler panicked")
		}
	}()

	if err := handler.Handle(ctx, env.ev); err != nil {
		d.opts.Metrics.ObserveDispatchError(string(env.ev.Type))
		logger.Error().Err(err).Msg("Side-effect handler failed")
	}
}

// Close stops accepting events and waits for queued ones to be handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		for env := range d.queue {
			d.deliver(env)
		}
		return
	}
	d.wg.Wait()
}

// Recorder is an Emitter that keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, evs ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/codr1/courtbook/internal/metrics"
	"github.com/codr1/courtbook/internal/models"
)

func TestDispatcherDeliversToAllHandlers(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(name string) Handler {
		return HandlerFunc(func(ctx context.Context, ev Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+ev.BookingID)
			return nil
		})
	}

	d := NewDispatcher(Options{Workers: 1}, record("email"), record("payments"))
	d.Start()
	d.Emit(context.Background(), For(BookingConfirmed, models.Booking{ID: "b1"}, time.Now()))
	d.Close()

	if len(seen) != 2 || seen[0] != "email:b1" || seen[1] != "payments:b1" {
		t.Fatalf("unexpected deliveries %v", seen)
	}
}

func TestDispatcherEmitNeverBlocks(t *testing.T) {
	release := make(chan struct{})
	var handled int32
	blocking := HandlerFunc(func(ctx context.Context, ev Event) error {
		<-release
		atomic.AddInt32(&handled, 1)
		return nil
	})

	reg := prometheus.NewRegistry()
	d := NewDispatcher(Options{QueueSize: 1, Workers: 1, Metrics: metrics.NewBookingMetrics(reg)}, blocking)
	d.Start()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Emit(context.Background(), Event{Type: Reminder, BookingID: "b"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Emit blocked with a full queue")
	}

	close(release)
	d.Close()
	if got := atomic.LoadInt32(&handled); got < 1 || got > 2 {
		t.Fatalf("handled = %d, want 1 or 2 (rest dropped)", got)
	}
}

func TestDispatcherSurvivesHandlerFailure(t *testing.T) {
	var calls int32
	failing := HandlerFunc(func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("smtp down")
	})
	panicking := HandlerFunc(func(ctx context.Context, ev Event) error {
		atomic.AddInt32(&calls, 1)
		panic("boom")
	})

	d := NewDispatcher(Options{Workers: 1}, failing, panicking)
	d.Start()
	d.Emit(context.Background(), Event{Type: BookingCancelled, BookingID: "a"}, Event{Type: BookingCancelled, BookingID: "b"})
	d.Close()

	if got := atomic.LoadInt32(&calls); got != 4 {
		t.Fatalf("calls = %d, want 4", got)
	}
}

func TestDispatcherDetachesCancellation(t *testing.T) {
	errs := make(chan error, 1)
	handler := HandlerFunc(func(ctx context.Context, ev Event) error {
		errs <- ctx.Err()
		return nil
	})

	d := NewDispatcher(Options{Workers: 1}, handler)
	ctx, cancel := context.WithCancel(context.Background())
	d.Emit(ctx, Event{Type: Reminder, BookingID: "a"})
	cancel()
	d.Start()
	d.Close()

	if err := <-errs; err != nil {
		t.Fatalf("handler saw cancelled context: %v", err)
	}
}

func TestEmitAfterCloseDrops(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1})
	d.Start()
	d.Close()
	d.Emit(context.Background(), Event{Type: Reminder, BookingID: "late"})
}

// Package payments hands charge and refund requests to the payment
// collaborator. Requests are fire-and-forget: a failed publish never affects
// the booking state that produced it.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/events"
)

type Kind string

const (
	KindCharge Kind = "charge"
	KindRefund Kind = "refund"
)

// Request is the wire shape of one payment request.
type Request struct {
	BookingID      string    `json:"booking_id"`
	UnitID         int64     `json:"unit_id"`
	Kind           Kind      `json:"kind"`
	AmountCents    int64     `json:"amount_cents"`
	Reason         string    `json:"reason,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	RequestedAt    time.Time `json:"requested_at"`
}

type Publisher interface {
	Publish(ctx context.Context, req Request) error
}

// RequestFor converts a payment event into a request. ok is false for other events.
func RequestFor(ev events.Event) (Request, bool) {
	var kind Kind
	switch ev.Type {
	case events.PaymentCharge:
		kind = KindCharge
	case events.PaymentRefund:
		kind = KindRefund
	default:
		return Request{}, false
	}
	if ev.AmountCents <= 0 {
		return Request{}, false
	}
	return Request{
		BookingID:      ev.BookingID,
		UnitID:         ev.UnitID,
		Kind:           kind,
		AmountCents:    ev.AmountCents,
		Reason:         ev.Reason,
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", ev.BookingID, kind, ev.Booking.Version),
		RequestedAt:    ev.OccurredAt,
	}, true
}

// Handler publishes the payment events it receives. It is an events.Handler.
type Handler struct {
	publisher Publisher
}

func NewHandler(publisher Publisher) *Handler {
	return &Handler{publisher: publisher}
}

func (h *Handler) Handle(ctx context.Context, ev events.Event) error {
	req, ok := RequestFor(ev)
	if !ok || h.publisher == nil {
		return nil
	}
	if err := h.publisher.Publish(ctx, req); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Str("component", "payments").
			Str("booking_id", req.BookingID).
			Str("kind", string(req.Kind)).
			Int64("amount_cents", req.AmountCents).
			Msg("Failed to publish payment request")
		return err
	}
	return nil
}

// LogPublisher records requests in the log when no queue is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, req Request) error {
	log.Ctx(ctx).Info().
		Str("component", "payments").
		Str("booking_id", req.BookingID).
		Str("kind", string(req.Kind)).
		Int64("amount_cents", req.AmountCents).
		Msg("Payment request (no queue configured)")
	return nil
}

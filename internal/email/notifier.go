package email

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/models"
)

const defaultSendTimeout = 5 * time.Second

// EmailSender provides a testable abstraction over SES delivery.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
	SendFrom(ctx context.Context, recipient, subject, body, sender string) error
}

// Directory resolves the unit and resource a booking belongs to.
type Directory interface {
	Lookup(ctx context.Context, resourceID int64) (models.Resource, models.Unit, error)
}

// Notifier mails notification events to the owning unit's contact address.
// It is an events.Handler.
type Notifier struct {
	sender    EmailSender
	directory Directory
	timeout   time.Duration
	from      string
}

type NotifierOptions struct {
	Timeout time.Duration
	// From overrides the sender's default address.
	From string
}

func NewNotifier(sender EmailSender, directory Directory, opts NotifierOptions) *Notifier {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultSendTimeout
	}
	return &Notifier{sender: sender, directory: directory, timeout: opts.Timeout, from: opts.From}
}

func (n *Notifier) Handle(ctx context.Context, ev events.Event) error {
	if n == nil || n.sender == nil || !ev.Type.Notification() {
		return nil
	}
	logger := log.Ctx(ctx).With().
		Str("component", "email_notifier").
		Str("event", string(ev.Type)).
		Str("booking_id", ev.BookingID).
		Logger()

	resource, unit, err := n.directory.Lookup(ctx, ev.ResourceID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to resolve unit for notification")
		return err
	}
	recipient := strings.TrimSpace(unit.Email)
	if recipient == "" {
		logger.Debug().Int64("unit_id", unit.ID).Msg("Unit has no contact email, skipping notification")
		return nil
	}

	message, ok := Build(ev.Type, DetailsFor(ev, unit, resource))
	if !ok {
		return nil
	}

	sendCtx, cancel := newEmailContext(ctx, n.timeout)
	defer cancel()
	if err := n.sender.SendFrom(sendCtx, recipient, message.Subject, message.Body, n.from); err != nil {
		logger.Error().Err(err).Str("recipient", recipient).Msg("Failed to send booking notification")
		return err
	}
	logger.Debug().Str("recipient", recipient).Msg("Booking notification sent")
	return nil
}

// newEmailContext bounds a send by timeout. The caller's cancellation does
// not abort a send already handed to SES.
func newEmailContext(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

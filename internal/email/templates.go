package email

import (
	"fmt"
	"strings"

	"github.com/codr1/courtbook/internal/events"
	"github.com/codr1/courtbook/internal/models"
)

type Message struct {
	Subject string
	Body    string
}

// BookingDetails is what a staff notification says about a booking.
type BookingDetails struct {
	UnitName     string
	ResourceName string
	BookingID    string
	Kind         models.BookingKind
	Date         string
	TimeRange    string
	Participants int
	PriceCents   int64
	Reason       string
	FeeCents     int64
}

func KindLabel(kind models.BookingKind) string {
	switch kind {
	case models.KindClass:
		return "Class"
	case models.KindOpenPlay:
		return "Open Play"
	case models.KindTraining:
		return "Training"
	case models.KindEvent:
		return "Event"
	}
	return "Booking"
}

func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func orTBD(value string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return "TBD"
}

// DetailsFor fills booking details from an event snapshot.
func DetailsFor(ev events.Event, unit models.Unit, resource models.Resource) BookingDetails {
	b := ev.Booking
	details := BookingDetails{
		UnitName:     unit.Name,
		ResourceName: resource.Name,
		BookingID:    ev.BookingID,
		Kind:         b.Kind,
		Participants: len(b.Participants),
		PriceCents:   b.PriceCents,
		Reason:       ev.Reason,
		FeeCents:     b.CancellationFeeCents,
	}
	if !b.Start.IsZero() {
		details.Date = b.Start.Format("Monday, Jan 2, 2006")
		details.TimeRange = fmt.Sprintf("%s - %s", b.Start.Format("3:04 PM"), b.End.Format("3:04 PM"))
	}
	if details.ResourceName == "" && resource.Number > 0 {
		details.ResourceName = fmt.Sprintf("Court %d", resource.Number)
	}
	return details
}

// Build renders the notification for an event type. ok is false for types
// that are not notifications.
func Build(t events.Type, details BookingDetails) (Message, bool) {
	var headline, subject string
	kind := KindLabel(details.Kind)
	switch t {
	case events.BookingCreated:
		subject = fmt.Sprintf("New %s Request", kind)
		headline = fmt.Sprintf("A %s booking was requested.", kind)
	case events.BookingConfirmed:
		subject = fmt.Sprintf("%s Confirmed", kind)
		headline = fmt.Sprintf("A %s booking is confirmed.", kind)
	case events.BookingCancelled:
		subject = fmt.Sprintf("%s Cancelled", kind)
		headline = fmt.Sprintf("A %s booking has been cancelled.", kind)
	case events.BookingNoShow:
		subject = fmt.Sprintf("%s No-Show", kind)
		headline = fmt.Sprintf("A %s booking was marked as a no-show.", kind)
	case events.Reminder:
		subject = fmt.Sprintf("Upcoming %s Reminder", kind)
		headline = fmt.Sprintf("Reminder: a %s booking is coming up.", kind)
	default:
		return Message{}, false
	}
	if unit := strings.TrimSpace(details.UnitName); unit != "" {
		subject = fmt.Sprintf("%s - %s", subject, unit)
	}

	lines := []string{
		headline,
		"",
		fmt.Sprintf("Booking: %s", details.BookingID),
		fmt.Sprintf("Court: %s", orTBD(details.ResourceName)),
		fmt.Sprintf("Date: %s", orTBD(details.Date)),
		fmt.Sprintf("Time: %s", orTBD(details.TimeRange)),
		fmt.Sprintf("Participants: %d", details.Participants),
		fmt.Sprintf("Price: %s", FormatCents(details.PriceCents)),
	}
	if t == events.BookingCancelled {
		if reason := strings.TrimSpace(details.Reason); reason != "" {
			lines = append(lines, fmt.Sprintf("Reason: %s", reason))
		}
		if details.FeeCents > 0 {
			lines = append(lines, fmt.Sprintf("Cancellation fee: %s", FormatCents(details.FeeCents)))
		} else {
			lines = append(lines, "Fee waived: Yes")
		}
	}

	return Message{Subject: subject, Body: strings.Join(lines, "\n")}, true
}

// internal/models/errors.go
package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrSlotUnavailable         = errors.New("slot unavailable")
	ErrInvalidRequest          = errors.New("invalid request")
	ErrInvalidTransition       = errors.New("invalid transition")
	ErrNotFound                = errors.New("not found")
	ErrPolicyViolation         = errors.New("policy violation")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrVersionConflict         = errors.New("version conflict")
)

// SlotUnavailableError reports the bookings that already hold an interval.
type SlotUnavailableError struct {
	ResourceID     int64
	Interval       Interval
	ConflictingIDs []string
}

func (e *SlotUnavailableError) Error() string {
	if len(e.ConflictingIDs) == 0 {
		return fmt.Sprintf("resource %d unavailable for %s", e.ResourceID, e.Interval)
	}
	return fmt.Sprintf("resource %d unavailable for %s: held by %s", e.ResourceID, e.Interval, strings.Join(e.ConflictingIDs, ", "))
}

func (e *SlotUnavailableError) Unwrap() error {
	return ErrSlotUnavailable
}

type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return ErrInvalidRequest
}

func InvalidField(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

type TransitionError struct {
	BookingID string
	From      BookingStatus
	To        BookingStatus
	Reason    string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("booking %s (%s): %s", e.BookingID, e.From, e.Reason)
	}
	return fmt.Sprintf("booking %s cannot move from %s to %s", e.BookingID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "policy violation: " + e.Reason
}

func (e *PolicyError) Unwrap() error {
	return ErrPolicyViolation
}

// CollaboratorError marks a failure of an external dependency such as the store.
// Callers own the retry policy.
type CollaboratorError struct {
	Op  string
	Err error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaboratorUnavailable, e.Err}
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Kind returns the sentinel that classifies err, or nil when err is not a domain error.
func Kind(err error) error {
	for _, kind := range []error{
		ErrSlotUnavailable,
		ErrInvalidRequest,
		ErrInvalidTransition,
		ErrNotFound,
		ErrPolicyViolation,
		ErrVersionConflict,
		ErrCollaboratorUnavailable,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

var codes = map[error]string{
	ErrSlotUnavailable:         "SlotUnavailable",
	ErrInvalidRequest:          "InvalidRequest",
	ErrInvalidTransition:       "InvalidTransition",
	ErrNotFound:                "NotFound",
	ErrPolicyViolation:         "PolicyViolation",
	ErrVersionConflict:         "VersionConflict",
	ErrCollaboratorUnavailable: "CollaboratorUnavailable",
}

// Code names the kind of err for the wire, "Internal" for unclassified errors.
func Code(err error) string {
	if code, ok := codes[Kind(err)]; ok {
		return code
	}
	return "Internal"
}

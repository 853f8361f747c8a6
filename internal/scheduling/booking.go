package scheduling

import (
	"fmt"
	"time"
)

// Status is the booking lifecycle state.
type Status string

const (
	StatusPending   Status = "pendente"
	StatusConfirmed Status = "confirmado"
	StatusCancelled Status = "cancelado"
	StatusCompleted Status = "concluido"
)

// ParseStatus validates a wire status value.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// Live statuses take part in the no-overlap invariant.
func (s Status) Live() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// Booking reserves one service slot with one provider on one date.
type Booking struct {
	ID              string
	ClientID        string
	ProviderID      string
	ServiceID       string
	Date            time.Time
	Start           TimeOfDay
	DurationMinutes int
	Status          Status
	PaymentID       string
	Note            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// End is derived from the service duration.
func (b Booking) End() TimeOfDay {
	return b.Start.Add(b.DurationMinutes)
}

func (b Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End()}
}

// occupied collects the live intervals of a provider on a date.
func occupied(bookings []Booking, providerID string, date time.Time) []Interval {
	out := make([]Interval, 0, len(bookings))
	for _, b := range bookings {
		if !b.Status.Live() {
			continue
		}
		if providerID != "" && b.ProviderID != providerID {
			continue
		}
		if !SameDate(b.Date, date) {
			continue
		}
		out = append(out, b.Interval())
	}
	return out
}

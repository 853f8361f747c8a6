package events

import "time"

const (
	TypeBookingCreated       = "booking.created.v1"
	TypeBookingStatusChanged = "booking.status_changed.v1"
)

type BookingCreatedV1 struct {
	EventID         string    `json:"event_id"`
	BookingID       string    `json:"booking_id"`
	ClientID        string    `json:"client_id"`
	ProviderID      string    `json:"barber_id"`
	ServiceID       string    `json:"service_id"`
	Date            string    `json:"date"`
	Start           string    `json:"time"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// BookingStatusChangedV1 is emitted for every applied transition. Cause is the
// actor role, or "payment" when reconciliation drove the change.
type BookingStatusChangedV1 struct {
	EventID    string    `json:"event_id"`
	BookingID  string    `json:"booking_id"`
	ClientID   string    `json:"client_id"`
	ProviderID string    `json:"barber_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Cause      string    `json:"cause"`
	PaymentID  string    `json:"payment_id,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

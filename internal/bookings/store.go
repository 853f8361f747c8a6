package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

// ErrNoChange is returned by a MutateFunc to abandon an update without
// writing. Store.Update passes it through with the unmodified booking.
var ErrNoChange = errors.New("bookings: no change")

// CheckFunc inspects the provider's live bookings for the day and returns a
// non-nil error to refuse the insert.
type CheckFunc func(existing []scheduling.Booking) error

// MutateFunc edits a booking in place while the store holds its write lock.
type MutateFunc func(b *scheduling.Booking) error

// ListFilter narrows List. Zero values mean "any".
type ListFilter struct {
	ClientID   string
	ProviderID string
	Statuses   []scheduling.Status
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// Store persists bookings. CreateAtomic and Update are the only write paths
// and each is atomic with respect to concurrent callers.
type Store interface {
	Get(ctx context.Context, id string) (*scheduling.Booking, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*scheduling.Booking, error)
	ListLive(ctx context.Context, providerID string, date time.Time) ([]scheduling.Booking, error)
	List(ctx context.Context, filter ListFilter) ([]scheduling.Booking, int, error)

	// CreateAtomic serializes on (provider, date), re-reads the live bookings,
	// runs check and inserts b only if check returns nil.
	CreateAtomic(ctx context.Context, b scheduling.Booking, check CheckFunc) error

	// Update loads the booking under a row lock, applies mutate and persists
	// status, payment id and updated_at.
	Update(ctx context.Context, id string, mutate MutateFunc) (*scheduling.Booking, error)
}

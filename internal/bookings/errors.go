package bookings

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrTooManyAttempts is returned when a client exceeds the booking velocity limit.
	ErrTooManyAttempts = errors.New("bookings: too many booking attempts, try again later")

	// ErrNotPending is returned when a payment is attached to a booking that
	// already left pendente.
	ErrNotPending = errors.New("bookings: booking is not awaiting payment")

	// ErrPaymentMismatch is returned when an outcome names a payment other
	// than the one stored on the booking.
	ErrPaymentMismatch = errors.New("bookings: payment does not match booking")

	// ErrUnavailable marks a failure the client may retry.
	ErrUnavailable = errors.New("bookings: storage temporarily unavailable, try again")
)

// ValidationError reports a malformed or unacceptable request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a request validation failure.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsTransient reports whether err came from storage being unreachable or too
// slow rather than from the request itself.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

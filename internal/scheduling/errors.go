package scheduling

import "errors"

// Rejection is a negative scheduling decision. It is a normal outcome reported
// to the caller, not a failure of the system; Reason is the stable wire value.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return r.Reason
}

var (
	ErrProviderNotWorking  = &Rejection{Reason: "provider-not-working"}
	ErrOutsideWorkingHours = &Rejection{Reason: "outside-working-hours"}
	ErrSlotTaken           = &Rejection{Reason: "slot-taken"}

	ErrBookingNotFound   = &Rejection{Reason: "not-found"}
	ErrForbiddenForRole  = &Rejection{Reason: "forbidden-for-role"}
	ErrIllegalTransition = &Rejection{Reason: "illegal-transition"}
	ErrAlreadyTerminal   = &Rejection{Reason: "already-terminal"}
)

var (
	// ErrInvalidDate is returned for dates not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

	// ErrInvalidTime is returned for times not in HH:MM form.
	ErrInvalidTime = errors.New("invalid time, expected HH:MM")

	// ErrInvalidDuration is returned for non-positive service durations.
	ErrInvalidDuration = errors.New("duration must be positive")

	// ErrInvalidWindow is returned for working windows that end before they start.
	ErrInvalidWindow = errors.New("working window must end after it starts")

	// ErrDuplicateWindow is returned when a weekday has more than one active window.
	ErrDuplicateWindow = errors.New("at most one active working window per weekday")

	ErrUnknownRole   = errors.New("unknown role")
	ErrUnknownStatus = errors.New("unknown booking status")
)

// ReasonOf extracts the rejection reason from err, if any.
func ReasonOf(err error) (string, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

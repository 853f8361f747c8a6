package scheduling

import "time"

// ConflictValidator decides whether a proposed booking fits a provider's day.
// An allowed answer is a point-in-time observation, not a reservation: the
// insert path must run it again while holding the per-day write lock.
type ConflictValidator struct {
	Buffer int
}

// Validate returns nil when the booking is allowed, otherwise one of
// ErrProviderNotWorking, ErrOutsideWorkingHours or ErrSlotTaken, checked in
// that order.
func (v ConflictValidator) Validate(cal Calendar, date time.Time, start TimeOfDay, duration int, existing []Booking) error {
	if duration <= 0 {
		return ErrInvalidDuration
	}
	window, ok := cal.WindowFor(date.Weekday())
	if !ok {
		return ErrProviderNotWorking
	}
	candidate := Interval{Start: start, End: start.Add(duration)}
	if !candidate.Within(window.Interval()) {
		return ErrOutsideWorkingHours
	}
	if conflicts(candidate, occupied(existing, cal.ProviderID, date), v.Buffer) {
		return ErrSlotTaken
	}
	return nil
}

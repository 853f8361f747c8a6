package scheduling

import "time"

const (
	// DefaultGranularity is the spacing between candidate slot start times.
	DefaultGranularity = 30

	// DefaultSlotDuration is the overlap length used when no service is chosen.
	DefaultSlotDuration = 30
)

// Slot is a candidate start time tagged with its availability at query time.
type Slot struct {
	Time      TimeOfDay `json:"time"`
	Available bool      `json:"available"`
}

// Availability is the read projection of a provider's day. Working is false
// when the provider has no active window on that weekday.
type Availability struct {
	ProviderID string
	Date       time.Time
	Working    bool
	Window     WorkingWindow
	Slots      []Slot
}

// AvailabilityCalculator enumerates bookable slots. It performs no I/O and
// keeps no state between calls.
type AvailabilityCalculator struct {
	Granularity     int
	DefaultDuration int
	Buffer          int
}

// NewAvailabilityCalculator returns a calculator with 30-minute slots.
func NewAvailabilityCalculator() AvailabilityCalculator {
	return AvailabilityCalculator{
		Granularity:     DefaultGranularity,
		DefaultDuration: DefaultSlotDuration,
	}
}

// ComputeSlots tags every slot of the provider's window on date. A slot is
// unavailable when [t, t+duration) overlaps a live booking. When a duration
// is given, a slot whose service would run past the window end is also
// unavailable. The window end never truncates a booking's occupancy.
func (c AvailabilityCalculator) ComputeSlots(cal Calendar, date time.Time, bookings []Booking, duration int) Availability {
	result := Availability{ProviderID: cal.ProviderID, Date: date}
	window, ok := cal.WindowFor(date.Weekday())
	if !ok {
		return result
	}
	result.Working = true
	result.Window = window

	step := c.Granularity
	if step <= 0 {
		step = DefaultGranularity
	}
	chosen := duration > 0
	if !chosen {
		duration = c.DefaultDuration
	}
	if duration <= 0 {
		duration = DefaultSlotDuration
	}

	taken := occupied(bookings, cal.ProviderID, date)
	result.Slots = make([]Slot, 0, int(window.End-window.Start)/step)
	for t := window.Start; t.Add(step) <= window.End; t = t.Add(step) {
		candidate := Interval{Start: t, End: t.Add(duration)}
		fits := !chosen || candidate.End <= window.End
		result.Slots = append(result.Slots, Slot{
			Time:      t,
			Available: fits && !conflicts(candidate, taken, c.Buffer),
		})
	}
	return result
}

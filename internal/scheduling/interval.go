package scheduling

// Interval is a half-open [Start, End) span of minutes within a day.
type Interval struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Overlaps reports whether two half-open intervals share any minute.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// Within reports whether i lies entirely inside o.
func (i Interval) Within(o Interval) bool {
	return i.Start >= o.Start && i.End <= o.End
}

// pad extends the end of the interval by a cleanup gap.
func (i Interval) pad(minutes int) Interval {
	if minutes <= 0 {
		return i
	}
	return Interval{Start: i.Start, End: i.End.Add(minutes)}
}

// conflicts applies the overlap test with a gap required between bookings.
func conflicts(candidate Interval, occupied []Interval, buffer int) bool {
	c := candidate.pad(buffer)
	for _, o := range occupied {
		if c.Overlaps(o.pad(buffer)) {
			return true
		}
	}
	return false
}

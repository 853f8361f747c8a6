package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// WorkingWindow is a provider's open interval on one weekday (0 = Sunday).
type WorkingWindow struct {
	Weekday time.Weekday `json:"weekday"`
	Start   TimeOfDay    `json:"start"`
	End     TimeOfDay    `json:"end"`
	Active  bool         `json:"active"`
}

// Interval returns the window as a half-open interval.
func (w WorkingWindow) Interval() Interval {
	return Interval{Start: w.Start, End: w.End}
}

// Validate checks a single window in isolation.
func (w WorkingWindow) Validate() error {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("%w: weekday %d", ErrInvalidWindow, w.Weekday)
	}
	if w.Start < 0 || w.End > 24*60 || w.End <= w.Start {
		return fmt.Errorf("%w: %s-%s", ErrInvalidWindow, w.Start, w.End)
	}
	return nil
}

// Calendar is the weekly working-hours lookup for one provider.
type Calendar struct {
	ProviderID string
	byWeekday  [7]*WorkingWindow
}

// NewCalendar builds a calendar, ignoring inactive windows and rejecting
// split shifts (two active windows on the same weekday).
func NewCalendar(providerID string, windows []WorkingWindow) (Calendar, error) {
	cal := Calendar{ProviderID: providerID}
	for _, w := range windows {
		if !w.Active {
			continue
		}
		if err := w.Validate(); err != nil {
			return Calendar{}, err
		}
		if cal.byWeekday[w.Weekday] != nil {
			return Calendar{}, fmt.Errorf("%w: %s", ErrDuplicateWindow, w.Weekday)
		}
		window := w
		cal.byWeekday[w.Weekday] = &window
	}
	return cal, nil
}

// WindowFor returns the active window for a weekday.
func (c Calendar) WindowFor(day time.Weekday) (WorkingWindow, bool) {
	if day < time.Sunday || day > time.Saturday || c.byWeekday[day] == nil {
		return WorkingWindow{}, false
	}
	return *c.byWeekday[day], true
}

// Windows lists the active windows ordered by weekday.
func (c Calendar) Windows() []WorkingWindow {
	out := make([]WorkingWindow, 0, 7)
	for _, w := range c.byWeekday {
		if w != nil {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out
}

package bookings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

// MemoryStore keeps bookings in process. A mutex per (provider, date) makes
// check-then-insert atomic.
type MemoryStore struct {
	mu       sync.RWMutex
	bookings map[string]scheduling.Booking

	locksMu  sync.Mutex
	dayLocks map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings: make(map[string]scheduling.Booking),
		dayLocks: make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) dayLock(providerID string, date time.Time) *sync.Mutex {
	key := lockKey(providerID, date)
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	m, ok := s.dayLocks[key]
	if !ok {
		m = &sync.Mutex{}
		s.dayLocks[key] = m
	}
	return m
}

func (s *MemoryStore) Get(_ context.Context, id string) (*scheduling.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, scheduling.ErrBookingNotFound
	}
	return &b, nil
}

func (s *MemoryStore) FindByPaymentID(_ context.Context, paymentID string) (*scheduling.Booking, error) {
	if paymentID == "" {
		return nil, scheduling.ErrBookingNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.PaymentID == paymentID {
			found := b
			return &found, nil
		}
	}
	return nil, scheduling.ErrBookingNotFound
}

func (s *MemoryStore) ListLive(_ context.Context, providerID string, date time.Time) ([]scheduling.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveLocked(providerID, date), nil
}

func (s *MemoryStore) liveLocked(providerID string, date time.Time) []scheduling.Booking {
	var out []scheduling.Booking
	for _, b := range s.bookings {
		if b.ProviderID == providerID && b.Status.Live() && scheduling.SameDate(b.Date, date) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]scheduling.Booking, int, error) {
	s.mu.RLock()
	var matched []scheduling.Booking
	for _, b := range s.bookings {
		if f.matches(b) {
			matched = append(matched, b)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !scheduling.SameDate(matched[i].Date, matched[j].Date) {
			return matched[i].Date.After(matched[j].Date)
		}
		return matched[i].Start > matched[j].Start
	})
	total := len(matched)
	if f.Offset >= total {
		return []scheduling.Booking{}, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (f ListFilter) matches(b scheduling.Booking) bool {
	if f.ClientID != "" && b.ClientID != f.ClientID {
		return false
	}
	if f.ProviderID != "" && b.ProviderID != f.ProviderID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if b.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() && scheduling.DateBefore(b.Date, f.From) {
		return false
	}
	if !f.To.IsZero() && scheduling.DateBefore(f.To, b.Date) {
		return false
	}
	return true
}

func (s *MemoryStore) CreateAtomic(_ context.Context, b scheduling.Booking, check CheckFunc) error {
	day := s.dayLock(b.ProviderID, b.Date)
	day.Lock()
	defer day.Unlock()

	s.mu.RLock()
	existing := s.liveLocked(b.ProviderID, b.Date)
	s.mu.RUnlock()

	if check != nil {
		if err := check(existing); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[b.ID] = b
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate MutateFunc) (*scheduling.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.bookings[id]
	if !ok {
		return nil, scheduling.ErrBookingNotFound
	}
	next := current
	if err := mutate(&next); err != nil {
		return &current, err
	}
	s.bookings[id] = next
	return &next, nil
}

// ServiceReferenced reports whether any booking uses the service.
func (s *MemoryStore) ServiceReferenced(_ context.Context, serviceID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookings {
		if b.ServiceID == serviceID {
			return true, nil
		}
	}
	return false, nil
}

// CountFutureByService counts non-cancelled bookings on or after from.
func (s *MemoryStore) CountFutureByService(_ context.Context, serviceID string, from time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, b := range s.bookings {
		if b.ServiceID == serviceID && b.Status != scheduling.StatusCancelled && !scheduling.DateBefore(b.Date, from) {
			n++
		}
	}
	return n, nil
}

func lockKey(providerID string, date time.Time) string {
	return providerID + "|" + date.Format(scheduling.DateLayout)
}

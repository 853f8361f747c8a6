package catalog

import (
	"context"
	"sort"
	"sync"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

// MemoryStore is an in-process Store used in development and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	providers map[string]Provider
	services  map[string]Service
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		providers: make(map[string]Provider),
		services:  make(map[string]Service),
	}
}

// PutProvider inserts or replaces a provider.
func (s *MemoryStore) PutProvider(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Windows = append([]scheduling.WorkingWindow(nil), p.Windows...)
	s.providers[p.ID] = p
}

func (s *MemoryStore) Provider(_ context.Context, id string) (*Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	p.Windows = append([]scheduling.WorkingWindow(nil), p.Windows...)
	return &p, nil
}

func (s *MemoryStore) ListProviders(_ context.Context, activeOnly bool) ([]Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Provider, 0, len(s.providers))
	for _, p := range s.providers {
		if activeOnly && !p.Active {
			continue
		}
		p.Windows = nil
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateProvider(_ context.Context, p Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Windows = append([]scheduling.WorkingWindow(nil), p.Windows...)
	s.providers[p.ID] = p
	return nil
}

func (s *MemoryStore) SetProviderActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return ErrProviderNotFound
	}
	p.Active = active
	s.providers[id] = p
	return nil
}

func (s *MemoryStore) ReplaceSchedule(_ context.Context, providerID string, windows []scheduling.WorkingWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[providerID]
	if !ok {
		return ErrProviderNotFound
	}
	p.Windows = append([]scheduling.WorkingWindow(nil), windows...)
	s.providers[providerID] = p
	return nil
}

func (s *MemoryStore) Service(_ context.Context, id string) (*Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, ErrServiceNotFound
	}
	return &svc, nil
}

func (s *MemoryStore) ListServices(_ context.Context, activeOnly bool) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Service, 0, len(s.services))
	for _, svc := range s.services {
		if activeOnly && !svc.Active {
			continue
		}
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) CreateService(_ context.Context, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.services[svc.ID] = svc
	return nil
}

func (s *MemoryStore) UpdateService(_ context.Context, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svc.ID]; !ok {
		return ErrServiceNotFound
	}
	s.services[svc.ID] = svc
	return nil
}

func (s *MemoryStore) SetServiceActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return ErrServiceNotFound
	}
	svc.Active = active
	s.services[id] = svc
	return nil
}

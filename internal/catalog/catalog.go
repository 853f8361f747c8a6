package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

var catalogTracer = otel.Tracer("barbershop.internal.catalog")

var (
	ErrProviderNotFound = errors.New("catalog: provider not found")
	ErrServiceNotFound  = errors.New("catalog: service not found")

	// ErrServiceInUse blocks edits to a service that bookings already reference.
	ErrServiceInUse = errors.New("catalog: service is referenced by bookings")

	// ErrServiceHasFutureBookings blocks deactivation while upcoming bookings exist.
	ErrServiceHasFutureBookings = errors.New("catalog: service has future bookings")

	ErrInvalidService  = errors.New("catalog: invalid service")
	ErrInvalidProvider = errors.New("catalog: invalid provider")
)

// Provider is a barber with a weekly working schedule.
type Provider struct {
	ID      string                     `json:"id"`
	Name    string                     `json:"name"`
	Active  bool                       `json:"active"`
	Windows []scheduling.WorkingWindow `json:"windows"`
}

// ProviderInput carries the fields an admin supplies when registering a barber.
type ProviderInput struct {
	Name string `json:"name"`
}

func (in ProviderInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProvider)
	}
	return nil
}

// Service is a bookable offering. Duration is fixed once bookings reference it.
type Service struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	DurationMinutes int       `json:"duration_minutes"`
	PriceCents      int64     `json:"price_cents"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ServiceInput carries the editable fields of a service.
type ServiceInput struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
}

func (in ServiceInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidService)
	}
	if in.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration_minutes must be positive", ErrInvalidService)
	}
	if in.PriceCents < 0 {
		return fmt.Errorf("%w: price_cents must not be negative", ErrInvalidService)
	}
	return nil
}

// Store persists providers, their working windows and services.
type Store interface {
	Provider(ctx context.Context, id string) (*Provider, error)
	ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error)
	CreateProvider(ctx context.Context, p Provider) error
	SetProviderActive(ctx context.Context, id string, active bool) error
	ReplaceSchedule(ctx context.Context, providerID string, windows []scheduling.WorkingWindow) error
	Service(ctx context.Context, id string) (*Service, error)
	ListServices(ctx context.Context, activeOnly bool) ([]Service, error)
	CreateService(ctx context.Context, svc Service) error
	UpdateService(ctx context.Context, svc Service) error
	SetServiceActive(ctx context.Context, id string, active bool) error
}

// Usage answers how bookings reference a service.
type Usage interface {
	ServiceReferenced(ctx context.Context, serviceID string) (bool, error)
	CountFutureByService(ctx context.Context, serviceID string, from time.Time) (int, error)
}

// Catalog enforces the editing rules for schedules and services.
type Catalog struct {
	store  Store
	usage  Usage
	clock  scheduling.Clock
	logger *logging.Logger
	newID  func() string
}

// New constructs a catalog. usage may be nil, in which case services are
// never considered referenced.
func New(store Store, usage Usage, clock scheduling.Clock, logger *logging.Logger) *Catalog {
	if store == nil {
		panic("catalog: store required")
	}
	if clock == nil {
		clock = scheduling.SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Catalog{store: store, usage: usage, clock: clock, logger: logger, newID: newUUID}
}

// Provider returns an active provider.
func (c *Catalog) Provider(ctx context.Context, id string) (*Provider, error) {
	if !validID(id) {
		return nil, ErrProviderNotFound
	}
	p, err := c.store.Provider(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// ListProviders returns providers ordered by name. Windows are not loaded.
func (c *Catalog) ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error) {
	return c.store.ListProviders(ctx, activeOnly)
}

// CreateProvider registers an active provider with no working windows.
func (c *Catalog) CreateProvider(ctx context.Context, in ProviderInput) (*Provider, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p := Provider{
		ID:      c.newID(),
		Name:    strings.TrimSpace(in.Name),
		Active:  true,
		Windows: []scheduling.WorkingWindow{},
	}
	if err := c.store.CreateProvider(ctx, p); err != nil {
		return nil, err
	}
	c.logger.Info("provider created", "provider_id", p.ID, "name", p.Name)
	return &p, nil
}

// SetProviderActive flips a provider on or off. Inactive providers disappear
// from availability and reject new bookings; existing bookings are kept.
func (c *Catalog) SetProviderActive(ctx context.Context, id string, active bool) (*Provider, error) {
	if !validID(id) {
		return nil, ErrProviderNotFound
	}
	if err := c.store.SetProviderActive(ctx, id, active); err != nil {
		return nil, err
	}
	p, err := c.store.Provider(ctx, id)
	if err != nil {
		return nil, err
	}
	c.logger.Info("provider status changed", "provider_id", id, "active", active)
	return p, nil
}

// ToggleProviderStatus inverts the active flag of a provider, active or not.
func (c *Catalog) ToggleProviderStatus(ctx context.Context, id string) (*Provider, error) {
	if !validID(id) {
		return nil, ErrProviderNotFound
	}
	p, err := c.store.Provider(ctx, id)
	if err != nil {
		return nil, err
	}
	return c.SetProviderActive(ctx, id, !p.Active)
}

// Calendar builds the working-hours lookup for an active provider.
func (c *Catalog) Calendar(ctx context.Context, providerID string) (scheduling.Calendar, error) {
	p, err := c.Provider(ctx, providerID)
	if err != nil {
		return scheduling.Calendar{}, err
	}
	cal, err := scheduling.NewCalendar(p.ID, p.Windows)
	if err != nil {
		return scheduling.Calendar{}, fmt.Errorf("catalog: provider %s schedule: %w", p.ID, err)
	}
	return cal, nil
}

// ReplaceSchedule swaps a provider's weekly windows. Existing bookings are
// left untouched even when they fall outside the new windows.
func (c *Catalog) ReplaceSchedule(ctx context.Context, providerID string, windows []scheduling.WorkingWindow) error {
	ctx, span := catalogTracer.Start(ctx, "catalog.replace_schedule")
	defer span.End()
	span.SetAttributes(attribute.String("barbershop.provider_id", providerID))

	if _, err := c.Provider(ctx, providerID); err != nil {
		return err
	}
	if _, err := scheduling.NewCalendar(providerID, windows); err != nil {
		return err
	}
	if err := c.store.ReplaceSchedule(ctx, providerID, windows); err != nil {
		span.RecordError(err)
		return err
	}
	c.logger.Info("provider schedule replaced", "provider_id", providerID, "windows", len(windows))
	return nil
}

// Service returns a service regardless of its active flag.
func (c *Catalog) Service(ctx context.Context, id string) (*Service, error) {
	if !validID(id) {
		return nil, ErrServiceNotFound
	}
	return c.store.Service(ctx, id)
}

func (c *Catalog) ListServices(ctx context.Context, activeOnly bool) ([]Service, error) {
	return c.store.ListServices(ctx, activeOnly)
}

func (c *Catalog) CreateService(ctx context.Context, in ServiceInput) (*Service, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := c.clock.Now().UTC()
	svc := Service{
		ID:              c.newID(),
		Name:            strings.TrimSpace(in.Name),
		Description:     strings.TrimSpace(in.Description),
		DurationMinutes: in.DurationMinutes,
		PriceCents:      in.PriceCents,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.store.CreateService(ctx, svc); err != nil {
		return nil, err
	}
	c.logger.Info("service created", "service_id", svc.ID, "name", svc.Name)
	return &svc, nil
}

// UpdateService edits a service that no booking references yet.
func (c *Catalog) UpdateService(ctx context.Context, id string, in ServiceInput) (*Service, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	svc, err := c.Service(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.usage != nil {
		used, err := c.usage.ServiceReferenced(ctx, id)
		if err != nil {
			return nil, err
		}
		if used {
			return nil, ErrServiceInUse
		}
	}
	svc.Name = strings.TrimSpace(in.Name)
	svc.Description = strings.TrimSpace(in.Description)
	svc.DurationMinutes = in.DurationMinutes
	svc.PriceCents = in.PriceCents
	svc.UpdatedAt = c.clock.Now().UTC()
	if err := c.store.UpdateService(ctx, *svc); err != nil {
		return nil, err
	}
	return svc, nil
}

// DeactivateService hides a service from new bookings.
func (c *Catalog) DeactivateService(ctx context.Context, id string) error {
	if _, err := c.Service(ctx, id); err != nil {
		return err
	}
	if c.usage != nil {
		n, err := c.usage.CountFutureByService(ctx, id, scheduling.Today(c.clock))
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: %d", ErrServiceHasFutureBookings, n)
		}
	}
	if err := c.store.SetServiceActive(ctx, id, false); err != nil {
		return err
	}
	c.logger.Info("service deactivated", "service_id", id)
	return nil
}

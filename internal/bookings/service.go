package bookings

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	"github.com/wolfman30/barbershop-scheduler/internal/events"
	"github.com/wolfman30/barbershop-scheduler/internal/observability/metrics"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

var bookingsTracer = otel.Tracer("barbershop.internal.bookings")

const (
	maxNoteLength   = 500
	defaultPageSize = 20
	maxPageSize     = 100
)

// Catalog is the read side of providers and services the service depends on.
type Catalog interface {
	Calendar(ctx context.Context, providerID string) (scheduling.Calendar, error)
	Service(ctx context.Context, id string) (*catalog.Service, error)
}

// Limiter throttles booking attempts per client.
type Limiter interface {
	Allow(ctx context.Context, clientID string) (bool, error)
}

// Publisher records domain events for asynchronous delivery.
type Publisher interface {
	Insert(ctx context.Context, aggregateID string, eventType string, payload any) (uuid.UUID, error)
}

// Service coordinates availability, booking creation and status changes.
type Service struct {
	store      Store
	catalog    Catalog
	clock      scheduling.Clock
	loc        *time.Location
	logger     *logging.Logger
	calculator scheduling.AvailabilityCalculator
	validator  scheduling.ConflictValidator
	machine    scheduling.StatusMachine
	limiter    Limiter
	publisher  Publisher
	metrics    *metrics.BookingMetrics
}

// NewService constructs a bookings service.
func NewService(store Store, cat Catalog, clock scheduling.Clock, logger *logging.Logger) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if cat == nil {
		panic("bookings: catalog required")
	}
	if clock == nil {
		clock = scheduling.SystemClock{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:      store,
		catalog:    cat,
		clock:      clock,
		loc:        time.Local,
		logger:     logger,
		calculator: scheduling.NewAvailabilityCalculator(),
	}
}

// WithLocation sets the zone request dates are interpreted in.
func (s *Service) WithLocation(loc *time.Location) *Service {
	if loc != nil {
		s.loc = loc
	}
	return s
}

func (s *Service) WithGranularity(minutes int) *Service {
	if minutes > 0 {
		s.calculator.Granularity = minutes
	}
	return s
}

// WithBuffer requires a gap of the given minutes between live bookings.
func (s *Service) WithBuffer(minutes int) *Service {
	if minutes >= 0 {
		s.calculator.Buffer = minutes
		s.validator.Buffer = minutes
	}
	return s
}

func (s *Service) WithLimiter(l Limiter) *Service {
	s.limiter = l
	return s
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

// GetAvailability lists the slots of a provider's day. When serviceID is set
// its duration is used for the overlap test.
func (s *Service) GetAvailability(ctx context.Context, providerID, date, serviceID string) (scheduling.Availability, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.provider_id", providerID),
		attribute.String("barbershop.date", date),
	)
	started := time.Now()

	day, err := scheduling.ParseDate(date, s.loc)
	if err != nil {
		return scheduling.Availability{}, invalid("date", "expected YYYY-MM-DD")
	}
	cal, err := s.catalog.Calendar(ctx, providerID)
	if err != nil {
		return scheduling.Availability{}, err
	}
	duration := 0
	if serviceID != "" {
		svc, err := s.activeService(ctx, serviceID)
		if err != nil {
			return scheduling.Availability{}, err
		}
		duration = svc.DurationMinutes
	}
	live, err := s.store.ListLive(ctx, providerID, day)
	if err != nil {
		span.RecordError(err)
		return scheduling.Availability{}, err
	}

	result := s.calculator.ComputeSlots(cal, day, live, duration)
	s.metrics.ObserveAvailability(result.Working, time.Since(started).Seconds())
	return result, nil
}

// CreateRequest is the input to CreateBooking. Date is YYYY-MM-DD and Time is HH:MM.
type CreateRequest struct {
	ClientID   string
	ProviderID string
	ServiceID  string
	Date       string
	Time       string
	Note       string
}

// CreateBooking validates the request and inserts a pendente booking. The
// conflict check runs inside the store's atomic create, so two concurrent
// requests for overlapping slots cannot both succeed.
func (s *Service) CreateBooking(ctx context.Context, req CreateRequest) (*scheduling.Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.create")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.provider_id", req.ProviderID),
		attribute.String("barbershop.client_id", req.ClientID),
	)

	if strings.TrimSpace(req.ClientID) == "" {
		return nil, invalid("client_id", "is required")
	}
	if req.ProviderID == "" {
		return nil, invalid("barber_id", "is required")
	}
	if req.ServiceID == "" {
		return nil, invalid("service_id", "is required")
	}
	day, err := scheduling.ParseDate(req.Date, s.loc)
	if err != nil {
		return nil, invalid("date", "expected YYYY-MM-DD")
	}
	if scheduling.DateBefore(day, scheduling.Today(s.clock)) {
		return nil, invalid("date", "cannot book a past date")
	}
	start, err := scheduling.ParseTimeOfDay(req.Time)
	if err != nil {
		return nil, invalid("time", "expected HH:MM")
	}
	note := strings.TrimSpace(req.Note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, invalid("note", "must be at most %d characters", maxNoteLength)
	}

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, req.ClientID)
		if err != nil {
			s.logger.Warn("booking limiter failed", "error", err, "client_id", req.ClientID)
		} else if !allowed {
			s.metrics.ObserveRejection("create", "velocity")
			return nil, ErrTooManyAttempts
		}
	}

	svc, err := s.activeService(ctx, req.ServiceID)
	if err != nil {
		if errors.Is(err, catalog.ErrServiceNotFound) {
			return nil, invalid("service_id", "unknown or inactive service")
		}
		return nil, err
	}
	cal, err := s.catalog.Calendar(ctx, req.ProviderID)
	if err != nil {
		if errors.Is(err, catalog.ErrProviderNotFound) {
			return nil, invalid("barber_id", "unknown or inactive barber")
		}
		return nil, err
	}

	now := s.clock.Now().UTC()
	booking := scheduling.Booking{
		ID:              uuid.NewString(),
		ClientID:        req.ClientID,
		ProviderID:      req.ProviderID,
		ServiceID:       svc.ID,
		Date:            day,
		Start:           start,
		DurationMinutes: svc.DurationMinutes,
		Status:          scheduling.StatusPending,
		Note:            note,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.store.CreateAtomic(ctx, booking, func(existing []scheduling.Booking) error {
		return s.validator.Validate(cal, day, start, svc.DurationMinutes, existing)
	})
	if err != nil {
		if reason, ok := scheduling.ReasonOf(err); ok {
			s.metrics.ObserveRejection("create", reason)
			s.logger.Info("booking rejected", "reason", reason, "provider_id", req.ProviderID,
				"date", req.Date, "time", start.String())
			return nil, err
		}
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveCreated(booking.ProviderID)
	s.logger.Info("booking created", "booking_id", booking.ID, "provider_id", booking.ProviderID,
		"date", req.Date, "time", start.String())
	s.publish(ctx, booking.ID, events.TypeBookingCreated, events.BookingCreatedV1{
		EventID:         uuid.NewString(),
		BookingID:       booking.ID,
		ClientID:        booking.ClientID,
		ProviderID:      booking.ProviderID,
		ServiceID:       booking.ServiceID,
		Date:            booking.Date.Format(scheduling.DateLayout),
		Start:           booking.Start.String(),
		DurationMinutes: booking.DurationMinutes,
		CreatedAt:       booking.CreatedAt,
	})
	return &booking, nil
}

// TransitionBooking moves a booking to target on behalf of actor. Bookings the
// actor may not see are reported as not found.
func (s *Service) TransitionBooking(ctx context.Context, bookingID string, target scheduling.Status, actor scheduling.Actor) (*scheduling.Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.transition")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", bookingID),
		attribute.String("barbershop.target_status", string(target)),
		attribute.String("barbershop.actor_role", string(actor.Role)),
	)

	if !validID(bookingID) {
		return nil, scheduling.ErrBookingNotFound
	}
	var from scheduling.Status
	updated, err := s.store.Update(ctx, bookingID, func(b *scheduling.Booking) error {
		if !actor.CanSee(*b) {
			return scheduling.ErrBookingNotFound
		}
		if err := s.machine.Transition(b.Status, target, actor.Role); err != nil {
			return err
		}
		from = b.Status
		b.Status = target
		b.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil {
		if reason, ok := scheduling.ReasonOf(err); ok {
			s.metrics.ObserveRejection("transition", reason)
			return nil, err
		}
		span.RecordError(err)
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(target), string(actor.Role))
	s.logger.Info("booking status changed", "booking_id", bookingID, "from", from, "to", target,
		"actor_id", actor.ID, "actor_role", actor.Role)
	s.publishStatusChange(ctx, *updated, from, string(actor.Role))
	return updated, nil
}

// Cancel is TransitionBooking to cancelado.
func (s *Service) Cancel(ctx context.Context, bookingID string, actor scheduling.Actor) (*scheduling.Booking, error) {
	return s.TransitionBooking(ctx, bookingID, scheduling.StatusCancelled, actor)
}

// Get returns a booking visible to actor.
func (s *Service) Get(ctx context.Context, bookingID string, actor scheduling.Actor) (*scheduling.Booking, error) {
	if !validID(bookingID) {
		return nil, scheduling.ErrBookingNotFound
	}
	b, err := s.store.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !actor.CanSee(*b) {
		return nil, scheduling.ErrBookingNotFound
	}
	return b, nil
}

// List returns the bookings visible to actor, newest first.
func (s *Service) List(ctx context.Context, actor scheduling.Actor, filter ListFilter) ([]scheduling.Booking, int, error) {
	switch actor.Role {
	case scheduling.RoleClient:
		filter.ClientID = actor.ID
	case scheduling.RoleProvider:
		filter.ProviderID = actor.ID
	case scheduling.RoleAdmin:
	default:
		return nil, 0, scheduling.ErrForbiddenForRole
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPageSize
	}
	if filter.Limit > maxPageSize {
		filter.Limit = maxPageSize
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.store.List(ctx, filter)
}

// AttachPayment records the provider payment id created for a booking.
func (s *Service) AttachPayment(ctx context.Context, bookingID, paymentID string) (*scheduling.Booking, error) {
	updated, err := s.store.Update(ctx, bookingID, func(b *scheduling.Booking) error {
		if b.Status != scheduling.StatusPending {
			return ErrNotPending
		}
		if b.PaymentID == paymentID {
			return ErrNoChange
		}
		if b.PaymentID != "" {
			s.logger.Warn("replacing payment on booking", "booking_id", b.ID,
				"old_payment_id", b.PaymentID, "payment_id", paymentID)
		}
		b.PaymentID = paymentID
		b.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if errors.Is(err, ErrNoChange) {
		return updated, nil
	}
	return updated, err
}

// ApplyPaymentOutcome applies an external payment status to a booking in one
// atomic read-modify-write. It returns ErrNoChange when the booking already
// left pendente or the payment is still pending, and ErrPaymentMismatch when
// the booking carries a different payment id.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, bookingID, paymentID string, status scheduling.PaymentStatus) (*scheduling.Booking, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.apply_payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.booking_id", bookingID),
		attribute.String("barbershop.payment_status", string(status)),
	)

	var from scheduling.Status
	updated, err := s.store.Update(ctx, bookingID, func(b *scheduling.Booking) error {
		if paymentID != "" && b.PaymentID != "" && b.PaymentID != paymentID {
			return ErrPaymentMismatch
		}
		target, ok := scheduling.PaymentTarget(b.Status, status)
		if !ok {
			return ErrNoChange
		}
		if err := s.machine.Transition(b.Status, target, scheduling.RoleAdmin); err != nil {
			return err
		}
		from = b.Status
		b.Status = target
		if b.PaymentID == "" {
			b.PaymentID = paymentID
		}
		b.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil {
		return updated, err
	}

	s.metrics.ObserveTransition(string(from), string(updated.Status), "payment")
	s.logger.Info("booking payment applied", "booking_id", bookingID, "payment_id", paymentID,
		"payment_status", status, "from", from, "to", updated.Status)
	s.publishStatusChange(ctx, *updated, from, "payment")
	return updated, nil
}

func (s *Service) activeService(ctx context.Context, serviceID string) (*catalog.Service, error) {
	svc, err := s.catalog.Service(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	if !svc.Active {
		return nil, catalog.ErrServiceNotFound
	}
	return svc, nil
}

func (s *Service) publishStatusChange(ctx context.Context, b scheduling.Booking, from scheduling.Status, cause string) {
	s.publish(ctx, b.ID, events.TypeBookingStatusChanged, events.BookingStatusChangedV1{
		EventID:    uuid.NewString(),
		BookingID:  b.ID,
		ClientID:   b.ClientID,
		ProviderID: b.ProviderID,
		From:       string(from),
		To:         string(b.Status),
		Cause:      cause,
		PaymentID:  b.PaymentID,
		ChangedAt:  b.UpdatedAt,
	})
}

// publish is best effort: the booking is already committed.
func (s *Service) publish(ctx context.Context, bookingID, eventType string, payload any) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Insert(ctx, bookingID, eventType, payload); err != nil {
		s.logger.Error("failed to record booking event", "error", err, "booking_id", bookingID, "type", eventType)
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

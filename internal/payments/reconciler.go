package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/observability/metrics"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// Source names the producer of a payment status event.
type Source string

const (
	SourceWebhook Source = "webhook"
	SourcePoll    Source = "poll"
	SourceDemo    Source = "demo"
)

// Event is a payment status observation, whichever path produced it.
type Event struct {
	EventID           string
	ProviderPaymentID string
	Status            scheduling.PaymentStatus
	CorrelationRef    string
	Source            Source
}

// Outcome classifies what a reconciliation did.
type Outcome string

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeNoop     Outcome = "noop"
	OutcomePending  Outcome = "pending"
	OutcomeNotFound Outcome = "not-found"
	OutcomeMismatch Outcome = "mismatch"
)

// Result is the reconciliation outcome and the booking as it stands after it.
// Booking is nil for OutcomeNotFound.
type Result struct {
	Outcome Outcome
	Booking *scheduling.Booking
}

// BookingLookup resolves bookings by id or by stored payment id.
type BookingLookup interface {
	Get(ctx context.Context, id string) (*scheduling.Booking, error)
	FindByPaymentID(ctx context.Context, paymentID string) (*scheduling.Booking, error)
}

// OutcomeApplier writes a payment outcome onto a booking atomically.
type OutcomeApplier interface {
	ApplyPaymentOutcome(ctx context.Context, bookingID, paymentID string, status scheduling.PaymentStatus) (*scheduling.Booking, error)
}

// Reconciler aligns booking status with payment outcomes. Webhook and poll
// events both go through Reconcile.
type Reconciler struct {
	lookup  BookingLookup
	applier OutcomeApplier
	metrics *metrics.PaymentMetrics
	logger  *logging.Logger
}

func NewReconciler(lookup BookingLookup, applier OutcomeApplier, logger *logging.Logger) *Reconciler {
	if lookup == nil {
		panic("payments: booking lookup required")
	}
	if applier == nil {
		panic("payments: outcome applier required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reconciler{lookup: lookup, applier: applier, logger: logger}
}

func (r *Reconciler) WithMetrics(m *metrics.PaymentMetrics) *Reconciler {
	r.metrics = m
	return r
}

// Reconcile correlates evt to a booking and applies its status. Stale,
// unknown and mismatched events are logged and reported through the Outcome
// with a nil error; an error means the store failed and the event may be retried.
func (r *Reconciler) Reconcile(ctx context.Context, evt Event) (res Result, err error) {
	ctx, span := gatewayTracer.Start(ctx, "payments.reconcile")
	defer span.End()
	span.SetAttributes(
		attribute.String("barbershop.payment_id", evt.ProviderPaymentID),
		attribute.String("barbershop.payment_source", string(evt.Source)),
		attribute.String("barbershop.payment_status", string(evt.Status)),
	)
	defer func() {
		if err == nil {
			r.metrics.ObserveReconcile(string(evt.Source), string(res.Outcome))
			span.SetAttributes(attribute.String("barbershop.reconcile_outcome", string(res.Outcome)))
		}
	}()

	booking, outcome, err := r.correlate(ctx, evt)
	if err != nil {
		return Result{}, err
	}
	if outcome != "" {
		return Result{Outcome: outcome, Booking: booking}, nil
	}

	if evt.Status == scheduling.PaymentPending {
		return Result{Outcome: OutcomePending, Booking: booking}, nil
	}

	updated, err := r.applier.ApplyPaymentOutcome(ctx, booking.ID, evt.ProviderPaymentID, evt.Status)
	switch {
	case err == nil:
		return Result{Outcome: OutcomeApplied, Booking: updated}, nil
	case errors.Is(err, bookings.ErrNoChange):
		return Result{Outcome: OutcomeNoop, Booking: updated}, nil
	case errors.Is(err, bookings.ErrPaymentMismatch):
		r.logger.Warn("payment event does not match booking payment", "booking_id", booking.ID,
			"payment_id", evt.ProviderPaymentID, "source", evt.Source)
		return Result{Outcome: OutcomeMismatch, Booking: updated}, nil
	case errors.Is(err, scheduling.ErrBookingNotFound):
		r.logger.Warn("booking vanished during reconciliation", "booking_id", booking.ID,
			"payment_id", evt.ProviderPaymentID)
		return Result{Outcome: OutcomeNotFound}, nil
	case errors.Is(err, scheduling.ErrIllegalTransition), errors.Is(err, scheduling.ErrAlreadyTerminal):
		return Result{Outcome: OutcomeNoop, Booking: updated}, nil
	}
	return Result{}, fmt.Errorf("payments: apply outcome: %w", err)
}

// correlate resolves the booking through the correlation ref and through the
// stored payment id. A non-empty outcome ends reconciliation early.
func (r *Reconciler) correlate(ctx context.Context, evt Event) (*scheduling.Booking, Outcome, error) {
	var byRef, byPayment *scheduling.Booking

	if evt.CorrelationRef != "" {
		if _, perr := uuid.Parse(evt.CorrelationRef); perr == nil {
			b, err := r.lookup.Get(ctx, evt.CorrelationRef)
			if err != nil && !errors.Is(err, scheduling.ErrBookingNotFound) {
				return nil, "", fmt.Errorf("payments: load booking: %w", err)
			}
			byRef = b
		}
	}
	if evt.ProviderPaymentID != "" {
		b, err := r.lookup.FindByPaymentID(ctx, evt.ProviderPaymentID)
		if err != nil && !errors.Is(err, scheduling.ErrBookingNotFound) {
			return nil, "", fmt.Errorf("payments: find booking by payment: %w", err)
		}
		byPayment = b
	}

	switch {
	case byRef == nil && byPayment == nil:
		r.logger.Warn("payment event for unknown booking", "payment_id", evt.ProviderPaymentID,
			"correlation_ref", evt.CorrelationRef, "source", evt.Source)
		return nil, OutcomeNotFound, nil
	case byRef != nil && byPayment != nil && byRef.ID != byPayment.ID:
		r.logger.Warn("payment event correlates to two bookings", "payment_id", evt.ProviderPaymentID,
			"correlation_ref", evt.CorrelationRef, "payment_booking_id", byPayment.ID, "source", evt.Source)
		return nil, OutcomeMismatch, nil
	}

	booking := byRef
	if booking == nil {
		booking = byPayment
	}
	if booking.PaymentID != "" && evt.ProviderPaymentID != "" && booking.PaymentID != evt.ProviderPaymentID {
		r.logger.Warn("payment event does not match booking payment", "booking_id", booking.ID,
			"payment_id", evt.ProviderPaymentID, "stored_payment_id", booking.PaymentID, "source", evt.Source)
		return booking, OutcomeMismatch, nil
	}
	return booking, "", nil
}

package payments

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

var (
	// ErrInvalidPayer is returned when the payer email is missing or malformed.
	ErrInvalidPayer = errors.New("payments: payer email is required and must be valid")

	// ErrGatewayUnavailable wraps payment provider failures the caller may retry.
	ErrGatewayUnavailable = errors.New("payments: payment provider unavailable")
)

// BookingService is the slice of the bookings service payments depend on.
type BookingService interface {
	Get(ctx context.Context, bookingID string, actor scheduling.Actor) (*scheduling.Booking, error)
	AttachPayment(ctx context.Context, bookingID, paymentID string) (*scheduling.Booking, error)
}

// PriceLookup reads service prices.
type PriceLookup interface {
	Service(ctx context.Context, id string) (*catalog.Service, error)
}

// Initiator starts a payment for a pending booking and records the provider
// payment id on it.
type Initiator struct {
	bookings BookingService
	prices   PriceLookup
	gateway  Gateway
	logger   *logging.Logger
}

func NewInitiator(bookingSvc BookingService, prices PriceLookup, gateway Gateway, logger *logging.Logger) *Initiator {
	if bookingSvc == nil || prices == nil || gateway == nil {
		panic("payments: initiator dependencies required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Initiator{bookings: bookingSvc, prices: prices, gateway: gateway, logger: logger}
}

// Initiate creates a payment for a booking owned by the client actor. The
// gateway call holds no booking lock; the id is attached afterwards and only
// if the booking is still pendente.
func (i *Initiator) Initiate(ctx context.Context, bookingID string, actor scheduling.Actor, payer Payer) (*Intent, error) {
	if actor.Role != scheduling.RoleClient {
		return nil, scheduling.ErrForbiddenForRole
	}
	b, err := i.bookings.Get(ctx, bookingID, actor)
	if err != nil {
		return nil, err
	}
	if b.Status != scheduling.StatusPending {
		return nil, bookings.ErrNotPending
	}
	payer.Email = strings.TrimSpace(payer.Email)
	if _, err := mail.ParseAddress(payer.Email); err != nil {
		return nil, ErrInvalidPayer
	}

	svc, err := i.prices.Service(ctx, b.ServiceID)
	if err != nil {
		return nil, fmt.Errorf("payments: load service: %w", err)
	}

	intent, err := i.gateway.CreatePaymentIntent(ctx, IntentParams{
		AmountCents:    svc.PriceCents,
		Description:    fmt.Sprintf("%s - %s %s", svc.Name, b.Date.Format("2006-01-02"), b.Start),
		Payer:          payer,
		CorrelationRef: b.ID,
		IdempotencyKey: b.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if _, err := i.bookings.AttachPayment(ctx, b.ID, intent.ID); err != nil {
		if errors.Is(err, bookings.ErrNotPending) && i.settledBy(ctx, b.ID, actor, intent.ID) {
			i.logger.Info("payment settled before attach", "booking_id", b.ID, "payment_id", intent.ID)
			return intent, nil
		}
		i.logger.Warn("payment created but not attached", "booking_id", b.ID, "payment_id", intent.ID, "error", err)
		return nil, err
	}
	i.logger.Info("payment initiated", "booking_id", b.ID, "payment_id", intent.ID, "amount_cents", svc.PriceCents)
	return intent, nil
}

// settledBy reports whether the booking already carries paymentID, which
// happens when a webhook or poll reconciles the payment before the attach.
func (i *Initiator) settledBy(ctx context.Context, bookingID string, actor scheduling.Actor, paymentID string) bool {
	current, err := i.bookings.Get(ctx, bookingID, actor)
	if err != nil {
		return false
	}
	return current.PaymentID == paymentID
}

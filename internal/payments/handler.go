package payments

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/http/respond"
	"github.com/wolfman30/barbershop-scheduler/internal/identity"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// DefaultStatusTimeout bounds the provider query made by a status poll.
const DefaultStatusTimeout = 5 * time.Second

// Handler serves payment initiation and the client status poll.
type Handler struct {
	initiator     *Initiator
	bookings      BookingService
	gateway       Gateway
	reconciler    *Reconciler
	statusTimeout time.Duration
	logger        *logging.Logger
}

func NewHandler(initiator *Initiator, bookingSvc BookingService, gateway Gateway, reconciler *Reconciler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		initiator:     initiator,
		bookings:      bookingSvc,
		gateway:       gateway,
		reconciler:    reconciler,
		statusTimeout: DefaultStatusTimeout,
		logger:        logger,
	}
}

// WithStatusTimeout overrides DefaultStatusTimeout.
func (h *Handler) WithStatusTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.statusTimeout = d
	}
	return h
}

type initiateRequest struct {
	BookingID string `json:"booking_id"`
	Payer     Payer  `json:"payer"`
}

type initiateResponse struct {
	BookingID string `json:"booking_id"`
	*Intent
}

// Initiate handles POST /payments.
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req initiateRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.BookingID == "" {
		respond.Error(w, http.StatusBadRequest, "booking_id is required")
		return
	}
	intent, err := h.initiator.Initiate(r.Context(), req.BookingID, actor, req.Payer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, initiateResponse{BookingID: req.BookingID, Intent: intent})
}

type statusResponse struct {
	BookingID     string  `json:"booking_id"`
	Status        string  `json:"status"`
	PaymentID     *string `json:"payment_id"`
	PaymentStatus *string `json:"payment_status"`
}

// Status handles GET /payments/status/{bookingID}. The provider is asked for
// the current status; on timeout or provider error the payment is reported
// pending and the booking is left as it is.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	b, err := h.bookings.Get(r.Context(), chi.URLParam(r, "bookingID"), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := statusResponse{BookingID: b.ID, Status: string(b.Status)}
	if b.PaymentID == "" {
		respond.JSON(w, http.StatusOK, resp)
		return
	}
	paymentID := b.PaymentID
	resp.PaymentID = &paymentID

	paymentStatus := string(scheduling.PaymentPending)
	resp.PaymentStatus = &paymentStatus

	pp, err := h.queryStatus(r.Context(), paymentID)
	if err != nil {
		h.logger.Warn("payment status query failed", "booking_id", b.ID, "payment_id", paymentID, "error", err)
		respond.JSON(w, http.StatusOK, resp)
		return
	}
	paymentStatus = string(pp.Status)

	res, err := h.reconciler.Reconcile(r.Context(), Event{
		EventID:           "poll:" + paymentID + ":" + string(pp.Status),
		ProviderPaymentID: paymentID,
		Status:            pp.Status,
		CorrelationRef:    pp.CorrelationRef,
		Source:            SourcePoll,
	})
	if err != nil {
		h.logger.Error("payment reconcile failed", "booking_id", b.ID, "payment_id", paymentID, "error", err)
		respond.JSON(w, http.StatusOK, resp)
		return
	}
	if res.Booking != nil && res.Booking.ID == b.ID {
		resp.Status = string(res.Booking.Status)
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) queryStatus(ctx context.Context, paymentID string) (*ProviderPayment, error) {
	ctx, cancel := context.WithTimeout(ctx, h.statusTimeout)
	defer cancel()
	return h.gateway.GetStatus(ctx, paymentID)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidPayer):
		respond.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrGatewayUnavailable):
		h.logger.Error("payment provider call failed", "error", err)
		respond.Error(w, http.StatusServiceUnavailable, "payment provider unavailable, try again")
	default:
		bookings.WriteError(w, h.logger, err)
	}
}

package bookings

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	"github.com/wolfman30/barbershop-scheduler/internal/http/respond"
	"github.com/wolfman30/barbershop-scheduler/internal/identity"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// Handler serves availability and booking endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// View is the wire form of a booking.
type View struct {
	ID              string    `json:"id"`
	ClientID        string    `json:"client_id"`
	BarberID        string    `json:"barber_id"`
	ServiceID       string    `json:"service_id"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	EndTime         string    `json:"end_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	PaymentID       string    `json:"payment_id,omitempty"`
	Note            string    `json:"note,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func NewView(b scheduling.Booking) View {
	return View{
		ID:              b.ID,
		ClientID:        b.ClientID,
		BarberID:        b.ProviderID,
		ServiceID:       b.ServiceID,
		Date:            b.Date.Format(scheduling.DateLayout),
		Time:            b.Start.String(),
		EndTime:         b.End().String(),
		DurationMinutes: b.DurationMinutes,
		Status:          string(b.Status),
		PaymentID:       b.PaymentID,
		Note:            b.Note,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type availabilityResponse struct {
	BarberID string            `json:"barber_id"`
	Date     string            `json:"date"`
	Working  bool              `json:"working"`
	Start    string            `json:"start,omitempty"`
	End      string            `json:"end,omitempty"`
	Slots    []scheduling.Slot `json:"slots"`
}

// GetAvailability handles GET /barbers/{id}/availability/{date}.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	providerID := chi.URLParam(r, "id")
	date := chi.URLParam(r, "date")
	result, err := h.service.GetAvailability(r.Context(), providerID, date, r.URL.Query().Get("service_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := availabilityResponse{
		BarberID: providerID,
		Date:     date,
		Working:  result.Working,
		Slots:    result.Slots,
	}
	if result.Working {
		resp.Start = result.Window.Start.String()
		resp.End = result.Window.End.String()
	}
	if resp.Slots == nil {
		resp.Slots = []scheduling.Slot{}
	}
	respond.JSON(w, http.StatusOK, resp)
}

type createBookingRequest struct {
	ClientID  string `json:"client_id,omitempty"`
	BarberID  string `json:"barber_id"`
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Note      string `json:"note,omitempty"`
}

// CreateBooking handles POST /bookings. Clients always book for themselves;
// admins may name the client.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req createBookingRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	clientID := actor.ID
	switch actor.Role {
	case scheduling.RoleClient:
	case scheduling.RoleAdmin:
		if req.ClientID != "" {
			clientID = req.ClientID
		}
	default:
		h.writeError(w, scheduling.ErrForbiddenForRole)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), CreateRequest{
		ClientID:   clientID,
		ProviderID: req.BarberID,
		ServiceID:  req.ServiceID,
		Date:       req.Date,
		Time:       req.Time,
		Note:       req.Note,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, NewView(*booking))
}

type listResponse struct {
	Bookings []View `json:"bookings"`
	Total    int    `json:"total"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// ListBookings handles GET /bookings.
func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	filter, err := h.parseFilter(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	bookings, total, err := h.service.List(r.Context(), actor, filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := listResponse{Bookings: make([]View, 0, len(bookings)), Total: total, Offset: filter.Offset, Limit: filter.Limit}
	if resp.Limit <= 0 || resp.Limit > maxPageSize {
		resp.Limit = defaultPageSize
	}
	for _, b := range bookings {
		resp.Bookings = append(resp.Bookings, NewView(b))
	}
	respond.JSON(w, http.StatusOK, resp)
}

func (h *Handler) parseFilter(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	var filter ListFilter
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPageSize {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := q.Get("status"); v != "" {
		for _, raw := range strings.Split(v, ",") {
			st, err := scheduling.ParseStatus(strings.TrimSpace(raw))
			if err != nil {
				return ListFilter{}, invalid("status", "unknown status %q", raw)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if v := q.Get("from"); v != "" {
		d, err := scheduling.ParseDate(v, h.service.loc)
		if err != nil {
			return ListFilter{}, invalid("from", "expected YYYY-MM-DD")
		}
		filter.From = d
	}
	if v := q.Get("to"); v != "" {
		d, err := scheduling.ParseDate(v, h.service.loc)
		if err != nil {
			return ListFilter{}, invalid("to", "expected YYYY-MM-DD")
		}
		filter.To = d
	}
	return filter, nil
}

// GetBooking handles GET /bookings/{id}.
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	b, err := h.service.Get(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, NewView(*b))
}

type transitionRequest struct {
	Status string `json:"status"`
}

// UpdateStatus handles PUT /bookings/{id}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	var req transitionRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	target, err := scheduling.ParseStatus(req.Status)
	if err != nil {
		h.writeError(w, invalid("status", "unknown status %q", req.Status))
		return
	}
	b, err := h.service.TransitionBooking(r.Context(), chi.URLParam(r, "id"), target, actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, NewView(*b))
}

// CancelBooking handles DELETE /bookings/{id}.
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	b, err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, NewView(*b))
}

// StatusFor maps service errors to HTTP status codes. Rejection reasons are
// reported separately by WriteError.
func StatusFor(err error) int {
	switch {
	case IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, scheduling.ErrBookingNotFound),
		errors.Is(err, catalog.ErrProviderNotFound),
		errors.Is(err, catalog.ErrServiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, scheduling.ErrForbiddenForRole):
		return http.StatusForbidden
	case errors.Is(err, scheduling.ErrSlotTaken),
		errors.Is(err, scheduling.ErrOutsideWorkingHours),
		errors.Is(err, scheduling.ErrProviderNotWorking),
		errors.Is(err, scheduling.ErrIllegalTransition),
		errors.Is(err, scheduling.ErrAlreadyTerminal),
		errors.Is(err, ErrNotPending):
		return http.StatusConflict
	case errors.Is(err, ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case IsTransient(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// WriteError writes err using the shared error envelope.
func WriteError(w http.ResponseWriter, logger *logging.Logger, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("booking request failed", "error", err)
		respond.Error(w, status, "internal error")
		return
	}
	if status == http.StatusServiceUnavailable {
		logger.Warn("booking request hit unavailable storage", "error", err)
		w.Header().Set("Retry-After", "1")
		respond.Error(w, status, ErrUnavailable.Error())
		return
	}
	if reason, ok := scheduling.ReasonOf(err); ok {
		respond.Rejection(w, status, reason, err.Error())
		return
	}
	respond.Error(w, status, err.Error())
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	WriteError(w, h.logger, err)
}

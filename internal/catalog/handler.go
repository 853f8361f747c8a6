package catalog

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/barbershop-scheduler/internal/http/respond"
	"github.com/wolfman30/barbershop-scheduler/internal/identity"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// Handler exposes schedules and services over HTTP.
type Handler struct {
	catalog *Catalog
	logger  *logging.Logger
}

func NewHandler(catalog *Catalog, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{catalog: catalog, logger: logger}
}

// ListProviders handles GET /barbers. Admins also see inactive providers.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	activeOnly := !ok || actor.Role != scheduling.RoleAdmin
	providers, err := h.catalog.ListProviders(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if providers == nil {
		providers = []Provider{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"barbers": providers, "count": len(providers)})
}

// GetProvider handles GET /barbers/{id}. Inactive providers are not found.
func (h *Handler) GetProvider(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Provider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

// CreateProvider handles POST /barbers.
func (h *Handler) CreateProvider(w http.ResponseWriter, r *http.Request) {
	var in ProviderInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	p, err := h.catalog.CreateProvider(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, p)
}

// ToggleProviderStatus handles PUT /barbers/{id}/toggle-status.
func (h *Handler) ToggleProviderStatus(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.ToggleProviderStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, p)
}

type scheduleResponse struct {
	ProviderID string                     `json:"provider_id"`
	Name       string                     `json:"name"`
	Windows    []scheduling.WorkingWindow `json:"windows"`
}

// GetSchedule handles GET /barbers/{id}/schedule.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Provider(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	cal, err := h.catalog.Calendar(r.Context(), p.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, scheduleResponse{ProviderID: p.ID, Name: p.Name, Windows: cal.Windows()})
}

type windowRequest struct {
	Weekday int                  `json:"weekday"`
	Start   scheduling.TimeOfDay `json:"start"`
	End     scheduling.TimeOfDay `json:"end"`
	Active  *bool                `json:"active,omitempty"`
}

type replaceScheduleRequest struct {
	Windows []windowRequest `json:"windows"`
}

// windows defaults omitted active flags to true.
func (req replaceScheduleRequest) windows() []scheduling.WorkingWindow {
	out := make([]scheduling.WorkingWindow, 0, len(req.Windows))
	for _, w := range req.Windows {
		out = append(out, scheduling.WorkingWindow{
			Weekday: time.Weekday(w.Weekday),
			Start:   w.Start,
			End:     w.End,
			Active:  w.Active == nil || *w.Active,
		})
	}
	return out
}

// ReplaceSchedule handles PUT /barbers/{id}/schedule.
func (h *Handler) ReplaceSchedule(w http.ResponseWriter, r *http.Request) {
	var req replaceScheduleRequest
	if err := respond.Decode(r, &req); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	providerID := chi.URLParam(r, "id")
	if err := h.catalog.ReplaceSchedule(r.Context(), providerID, req.windows()); err != nil {
		h.writeError(w, err)
		return
	}
	h.GetSchedule(w, r)
}

// ListServices handles GET /services. Admins may pass ?all=true.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	services, err := h.catalog.ListServices(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if services == nil {
		services = []Service{}
	}
	respond.JSON(w, http.StatusOK, map[string]any{"services": services, "count": len(services)})
}

// GetService handles GET /services/{id}.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.catalog.Service(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, svc)
}

// CreateService handles POST /services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var in ServiceInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svc, err := h.catalog.CreateService(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, svc)
}

// UpdateService handles PUT /services/{id}.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var in ServiceInput
	if err := respond.Decode(r, &in); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	svc, err := h.catalog.UpdateService(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, svc)
}

// DeactivateService handles DELETE /services/{id}.
func (h *Handler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeactivateService(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrProviderNotFound), errors.Is(err, ErrServiceNotFound):
		respond.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrServiceInUse), errors.Is(err, ErrServiceHasFutureBookings):
		respond.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidService),
		errors.Is(err, ErrInvalidProvider),
		errors.Is(err, scheduling.ErrInvalidWindow),
		errors.Is(err, scheduling.ErrDuplicateWindow):
		respond.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("catalog request failed", "error", err)
		respond.Error(w, http.StatusInternalServerError, "internal error")
	}
}

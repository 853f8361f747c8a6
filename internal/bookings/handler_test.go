package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-scheduler/internal/identity"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// withTestActor reads "id:role" from X-Test-Actor.
func withTestActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if v := r.Header.Get("X-Test-Actor"); v != "" {
			parts := strings.SplitN(v, ":", 2)
			ctx := identity.WithActor(r.Context(), scheduling.Actor{ID: parts[0], Role: scheduling.Role(parts[1])})
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

func newTestRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(withTestActor)
	r.Get("/barbers/{id}/availability/{date}", h.GetAvailability)
	r.Post("/bookings", h.CreateBooking)
	r.Get("/bookings", h.ListBookings)
	r.Get("/bookings/{id}", h.GetBooking)
	r.Put("/bookings/{id}/status", h.UpdateStatus)
	r.Delete("/bookings/{id}", h.CancelBooking)
	return r
}

func do(t *testing.T, router http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandler_BookingFlow(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(NewHandler(env.service, nil))
	client := env.clientID + ":client"
	barber := env.providerID + ":provider"

	body := `{"barber_id":"` + env.providerID + `","service_id":"` + env.serviceID + `","date":"2024-06-10","time":"08:30"}`
	rec := do(t, router, http.MethodPost, "/bookings", client, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "pendente", created.Status)
	assert.Equal(t, "09:00", created.EndTime)

	rec = do(t, router, http.MethodPost, "/bookings", "client-2:client", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"slot-taken","reason":"slot-taken"}`, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/barbers/"+env.providerID+"/availability/2024-06-10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `{"time":"08:30","available":false}`)

	rec = do(t, router, http.MethodPut, "/bookings/"+created.ID+"/status", client, `{"status":"confirmado"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"forbidden-for-role"`)

	rec = do(t, router, http.MethodPut, "/bookings/"+created.ID+"/status", barber, `{"status":"concluido"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"illegal-transition"`)

	rec = do(t, router, http.MethodPut, "/bookings/"+created.ID+"/status", barber, `{"status":"confirmado"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, "/bookings/"+created.ID, "client-2:client", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/bookings/"+created.ID, client, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"cancelado"`)

	rec = do(t, router, http.MethodDelete, "/bookings/"+created.ID, client, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"already-terminal"`)

	rec = do(t, router, http.MethodGet, "/bookings?status=cancelado", client, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)
}

func TestHandler_Errors(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(NewHandler(env.service, nil))

	rec := do(t, router, http.MethodPost, "/bookings", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, router, http.MethodPost, "/bookings", "c:client", `{"barber_id":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := `{"barber_id":"` + env.providerID + `","service_id":"` + env.serviceID + `","date":"2024-06-01","time":"08:30"}`
	rec = do(t, router, http.MethodPost, "/bookings", "c:client", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body = `{"barber_id":"` + env.providerID + `","service_id":"` + env.serviceID + `","date":"2024-06-12","time":"08:30"}`
	rec = do(t, router, http.MethodPost, "/bookings", "c:client", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason":"provider-not-working"`)

	rec = do(t, router, http.MethodPost, "/bookings", env.providerID+":provider", body)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, router, http.MethodGet, "/barbers/"+env.providerID+"/availability/junk", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, "/bookings?status=unknown", "c:client", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPut, "/bookings/x/status", "c:client", `{"status":"archived"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type unreachableStore struct {
	*MemoryStore
	err error
}

func (s unreachableStore) CreateAtomic(context.Context, scheduling.Booking, CheckFunc) error {
	return fmt.Errorf("bookings: begin create tx: %w", s.err)
}

func TestHandler_StorageOutageIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	down := unreachableStore{MemoryStore: env.store, err: context.DeadlineExceeded}
	svc := NewService(down, env.catalog, scheduling.FixedClock{At: testNow}, logging.Default()).WithLocation(time.UTC)
	router := newTestRouter(NewHandler(svc, nil))

	body := `{"barber_id":"` + env.providerID + `","service_id":"` + env.serviceID + `","date":"2024-06-11","time":"10:00"}`
	rec := do(t, router, http.MethodPost, "/bookings", "c:client", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "try again")
}

func TestStatusFor_TransientErrors(t *testing.T) {
	dialErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := map[string]struct {
		err  error
		want int
	}{
		"deadline":      {fmt.Errorf("bookings: list live: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		"dial":          {fmt.Errorf("bookings: begin update tx: %w", dialErr), http.StatusServiceUnavailable},
		"marked":        {ErrUnavailable, http.StatusServiceUnavailable},
		"plain failure": {errors.New("bookings: scan booking: bad column"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, StatusFor(tc.err))
		})
	}
}

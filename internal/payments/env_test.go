package payments

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	"github.com/wolfman30/barbershop-scheduler/internal/identity"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// 2024-06-10 is a Monday.
var testNow = time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)

type testEnv struct {
	store      *bookings.MemoryStore
	bookings   *bookings.Service
	catalog    *catalog.Catalog
	gateway    *FakeGateway
	reconciler *Reconciler
	providerID string
	serviceID  string
	clientID   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := bookings.NewMemoryStore()
	catStore := catalog.NewMemoryStore()
	clock := scheduling.FixedClock{At: testNow}
	cat := catalog.New(catStore, store, clock, logging.Default())

	env := &testEnv{
		store:      store,
		catalog:    cat,
		gateway:    NewFakeGateway(),
		providerID: uuid.NewString(),
		clientID:   "client-1",
	}
	catStore.PutProvider(catalog.Provider{
		ID:     env.providerID,
		Name:   "Carlos",
		Active: true,
		Windows: []scheduling.WorkingWindow{
			{Weekday: time.Monday, Start: 8 * 60, End: 18 * 60, Active: true},
		},
	})
	svc, err := cat.CreateService(context.Background(), catalog.ServiceInput{Name: "Corte", DurationMinutes: 30, PriceCents: 4500})
	require.NoError(t, err)
	env.serviceID = svc.ID

	env.bookings = bookings.NewService(store, cat, clock, logging.Default()).WithLocation(time.UTC)
	env.reconciler = NewReconciler(store, env.bookings, logging.Default())
	return env
}

func (e *testEnv) client() scheduling.Actor {
	return scheduling.Actor{ID: e.clientID, Role: scheduling.RoleClient}
}

func (e *testEnv) book(t *testing.T, at string) *scheduling.Booking {
	t.Helper()
	b, err := e.bookings.CreateBooking(context.Background(), bookings.CreateRequest{
		ClientID:   e.clientID,
		ProviderID: e.providerID,
		ServiceID:  e.serviceID,
		Date:       "2024-06-10",
		Time:       at,
	})
	require.NoError(t, err)
	return b
}

func (e *testEnv) attach(t *testing.T, bookingID, paymentID string) {
	t.Helper()
	_, err := e.bookings.AttachPayment(context.Background(), bookingID, paymentID)
	require.NoError(t, err)
}

func (e *testEnv) status(t *testing.T, bookingID string) scheduling.Status {
	t.Helper()
	b, err := e.store.Get(context.Background(), bookingID)
	require.NoError(t, err)
	return b.Status
}

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

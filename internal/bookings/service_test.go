package bookings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	"github.com/wolfman30/barbershop-scheduler/internal/events"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// 2024-06-10 is a Monday.
var testNow = time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)

type testEnv struct {
	service    *Service
	store      *MemoryStore
	catalog    *catalog.Catalog
	outbox     *events.MemoryOutbox
	providerID string
	serviceID  string
	longID     string
	clientID   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := NewMemoryStore()
	catStore := catalog.NewMemoryStore()
	clock := scheduling.FixedClock{At: testNow}
	cat := catalog.New(catStore, store, clock, logging.Default())

	env := &testEnv{
		store:      store,
		catalog:    cat,
		outbox:     events.NewMemoryOutbox(),
		providerID: uuid.NewString(),
		clientID:   "client-1",
	}
	catStore.PutProvider(catalog.Provider{
		ID:     env.providerID,
		Name:   "Carlos",
		Active: true,
		Windows: []scheduling.WorkingWindow{
			{Weekday: time.Monday, Start: 8 * 60, End: 10 * 60, Active: true},
			{Weekday: time.Tuesday, Start: 9 * 60, End: 18 * 60, Active: true},
		},
	})
	svc, err := cat.CreateService(context.Background(), catalog.ServiceInput{Name: "Corte", DurationMinutes: 30, PriceCents: 4500})
	require.NoError(t, err)
	env.serviceID = svc.ID
	long, err := cat.CreateService(context.Background(), catalog.ServiceInput{Name: "Corte + Barba", DurationMinutes: 60, PriceCents: 7000})
	require.NoError(t, err)
	env.longID = long.ID

	env.service = NewService(store, cat, clock, logging.Default()).
		WithLocation(time.UTC).
		WithPublisher(env.outbox)
	return env
}

func (e *testEnv) request(date, at string) CreateRequest {
	return CreateRequest{
		ClientID:   e.clientID,
		ProviderID: e.providerID,
		ServiceID:  e.serviceID,
		Date:       date,
		Time:       at,
	}
}

func (e *testEnv) client() scheduling.Actor {
	return scheduling.Actor{ID: e.clientID, Role: scheduling.RoleClient}
}

func (e *testEnv) provider() scheduling.Actor {
	return scheduling.Actor{ID: e.providerID, Role: scheduling.RoleProvider}
}

func TestGetAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateBooking(ctx, env.request("2024-06-10", "08:30"))
	require.NoError(t, err)

	got, err := env.service.GetAvailability(ctx, env.providerID, "2024-06-10", "")
	require.NoError(t, err)
	require.True(t, got.Working)

	available := map[string]bool{}
	for _, s := range got.Slots {
		available[s.Time.String()] = s.Available
	}
	assert.Equal(t, map[string]bool{"08:00": true, "08:30": false, "09:00": true, "09:30": true}, available)

	withService, err := env.service.GetAvailability(ctx, env.providerID, "2024-06-10", env.longID)
	require.NoError(t, err)
	assert.False(t, withService.Slots[0].Available, "60 minute service at 08:00 overlaps 08:30")
	assert.True(t, withService.Slots[2].Available, "09:00-10:00 fits the window")
	assert.False(t, withService.Slots[3].Available, "09:30-10:30 runs past closing")

	sunday, err := env.service.GetAvailability(ctx, env.providerID, "2024-06-09", "")
	require.NoError(t, err)
	assert.False(t, sunday.Working)
	assert.Empty(t, sunday.Slots)

	_, err = env.service.GetAvailability(ctx, env.providerID, "10/06/2024", "")
	assert.True(t, IsValidation(err))

	_, err = env.service.GetAvailability(ctx, uuid.NewString(), "2024-06-10", "")
	assert.ErrorIs(t, err, catalog.ErrProviderNotFound)
}

func TestCreateBooking_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateBooking(ctx, env.request("2024-06-10", "09:00"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		req    CreateRequest
		reason string
		valid  bool
	}{
		{name: "slot taken", req: env.request("2024-06-10", "09:00"), reason: "slot-taken"},
		{name: "overlap", req: env.request("2024-06-10", "09:15"), reason: "slot-taken"},
		{name: "past closing", req: env.request("2024-06-10", "09:45"), reason: "outside-working-hours"},
		{name: "before opening", req: env.request("2024-06-10", "07:30"), reason: "outside-working-hours"},
		{name: "day off", req: env.request("2024-06-12", "09:00"), reason: "provider-not-working"},
		{name: "past date", req: env.request("2024-06-09", "09:00"), valid: true},
		{name: "bad time", req: env.request("2024-06-10", "9h"), valid: true},
		{name: "bad date", req: env.request("2024-13-40", "09:00"), valid: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.service.CreateBooking(ctx, tt.req)
			require.Error(t, err)
			if tt.valid {
				assert.True(t, IsValidation(err), "expected validation error, got %v", err)
				return
			}
			reason, ok := scheduling.ReasonOf(err)
			require.True(t, ok, "expected rejection, got %v", err)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestCreateBooking_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := env.request("2024-06-10", "08:00")
	req.Note = strings.Repeat("a", 501)
	_, err := env.service.CreateBooking(ctx, req)
	assert.True(t, IsValidation(err))

	req = env.request("2024-06-10", "08:00")
	req.ServiceID = uuid.NewString()
	_, err = env.service.CreateBooking(ctx, req)
	assert.True(t, IsValidation(err))

	require.NoError(t, env.catalog.DeactivateService(ctx, env.longID))
	req = env.request("2024-06-10", "08:00")
	req.ServiceID = env.longID
	_, err = env.service.CreateBooking(ctx, req)
	assert.True(t, IsValidation(err), "inactive service cannot be booked")

	req = env.request("2024-06-10", "08:00")
	req.ProviderID = "nope"
	_, err = env.service.CreateBooking(ctx, req)
	assert.True(t, IsValidation(err))
}

func TestCreateBooking_TodayIsAllowed(t *testing.T) {
	env := newTestEnv(t)
	b, err := env.service.CreateBooking(context.Background(), env.request("2024-06-10", "08:00"))
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusPending, b.Status)
	assert.Equal(t, 30, b.DurationMinutes)
	assert.Equal(t, "08:30", b.End().String())
}

func TestCreateBooking_ConcurrentRequestsForOneSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	const attempts = 25
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		taken     int
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := env.request("2024-06-11", "10:00")
			req.ClientID = uuid.NewString()
			if i%2 == 0 {
				// Overlapping but not identical start.
				req.Time = "10:15"
			}
			<-start
			_, err := env.service.CreateBooking(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, scheduling.ErrSlotTaken):
				taken++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, attempts-1, taken)

	day := time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC)
	live, err := env.store.ListLive(ctx, env.providerID, day)
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestCancelFreesSlot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.service.CreateBooking(ctx, env.request("2024-06-10", "08:30"))
	require.NoError(t, err)

	cancelled, err := env.service.Cancel(ctx, b.ID, env.client())
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, cancelled.Status)

	again, err := env.service.CreateBooking(ctx, env.request("2024-06-10", "08:30"))
	require.NoError(t, err)
	assert.NotEqual(t, b.ID, again.ID)

	_, err = env.service.Cancel(ctx, b.ID, env.client())
	assert.ErrorIs(t, err, scheduling.ErrAlreadyTerminal)
}

func TestTransitionBooking(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.service.CreateBooking(ctx, env.request("2024-06-11", "09:00"))
	require.NoError(t, err)

	_, err = env.service.TransitionBooking(ctx, b.ID, scheduling.StatusConfirmed, env.client())
	assert.ErrorIs(t, err, scheduling.ErrForbiddenForRole)

	stranger := scheduling.Actor{ID: "client-2", Role: scheduling.RoleClient}
	_, err = env.service.TransitionBooking(ctx, b.ID, scheduling.StatusCancelled, stranger)
	assert.ErrorIs(t, err, scheduling.ErrBookingNotFound)

	otherBarber := scheduling.Actor{ID: uuid.NewString(), Role: scheduling.RoleProvider}
	_, err = env.service.TransitionBooking(ctx, b.ID, scheduling.StatusConfirmed, otherBarber)
	assert.ErrorIs(t, err, scheduling.ErrBookingNotFound)

	_, err = env.service.TransitionBooking(ctx, b.ID, scheduling.StatusCompleted, env.provider())
	assert.ErrorIs(t, err, scheduling.ErrIllegalTransition)

	confirmed, err := env.service.TransitionBooking(ctx, b.ID, scheduling.StatusConfirmed, env.provider())
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusConfirmed, confirmed.Status)

	done, err := env.service.TransitionBooking(ctx, b.ID, scheduling.StatusCompleted, env.provider())
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCompleted, done.Status)

	_, err = env.service.TransitionBooking(ctx, b.ID, scheduling.StatusCancelled, scheduling.Actor{ID: "admin", Role: scheduling.RoleAdmin})
	assert.ErrorIs(t, err, scheduling.ErrAlreadyTerminal)

	_, err = env.service.TransitionBooking(ctx, "not-a-uuid", scheduling.StatusCancelled, env.client())
	assert.ErrorIs(t, err, scheduling.ErrBookingNotFound)

	pending, err := env.outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 3, "one created and two status changes")
}

func TestListScopesByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.service.CreateBooking(ctx, env.request("2024-06-10", "08:00"))
	require.NoError(t, err)
	other := env.request("2024-06-11", "09:00")
	other.ClientID = "client-2"
	_, err = env.service.CreateBooking(ctx, other)
	require.NoError(t, err)

	mine, total, err := env.service.List(ctx, env.client(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, env.clientID, mine[0].ClientID)

	_, total, err = env.service.List(ctx, env.provider(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	page, total, err := env.service.List(ctx, scheduling.Actor{ID: "a", Role: scheduling.RoleAdmin}, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, page, 1)
	assert.Equal(t, "2024-06-11", page[0].Date.Format(scheduling.DateLayout), "newest first")

	filtered, _, err := env.service.List(ctx, scheduling.Actor{ID: "a", Role: scheduling.RoleAdmin}, ListFilter{
		From: time.Date(2024, 6, 11, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)
}

func TestApplyPaymentOutcome(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.service.CreateBooking(ctx, env.request("2024-06-11", "09:00"))
	require.NoError(t, err)
	_, err = env.service.AttachPayment(ctx, b.ID, "pay-1")
	require.NoError(t, err)

	_, err = env.service.ApplyPaymentOutcome(ctx, b.ID, "pay-1", scheduling.PaymentPending)
	assert.ErrorIs(t, err, ErrNoChange)

	_, err = env.service.ApplyPaymentOutcome(ctx, b.ID, "pay-other", scheduling.PaymentApproved)
	assert.ErrorIs(t, err, ErrPaymentMismatch)

	confirmed, err := env.service.ApplyPaymentOutcome(ctx, b.ID, "pay-1", scheduling.PaymentApproved)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusConfirmed, confirmed.Status)

	again, err := env.service.ApplyPaymentOutcome(ctx, b.ID, "pay-1", scheduling.PaymentApproved)
	assert.ErrorIs(t, err, ErrNoChange)
	assert.Equal(t, scheduling.StatusConfirmed, again.Status)

	late, err := env.service.ApplyPaymentOutcome(ctx, b.ID, "pay-1", scheduling.PaymentCancelled)
	assert.ErrorIs(t, err, ErrNoChange, "late cancellation never touches a confirmed booking")
	assert.Equal(t, scheduling.StatusConfirmed, late.Status)

	_, err = env.service.AttachPayment(ctx, b.ID, "pay-2")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestApplyPaymentOutcome_Rejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	b, err := env.service.CreateBooking(ctx, env.request("2024-06-11", "09:00"))
	require.NoError(t, err)

	cancelled, err := env.service.ApplyPaymentOutcome(ctx, b.ID, "pay-9", scheduling.PaymentRejected)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, cancelled.Status)
	assert.Equal(t, "pay-9", cancelled.PaymentID)

	_, err = env.service.CreateBooking(ctx, env.request("2024-06-11", "09:00"))
	assert.NoError(t, err, "rejected payment frees the slot")
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string) (bool, error) { return false, nil }

func TestCreateBooking_VelocityLimit(t *testing.T) {
	env := newTestEnv(t)
	env.service.WithLimiter(denyLimiter{})

	_, err := env.service.CreateBooking(context.Background(), env.request("2024-06-10", "08:00"))
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestBufferBetweenBookings(t *testing.T) {
	env := newTestEnv(t)
	env.service.WithBuffer(15)
	ctx := context.Background()

	_, err := env.service.CreateBooking(ctx, env.request("2024-06-11", "10:00"))
	require.NoError(t, err)

	_, err = env.service.CreateBooking(ctx, env.request("2024-06-11", "10:30"))
	assert.ErrorIs(t, err, scheduling.ErrSlotTaken)

	_, err = env.service.CreateBooking(ctx, env.request("2024-06-11", "11:00"))
	assert.NoError(t, err)
}

func TestTransitionBooking_ConcurrentCancelAndConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.service.CreateBooking(ctx, env.request("2024-06-11", "10:00"))
	require.NoError(t, err)

	client := scheduling.Actor{ID: env.clientID, Role: scheduling.RoleClient}
	provider := scheduling.Actor{ID: env.providerID, Role: scheduling.RoleProvider}

	const perSide = 10
	var (
		wg                sync.WaitGroup
		mu                sync.Mutex
		cancels, confirms int
		losers            int
	)
	start := make(chan struct{})
	for i := 0; i < perSide*2; i++ {
		wg.Add(1)
		go func(cancel bool) {
			defer wg.Done()
			<-start
			var err error
			if cancel {
				_, err = env.service.Cancel(ctx, b.ID, client)
			} else {
				_, err = env.service.TransitionBooking(ctx, b.ID, scheduling.StatusConfirmed, provider)
			}
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && cancel:
				cancels++
			case err == nil:
				confirms++
			case errors.Is(err, scheduling.ErrAlreadyTerminal), errors.Is(err, scheduling.ErrIllegalTransition):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i%2 == 0)
	}
	close(start)
	wg.Wait()

	// Each target is reachable once at most; every other attempt loses with a
	// lifecycle rejection rather than overwriting.
	assert.Equal(t, 1, cancels)
	assert.LessOrEqual(t, confirms, 1)
	assert.Equal(t, perSide*2-cancels-confirms, losers)

	stored, err := env.store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, scheduling.StatusCancelled, stored.Status)

	pending, err := env.outbox.FetchPending(ctx, 100)
	require.NoError(t, err)
	changes := 0
	for _, e := range pending {
		if e.Type == events.TypeBookingStatusChanged {
			changes++
		}
	}
	assert.Equal(t, cancels+confirms, changes)
}

func TestTransitionBooking_ConcurrentConfirmsApplyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	b, err := env.service.CreateBooking(ctx, env.request("2024-06-11", "11:00"))
	require.NoError(t, err)
	provider := scheduling.Actor{ID: env.providerID, Role: scheduling.RoleProvider}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	start := make(chan struct{})
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.service.TransitionBooking(ctx, b.ID, scheduling.StatusConfirmed, provider)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, scheduling.ErrIllegalTransition)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, succeeded)
}

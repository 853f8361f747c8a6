package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

func newPaymentsRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(withTestActor)
	r.Post("/payments", h.Initiate)
	r.Get("/payments/status/{bookingID}", h.Status)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, actor, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if actor != "" {
		req.Header.Set("X-Test-Actor", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInitiator_Initiate(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "08:30")
	init := NewInitiator(env.bookings, env.catalog, env.gateway, nil)
	ctx := context.Background()

	intent, err := init.Initiate(ctx, b.ID, env.client(), Payer{Name: "Ana", Email: "ana@example.com"})
	require.NoError(t, err)

	stored, err := env.store.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, stored.PaymentID)

	amount, description, ok := env.gateway.Amount(intent.ID)
	require.True(t, ok)
	assert.Equal(t, int64(4500), amount)
	assert.Equal(t, "Corte - 2024-06-10 08:30", description)

	again, err := init.Initiate(ctx, b.ID, env.client(), Payer{Email: "ana@example.com"})
	require.NoError(t, err)
	assert.Equal(t, intent.ID, again.ID)
}

func TestInitiator_Rejections(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "09:00")
	init := NewInitiator(env.bookings, env.catalog, env.gateway, nil)
	ctx := context.Background()
	payer := Payer{Email: "ana@example.com"}

	_, err := init.Initiate(ctx, b.ID, scheduling.Actor{ID: "someone-else", Role: scheduling.RoleClient}, payer)
	assert.ErrorIs(t, err, scheduling.ErrBookingNotFound)

	_, err = init.Initiate(ctx, b.ID, scheduling.Actor{ID: env.providerID, Role: scheduling.RoleProvider}, payer)
	assert.ErrorIs(t, err, scheduling.ErrForbiddenForRole)

	_, err = init.Initiate(ctx, b.ID, env.client(), Payer{Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrInvalidPayer)

	_, err = env.bookings.Cancel(ctx, b.ID, env.client())
	require.NoError(t, err)
	_, err = init.Initiate(ctx, b.ID, env.client(), payer)
	assert.ErrorIs(t, err, bookings.ErrNotPending)
}

type brokenGateway struct {
	FakeGateway
}

func (*brokenGateway) CreatePaymentIntent(context.Context, IntentParams) (*Intent, error) {
	return nil, errors.New("connection refused")
}

func TestInitiator_GatewayFailureLeavesBooking(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "10:00")
	init := NewInitiator(env.bookings, env.catalog, &brokenGateway{}, nil)

	_, err := init.Initiate(context.Background(), b.ID, env.client(), Payer{Email: "ana@example.com"})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)

	stored, err := env.store.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.PaymentID)
	assert.Equal(t, scheduling.StatusPending, stored.Status)
}

// settlingGateway reconciles every intent it creates before returning it,
// like a webhook that beats the attach.
type settlingGateway struct {
	*FakeGateway
	settle func(intent *Intent)
}

func (g *settlingGateway) CreatePaymentIntent(ctx context.Context, params IntentParams) (*Intent, error) {
	intent, err := g.FakeGateway.CreatePaymentIntent(ctx, params)
	if err != nil {
		return nil, err
	}
	g.settle(intent)
	return intent, nil
}

func TestInitiator_WebhookBeforeAttachStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "10:30")
	gateway := &settlingGateway{FakeGateway: env.gateway, settle: func(intent *Intent) {
		_, err := env.reconciler.Reconcile(context.Background(), Event{
			ProviderPaymentID: intent.ID,
			Status:            scheduling.PaymentApproved,
			CorrelationRef:    b.ID,
			Source:            SourceWebhook,
		})
		require.NoError(t, err)
	}}
	init := NewInitiator(env.bookings, env.catalog, gateway, nil)

	intent, err := init.Initiate(context.Background(), b.ID, env.client(), Payer{Email: "ana@example.com"})
	require.NoError(t, err)

	stored, err := env.store.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, intent.ID, stored.PaymentID)
	assert.Equal(t, scheduling.StatusConfirmed, stored.Status)
}

func TestInitiator_SettledByOtherPaymentIsNotPending(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "10:30")
	gateway := &settlingGateway{FakeGateway: env.gateway, settle: func(*Intent) {
		_, err := env.reconciler.Reconcile(context.Background(), Event{
			ProviderPaymentID: "OTHER",
			Status:            scheduling.PaymentApproved,
			CorrelationRef:    b.ID,
			Source:            SourceWebhook,
		})
		require.NoError(t, err)
	}}
	init := NewInitiator(env.bookings, env.catalog, gateway, nil)

	_, err := init.Initiate(context.Background(), b.ID, env.client(), Payer{Email: "ana@example.com"})
	assert.ErrorIs(t, err, bookings.ErrNotPending)

	stored, err := env.store.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "OTHER", stored.PaymentID)
}

func TestHandler_InitiateAndPoll(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "11:00")
	h := NewHandler(NewInitiator(env.bookings, env.catalog, env.gateway, nil), env.bookings, env.gateway, env.reconciler, nil)
	router := newPaymentsRouter(h)
	client := env.clientID + ":client"

	rec := doJSON(t, router, http.MethodGet, "/payments/status/"+b.ID, client, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"booking_id":"`+b.ID+`","status":"pendente","payment_id":null,"payment_status":null}`, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/payments", client, `{"booking_id":"`+b.ID+`","payer":{"email":"ana@example.com"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		BookingID string `json:"booking_id"`
		PaymentID string `json:"payment_id"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, b.ID, created.BookingID)
	assert.Equal(t, "pending", created.Status)

	rec = doJSON(t, router, http.MethodGet, "/payments/status/"+b.ID, client, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"booking_id":"`+b.ID+`","status":"pendente","payment_id":"`+created.PaymentID+`","payment_status":"pending"}`, rec.Body.String())

	_, err := env.gateway.Settle(created.PaymentID, "approved")
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodGet, "/payments/status/"+b.ID, client, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"booking_id":"`+b.ID+`","status":"confirmado","payment_id":"`+created.PaymentID+`","payment_status":"approved"}`, rec.Body.String())
	assert.Equal(t, scheduling.StatusConfirmed, env.status(t, b.ID))
}

func TestHandler_InitiateErrors(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "12:00")
	h := NewHandler(NewInitiator(env.bookings, env.catalog, &brokenGateway{}, nil), env.bookings, env.gateway, env.reconciler, nil)
	router := newPaymentsRouter(h)

	rec := doJSON(t, router, http.MethodPost, "/payments", "", `{"booking_id":"`+b.ID+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/payments", env.clientID+":client", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/payments", env.clientID+":client", `{"booking_id":"`+b.ID+`","payer":{"email":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/payments", "other:client", `{"booking_id":"`+b.ID+`","payer":{"email":"a@b.co"}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/payments", env.clientID+":client", `{"booking_id":"`+b.ID+`","payer":{"email":"a@b.co"}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stalledGateway struct {
	FakeGateway
}

func (*stalledGateway) GetStatus(ctx context.Context, _ string) (*ProviderPayment, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestHandler_PollTimeoutReportsPending(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, "13:00")
	env.attach(t, b.ID, "999")

	h := NewHandler(NewInitiator(env.bookings, env.catalog, env.gateway, nil), env.bookings, &stalledGateway{}, env.reconciler, nil).
		WithStatusTimeout(20 * time.Millisecond)
	router := newPaymentsRouter(h)

	rec := doJSON(t, router, http.MethodGet, "/payments/status/"+b.ID, env.clientID+":client", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"booking_id":"`+b.ID+`","status":"pendente","payment_id":"999","payment_status":"pending"}`, rec.Body.String())
	assert.Equal(t, scheduling.StatusPending, env.status(t, b.ID))
}

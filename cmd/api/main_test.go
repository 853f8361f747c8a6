package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/barbershop-scheduler/internal/config"
	"github.com/wolfman30/barbershop-scheduler/internal/events"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

func TestSetupMetricsExposesMetrics(t *testing.T) {
	handler, bookingMetrics, paymentMetrics := setupMetrics()
	if handler == nil || bookingMetrics == nil || paymentMetrics == nil {
		t.Fatalf("expected non-nil handler and metrics")
	}

	bookingMetrics.ObserveCreated("barber-1")
	paymentMetrics.ObserveWebhook("applied")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, name := range []string{"barbershop_bookings_created_total", "barbershop_payments_webhook_total", "go_goroutines"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s to be exported", name)
		}
	}
}

func TestBuildAppInMemoryServesHealth(t *testing.T) {
	cfg := &appconfig.Config{
		Env:                    "development",
		JWTSecret:              "secret",
		Timezone:               "UTC",
		SlotGranularityMinutes: 30,
		AllowFakePayments:      true,
		RateLimitRPS:           10,
		RateLimitBurst:         20,
		PaymentStatusTimeout:   time.Second,
		OutboxInterval:         time.Second,
	}
	a, err := buildApp(context.Background(), cfg, logging.New("error"))
	if err != nil {
		t.Fatalf("buildApp: %v", err)
	}
	defer a.Close()

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/services"} {
		rr := httptest.NewRecorder()
		a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: expected status 200, got %d", path, rr.Code)
		}
	}
}

func TestBuildAppRequiresPostgresInProduction(t *testing.T) {
	cfg := &appconfig.Config{Env: "production", Timezone: "UTC", MercadoPagoAccessToken: "tok"}
	if _, err := buildApp(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected error without a database in production")
	}
}

func TestSetupDelivererPublishesToStream(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	outbox := events.NewMemoryOutbox()
	if _, err := outbox.Insert(context.Background(), "booking-1", events.TypeBookingCreated, map[string]string{"id": "booking-1"}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	cfg := &appconfig.Config{OutboxStream: "test:bookings", OutboxInterval: time.Second}
	d := setupDeliverer(outbox, client, cfg, logging.New("error"))
	if n := d.Drain(context.Background()); n != 1 {
		t.Fatalf("expected 1 delivered entry, got %d", n)
	}

	msgs, err := client.XRange(context.Background(), "test:bookings", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 stream message, got %d", len(msgs))
	}
}

package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	appconfig "github.com/wolfman30/barbershop-scheduler/internal/config"
	"github.com/wolfman30/barbershop-scheduler/internal/payments"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when REDIS_ADDR is empty")
	}
	if client := BuildRedisClient(context.Background(), nil, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)

	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()

	addr := mr.Addr()
	mr.Close()
	if client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	if pool := BuildPostgresPool(context.Background(), "", logging.New("error")); pool != nil {
		t.Fatalf("expected nil pool for empty URL")
	}
	if pool := BuildPostgresPool(context.Background(), "://bad", logging.New("error")); pool != nil {
		t.Fatalf("expected nil pool for malformed URL")
	}
}

func TestBuildStoresInMemory(t *testing.T) {
	stores := BuildStores(nil)
	if stores.Memory == nil || stores.Catalog == nil || stores.Bookings == nil {
		t.Fatalf("expected in-memory stores")
	}
	if stores.Outbox == nil || stores.Processed == nil || stores.Usage == nil {
		t.Fatalf("expected outbox, processed and usage stores")
	}

	id := SeedDemoBarber(stores.Memory, logging.New("error"))
	p, err := stores.Catalog.Provider(context.Background(), id)
	if err != nil {
		t.Fatalf("seeded barber not found: %v", err)
	}
	if len(p.Windows) != 6 {
		t.Fatalf("expected 6 working windows, got %d", len(p.Windows))
	}
}

func TestBuildGateway(t *testing.T) {
	if _, _, err := BuildGateway(nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
	if _, _, err := BuildGateway(&appconfig.Config{}, nil, nil); err == nil {
		t.Fatalf("expected error when nothing is configured")
	}

	gw, fake, err := BuildGateway(&appconfig.Config{AllowFakePayments: true}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake == nil || gw != payments.Gateway(fake) {
		t.Fatalf("expected fake gateway")
	}

	gw, fake, err = BuildGateway(&appconfig.Config{MercadoPagoAccessToken: "tok", AllowFakePayments: true}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fake != nil {
		t.Fatalf("expected no fake when an access token is set")
	}
	if _, ok := gw.(*payments.MercadoPagoGateway); !ok {
		t.Fatalf("expected mercado pago gateway, got %T", gw)
	}
}

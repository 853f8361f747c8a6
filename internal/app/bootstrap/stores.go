package bootstrap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barbershop-scheduler/internal/bookings"
	"github.com/wolfman30/barbershop-scheduler/internal/catalog"
	"github.com/wolfman30/barbershop-scheduler/internal/events"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
	"github.com/wolfman30/barbershop-scheduler/pkg/logging"
)

// Outbox is both the write side used by the booking service and the read side
// drained by the deliverer.
type Outbox interface {
	bookings.Publisher
	events.Outbox
}

// ProcessedEvents dedupes provider notifications.
type ProcessedEvents interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// Stores groups the persistence backends for one process.
type Stores struct {
	Catalog   catalog.Store
	Usage     catalog.Usage
	Bookings  bookings.Store
	Outbox    Outbox
	Processed ProcessedEvents
	// Memory is set when no database is configured.
	Memory *catalog.MemoryStore
}

// BuildStores returns Postgres-backed stores when pool is non-nil and
// in-memory stores otherwise.
func BuildStores(pool *pgxpool.Pool) Stores {
	if pool != nil {
		cat := catalog.NewPostgresStore(pool)
		return Stores{
			Catalog:   cat,
			Usage:     cat,
			Bookings:  bookings.NewPostgresStore(pool),
			Outbox:    events.NewOutboxStore(pool),
			Processed: events.NewProcessedStore(pool),
		}
	}
	mem := catalog.NewMemoryStore()
	bookingStore := bookings.NewMemoryStore()
	return Stores{
		Catalog:   mem,
		Usage:     bookingStore,
		Bookings:  bookingStore,
		Outbox:    events.NewMemoryOutbox(),
		Processed: events.NewMemoryProcessedStore(),
		Memory:    mem,
	}
}

// SeedDemoBarber registers one barber working Monday to Saturday, 09:00-18:00,
// and returns its id. Only meaningful for in-memory stores.
func SeedDemoBarber(store *catalog.MemoryStore, logger *logging.Logger) string {
	if store == nil {
		return ""
	}
	if logger == nil {
		logger = logging.Default()
	}
	id := uuid.NewString()
	var windows []scheduling.WorkingWindow
	for day := time.Monday; day <= time.Saturday; day++ {
		windows = append(windows, scheduling.WorkingWindow{Weekday: day, Start: 9 * 60, End: 18 * 60, Active: true})
	}
	store.PutProvider(catalog.Provider{ID: id, Name: "Barbeiro Demo", Active: true, Windows: windows})
	logger.Info("seeded demo barber", "barber_id", id)
	return id
}

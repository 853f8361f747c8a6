package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

type pgxConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists the catalog in the barbers, working_hours and
// services tables. It also answers booking usage questions for services.
type PostgresStore struct {
	db pgxConn
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("catalog: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithConn(db pgxConn) *PostgresStore {
	if db == nil {
		panic("catalog: conn required")
	}
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Provider(ctx context.Context, id string) (*Provider, error) {
	var p Provider
	err := s.db.QueryRow(ctx, `SELECT id::text, name, active FROM barbers WHERE id = $1`, id).Scan(&p.ID, &p.Name, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("catalog: load provider: %w", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM working_hours
		WHERE barber_id = $1 AND active
		ORDER BY weekday
	`, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: load working hours: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var weekday, start, end int
		if err := rows.Scan(&weekday, &start, &end); err != nil {
			return nil, fmt.Errorf("catalog: scan working hours: %w", err)
		}
		p.Windows = append(p.Windows, scheduling.WorkingWindow{
			Weekday: time.Weekday(weekday),
			Start:   scheduling.TimeOfDay(start),
			End:     scheduling.TimeOfDay(end),
			Active:  true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate working hours: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) ListProviders(ctx context.Context, activeOnly bool) ([]Provider, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id::text, name, active
		FROM barbers
		WHERE active OR NOT $1
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("catalog: list providers: %w", err)
	}
	defer rows.Close()

	var out []Provider
	for rows.Next() {
		var p Provider
		if err := rows.Scan(&p.ID, &p.Name, &p.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan provider: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateProvider(ctx context.Context, p Provider) error {
	if _, err := s.db.Exec(ctx, `INSERT INTO barbers (id, name, active) VALUES ($1, $2, $3)`, p.ID, p.Name, p.Active); err != nil {
		return fmt.Errorf("catalog: insert provider: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetProviderActive(ctx context.Context, id string, active bool) error {
	ct, err := s.db.Exec(ctx, `UPDATE barbers SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("catalog: set provider active: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrProviderNotFound
	}
	return nil
}

// ReplaceSchedule deactivates the current windows and inserts the new ones in
// one transaction so readers never observe a half-written week.
func (s *PostgresStore) ReplaceSchedule(ctx context.Context, providerID string, windows []scheduling.WorkingWindow) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("catalog: begin schedule tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `UPDATE working_hours SET active = false WHERE barber_id = $1 AND active`, providerID); err != nil {
		return fmt.Errorf("catalog: deactivate working hours: %w", err)
	}
	for _, w := range windows {
		if !w.Active {
			continue
		}
		if _, err = tx.Exec(ctx, `
			INSERT INTO working_hours (barber_id, weekday, start_minute, end_minute, active)
			VALUES ($1, $2, $3, $4, true)
		`, providerID, int(w.Weekday), int(w.Start), int(w.End)); err != nil {
			return fmt.Errorf("catalog: insert working hours: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("catalog: commit schedule: %w", err)
	}
	return nil
}

const serviceColumns = `id::text, name, description, duration_minutes, price_cents, active, created_at, updated_at`

func scanService(row pgx.Row) (*Service, error) {
	var svc Service
	if err := row.Scan(&svc.ID, &svc.Name, &svc.Description, &svc.DurationMinutes, &svc.PriceCents, &svc.Active, &svc.CreatedAt, &svc.UpdatedAt); err != nil {
		return nil, err
	}
	return &svc, nil
}

func (s *PostgresStore) Service(ctx context.Context, id string) (*Service, error) {
	svc, err := scanService(s.db.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, fmt.Errorf("catalog: load service: %w", err)
	}
	return svc, nil
}

func (s *PostgresStore) ListServices(ctx context.Context, activeOnly bool) ([]Service, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+serviceColumns+`
		FROM services
		WHERE active OR NOT $1
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("catalog: list services: %w", err)
	}
	defer rows.Close()

	var out []Service
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan service: %w", err)
		}
		out = append(out, *svc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CreateService(ctx context.Context, svc Service) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO services (id, name, description, duration_minutes, price_cents, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, svc.ID, svc.Name, svc.Description, svc.DurationMinutes, svc.PriceCents, svc.Active, svc.CreatedAt, svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: insert service: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateService(ctx context.Context, svc Service) error {
	ct, err := s.db.Exec(ctx, `
		UPDATE services
		SET name = $2, description = $3, duration_minutes = $4, price_cents = $5, updated_at = $6
		WHERE id = $1
	`, svc.ID, svc.Name, svc.Description, svc.DurationMinutes, svc.PriceCents, svc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("catalog: update service: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (s *PostgresStore) SetServiceActive(ctx context.Context, id string, active bool) error {
	ct, err := s.db.Exec(ctx, `UPDATE services SET active = $2, updated_at = now() WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("catalog: set service active: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrServiceNotFound
	}
	return nil
}

func (s *PostgresStore) ServiceReferenced(ctx context.Context, serviceID string) (bool, error) {
	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE service_id = $1)`, serviceID).Scan(&exists); err != nil {
		return false, fmt.Errorf("catalog: check service usage: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CountFutureByService(ctx context.Context, serviceID string, from time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM bookings
		WHERE service_id = $1 AND booking_date >= $2 AND status <> 'cancelado'
	`, serviceID, from.Format(scheduling.DateLayout)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("catalog: count future bookings: %w", err)
	}
	return n, nil
}

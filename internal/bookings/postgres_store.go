package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

// SQLSTATE for exclusion_violation; raised by the bookings_no_overlap constraint.
const pgExclusionViolation = "23P01"

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxConn interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists bookings. Creates serialize on a transaction-scoped
// advisory lock per (provider, date); the exclusion constraint on the table
// backs that up.
type PostgresStore struct {
	db pgxConn
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &PostgresStore{db: pool}
}

func newPostgresStoreWithConn(db pgxConn) *PostgresStore {
	if db == nil {
		panic("bookings: conn required")
	}
	return &PostgresStore{db: db}
}

const bookingColumns = `id::text, client_id, barber_id::text, service_id::text, booking_date, start_minute,
	duration_minutes, status, COALESCE(payment_id, ''), COALESCE(note, ''), created_at, updated_at`

func scanBooking(row pgx.Row) (*scheduling.Booking, error) {
	var (
		b      scheduling.Booking
		start  int
		status string
	)
	if err := row.Scan(&b.ID, &b.ClientID, &b.ProviderID, &b.ServiceID, &b.Date, &start,
		&b.DurationMinutes, &status, &b.PaymentID, &b.Note, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Start = scheduling.TimeOfDay(start)
	b.Status = scheduling.Status(status)
	return &b, nil
}

func collectBookings(rows pgx.Rows) ([]scheduling.Booking, error) {
	defer rows.Close()
	var out []scheduling.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("bookings: scan booking: %w", err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bookings: iterate bookings: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*scheduling.Booking, error) {
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduling.ErrBookingNotFound
		}
		return nil, fmt.Errorf("bookings: load booking: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) FindByPaymentID(ctx context.Context, paymentID string) (*scheduling.Booking, error) {
	if paymentID == "" {
		return nil, scheduling.ErrBookingNotFound
	}
	b, err := scanBooking(s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE payment_id = $1`, paymentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, scheduling.ErrBookingNotFound
		}
		return nil, fmt.Errorf("bookings: load booking by payment: %w", err)
	}
	return b, nil
}

const liveQuery = `SELECT ` + bookingColumns + `
	FROM bookings
	WHERE barber_id = $1 AND booking_date = $2 AND status IN ('pendente', 'confirmado')
	ORDER BY start_minute`

func listLive(ctx context.Context, q querier, providerID string, date time.Time) ([]scheduling.Booking, error) {
	rows, err := q.Query(ctx, liveQuery, providerID, date.Format(scheduling.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("bookings: list live: %w", err)
	}
	return collectBookings(rows)
}

func (s *PostgresStore) ListLive(ctx context.Context, providerID string, date time.Time) ([]scheduling.Booking, error) {
	return listLive(ctx, s.db, providerID, date)
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]scheduling.Booking, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.ClientID != "" {
		add("client_id = $%d", f.ClientID)
	}
	if f.ProviderID != "" {
		add("barber_id = $%d", f.ProviderID)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", statuses)
	}
	if !f.From.IsZero() {
		add("booking_date >= $%d", f.From.Format(scheduling.DateLayout))
	}
	if !f.To.IsZero() {
		add("booking_date <= $%d", f.To.Format(scheduling.DateLayout))
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM bookings`+whereClause(where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("bookings: count: %w", err)
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings` + whereClause(where) +
		` ORDER BY booking_date DESC, start_minute DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("bookings: list: %w", err)
	}
	out, err := collectBookings(rows)
	if err != nil {
		return nil, 0, err
	}
	if out == nil {
		out = []scheduling.Booking{}
	}
	return out, total, nil
}

func whereClause(where []string) string {
	if len(where) == 0 {
		return ""
	}
	return ` WHERE ` + strings.Join(where, " AND ")
}

func (s *PostgresStore) CreateAtomic(ctx context.Context, b scheduling.Booking, check CheckFunc) (err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("bookings: begin create tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockKey(b.ProviderID, b.Date)); err != nil {
		return fmt.Errorf("bookings: acquire day lock: %w", err)
	}
	existing, err := listLive(ctx, tx, b.ProviderID, b.Date)
	if err != nil {
		return err
	}
	if check != nil {
		if err = check(existing); err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bookings (id, client_id, barber_id, service_id, booking_date, start_minute, duration_minutes,
			status, payment_id, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12)
	`, b.ID, b.ClientID, b.ProviderID, b.ServiceID, b.Date.Format(scheduling.DateLayout), int(b.Start),
		b.DurationMinutes, string(b.Status), b.PaymentID, b.Note, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			err = scheduling.ErrSlotTaken
			return err
		}
		return fmt.Errorf("bookings: insert booking: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		if isExclusionViolation(err) {
			err = scheduling.ErrSlotTaken
			return err
		}
		return fmt.Errorf("bookings: commit create: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, id string, mutate MutateFunc) (_ *scheduling.Booking, err error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("bookings: begin update tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = scheduling.ErrBookingNotFound
			return nil, err
		}
		return nil, fmt.Errorf("bookings: lock booking: %w", err)
	}
	next := *current
	if err = mutate(&next); err != nil {
		return current, err
	}

	if _, err = tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, payment_id = NULLIF($3, ''), updated_at = $4
		WHERE id = $1
	`, id, string(next.Status), next.PaymentID, next.UpdatedAt); err != nil {
		return nil, fmt.Errorf("bookings: update booking: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("bookings: commit update: %w", err)
	}
	return &next, nil
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgExclusionViolation
}

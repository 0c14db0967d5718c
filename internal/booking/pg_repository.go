package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanRequester(row pgx.Row) (*Requester, error) {
	var r Requester
	var email *string

	err := row.Scan(
		&r.ID,
		&r.Name,
		&email,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequesterNotFound
		}
		return nil, err
	}

	r.Email = email
	return &r, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.RequesterID,
		&a.ScheduledAt,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.ScheduledAt = a.ScheduledAt.UTC()
	return &a, nil
}

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetRequesterByID(ctx context.Context, id uuid.UUID) (*Requester, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM requesters
		WHERE id = $1
	`, id)
	return scanRequester(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListProviderAppointments(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND scheduled_at < $3
		  AND status <> 'cancelled'
		ORDER BY scheduled_at
	`, providerID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListProviderAppointmentsFrom(ctx context.Context, providerID uuid.UUID, from time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE provider_id = $1
		  AND scheduled_at >= $2
		  AND status <> 'cancelled'
		ORDER BY scheduled_at
	`, providerID, from)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) FindRequesterAppointmentAt(ctx context.Context, requesterID uuid.UUID, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE requester_id = $1
		  AND scheduled_at = $2
		  AND status <> 'cancelled'
		LIMIT 1
	`, requesterID, at)
	return scanAppointment(row)
}

func (r *PgRepository) FindOpenBooking(ctx context.Context, requesterID, providerID uuid.UUID, from time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
		FROM appointments
		WHERE requester_id = $1
		  AND provider_id = $2
		  AND scheduled_at >= $3
		  AND status NOT IN ('cancelled', 'completed')
		LIMIT 1
	`, requesterID, providerID, from)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, providerID, requesterID uuid.UUID, at time.Time) (*Appointment, error) {
	id := uuid.New()

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (id, provider_id, requester_id, scheduled_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'scheduled', now(), now())
		RETURNING id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
	`, id, providerID, requesterID, at)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, provider_id, requester_id, scheduled_at, status, created_at, updated_at
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrProviderNotFound    = errors.New("provider not found")
	ErrRequesterNotFound   = errors.New("requester not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
)

// Repository contains all record-store interactions needed by the service.
// All time-range parameters are half-open: [start, end).
type Repository interface {
	GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetRequesterByID(ctx context.Context, id uuid.UUID) (*Requester, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Read paths for conflict checks and availability. All of them exclude
	// cancelled appointments.
	ListProviderAppointments(ctx context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error)
	ListProviderAppointmentsFrom(ctx context.Context, providerID uuid.UUID, from time.Time) ([]Appointment, error)
	FindRequesterAppointmentAt(ctx context.Context, requesterID uuid.UUID, at time.Time) (*Appointment, error)
	FindOpenBooking(ctx context.Context, requesterID, providerID uuid.UUID, from time.Time) (*Appointment, error)

	// Creation and compare-and-swap status updates. UpdateAppointmentStatus
	// returns ErrAppointmentNotFound when the row no longer carries `from`.
	CreateAppointment(ctx context.Context, providerID, requesterID uuid.UUID, at time.Time) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Audit trail.
	InsertEvent(ctx context.Context, ev EventLog) error
}

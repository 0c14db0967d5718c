package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	ProviderID  string `json:"provider_id"`
	RequesterID string `json:"requester_id"`
	ScheduledAt string `json:"scheduled_at"` // RFC 3339
}

type CancelBookingRequest struct {
	RequesterID string `json:"requester_id"`
}

type CompleteBookingRequest struct {
	ProviderID string `json:"provider_id"`
}

type AppointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	ProviderID  uuid.UUID `json:"provider_id"`
	RequesterID uuid.UUID `json:"requester_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type AvailabilityResponse struct {
	ProviderID     uuid.UUID   `json:"provider_id"`
	Date           string      `json:"date"`
	AvailableSlots []time.Time `json:"available_slots"`
}

type BookedSlotsResponse struct {
	ProviderID  uuid.UUID   `json:"provider_id"`
	BookedSlots []time.Time `json:"booked_slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

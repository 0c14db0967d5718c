package booking

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// State transitions:
//
//	scheduled → completed (provider, after the slot has elapsed)
//	scheduled → cancelled (requester)
//
// completed and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusScheduled: {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Provider is the actor whose time gets booked.
type Provider struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Requester is the actor booking the provider's time.
type Requester struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the single durable entity of the engine. ScheduledAt is the
// sole key used for conflict detection and locking; it is stored in UTC.
type Appointment struct {
	ID          uuid.UUID
	ProviderID  uuid.UUID
	RequesterID uuid.UUID
	ScheduledAt time.Time
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

package booking

import (
	"time"

	"github.com/google/uuid"
)

// CanCancel validates a cancellation request: only the booking's own
// requester may cancel, and only while the appointment is still open.
func (a *Appointment) CanCancel(requesterID uuid.UUID) error {
	if a.RequesterID != requesterID {
		return &UnauthorizedTransitionError{ActorID: requesterID, Action: "cancel"}
	}
	if !a.Status.CanTransitionTo(StatusCancelled) {
		return &InvalidTransitionError{From: a.Status, To: StatusCancelled}
	}
	return nil
}

// CanComplete validates a completion request: only the booking's own
// provider may complete, the appointment must still be open, and the
// scheduled time must already have elapsed.
func (a *Appointment) CanComplete(providerID uuid.UUID, now time.Time) error {
	if a.ProviderID != providerID {
		return &UnauthorizedTransitionError{ActorID: providerID, Action: "complete"}
	}
	if !a.Status.CanTransitionTo(StatusCompleted) {
		return &InvalidTransitionError{From: a.Status, To: StatusCompleted}
	}
	if !now.After(a.ScheduledAt) {
		return ErrNotYetElapsed
	}
	return nil
}

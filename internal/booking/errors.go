package booking

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Validation failures. The caller fixes the request; nothing is retried.
var (
	ErrScheduledInPast     = errors.New("appointments can only be scheduled for a future time")
	ErrOutsideWorkingHours = errors.New("scheduled time is outside working hours")
	ErrMisalignedSlot      = errors.New("scheduled time is not aligned to the slot grid")
	ErrNotYetElapsed       = errors.New("appointment time has not elapsed yet")
)

// Conflicts. "Busy" means a lock could not be taken, worth retrying shortly;
// the rest mean the slot is genuinely taken.
var (
	ErrProviderBusy      = errors.New("provider is being booked at this time, try again shortly")
	ErrRequesterBusy     = errors.New("a booking for this requester at this time is already in flight")
	ErrProviderConflict  = errors.New("provider has a conflicting appointment")
	ErrRequesterConflict = errors.New("requester already has an appointment at this time")
	ErrOpenFutureBooking = errors.New("an open future booking with this provider already exists")
)

// InvalidTransitionError reports a lifecycle move that is not legal from the
// appointment's current status.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %s to %s", e.From, e.To)
}

// UnauthorizedTransitionError reports an actor trying to drive a transition
// that belongs to the other side of the booking.
type UnauthorizedTransitionError struct {
	ActorID uuid.UUID
	Action  string
}

func (e *UnauthorizedTransitionError) Error() string {
	return fmt.Sprintf("actor %s is not authorized to %s this appointment", e.ActorID, e.Action)
}

// DependencyError marks failures of the lock store or record store, as
// opposed to anything wrong with the request itself.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error {
	return e.Err
}

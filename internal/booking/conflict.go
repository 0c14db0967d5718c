package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Detector runs the read-side conflict checks against the record store.
// All checks are pure reads and safe to repeat; the orchestrator calls them
// once before locking and again under the locks.
type Detector struct {
	repo Repository

	// buffer is the symmetric window around a proposed time inside which
	// another provider booking counts as a conflict. Kept just under the
	// slot interval so adjacent grid slots stay bookable.
	buffer time.Duration
}

func NewDetector(repo Repository, buffer time.Duration) *Detector {
	return &Detector{repo: repo, buffer: buffer}
}

// HasProviderConflict reports whether any non-cancelled appointment for the
// provider falls inside [at-buffer, at+buffer).
func (d *Detector) HasProviderConflict(ctx context.Context, providerID uuid.UUID, at time.Time) (bool, error) {
	appts, err := d.repo.ListProviderAppointments(ctx, providerID, at.Add(-d.buffer), at.Add(d.buffer))
	if err != nil {
		return false, fmt.Errorf("list provider appointments: %w", err)
	}
	return len(appts) > 0, nil
}

// HasDuplicateRequesterBooking reports an exact-timestamp collision for the
// requester: the same actor cannot be in two places at once.
func (d *Detector) HasDuplicateRequesterBooking(ctx context.Context, requesterID uuid.UUID, at time.Time) (bool, error) {
	_, err := d.repo.FindRequesterAppointmentAt(ctx, requesterID, at)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find requester appointment: %w", err)
	}
	return true, nil
}

// HasOpenFutureBooking reports whether a future, non-cancelled, non-completed
// appointment already links the requester and the provider.
func (d *Detector) HasOpenFutureBooking(ctx context.Context, requesterID, providerID uuid.UUID, now time.Time) (bool, error) {
	_, err := d.repo.FindOpenBooking(ctx, requesterID, providerID, now)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("find open booking: %w", err)
	}
	return true, nil
}

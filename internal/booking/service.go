package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/slotwise/booking-engine/internal/config"
	"github.com/slotwise/booking-engine/internal/lock"
	"github.com/slotwise/booking-engine/internal/metrics"
)

const (
	EventBookingCreated   = "BOOKING_CREATED"
	EventBookingCancelled = "BOOKING_CANCELLED"
	EventBookingCompleted = "BOOKING_COMPLETED"
)

// Service composes the lock manager, conflict detector, and record store
// into the booking operations. Raw lock acquire/release never leaves this
// package; callers only get the composed operations, which is what keeps the
// provider-before-requester ordering a structural invariant.
type Service struct {
	repo     Repository
	locks    *lock.Manager
	detector *Detector
	cfg      config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector

	// now is swapped for a fixed clock in tests.
	now func() time.Time
}

func NewService(repo Repository, locks *lock.Manager, cfg config.Config, logger *zap.Logger, collector *metrics.Collector) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		locks:    locks,
		detector: NewDetector(repo, cfg.ProviderConflictBuffer),
		cfg:      cfg,
		logger:   logger,
		metrics:  collector,
		now:      time.Now,
	}
}

// CreateBooking books providerID for requesterID at scheduledAt.
//
// Both participant locks are taken for the exact timestamp, provider first,
// always: two mirrored requests that locked in opposite role order could
// otherwise wait on each other forever. Conflict checks run once before
// locking (cheap rejection) and again under the locks (a writer may have
// committed in between). Every exit path releases whatever was acquired.
func (s *Service) CreateBooking(ctx context.Context, providerID, requesterID uuid.UUID, scheduledAt time.Time) (*Appointment, error) {
	now := s.now().UTC()
	at := scheduledAt.UTC()

	if err := s.validateSlot(at, now); err != nil {
		s.countBooking(metrics.OutcomeValidation)
		return nil, err
	}

	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		if errors.Is(err, ErrProviderNotFound) {
			s.countBooking(metrics.OutcomeNotFound)
			return nil, err
		}
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "load provider", Err: err}
	}
	if _, err := s.repo.GetRequesterByID(ctx, requesterID); err != nil {
		if errors.Is(err, ErrRequesterNotFound) {
			s.countBooking(metrics.OutcomeNotFound)
			return nil, err
		}
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "load requester", Err: err}
	}

	open, err := s.detector.HasOpenFutureBooking(ctx, requesterID, providerID, now)
	if err != nil {
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "check open bookings", Err: err}
	}
	if open {
		s.countBooking(metrics.OutcomeConflict)
		return nil, ErrOpenFutureBooking
	}

	providerLease, err := s.locks.Acquire(ctx, lock.RoleProvider, providerID, at)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.countLock(lock.RoleProvider, "busy")
			s.countBooking(metrics.OutcomeConflict)
			return nil, ErrProviderBusy
		}
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "acquire provider lock", Err: err}
	}
	s.countLock(lock.RoleProvider, "acquired")
	defer s.release(ctx, providerLease)

	requesterLease, err := s.locks.Acquire(ctx, lock.RoleRequester, requesterID, at)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.countLock(lock.RoleRequester, "busy")
			s.countBooking(metrics.OutcomeConflict)
			return nil, ErrRequesterBusy
		}
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "acquire requester lock", Err: err}
	}
	s.countLock(lock.RoleRequester, "acquired")
	defer s.release(ctx, requesterLease)

	// Re-check under the locks. The locks serialize writers for this
	// provider+time and requester+time, so whatever we read now holds until
	// the insert below.
	conflict, err := s.detector.HasProviderConflict(ctx, providerID, at)
	if err != nil {
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "check provider conflicts", Err: err}
	}
	if conflict {
		s.countBooking(metrics.OutcomeConflict)
		return nil, ErrProviderConflict
	}

	dup, err := s.detector.HasDuplicateRequesterBooking(ctx, requesterID, at)
	if err != nil {
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "check requester conflicts", Err: err}
	}
	if dup {
		s.countBooking(metrics.OutcomeConflict)
		return nil, ErrRequesterConflict
	}

	appt, err := s.repo.CreateAppointment(ctx, providerID, requesterID, at)
	if err != nil {
		s.countBooking(metrics.OutcomeError)
		return nil, &DependencyError{Op: "create appointment", Err: err}
	}

	s.logEvent(ctx, appt.ID, EventBookingCreated, map[string]any{
		"provider_id":  providerID.String(),
		"requester_id": requesterID.String(),
		"scheduled_at": at,
	})

	s.countBooking(metrics.OutcomeCreated)
	s.logger.Info("booking created",
		zap.Stringer("appointment_id", appt.ID),
		zap.Stringer("provider_id", providerID),
		zap.Stringer("requester_id", requesterID),
		zap.Time("scheduled_at", at),
	)

	return appt, nil
}

// CancelBooking moves a scheduled appointment to cancelled on behalf of its
// requester.
func (s *Service) CancelBooking(ctx context.Context, id, requesterID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := appt.CanCancel(requesterID); err != nil {
		s.countTransition(StatusCancelled, "rejected")
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCancelled)
	if err != nil {
		return nil, s.resolveTransitionRace(ctx, id, StatusCancelled, err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCancelled, map[string]any{
		"requester_id": requesterID.String(),
	})
	s.countTransition(StatusCancelled, "ok")

	return updated, nil
}

// CompleteBooking moves a scheduled appointment to completed on behalf of
// its provider, once the scheduled time has elapsed.
func (s *Service) CompleteBooking(ctx context.Context, id, providerID uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := appt.CanComplete(providerID, s.now().UTC()); err != nil {
		s.countTransition(StatusCompleted, "rejected")
		return nil, err
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusScheduled, StatusCompleted)
	if err != nil {
		return nil, s.resolveTransitionRace(ctx, id, StatusCompleted, err)
	}

	s.logEvent(ctx, updated.ID, EventBookingCompleted, map[string]any{
		"provider_id": providerID.String(),
	})
	s.countTransition(StatusCompleted, "ok")

	return updated, nil
}

// ListAvailability computes the bookable grid points for a provider on the
// UTC day of date, net of existing bookings and elapsed time.
func (s *Service) ListAvailability(ctx context.Context, providerID uuid.UUID, date time.Time) ([]time.Time, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}

	y, m, d := date.UTC().Date()
	workStart := time.Date(y, m, d, s.cfg.WorkStartHour, 0, 0, 0, time.UTC)
	workEnd := time.Date(y, m, d, s.cfg.WorkEndHour, 0, 0, 0, time.UTC)

	appts, err := s.repo.ListProviderAppointments(ctx, providerID, workStart, workEnd)
	if err != nil {
		return nil, &DependencyError{Op: "list provider appointments", Err: err}
	}

	booked := make([]time.Time, 0, len(appts))
	for _, a := range appts {
		booked = append(booked, a.ScheduledAt)
	}

	return AvailableSlots(booked, workStart, workEnd, s.cfg.SlotInterval, s.now().UTC()), nil
}

// ListBookedSlots returns the scheduled times of all upcoming non-cancelled
// appointments for a provider.
func (s *Service) ListBookedSlots(ctx context.Context, providerID uuid.UUID) ([]time.Time, error) {
	if _, err := s.repo.GetProviderByID(ctx, providerID); err != nil {
		return nil, err
	}

	appts, err := s.repo.ListProviderAppointmentsFrom(ctx, providerID, s.now().UTC())
	if err != nil {
		return nil, &DependencyError{Op: "list provider appointments", Err: err}
	}

	slots := make([]time.Time, 0, len(appts))
	for _, a := range appts {
		slots = append(slots, a.ScheduledAt)
	}
	return slots, nil
}

// GetBooking retrieves one appointment by id.
func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// validateSlot enforces the scheduling policy: strictly in the future,
// inside working hours, and on the slot grid. Hours are UTC; the end hour is
// exclusive, so the last bookable slot starts one interval before it.
func (s *Service) validateSlot(at, now time.Time) error {
	if !at.After(now) {
		return ErrScheduledInPast
	}

	if at.Second() != 0 || at.Nanosecond() != 0 {
		return ErrMisalignedSlot
	}

	mins := at.Hour()*60 + at.Minute()
	start := s.cfg.WorkStartHour * 60
	end := s.cfg.WorkEndHour * 60
	if mins < start || mins >= end {
		return ErrOutsideWorkingHours
	}

	step := int(s.cfg.SlotInterval / time.Minute)
	if (mins-start)%step != 0 {
		return ErrMisalignedSlot
	}

	return nil
}

// release runs on every exit path. It deliberately ignores the request
// context's cancellation: a lease must be returned even when the caller has
// gone away, and the TTL remains the backstop if the store call fails.
func (s *Service) release(ctx context.Context, l *lock.Lease) {
	if err := l.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("lock release failed, lease will expire by TTL",
			zap.String("key", l.Key()),
			zap.Error(err),
		)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error("insert event log",
			zap.String("event", eventType),
			zap.Stringer("appointment_id", appointmentID),
			zap.Error(err),
		)
	}
}

// resolveTransitionRace handles a lost status CAS: the row moved out of
// `scheduled` between our read and our update. Surface the current status as
// an invalid-transition error rather than a spurious not-found.
func (s *Service) resolveTransitionRace(ctx context.Context, id uuid.UUID, to Status, err error) error {
	if !errors.Is(err, ErrAppointmentNotFound) {
		return &DependencyError{Op: fmt.Sprintf("update status to %s", to), Err: err}
	}

	current, getErr := s.repo.GetAppointmentByID(ctx, id)
	if getErr != nil {
		return getErr
	}
	return &InvalidTransitionError{From: current.Status, To: to}
}

func (s *Service) countBooking(outcome string) {
	if s.metrics != nil {
		s.metrics.BookingsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countTransition(to Status, outcome string) {
	if s.metrics != nil {
		s.metrics.TransitionsTotal.WithLabelValues(string(to), outcome).Inc()
	}
}

func (s *Service) countLock(role lock.Role, outcome string) {
	if s.metrics != nil {
		s.metrics.LockAcquireTotal.WithLabelValues(string(role), outcome).Inc()
	}
}

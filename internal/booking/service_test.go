package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slotwise/booking-engine/internal/config"
	"github.com/slotwise/booking-engine/internal/lock"
)

var testNow = time.Date(2025, 1, 9, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc   *Service
	repo  *MemoryRepository
	store *lock.MemoryStore
	locks *lock.Manager
	now   time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := NewMemoryRepository()
	store := lock.NewMemoryStore()
	locks := lock.NewManager(store, lock.Config{
		TTL:        10 * time.Second,
		Retries:    3,
		RetryDelay: 0,
		Sleep:      func(time.Duration) {},
	})

	cfg := config.Config{
		WorkStartHour:          9,
		WorkEndHour:            17,
		SlotInterval:           time.Hour,
		ProviderConflictBuffer: 59 * time.Minute,
		LockTTL:                10 * time.Second,
		LockRetries:            3,
	}

	env := &testEnv{svc: NewService(repo, locks, cfg, zap.NewNop(), nil), repo: repo, store: store, locks: locks, now: testNow}
	env.svc.now = func() time.Time { return env.now }
	return env
}

func TestCreateBooking_Succeeds(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	appt, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, at)
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, providerID, appt.ProviderID)
	assert.Equal(t, requesterID, appt.RequesterID)
	assert.True(t, appt.ScheduledAt.Equal(at))

	assert.Equal(t, 0, env.store.Len(), "all leases must be released on the success path")

	events := env.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventBookingCreated, events[0].EventType)
}

func TestCreateBooking_ValidationRejections(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")

	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		at   time.Time
		want error
	}{
		{"in the past", testNow.Add(-time.Hour), ErrScheduledInPast},
		{"exactly now", testNow, ErrScheduledInPast},
		{"before opening", day.Add(8 * time.Hour), ErrOutsideWorkingHours},
		{"exactly at closing", day.Add(17 * time.Hour), ErrOutsideWorkingHours},
		{"after closing", day.Add(18 * time.Hour), ErrOutsideWorkingHours},
		{"off the hourly grid", day.Add(9*time.Hour + 30*time.Minute), ErrMisalignedSlot},
		{"non-zero seconds", day.Add(9*time.Hour + 15*time.Second), ErrMisalignedSlot},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, tc.at)
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, 0, env.store.Len(), "validation failures never touch the lock store")
		})
	}

	t.Run("last slot before closing is accepted", func(t *testing.T) {
		_, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, day.Add(16*time.Hour))
		require.NoError(t, err)
	})
}

func TestCreateBooking_UnknownActors(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := env.svc.CreateBooking(context.Background(), uuid.New(), requesterID, at)
	assert.ErrorIs(t, err, ErrProviderNotFound)

	_, err = env.svc.CreateBooking(context.Background(), providerID, uuid.New(), at)
	assert.ErrorIs(t, err, ErrRequesterNotFound)
}

func TestCreateBooking_OpenFutureBookingBlocksSecond(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")

	_, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	// Any future time with the same provider is refused until the first
	// booking resolves.
	_, err = env.svc.CreateBooking(context.Background(), providerID, requesterID, time.Date(2025, 1, 12, 14, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrOpenFutureBooking)

	// Cancelling the first booking reopens the relationship.
	appts, err := env.repo.ListProviderAppointmentsFrom(context.Background(), providerID, testNow)
	require.NoError(t, err)
	require.Len(t, appts, 1)
	_, err = env.svc.CancelBooking(context.Background(), appts[0].ID, requesterID)
	require.NoError(t, err)

	_, err = env.svc.CreateBooking(context.Background(), providerID, requesterID, time.Date(2025, 1, 12, 14, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestCreateBooking_ProviderConflictWindow(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	first := env.repo.AddRequester("Rowan Field")
	second := env.repo.AddRequester("Avery Lane")

	// An off-grid row can exist in the store (older data, wider grids); the
	// buffer window must still fence it off.
	_, err := env.repo.CreateAppointment(context.Background(), providerID, first, time.Date(2025, 1, 10, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = env.svc.CreateBooking(context.Background(), providerID, second, time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, ErrProviderConflict)
	assert.Equal(t, 0, env.store.Len(), "both leases released after the conflict")

	// One buffer-length away the provider is free again.
	_, err = env.svc.CreateBooking(context.Background(), providerID, second, time.Date(2025, 1, 10, 11, 0, 0, 0, time.UTC))
	assert.NoError(t, err)
}

func TestCreateBooking_DuplicateRequesterTimestamp(t *testing.T) {
	env := newTestEnv(t)
	providerA := env.repo.AddProvider("Dr. Ellis")
	providerB := env.repo.AddProvider("Dr. Marsh")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := env.svc.CreateBooking(context.Background(), providerA, requesterID, at)
	require.NoError(t, err)

	// Different provider, same instant: the requester cannot be in two
	// places at once.
	_, err = env.svc.CreateBooking(context.Background(), providerB, requesterID, at)
	assert.ErrorIs(t, err, ErrRequesterConflict)
	assert.Equal(t, 0, env.store.Len())
}

func TestCreateBooking_ProviderLockBusy(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	held, err := env.locks.Acquire(context.Background(), lock.RoleProvider, providerID, at)
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = env.svc.CreateBooking(context.Background(), providerID, requesterID, at)
	assert.ErrorIs(t, err, ErrProviderBusy)

	appts, _ := env.repo.ListProviderAppointmentsFrom(context.Background(), providerID, testNow)
	assert.Empty(t, appts, "no partial record on a busy provider")
	assert.Equal(t, 1, env.store.Len(), "only the externally held lease remains")
}

func TestCreateBooking_RequesterLockBusyReleasesProviderLock(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	held, err := env.locks.Acquire(context.Background(), lock.RoleRequester, requesterID, at)
	require.NoError(t, err)
	defer held.Release(context.Background())

	_, err = env.svc.CreateBooking(context.Background(), providerID, requesterID, at)
	assert.ErrorIs(t, err, ErrRequesterBusy)
	assert.Equal(t, 1, env.store.Len(), "provider lease must be released when the requester lease fails")
}

func TestCreateBooking_ConcurrentSameSlotExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	const attempts = 10
	requesters := make([]uuid.UUID, attempts)
	for i := range requesters {
		requesters[i] = env.repo.AddRequester("Requester")
	}

	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = env.svc.CreateBooking(context.Background(), providerID, requesters[i], at)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		if !errors.Is(err, ErrProviderBusy) && !errors.Is(err, ErrProviderConflict) {
			t.Fatalf("unexpected loser error: %v", err)
		}
	}

	assert.Equal(t, 1, successes, "exactly one concurrent booking must win")

	appts, err := env.repo.ListProviderAppointmentsFrom(context.Background(), providerID, testNow)
	require.NoError(t, err)
	assert.Len(t, appts, 1, "exactly one record persisted")
	assert.Equal(t, 0, env.store.Len(), "every loser released its leases")
}

func TestCancelBooking_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	appt, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, at)
	require.NoError(t, err)

	cancelled, err := env.svc.CancelBooking(context.Background(), appt.ID, requesterID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	// Terminal: nothing moves out of cancelled.
	_, err = env.svc.CancelBooking(context.Background(), appt.ID, requesterID)
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusCancelled, invalid.From)

	env.now = at.Add(time.Hour)
	_, err = env.svc.CompleteBooking(context.Background(), appt.ID, providerID)
	require.ErrorAs(t, err, &invalid)
}

func TestCancelBooking_Unauthorized(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")

	appt, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	_, err = env.svc.CancelBooking(context.Background(), appt.ID, uuid.New())
	var unauthorized *UnauthorizedTransitionError
	assert.ErrorAs(t, err, &unauthorized)

	_, err = env.svc.CancelBooking(context.Background(), uuid.New(), requesterID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestCompleteBooking_GatesOnScheduledTime(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	at := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	appt, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, at)
	require.NoError(t, err)

	_, err = env.svc.CompleteBooking(context.Background(), appt.ID, providerID)
	assert.ErrorIs(t, err, ErrNotYetElapsed)

	env.now = at.Add(time.Minute)
	completed, err := env.svc.CompleteBooking(context.Background(), appt.ID, providerID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	_, err = env.svc.CompleteBooking(context.Background(), appt.ID, providerID)
	var invalid *InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)
}

func TestListAvailability(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")
	day := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, day.Add(10*time.Hour))
	require.NoError(t, err)

	slots, err := env.svc.ListAvailability(context.Background(), providerID, day)
	require.NoError(t, err)

	require.Len(t, slots, 7)
	for _, s := range slots {
		assert.False(t, s.Equal(day.Add(10*time.Hour)))
	}

	_, err = env.svc.ListAvailability(context.Background(), uuid.New(), day)
	assert.ErrorIs(t, err, ErrProviderNotFound)
}

func TestListBookedSlots(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	first := env.repo.AddRequester("Rowan Field")
	second := env.repo.AddRequester("Avery Lane")

	early := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	late := time.Date(2025, 1, 11, 14, 0, 0, 0, time.UTC)

	_, err := env.svc.CreateBooking(context.Background(), providerID, first, late)
	require.NoError(t, err)
	second1, err := env.svc.CreateBooking(context.Background(), providerID, second, early)
	require.NoError(t, err)

	slots, err := env.svc.ListBookedSlots(context.Background(), providerID)
	require.NoError(t, err)
	require.Len(t, slots, 2)
	assert.True(t, slots[0].Equal(early), "booked slots ascend chronologically")
	assert.True(t, slots[1].Equal(late))

	// Cancelled bookings drop out of the read path.
	_, err = env.svc.CancelBooking(context.Background(), second1.ID, second)
	require.NoError(t, err)

	slots, err = env.svc.ListBookedSlots(context.Background(), providerID)
	require.NoError(t, err)
	require.Len(t, slots, 1)
	assert.True(t, slots[0].Equal(late))
}

func TestCreateBooking_LockStoreDownIsDependencyError(t *testing.T) {
	env := newTestEnv(t)
	providerID := env.repo.AddProvider("Dr. Ellis")
	requesterID := env.repo.AddRequester("Rowan Field")

	down := lock.NewManager(downStore{}, lock.Config{TTL: 10 * time.Second, Retries: 3, Sleep: func(time.Duration) {}})
	env.svc.locks = down

	_, err := env.svc.CreateBooking(context.Background(), providerID, requesterID, time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))

	var dep *DependencyError
	require.ErrorAs(t, err, &dep)
	assert.Equal(t, "acquire provider lock", dep.Op)
}

type downStore struct{}

func (downStore) SetIfAbsent(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("connection refused")
}

func (downStore) Delete(context.Context, string, string) error {
	return errors.New("connection refused")
}

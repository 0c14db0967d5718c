package booking

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusCompleted, true},
		{StatusCancelled, StatusScheduled, false},
		{StatusCancelled, StatusCompleted, false},
		{StatusCompleted, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAppointment_CanCancel(t *testing.T) {
	requesterID := uuid.New()
	appt := &Appointment{
		RequesterID: requesterID,
		ProviderID:  uuid.New(),
		Status:      StatusScheduled,
	}

	require.NoError(t, appt.CanCancel(requesterID))

	t.Run("wrong actor is unauthorized regardless of status", func(t *testing.T) {
		err := appt.CanCancel(uuid.New())
		var unauthorized *UnauthorizedTransitionError
		require.ErrorAs(t, err, &unauthorized)
		assert.Equal(t, "cancel", unauthorized.Action)
	})

	t.Run("terminal status names both states", func(t *testing.T) {
		done := &Appointment{RequesterID: requesterID, Status: StatusCompleted}
		err := done.CanCancel(requesterID)

		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, StatusCompleted, invalid.From)
		assert.Equal(t, StatusCancelled, invalid.To)
		assert.Contains(t, err.Error(), "completed")
		assert.Contains(t, err.Error(), "cancelled")
	})
}

func TestAppointment_CanComplete(t *testing.T) {
	providerID := uuid.New()
	scheduledAt := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	appt := &Appointment{
		ProviderID:  providerID,
		RequesterID: uuid.New(),
		ScheduledAt: scheduledAt,
		Status:      StatusScheduled,
	}

	t.Run("before the slot has elapsed", func(t *testing.T) {
		err := appt.CanComplete(providerID, scheduledAt.Add(-time.Minute))
		assert.ErrorIs(t, err, ErrNotYetElapsed)
	})

	t.Run("exactly at the slot is still too early", func(t *testing.T) {
		err := appt.CanComplete(providerID, scheduledAt)
		assert.ErrorIs(t, err, ErrNotYetElapsed)
	})

	t.Run("after the slot has elapsed", func(t *testing.T) {
		require.NoError(t, appt.CanComplete(providerID, scheduledAt.Add(time.Minute)))
	})

	t.Run("requester cannot complete", func(t *testing.T) {
		err := appt.CanComplete(appt.RequesterID, scheduledAt.Add(time.Hour))
		var unauthorized *UnauthorizedTransitionError
		require.ErrorAs(t, err, &unauthorized)
	})

	t.Run("cancelled appointment cannot complete", func(t *testing.T) {
		gone := &Appointment{ProviderID: providerID, ScheduledAt: scheduledAt, Status: StatusCancelled}
		err := gone.CanComplete(providerID, scheduledAt.Add(time.Hour))
		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
	})
}

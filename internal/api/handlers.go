package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slotwise/booking-engine/internal/booking"
)

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at must be RFC 3339")
			return
		}

		appt, err := svc.CreateBooking(r.Context(), providerID, requesterID, scheduledAt)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(appt))
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		appt, err := svc.GetBooking(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req CancelBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		requesterID, err := uuid.Parse(req.RequesterID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_requester_id", "requester_id must be a valid UUID")
			return
		}

		appt, err := svc.CancelBooking(r.Context(), id, requesterID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func completeBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseIDParam(w, r, "id", "invalid_appointment_id")
		if !ok {
			return
		}

		var req CompleteBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_provider_id", "provider_id must be a valid UUID")
			return
		}

		appt, err := svc.CompleteBooking(r.Context(), id, providerID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt))
	}
}

func listAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		dateStr := r.URL.Query().Get("date")
		date, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.ListAvailability(r.Context(), providerID, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			ProviderID:     providerID,
			Date:           dateStr,
			AvailableSlots: slots,
		})
	}
}

func listBookedSlotsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		providerID, ok := parseIDParam(w, r, "id", "invalid_provider_id")
		if !ok {
			return
		}

		slots, err := svc.ListBookedSlots(r.Context(), providerID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, BookedSlotsResponse{
			ProviderID:  providerID,
			BookedSlots: slots,
		})
	}
}

func parseIDParam(w http.ResponseWriter, r *http.Request, param, errCode string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, errCode, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// handleBookingError translates the service error taxonomy into HTTP.
func handleBookingError(w http.ResponseWriter, err error) {
	var invalidTransition *booking.InvalidTransitionError
	var unauthorized *booking.UnauthorizedTransitionError
	var dependency *booking.DependencyError

	switch {
	case errors.Is(err, booking.ErrScheduledInPast),
		errors.Is(err, booking.ErrOutsideWorkingHours),
		errors.Is(err, booking.ErrMisalignedSlot),
		errors.Is(err, booking.ErrNotYetElapsed):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())

	case errors.Is(err, booking.ErrProviderNotFound):
		writeError(w, http.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, booking.ErrRequesterNotFound):
		writeError(w, http.StatusNotFound, "requester_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())

	case errors.Is(err, booking.ErrProviderBusy),
		errors.Is(err, booking.ErrRequesterBusy):
		writeError(w, http.StatusConflict, "slot_being_booked", err.Error())
	case errors.Is(err, booking.ErrProviderConflict),
		errors.Is(err, booking.ErrRequesterConflict),
		errors.Is(err, booking.ErrOpenFutureBooking):
		writeError(w, http.StatusConflict, "booking_conflict", err.Error())

	case errors.As(err, &unauthorized):
		writeError(w, http.StatusForbidden, "unauthorized_transition", err.Error())
	case errors.As(err, &invalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())

	case errors.As(err, &dependency):
		writeError(w, http.StatusServiceUnavailable, "dependency_unavailable", err.Error())

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

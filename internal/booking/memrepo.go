package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for tests and local
// development. Semantics mirror the Postgres queries, including the
// cancelled-row exclusions and the status compare-and-swap.
type MemoryRepository struct {
	mu           sync.Mutex
	providers    map[uuid.UUID]Provider
	requesters   map[uuid.UUID]Requester
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		providers:    make(map[uuid.UUID]Provider),
		requesters:   make(map[uuid.UUID]Requester),
		appointments: make(map[uuid.UUID]Appointment),
		now:          time.Now,
	}
}

// AddProvider registers a provider and returns its id.
func (r *MemoryRepository) AddProvider(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	now := r.now().UTC()
	r.providers[id] = Provider{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	return id
}

// AddRequester registers a requester and returns its id.
func (r *MemoryRepository) AddRequester(name string) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.New()
	now := r.now().UTC()
	r.requesters[id] = Requester{ID: id, Name: name, CreatedAt: now, UpdatedAt: now}
	return id
}

func (r *MemoryRepository) GetProviderByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetRequesterByID(_ context.Context, id uuid.UUID) (*Requester, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	q, ok := r.requesters[id]
	if !ok {
		return nil, ErrRequesterNotFound
	}
	return &q, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListProviderAppointments(_ context.Context, providerID uuid.UUID, start, end time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.ProviderID != providerID || a.Status == StatusCancelled {
			continue
		}
		if a.ScheduledAt.Before(start) || !a.ScheduledAt.Before(end) {
			continue
		}
		out = append(out, a)
	}
	sortByScheduledAt(out)
	return out, nil
}

func (r *MemoryRepository) ListProviderAppointmentsFrom(_ context.Context, providerID uuid.UUID, from time.Time) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.ProviderID != providerID || a.Status == StatusCancelled {
			continue
		}
		if a.ScheduledAt.Before(from) {
			continue
		}
		out = append(out, a)
	}
	sortByScheduledAt(out)
	return out, nil
}

func (r *MemoryRepository) FindRequesterAppointmentAt(_ context.Context, requesterID uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.RequesterID == requesterID && a.Status != StatusCancelled && a.ScheduledAt.Equal(at) {
			found := a
			return &found, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) FindOpenBooking(_ context.Context, requesterID, providerID uuid.UUID, from time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.appointments {
		if a.RequesterID != requesterID || a.ProviderID != providerID {
			continue
		}
		if a.Status == StatusCancelled || a.Status == StatusCompleted {
			continue
		}
		if a.ScheduledAt.Before(from) {
			continue
		}
		found := a
		return &found, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, providerID, requesterID uuid.UUID, at time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	a := Appointment{
		ID:          uuid.New(),
		ProviderID:  providerID,
		RequesterID: requesterID,
		ScheduledAt: at,
		Status:      StatusScheduled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.appointments[a.ID] = a
	return &a, nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	a.Status = to
	a.UpdatedAt = r.now().UTC()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded audit trail.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func sortByScheduledAt(appts []Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		return appts[i].ScheduledAt.Before(appts[j].ScheduledAt)
	})
}

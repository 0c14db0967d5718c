package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Role namespaces lock keys so a provider lease and a requester lease never
// collide even when the actor ids coincide.
type Role string

const (
	RoleProvider  Role = "provider"
	RoleRequester Role = "requester"
)

// Store is the minimal contract the manager needs from a lock backend:
// an atomic set-if-absent with expiry and a guarded delete.
type Store interface {
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key only while it still holds value. A missing key or a
	// mismatched value is not an error.
	Delete(ctx context.Context, key, value string) error
}

// Key builds the resource key for one actor at one exact timestamp.
func Key(role Role, actorID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("booking:lock:%s:%s:%s", role, actorID, at.UTC().Format(time.RFC3339))
}

type Config struct {
	// TTL bounds how long a lease survives a crashed holder.
	TTL time.Duration

	// Retries is the total number of set-if-absent attempts per Acquire.
	Retries int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	// Sleep is swapped for a recorder in tests. Nil means time.Sleep.
	Sleep func(time.Duration)
}

// Manager hands out short-lived exclusive leases over a shared Store.
type Manager struct {
	store      Store
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
	sleep      func(time.Duration)
}

func NewManager(store Store, cfg Config) *Manager {
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	retries := cfg.Retries
	if retries < 1 {
		retries = 1
	}
	return &Manager{
		store:      store,
		ttl:        cfg.TTL,
		retries:    retries,
		retryDelay: cfg.RetryDelay,
		sleep:      sleep,
	}
}

// Acquire attempts the lease up to the configured number of times.
// ErrNotAcquired means the resource is busy, not that something broke.
func (m *Manager) Acquire(ctx context.Context, role Role, actorID uuid.UUID, at time.Time) (*Lease, error) {
	key := Key(role, actorID, at)
	token := uuid.NewString()

	for attempt := 0; attempt < m.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := m.store.SetIfAbsent(ctx, key, token, m.ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire %s lock: %w", role, err)
		}
		if ok {
			return &Lease{store: m.store, key: key, token: token}, nil
		}

		if attempt < m.retries-1 {
			m.sleep(m.retryDelay)
		}
	}

	return nil, ErrNotAcquired
}

// Lease is one held lock. Release is idempotent and token-guarded, so a
// lease that already expired and was re-acquired elsewhere stays untouched.
type Lease struct {
	store Store
	key   string
	token string

	mu       sync.Mutex
	released bool
}

func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.released {
		return nil
	}
	l.released = true

	if err := l.store.Delete(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}

// Key reports the resource key the lease covers.
func (l *Lease) Key() string {
	return l.key
}

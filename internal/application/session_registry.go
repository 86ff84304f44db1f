package application

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"xtrace-checkout/internal/domain"
	"xtrace-checkout/internal/infra/metrics"
	"xtrace-checkout/internal/usecase"
)

// SessionRegistry holds the live checkouts of this process by session id.
type SessionRegistry struct {
	uc usecase.CheckoutUseCase

	mu       sync.RWMutex
	sessions map[string]*usecase.Checkout
}

func NewSessionRegistry(uc usecase.CheckoutUseCase) *SessionRegistry {
	return &SessionRegistry{uc: uc, sessions: make(map[string]*usecase.Checkout)}
}

func (r *SessionRegistry) Create() *usecase.Checkout {
	c := r.uc.New(ulid.Make().String())
	r.mu.Lock()
	r.sessions[c.ID()] = c
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
	return c
}

func (r *SessionRegistry) Get(id string) (*usecase.Checkout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return c, nil
}

// Delete drops a session unless a payment flow still owns it.
func (r *SessionRegistry) Delete(id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return domain.ErrSessionNotFound
	}
	if c.Busy() {
		r.mu.Unlock()
		return domain.ErrFlowInProgress
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
	return nil
}

// Sweep removes sessions idle since before cutoff. Busy sessions are kept.
func (r *SessionRegistry) Sweep(cutoff time.Time) int {
	r.mu.Lock()
	removed := 0
	for id, c := range r.sessions {
		if c.Busy() || !c.IdleSince().Before(cutoff) {
			continue
		}
		delete(r.sessions, id)
		removed++
	}
	n := len(r.sessions)
	r.mu.Unlock()
	metrics.SetActiveSessions(n)
	return removed
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

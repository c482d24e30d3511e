package checkout

import (
	"sync"

	"github.com/ariefcatur/go-checkout-orders/internal/orders"
	"github.com/google/uuid"
)

// Registry keeps the live checkout sessions of this process, one per id.
type Registry struct {
	cfg Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, sessions: map[string]*Session{}}
}

// Create starts a session seeded with items.
func (r *Registry) Create(userID string, items []orders.CartItem) *Session {
	s := NewSession(uuid.NewString(), userID, r.cfg)
	s.InitializeCheckout(items)
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete resets and drops a session. Sessions holding an unsaved paid order
// are kept and ErrUnsavedOrder is returned.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	if s.HoldsPayment() {
		return ErrUnsavedOrder
	}
	s.ResetCheckout()
	delete(r.sessions, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

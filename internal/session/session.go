package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-pos-cartflow/internal/cart"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrBusy is returned by the guarded writes while a checkout holds the cart.
	ErrBusy = errors.New("checkout in progress")
)

// Session owns the cart of one register. All writes go through Dispatch so
// concurrent requests against the same register are serialised.
type Session struct {
	ID        string
	CashierID string
	StoreID   string
	TenantID  string
	CreatedAt time.Time

	defaultTaxRate decimal.Decimal

	mu    sync.Mutex
	state cart.State
}

// State returns a snapshot of the current cart.
func (s *Session) State() cart.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Dispatch applies a to the cart and returns the new state. After the cart
// is cleared, by ClearCart or a successful checkout, the register's default
// tax rate is put back.
func (s *Session) Dispatch(a cart.Action) cart.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatchLocked(a)
	return s.state
}

func (s *Session) dispatchLocked(a cart.Action) {
	s.state = cart.Reduce(s.state, a)
	switch a.(type) {
	case cart.ClearCart, cart.CheckoutSucceeded:
		s.applyDefaultsLocked()
	}
}

// DispatchIfIdle is Dispatch for cashier edits. It refuses with ErrBusy
// while the processing flag is up.
func (s *Session) DispatchIfIdle(a cart.Action) (cart.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Processing {
		return s.state, ErrBusy
	}
	s.dispatchLocked(a)
	return s.state, nil
}

// ReplaceIfIdle swaps the cart wholesale, used when a held sale is resumed.
// It refuses with ErrBusy while a checkout is running.
func (s *Session) ReplaceIfIdle(state cart.State) (cart.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Processing {
		return s.state, ErrBusy
	}
	s.state = state
	return s.state, nil
}

// BeginCheckout raises the processing flag. It returns false without
// changing anything if a checkout is already running.
func (s *Session) BeginCheckout() (cart.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Processing {
		return s.state, false
	}
	s.state = cart.Reduce(s.state, cart.BeginCheckout{})
	return s.state, true
}

func (s *Session) applyDefaultsLocked() {
	if !s.defaultTaxRate.IsZero() {
		s.state = cart.Reduce(s.state, cart.SetTaxRate{Rate: s.defaultTaxRate})
	}
}

// Registry holds the open register sessions in memory.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	nowFunc  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: map[string]*Session{},
		nowFunc:  time.Now,
	}
}

// Create opens a session with an empty cart carrying defaultTaxRate.
func (r *Registry) Create(cashierID, storeID, tenantID string, defaultTaxRate decimal.Decimal) *Session {
	s := &Session{
		ID:             uuid.New().String(),
		CashierID:      cashierID,
		StoreID:        storeID,
		TenantID:       tenantID,
		CreatedAt:      r.nowFunc().UTC(),
		defaultTaxRate: defaultTaxRate,
		state:          cart.EmptyState(),
	}
	s.applyDefaultsLocked()

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

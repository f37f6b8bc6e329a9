package store

import (
	"sync"

	"github.com/quartzfx/fxsim/internal/domain"
)

// OrderStore records externally placed orders, with a primary index by
// order ID and a secondary index by participant. Synthetic agent orders are
// not recorded here; only the user-facing path needs lookups.
type OrderStore struct {
	mu      sync.RWMutex
	orders  map[string]*domain.Order
	byOwner map[string][]*domain.Order // participant_id → orders, append-only
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[string]*domain.Order),
		byOwner: make(map[string][]*domain.Order),
	}
}

// Create adds an order and appends it to the owner's index.
func (s *OrderStore) Create(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[o.OrderID] = o
	s.byOwner[o.ParticipantID] = append(s.byOwner[o.ParticipantID], o)
}

// Get retrieves an order by ID. It returns domain.ErrOrderNotFound if the
// order does not exist.
func (s *OrderStore) Get(id string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return o, nil
}

// ListByParticipant returns up to limit of a participant's orders, newest
// first.
func (s *OrderStore) ListByParticipant(participantID string, limit int) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.byOwner[participantID]
	result := make([]*domain.Order, 0, limit)
	for i := len(all) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, all[i])
	}
	return result
}

// Clear removes every order.
func (s *OrderStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = make(map[string]*domain.Order)
	s.byOwner = make(map[string][]*domain.Order)
}

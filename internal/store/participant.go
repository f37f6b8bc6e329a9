package store

import (
	"math/rand"
	"sync"

	"github.com/quartzfx/fxsim/internal/domain"
)

// ParticipantStore is a thread-safe registry of participants with a
// per-type index for bounded sampling.
type ParticipantStore struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Participant
	byType map[domain.ParticipantType][]string
}

// NewParticipantStore creates an empty ParticipantStore.
func NewParticipantStore() *ParticipantStore {
	return &ParticipantStore{
		byID:   make(map[string]*domain.Participant),
		byType: make(map[domain.ParticipantType][]string),
	}
}

// Create adds a participant. It returns domain.ErrParticipantExists if the
// ID is already registered.
func (s *ParticipantStore) Create(p *domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ParticipantID]; exists {
		return domain.ErrParticipantExists
	}
	s.byID[p.ParticipantID] = p
	s.byType[p.Type] = append(s.byType[p.Type], p.ParticipantID)
	return nil
}

// Get retrieves a participant by ID. It returns
// domain.ErrUnknownParticipant if none exists.
func (s *ParticipantStore) Get(id string) (*domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrUnknownParticipant
	}
	return p, nil
}

// Sample returns up to limit participants of the given types, chosen without
// replacement via the supplied random source. The cost is bounded by limit,
// independent of the total population.
func (s *ParticipantStore) Sample(rng *rand.Rand, limit int, types ...domain.ParticipantType) []*domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for _, typ := range types {
		ids = append(ids, s.byType[typ]...)
	}
	if len(ids) <= limit {
		result := make([]*domain.Participant, 0, len(ids))
		for _, id := range ids {
			result = append(result, s.byID[id])
		}
		return result
	}

	result := make([]*domain.Participant, 0, limit)
	for _, i := range rng.Perm(len(ids))[:limit] {
		result = append(result, s.byID[ids[i]])
	}
	return result
}

// Count returns the number of registered participants.
func (s *ParticipantStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Clear removes every participant.
func (s *ParticipantStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = make(map[string]*domain.Participant)
	s.byType = make(map[domain.ParticipantType][]string)
}

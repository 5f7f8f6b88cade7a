package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Slowpokess/euro-lottery/internal/draw"
)

// MemoryStore is an in-memory DrawStore with the same transactional
// semantics as the Badger implementation. Used in tests and for
// single-process tooling.
type MemoryStore struct {
	mu          sync.Mutex
	states      map[string]draw.State
	assignments map[string]draw.WinAssignment // drawKey + "/" + ticketID
	tiers       map[string]draw.TierResult    // drawKey + "/" + tierName
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:      make(map[string]draw.State),
		assignments: make(map[string]draw.WinAssignment),
		tiers:       make(map[string]draw.TierResult),
	}
}

func (s *MemoryStore) GetState(key string) (*draw.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	copied := cloneState(state)
	return &copied, nil
}

func (s *MemoryStore) PutState(key string, state *draw.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[key] = cloneState(*state)
	return nil
}

func (s *MemoryStore) TransitionStatus(key string, from, to draw.Status) (*draw.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[key]
	if !ok {
		return nil, ErrNotFound
	}
	if state.Status != from {
		return nil, &draw.InvalidStateError{Expected: from, Actual: state.Status}
	}
	state.Status = to
	s.states[key] = state
	copied := cloneState(state)
	return &copied, nil
}

func (s *MemoryStore) GetAssignment(drawKey, ticketID string) (*draw.WinAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assignment, ok := s.assignments[drawKey+"/"+ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := assignment
	return &copied, nil
}

func (s *MemoryStore) PutAssignment(drawKey string, assignment *draw.WinAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := drawKey + "/" + assignment.TicketID
	if _, ok := s.assignments[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	s.assignments[key] = *assignment
	return nil
}

func (s *MemoryStore) ListAssignments(drawKey string) ([]*draw.WinAssignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*draw.WinAssignment, 0)
	for key, assignment := range s.assignments {
		if strings.HasPrefix(key, drawKey+"/") {
			copied := assignment
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TicketID < result[j].TicketID })
	return result, nil
}

func (s *MemoryStore) PutTierResult(drawKey string, result *draw.TierResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := drawKey + "/" + result.TierName
	if _, ok := s.tiers[key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, key)
	}
	s.tiers[key] = *result
	return nil
}

func (s *MemoryStore) ListTierResults(drawKey string) ([]*draw.TierResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*draw.TierResult, 0)
	for key, tier := range s.tiers {
		if strings.HasPrefix(key, drawKey+"/") {
			copied := tier
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TierName < result[j].TierName })
	return result, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func cloneState(state draw.State) draw.State {
	state.MainNumbers = append([]int(nil), state.MainNumbers...)
	state.ExtraNumbers = append([]int(nil), state.ExtraNumbers...)
	return state
}

package cart

import (
	"sync"
)

// Status is the lifecycle of the last authoritative operation.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// State is the cart snapshot together with the request lifecycle around it.
type State struct {
	Status    Status `json:"status"`
	Cart      *Cart  `json:"cart"`
	LastError string `json:"last_error,omitempty"`
}

// Store holds the local cart state. Only the Engine and the Reconciler write
// to it, and only through Replace, MarkLoading, MarkFailed, ApplyLocal and
// RevertItem; everyone else reads through Snapshot.
type Store struct {
	mu    sync.Mutex
	state State
}

// NewStore creates an empty store in the idle state.
func NewStore() *Store {
	return &Store{state: State{Status: StatusIdle}}
}

// Replace overwrites the snapshot with a successful authoritative response
// and clears the last error.
func (s *Store) Replace(c *Cart) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Cart = c.Clone()
	s.state.Status = StatusSucceeded
	s.state.LastError = ""
}

// MarkLoading records that an authoritative round trip is in flight.
func (s *Store) MarkLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = StatusLoading
}

// MarkFailed records a failed authoritative operation.
func (s *Store) MarkFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Status = StatusFailed
	s.state.LastError = err.Error()
}

// ApplyLocal runs a synchronous optimistic transform against the current
// cart. It never touches Status or LastError and is a no-op while no cart is
// loaded.
func (s *Store) ApplyLocal(mutate func(*Cart)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Cart == nil {
		return
	}
	mutate(s.state.Cart)
}

// RevertItem restores a single line to its pre-mutation quantity after a
// failed update. Other lines are left untouched; a missing line is a no-op.
func (s *Store) RevertItem(lineID int64, priorQuantity int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item := s.state.Cart.Find(lineID); item != nil {
		item.Quantity = priorQuantity
	}
}

// commitRemove drops the line matching the variant key acknowledged by the
// server and records the operation as succeeded. The delete acknowledgment
// carries no cart body, so this is the replace step for removals.
func (s *Store) commitRemove(variantID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Cart.RemoveByVariant(variantID)
	s.state.Status = StatusSucceeded
	s.state.LastError = ""
}

// Snapshot returns a deep copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Status:    s.state.Status,
		Cart:      s.state.Cart.Clone(),
		LastError: s.state.LastError,
	}
}

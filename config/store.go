package config

import (
	"sync"
	"sync/atomic"
)

// Snapshot is one published configuration. It is never modified after publication.
type Snapshot struct {
	Generation uint64
	Keyer      Keyer
}

// Store publishes configuration snapshots. Load is wait-free and may be called from
// the RT loop; Update serializes writers.
type Store struct {
	mu  sync.Mutex
	cur atomic.Pointer[Snapshot]
}

// NewStore validates k and publishes it as generation 1.
func NewStore(k Keyer) (*Store, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	s := &Store{}
	s.cur.Store(&Snapshot{Generation: 1, Keyer: k})

	return s, nil
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.cur.Load()
}

// Generation returns the current generation.
func (s *Store) Generation() uint64 {
	return s.cur.Load().Generation
}

// Update validates k and publishes it with the next generation. An invalid
// configuration leaves the store unchanged.
func (s *Store) Update(k Keyer) (*Snapshot, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := &Snapshot{Generation: s.cur.Load().Generation + 1, Keyer: k}
	s.cur.Store(next)

	return next, nil
}

// Modify applies fn to a copy of the current configuration and publishes the result.
func (s *Store) Modify(fn func(*Keyer)) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.cur.Load()
	k := cur.Keyer
	fn(&k)
	if err := k.Validate(); err != nil {
		return nil, err
	}

	next := &Snapshot{Generation: cur.Generation + 1, Keyer: k}
	s.cur.Store(next)

	return next, nil
}

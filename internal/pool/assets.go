// assets.go - Concurrency-safe asset index.
//
// The index lock only guards the map; each assetState carries its own mutex,
// so operations on different assets never contend.

package pool

import (
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

type syncMap struct {
	mu sync.RWMutex
	m  map[string]*assetState
}

func (s *syncMap) get(k string) (*assetState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[k]
	return st, ok
}

func (s *syncMap) getOrCreate(k string, id fr.Element) *assetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]*assetState)
	}
	st, ok := s.m[k]
	if !ok {
		st = newAssetState()
		st.id = id
		s.m[k] = st
	}
	return st
}

// snapshot returns the current set of asset states. The slice is a copy; the
// states themselves still need their own locks.
func (s *syncMap) snapshot() []*assetState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*assetState, 0, len(s.m))
	for _, st := range s.m {
		out = append(out, st)
	}
	return out
}

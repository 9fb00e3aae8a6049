// Package sampler implements the ReservoirSampler contract of spec §4.3:
// classical Algorithm R reservoir sampling, reseeded per block from the
// block hash so that any observer recomputing the same chain history
// reproduces the identical sample. There is no library in this project's
// retrieval pack for seeded deterministic PRNGs, so this is built on
// math/rand.NewSource fed a folded SHA-256 digest of the seed — the
// narrowest possible standard-library use, justified in this project's
// design notes because spec §4.3 explicitly forbids dependence on any
// process-global RNG.
package sampler

import (
	"crypto/sha256"
	"encoding/binary"
	"math/rand"
	"sync"
)

// Sampler holds a fixed-capacity reservoir over a stream of items,
// reseeded per block per spec §4.3.
type Sampler struct {
	mu        sync.Mutex
	capacity  int
	rng       *rand.Rand
	seen      int
	reservoir []string
}

// New returns a Sampler with the given fixed reservoir capacity
// (spec §6's sample_size).
func New(capacity int) *Sampler {
	return &Sampler{capacity: capacity}
}

// Reset reseeds the PRNG from seed (normally a block hash) and clears the
// reservoir, per spec §4.3.
func (s *Sampler) Reset(seed []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = rand.New(rand.NewSource(foldSeed(seed)))
	s.seen = 0
	s.reservoir = s.reservoir[:0]
}

// foldSeed folds a SHA-256 digest of seed down to an int64 suitable for
// rand.NewSource, giving a deterministic seed independent of wall clock
// or process state.
func foldSeed(seed []byte) int64 {
	digest := sha256.Sum256(seed)
	return int64(binary.BigEndian.Uint64(digest[:8]))
}

// Observe feeds one item through Algorithm R: the first k items always
// join the reservoir; subsequent items replace a uniformly random slot
// with probability k/n.
func (s *Sampler) Observe(item string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen++
	if len(s.reservoir) < s.capacity {
		s.reservoir = append(s.reservoir, item)
		return
	}
	if s.capacity == 0 {
		return
	}
	j := s.rng.Intn(s.seen)
	if j < s.capacity {
		s.reservoir[j] = item
	}
}

// Sample returns the reservoir's current contents. The returned slice is
// a copy; callers may not mutate the Sampler's internal state through it.
func (s *Sampler) Sample() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.reservoir))
	copy(out, s.reservoir)
	return out
}

// Clear drops the reservoir's contents without touching the PRNG state,
// per spec §4.3.
func (s *Sampler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = 0
	s.reservoir = s.reservoir[:0]
}

// Package entropy provides the random sources used for stochastic decisions:
// interaction rolls, greeting choice, and resident generation.
// Seeded sources make runs reproducible; the crypto source is the fallback.
package entropy

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	mrand "math/rand"
	"sync"
)

// Source yields uniform random numbers. Implementations are safe for concurrent use.
type Source interface {
	Float64() float64 // [0, 1)
	Intn(n int) int   // [0, n); panics if n <= 0
}

// Seeded is a deterministic source.
type Seeded struct {
	mu  sync.Mutex
	rng *mrand.Rand
}

// NewSeeded returns a deterministic source for seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{rng: mrand.New(mrand.NewSource(seed))}
}

// Float64 returns a number in [0, 1).
func (s *Seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

// Intn returns a number in [0, n).
func (s *Seeded) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Crypto draws from crypto/rand.
type Crypto struct{}

// Float64 returns a number in [0, 1).
func (Crypto) Float64() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return mrand.Float64()
	}
	return float64(binary.LittleEndian.Uint64(buf[:])>>11) / float64(1<<53)
}

// Intn returns a number in [0, n).
func (c Crypto) Intn(n int) int {
	if n <= 0 {
		panic("entropy: Intn called with n <= 0")
	}
	return int(math.Floor(c.Float64() * float64(n)))
}

// New returns a seeded source, or the crypto source when seed is zero.
func New(seed int64) Source {
	if seed == 0 {
		return Crypto{}
	}
	return NewSeeded(seed)
}

// Derive returns an independent source for a named consumer of a seeded run,
// so each agent's draws don't depend on scheduling order.
func Derive(seed int64, name string) Source {
	if seed == 0 {
		return Crypto{}
	}
	h := uint64(14695981039346656037)
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= 1099511628211
	}
	return NewSeeded(seed ^ int64(h))
}

// Pick returns a uniformly chosen element of options, or the zero value if empty.
func Pick[T any](src Source, options []T) T {
	var zero T
	if len(options) == 0 {
		return zero
	}
	return options[src.Intn(len(options))]
}

package service

import (
	"math/rand"
	"sync"
)

// RandSource is the randomness the simulators draw from. *rand.Rand
// satisfies it; tests substitute fixed sequences.
type RandSource interface {
	// Float64 returns a value in [0, 1)
	Float64() float64
}

// NewRandSource returns a seeded source that is safe to share between goroutines
func NewRandSource(seed int64) RandSource {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// intn draws an integer in [0, n) from src
func intn(src RandSource, n int) int {
	if n <= 0 {
		return 0
	}
	i := int(src.Float64() * float64(n))
	if i >= n {
		i = n - 1
	}
	return i
}

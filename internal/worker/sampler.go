package worker

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Sampler draws the two random quantities of one simulated send.
type Sampler interface {
	// Delay is the simulated send latency.
	Delay() time.Duration
	// Fail reports whether the send fails.
	Fail() bool
}

// RandomSampler draws exponentially distributed delays with the given mean
// and fails with probability failureRate.
type RandomSampler struct {
	mu          sync.Mutex
	rng         *rand.Rand
	mean        time.Duration
	failureRate float64
}

// NewRandomSampler seeds a PCG generator. A zero seed picks a random one.
func NewRandomSampler(mean time.Duration, failureRate float64, seed uint64) *RandomSampler {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomSampler{
		rng:         rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		mean:        mean,
		failureRate: failureRate,
	}
}

func (s *RandomSampler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Duration(s.rng.ExpFloat64() * float64(s.mean))
}

func (s *RandomSampler) Fail() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64() < s.failureRate
}

package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRandomSampler_DelayMean(t *testing.T) {
	const n = 20000
	mean := 2 * time.Second
	s := NewRandomSampler(mean, 0, 1234)

	var total time.Duration
	for i := 0; i < n; i++ {
		d := s.Delay()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		total += d
	}

	got := float64(total) / n
	assert.InEpsilon(t, float64(mean), got, 0.05)
}

func TestRandomSampler_FailureFrequency(t *testing.T) {
	const n = 20000
	s := NewRandomSampler(time.Second, 0.3, 99)

	failures := 0
	for i := 0; i < n; i++ {
		if s.Fail() {
			failures++
		}
	}

	assert.InDelta(t, 0.3, float64(failures)/n, 0.02)
}

func TestRandomSampler_Bounds(t *testing.T) {
	never := NewRandomSampler(time.Second, 0, 5)
	always := NewRandomSampler(time.Second, 1, 5)
	for i := 0; i < 1000; i++ {
		assert.False(t, never.Fail())
		assert.True(t, always.Fail())
	}
}

func TestRandomSampler_SeedIsDeterministic(t *testing.T) {
	a := NewRandomSampler(time.Second, 0.5, 77)
	b := NewRandomSampler(time.Second, 0.5, 77)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Delay(), b.Delay())
		assert.Equal(t, a.Fail(), b.Fail())
	}
}

package stats

import (
	"encoding/json"
	"fmt"
	"time"

	apperrors "smssim/pkg/errors"
)

// Aggregate is the shared running total across all workers. The stored
// form is a flat JSON object {"sent", "failed", "total_time"}.
type Aggregate struct {
	Sent      uint64  `json:"sent"`
	Failed    uint64  `json:"failed"`
	TotalTime float64 `json:"total_time"` // seconds spent on successful sends
}

// Delta is one worker's contribution for a single processed item.
type Delta struct {
	Sent      uint64
	Failed    uint64
	TimeSpent float64 // seconds
}

func Success(elapsed time.Duration) Delta {
	return Delta{Sent: 1, TimeSpent: elapsed.Seconds()}
}

func Failure() Delta {
	return Delta{Failed: 1}
}

// Add returns a copy of a with d folded in. Negative time is clamped so
// total_time never decreases.
func (a Aggregate) Add(d Delta) Aggregate {
	spent := d.TimeSpent
	if spent < 0 {
		spent = 0
	}
	return Aggregate{
		Sent:      a.Sent + d.Sent,
		Failed:    a.Failed + d.Failed,
		TotalTime: a.TotalTime + spent,
	}
}

// AvgTime is total_time / sent, or 0 before the first success.
func (a Aggregate) AvgTime() float64 {
	if a.Sent == 0 {
		return 0
	}
	return a.TotalTime / float64(a.Sent)
}

func (a Aggregate) Encode() (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", fmt.Errorf("failed to encode stats: %w", err)
	}
	return string(data), nil
}

// ParseAggregate decodes a stored value. An empty value is the zero
// aggregate.
func ParseAggregate(value string) (Aggregate, error) {
	if value == "" {
		return Aggregate{}, nil
	}

	var a Aggregate
	if err := json.Unmarshal([]byte(value), &a); err != nil {
		return Aggregate{}, apperrors.ErrDecode.
			WithCause(err).
			WithDetail("message", "stored stats value is not a valid aggregate")
	}

	if a.TotalTime < 0 {
		return Aggregate{}, apperrors.ErrDecode.
			WithDetail("message", fmt.Sprintf("stored total_time is negative: %v", a.TotalTime))
	}

	return a, nil
}

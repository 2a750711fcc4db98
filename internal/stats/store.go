package stats

import (
	"context"
	"fmt"

	"smssim/internal/constants"
)

type Reader interface {
	Read(ctx context.Context) (Aggregate, error)
}

type Store interface {
	Reader
	Write(ctx context.Context, a Aggregate) error
	Update(ctx context.Context, d Delta) error
}

// KV is the string get/set surface the aggregate is kept in.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// AtomicKV can apply a transformation to one key without interleaving with
// other writers of that key.
type AtomicKV interface {
	KV
	Apply(ctx context.Context, key string, fn func(current string, found bool) (string, error)) error
}

type Policy string

const (
	// PolicyReadModifyWrite reads, adds and writes back in three separate
	// steps. Concurrent workers can overwrite each other's increments.
	PolicyReadModifyWrite Policy = constants.UpdatePolicyReadModifyWrite
	// PolicyAtomic folds each delta in under the store's own concurrency
	// control, so no increment is lost.
	PolicyAtomic Policy = constants.UpdatePolicyAtomic
)

type KVStore struct {
	kv     KV
	key    string
	policy Policy
}

func NewStore(kv KV, key string, policy Policy) (*KVStore, error) {
	if key == "" {
		return nil, fmt.Errorf("stats key cannot be empty")
	}

	switch policy {
	case PolicyReadModifyWrite:
	case PolicyAtomic:
		if _, ok := kv.(AtomicKV); !ok {
			return nil, fmt.Errorf("update policy %q requires a store with atomic updates", policy)
		}
	default:
		return nil, fmt.Errorf("unknown update policy: %q", policy)
	}

	return &KVStore{kv: kv, key: key, policy: policy}, nil
}

func (s *KVStore) Policy() Policy {
	return s.policy
}

// Read returns the current aggregate, or the zero value if none has been
// written yet.
func (s *KVStore) Read(ctx context.Context) (Aggregate, error) {
	value, found, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return Aggregate{}, fmt.Errorf("failed to read stats: %w", err)
	}
	if !found {
		return Aggregate{}, nil
	}
	return ParseAggregate(value)
}

func (s *KVStore) Write(ctx context.Context, a Aggregate) error {
	value, err := a.Encode()
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.key, value); err != nil {
		return fmt.Errorf("failed to write stats: %w", err)
	}
	return nil
}

func (s *KVStore) Update(ctx context.Context, d Delta) error {
	if s.policy == PolicyAtomic {
		return s.kv.(AtomicKV).Apply(ctx, s.key, func(current string, found bool) (string, error) {
			a, err := ParseAggregate(current)
			if err != nil {
				return "", err
			}
			return a.Add(d).Encode()
		})
	}

	a, err := s.Read(ctx)
	if err != nil {
		return err
	}
	return s.Write(ctx, a.Add(d))
}

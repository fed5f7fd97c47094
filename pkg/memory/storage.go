package memory

import (
	"context"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/samueltorres/hitcounter/pkg/counter"
)

var _ counter.CounterStorage = (*Storage)(nil)

// Storage keeps counters in process memory. It is meant for local runs and
// tests; state is lost on restart and not shared between replicas.
type Storage struct {
	cache *cache.Cache
}

func NewStorage() *Storage {
	return &Storage{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (s *Storage) Get(ctx context.Context, name string) (int64, bool, error) {
	v, ok := s.cache.Get(name)
	if !ok {
		return 0, false, nil
	}

	n, ok := v.(int64)
	if !ok {
		return 0, false, errors.Errorf("memory storage: value of %q is %T, not int64", name, v)
	}
	return n, true, nil
}

func (s *Storage) Set(ctx context.Context, name string, value int64) error {
	s.cache.Set(name, value, cache.NoExpiration)
	return nil
}

func (s *Storage) SetNX(ctx context.Context, name string, value int64) (bool, error) {
	// Add fails only when the key is already present
	if err := s.cache.Add(name, value, cache.NoExpiration); err != nil {
		return false, nil
	}
	return true, nil
}

func (s *Storage) Incr(ctx context.Context, name string) (int64, error) {
	n, err := s.cache.IncrementInt64(name, 1)
	if err != nil {
		if _, ok := s.cache.Get(name); !ok {
			return 0, counter.ErrNonExistingCounter
		}
		return 0, errors.Wrap(err, "memory storage increment failure")
	}
	return n, nil
}

func (s *Storage) Del(ctx context.Context, name string) error {
	s.cache.Delete(name)
	return nil
}

func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	items := s.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *Storage) Ping(ctx context.Context) error {
	return nil
}

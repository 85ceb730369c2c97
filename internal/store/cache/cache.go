// Package cache memoizes store reads for a bounded TTL.
package cache

import (
	"context"
	"iter"
	"sync"
	"time"

	"radar/internal/observation"
	"radar/internal/store"
)

type entry struct {
	value   any
	expires time.Time
}

// Store decorates a store.Store. Writes invalidate every cached read before
// they return, so a report issued after an upload always sees it.
type Store struct {
	next store.Store
	ttl  time.Duration
	now  func() time.Time

	mu         sync.Mutex
	generation uint64
	entries    map[string]entry
}

var _ store.Store = (*Store)(nil)

// Wrap returns next unchanged when ttl <= 0.
func Wrap(next store.Store, ttl time.Duration) store.Store {
	if ttl <= 0 {
		return next
	}
	return New(next, ttl)
}

func New(next store.Store, ttl time.Duration) *Store {
	return &Store{next: next, ttl: ttl, now: time.Now, entries: map[string]entry{}}
}

// Invalidate drops every cached result. Loads started before the call are
// not stored.
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.generation++
	clear(s.entries)
	s.mu.Unlock()
}

func (s *Store) get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return nil, false
	}
	return e.value, true
}

func (s *Store) gen() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Store) put(gen uint64, key string, v any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen == s.generation {
		s.entries[key] = entry{value: v, expires: s.now().Add(s.ttl)}
	}
}

func (s *Store) Append(ctx context.Context, obs []observation.Observation) (int, error) {
	n, err := s.next.Append(ctx, obs)
	if n > 0 || err == nil {
		s.Invalidate()
	}
	return n, err
}

func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.next.Prune(ctx, before)
	s.Invalidate()
	return n, err
}

// Scan replays a cached page set, or streams from the wrapped store and caches
// the result once the sequence is fully drained.
func (s *Store) Scan(ctx context.Context, f store.Filter) iter.Seq2[observation.Observation, error] {
	key := "scan:" + f.CacheKey()
	return func(yield func(observation.Observation, error) bool) {
		if v, ok := s.get(key); ok {
			for _, o := range v.([]observation.Observation) {
				if !yield(o, nil) {
					return
				}
			}
			return
		}
		gen := s.gen()
		var buf []observation.Observation
		for o, err := range s.next.Scan(ctx, f) {
			if err != nil {
				yield(o, err)
				return
			}
			buf = append(buf, o)
			if !yield(o, nil) {
				return
			}
		}
		s.put(gen, key, buf)
	}
}

func (s *Store) Dates(ctx context.Context, f store.Filter) ([]time.Time, error) {
	return memo(s, "dates:"+f.CacheKey(), func() ([]time.Time, error) { return s.next.Dates(ctx, f) })
}

func (s *Store) Competitors(ctx context.Context, f store.Filter) ([]string, error) {
	return memo(s, "competitors:"+f.CacheKey(), func() ([]string, error) { return s.next.Competitors(ctx, f) })
}

func (s *Store) Count(ctx context.Context, f store.Filter) (int64, error) {
	return s.next.Count(ctx, f)
}

func (s *Store) Close() error {
	return s.next.Close()
}

func memo[T any](s *Store, key string, load func() (T, error)) (T, error) {
	if v, ok := s.get(key); ok {
		return v.(T), nil
	}
	gen := s.gen()
	v, err := load()
	if err != nil {
		return v, err
	}
	s.put(gen, key, v)
	return v, nil
}

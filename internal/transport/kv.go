package transport

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// kvStore is a capacity-bounded, TTL-expiring key-value store backing
// the Transport's KV surface.
// Entries default to defaultTTL; StoreWithTTL layers a per-key timer on
// top of the shared cache for callers that need a different lifetime.
type kvStore struct {
	cache      *expirable.LRU[string, string]
	defaultTTL time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

// NewKVStore constructs a KVStore backed by an expirable LRU cache of
// the given capacity and default entry lifetime.
func NewKVStore(capacity int, defaultTTL time.Duration) KVStore {
	if capacity <= 0 {
		capacity = 4096
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &kvStore{
		cache:      expirable.NewLRU[string, string](capacity, nil, defaultTTL),
		defaultTTL: defaultTTL,
		timers:     make(map[string]*time.Timer),
	}
}

func (s *kvStore) Store(key, value string) error {
	return s.StoreWithTTL(key, value, s.defaultTTL)
}

func (s *kvStore) StoreWithTTL(key, value string, ttl time.Duration) error {
	s.cache.Add(key, value)
	s.clearTimer(key)

	if ttl > 0 && ttl != s.defaultTTL {
		timer := time.AfterFunc(ttl, func() {
			s.cache.Remove(key)
			s.timersMu.Lock()
			delete(s.timers, key)
			s.timersMu.Unlock()
		})
		s.timersMu.Lock()
		s.timers[key] = timer
		s.timersMu.Unlock()
	}
	return nil
}

func (s *kvStore) Retrieve(key string) (string, bool, error) {
	value, ok := s.cache.Get(key)
	return value, ok, nil
}

func (s *kvStore) Delete(key string) error {
	s.clearTimer(key)
	s.cache.Remove(key)
	return nil
}

func (s *kvStore) Exists(key string) (bool, error) {
	return s.cache.Contains(key), nil
}

func (s *kvStore) clearTimer(key string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

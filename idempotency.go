package txcontroller

import (
	"sync"
	"time"
)

// idemStore keeps the mapping from caller-supplied idempotency keys to the
// record ids they produced. Entries expire after the configured TTL so a
// key can be reused once the original submission is stale.
type idemStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]idemEntry

	now func() time.Time
}

type idemEntry struct {
	id      string
	expires time.Time
}

func newIdemStore(ttl time.Duration) *idemStore {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &idemStore{
		ttl:     ttl,
		entries: make(map[string]idemEntry),
		now:     time.Now,
	}
}

// lookup returns the record id previously remembered for the key, if the
// entry is still live. Expired entries are purged on the way.
func (s *idemStore) lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	e, ok := s.entries[key]
	if !ok {
		return "", false
	}
	return e.id, true
}

// remember binds the key to the record id for the store's TTL. Empty keys
// are ignored.
func (s *idemStore) remember(key, id string) {
	if key == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.entries[key] = idemEntry{id: id, expires: s.now().Add(s.ttl)}
}

func (s *idemStore) purgeLocked() {
	now := s.now()
	for k, e := range s.entries {
		if now.After(e.expires) {
			delete(s.entries, k)
		}
	}
}

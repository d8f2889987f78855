package cache

import (
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	gocache "github.com/patrickmn/go-cache"
)

type localEntry struct {
	data      []byte
	expiresAt time.Time
}

// localStore is the in-process fallback tier.
// go-cache's janitor evicts on wall time; visibility is decided against the injected clock.
type localStore struct {
	entries *gocache.Cache
	clock   clockwork.Clock
}

func newLocalStore(clock clockwork.Clock, cleanupInterval time.Duration) *localStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &localStore{
		entries: gocache.New(gocache.NoExpiration, cleanupInterval),
		clock:   clock,
	}
}

func (l *localStore) get(key string) ([]byte, bool) {
	item, found := l.entries.Get(key)
	if !found {
		return nil, false
	}
	entry := item.(localEntry)
	if !l.clock.Now().Before(entry.expiresAt) {
		l.entries.Delete(key)
		return nil, false
	}
	return entry.data, true
}

func (l *localStore) set(key string, data []byte, ttl time.Duration) {
	// The janitor horizon is padded so fake-clock tests decide expiry, not wall time
	l.entries.Set(key, localEntry{data: data, expiresAt: l.clock.Now().Add(ttl)}, ttl+time.Minute)
}

func (l *localStore) delete(key string) bool {
	_, found := l.entries.Get(key)
	l.entries.Delete(key)
	return found
}

// clearPrefix removes every entry under prefix, expired or not
func (l *localStore) clearPrefix(prefix string) int {
	count := 0
	for key := range l.entries.Items() {
		if strings.HasPrefix(key, prefix) {
			l.entries.Delete(key)
			count++
		}
	}
	return count
}

// live counts entries still visible at the current clock instant
func (l *localStore) live() int {
	now := l.clock.Now()
	count := 0
	for _, item := range l.entries.Items() {
		if entry, ok := item.Object.(localEntry); ok && now.Before(entry.expiresAt) {
			count++
		}
	}
	return count
}

// Package cache provides a namespaced TTL cache with a distributed tier and a local fallback.
//
// Reads and writes go to the distributed backend while it is reachable. Any backend error
// marks it down for a retry interval and the call is served by the local tier instead, so
// callers only ever observe a miss, never a failure. Deletes and clears that could not reach
// the backend are queued and replayed when it comes back, before it serves another read.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// Namespaces with a default TTL class
const (
	NamespaceEmbedding    = "embedding"
	NamespaceMoodContext  = "mood_context"
	NamespaceSearchResult = "search_result"
	NamespaceImportance   = "importance"
)

// DefaultTTLs maps a TTL class to its default lifetime
var DefaultTTLs = map[string]time.Duration{
	NamespaceEmbedding:    24 * time.Hour,
	NamespaceMoodContext:  5 * time.Minute,
	NamespaceSearchResult: 10 * time.Minute,
	NamespaceImportance:   1 * time.Hour,
}

// FallbackTTL applies to namespaces outside the known classes
const FallbackTTL = 10 * time.Minute

// maxPendingInvalidations bounds the outage queue; past it the whole prefix is cleared on recovery
const maxPendingInvalidations = 1024

// ErrSerialize is returned when a value cannot be encoded for storage
var ErrSerialize = errors.New("cache value not serializable")

// Status tags the outcome of a read
type Status int

const (
	StatusMiss Status = iota
	StatusHit
	// StatusBackendDown means the distributed tier failed and the local tier had nothing
	StatusBackendDown
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusBackendDown:
		return "backend_down"
	default:
		return "miss"
	}
}

// Result of a Get. Degraded is set whenever the answer came from the local tier
// because the distributed tier was unavailable.
type Result struct {
	Status   Status
	Degraded bool
}

// Hit reports whether the destination was populated
func (r Result) Hit() bool {
	return r.Status == StatusHit
}

// Stats is a point-in-time view of cache effectiveness
type Stats struct {
	Hits             int64   `json:"cache_hits"`
	Misses           int64   `json:"cache_misses"`
	TotalRequests    int64   `json:"total_requests"`
	HitRate          float64 `json:"hit_rate"`
	LocalEntries     int     `json:"in_memory_entries"`
	BackendAvailable bool    `json:"redis_available"`
}

// Config tunes a Store
type Config struct {
	Prefix          string
	ProbeTimeout    time.Duration
	RetryInterval   time.Duration
	CleanupInterval time.Duration
}

// DefaultConfig returns the standard settings
func DefaultConfig() Config {
	return Config{
		Prefix:          "warmth",
		ProbeTimeout:    500 * time.Millisecond,
		RetryInterval:   30 * time.Second,
		CleanupInterval: 10 * time.Minute,
	}
}

// Store is the two-tier cache. A nil backend runs local-only.
type Store struct {
	backend Backend
	local   *localStore
	clock   clockwork.Clock
	config  Config

	mu        sync.Mutex
	down      bool
	downUntil time.Time

	// invalidations owed to the backend, guarded by mu
	pendingKeys     map[string]struct{}
	pendingPrefixes map[string]struct{}

	hits   atomic.Int64
	misses atomic.Int64
}

// NewStore creates a cache store
func NewStore(backend Backend, clock clockwork.Clock, config Config) *Store {
	defaults := DefaultConfig()
	if config.Prefix == "" {
		config.Prefix = defaults.Prefix
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	s := &Store{
		backend:         backend,
		local:           newLocalStore(clock, config.CleanupInterval),
		clock:           clock,
		config:          config,
		pendingKeys:     make(map[string]struct{}),
		pendingPrefixes: make(map[string]struct{}),
	}
	setBackendGauge(backend != nil)
	if backend == nil {
		log.Println("⚠️  [CACHE] No distributed backend configured, using in-memory cache only")
	}
	return s
}

// TTLFor returns the default TTL of a namespace's class (the segment before the first ':')
func TTLFor(namespace string) time.Duration {
	class, _, _ := strings.Cut(namespace, ":")
	if ttl, ok := DefaultTTLs[class]; ok {
		return ttl
	}
	return FallbackTTL
}

func (s *Store) fullKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.config.Prefix, namespace, key)
}

// usable reports whether the backend should be tried. After the retry interval a probe decides.
func (s *Store) usable(ctx context.Context) bool {
	if s.backend == nil {
		return false
	}

	s.mu.Lock()
	if !s.down {
		s.mu.Unlock()
		return true
	}
	if s.clock.Now().Before(s.downUntil) {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	return s.Probe(ctx)
}

// Probe pings the backend within the probe timeout and updates availability.
// Queued invalidations are replayed before the backend is considered up.
func (s *Store) Probe(ctx context.Context) bool {
	if s.backend == nil {
		return false
	}
	pctx, cancel := context.WithTimeout(ctx, s.config.ProbeTimeout)
	err := s.backend.Ping(pctx)
	cancel()
	if err != nil {
		s.markDown(err)
		return false
	}

	if err := s.replayInvalidations(ctx); err != nil {
		s.markDown(err)
		return false
	}

	s.mu.Lock()
	wasDown := s.down
	s.down = false
	s.mu.Unlock()

	if wasDown {
		log.Println("✅ [CACHE] Distributed backend reachable again")
	}
	setBackendGauge(true)
	return true
}

func (s *Store) markDown(err error) {
	s.mu.Lock()
	wasDown := s.down
	s.down = true
	s.downUntil = s.clock.Now().Add(s.config.RetryInterval)
	s.mu.Unlock()

	if !wasDown {
		log.Printf("⚠️  [CACHE] Distributed backend unavailable, falling back to in-memory: %v", err)
	}
	setBackendGauge(false)
}

// deferInvalidation records a delete (or, with prefix set, a clear) the backend missed
func (s *Store) deferInvalidation(target string, prefix bool) {
	if s.backend == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if prefix {
		s.pendingPrefixes[target] = struct{}{}
		return
	}
	if len(s.pendingKeys) >= maxPendingInvalidations {
		s.pendingKeys = make(map[string]struct{})
		s.pendingPrefixes[s.config.Prefix+":"] = struct{}{}
		return
	}
	s.pendingKeys[target] = struct{}{}
}

// PendingInvalidations reports how many deletes and clears are waiting for the backend
func (s *Store) PendingInvalidations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingKeys) + len(s.pendingPrefixes)
}

func (s *Store) replayInvalidations(ctx context.Context) error {
	s.mu.Lock()
	keys := s.pendingKeys
	prefixes := s.pendingPrefixes
	s.pendingKeys = make(map[string]struct{})
	s.pendingPrefixes = make(map[string]struct{})
	s.mu.Unlock()

	if len(keys) == 0 && len(prefixes) == 0 {
		return nil
	}

	requeue := func() {
		s.mu.Lock()
		for k := range keys {
			s.pendingKeys[k] = struct{}{}
		}
		for p := range prefixes {
			s.pendingPrefixes[p] = struct{}{}
		}
		s.mu.Unlock()
	}

	if len(keys) > 0 {
		batch := make([]string, 0, len(keys))
		for k := range keys {
			batch = append(batch, k)
		}
		bctx, cancel := s.backendCtx(ctx)
		_, err := s.backend.Del(bctx, batch...)
		cancel()
		if err != nil {
			requeue()
			return fmt.Errorf("failed to replay cache deletes: %w", err)
		}
	}

	for prefix := range prefixes {
		if _, err := s.clearBackendPrefix(ctx, prefix); err != nil {
			requeue()
			return fmt.Errorf("failed to replay cache clear: %w", err)
		}
	}

	log.Printf("🧹 [CACHE] Replayed %d deletes and %d clears missed during the outage", len(keys), len(prefixes))
	return nil
}

func (s *Store) clearBackendPrefix(ctx context.Context, prefix string) (int, error) {
	bctx, cancel := s.backendCtx(ctx)
	defer cancel()

	keys, err := s.backend.Keys(bctx, escapeGlob(prefix)+"*")
	if err != nil || len(keys) == 0 {
		return 0, err
	}
	n, err := s.backend.Del(bctx, keys...)
	return int(n), err
}

func (s *Store) backendCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.ProbeTimeout)
}

// Get reads namespace/key into dest
func (s *Store) Get(ctx context.Context, namespace, key string, dest interface{}) Result {
	full := s.fullKey(namespace, key)

	if s.usable(ctx) {
		bctx, cancel := s.backendCtx(ctx)
		data, found, err := s.backend.Get(bctx, full)
		cancel()
		if err == nil {
			if found && s.decode(full, data, dest) {
				s.hits.Add(1)
				recordOp("get", tierBackend, "hit")
				slog.Debug("cache hit", "tier", tierBackend, "key", full)
				return Result{Status: StatusHit}
			}
			s.misses.Add(1)
			recordOp("get", tierBackend, "miss")
			slog.Debug("cache miss", "tier", tierBackend, "key", full)
			return Result{Status: StatusMiss}
		}
		s.markDown(err)
		recordOp("get", tierBackend, "error")
	}
	degraded := s.backend != nil

	if data, found := s.local.get(full); found && s.decode(full, data, dest) {
		s.hits.Add(1)
		recordOp("get", tierLocal, "hit")
		slog.Debug("cache hit", "tier", tierLocal, "key", full)
		return Result{Status: StatusHit, Degraded: degraded}
	}

	s.misses.Add(1)
	recordOp("get", tierLocal, "miss")
	slog.Debug("cache miss", "tier", tierLocal, "key", full)
	if degraded {
		return Result{Status: StatusBackendDown, Degraded: true}
	}
	return Result{Status: StatusMiss}
}

func (s *Store) decode(full string, data []byte, dest interface{}) bool {
	if dest == nil {
		return true
	}
	if err := json.Unmarshal(data, dest); err != nil {
		log.Printf("⚠️  [CACHE] Failed to decode cached value for %s: %v", full, err)
		return false
	}
	return true
}

// Put encodes value and stores it in whichever tier is reachable.
// The only error reported is ErrSerialize; existing entries are untouched in that case.
func (s *Store) Put(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	if ttl <= 0 {
		ttl = TTLFor(namespace)
	}

	full := s.fullKey(namespace, key)

	if s.usable(ctx) {
		bctx, cancel := s.backendCtx(ctx)
		err := s.backend.SetEX(bctx, full, data, ttl)
		cancel()
		if err == nil {
			recordOp("set", tierBackend, "ok")
			return nil
		}
		s.markDown(err)
		recordOp("set", tierBackend, "error")
	}

	s.local.set(full, data, ttl)
	recordOp("set", tierLocal, "ok")
	return nil
}

// Set stores value with ttl, reporting false only when the value cannot be serialized
func (s *Store) Set(ctx context.Context, namespace, key string, value interface{}, ttl time.Duration) bool {
	if err := s.Put(ctx, namespace, key, value, ttl); err != nil {
		log.Printf("⚠️  [CACHE] Failed to set %s: %v", s.fullKey(namespace, key), err)
		return false
	}
	return true
}

// SetDefault stores value with its namespace's class TTL
func (s *Store) SetDefault(ctx context.Context, namespace, key string, value interface{}) bool {
	return s.Set(ctx, namespace, key, value, TTLFor(namespace))
}

// Delete removes namespace/key from both tiers
func (s *Store) Delete(ctx context.Context, namespace, key string) {
	full := s.fullKey(namespace, key)

	if s.usable(ctx) {
		bctx, cancel := s.backendCtx(ctx)
		_, err := s.backend.Del(bctx, full)
		cancel()
		if err != nil {
			s.markDown(err)
			s.deferInvalidation(full, false)
		}
	} else {
		s.deferInvalidation(full, false)
	}
	s.local.delete(full)
	recordOp("delete", tierLocal, "ok")
}

// Clear removes every entry under namespace (sub-scopes included) from both tiers
func (s *Store) Clear(ctx context.Context, namespace string) int {
	prefix := fmt.Sprintf("%s:%s:", s.config.Prefix, namespace)
	deleted := 0

	if s.usable(ctx) {
		n, err := s.clearBackendPrefix(ctx, prefix)
		deleted += n
		if err != nil {
			s.markDown(err)
			s.deferInvalidation(prefix, true)
		}
	} else {
		s.deferInvalidation(prefix, true)
	}

	local := s.local.clearPrefix(prefix)
	deleted += local

	if deleted > 0 {
		log.Printf("🧹 [CACHE] Cleared %s (%d entries)", namespace, deleted)
	}
	return deleted
}

// Stats returns hit/miss counters and tier state
func (s *Store) Stats(ctx context.Context) Stats {
	hits := s.hits.Load()
	misses := s.misses.Load()
	total := hits + misses

	hitRate := 0.0
	if total > 0 {
		hitRate = math.Round(float64(hits)/float64(total)*10000) / 100
	}

	return Stats{
		Hits:             hits,
		Misses:           misses,
		TotalRequests:    total,
		HitRate:          hitRate,
		LocalEntries:     s.local.live(),
		BackendAvailable: s.usable(ctx),
	}
}

// HasBackend reports whether a distributed backend is configured
func (s *Store) HasBackend() bool {
	return s.backend != nil
}

// BackendAvailable reports whether the distributed backend is configured and not marked down
func (s *Store) BackendAvailable() bool {
	if s.backend == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.down
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

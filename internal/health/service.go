// Package health tracks collaborator availability so optional enhancements can be skipped
// quickly while a dependency is failing.
package health

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	defaultFailureThreshold = 3
	defaultCooldownDuration = 30 * time.Second
)

// Service manages health tracking for registered components
type Service struct {
	mu               sync.RWMutex
	components       map[Component]*ComponentHealth
	checkers         map[Component]Checker
	clock            clockwork.Clock
	failureThreshold int
	cooldownDuration time.Duration
}

// NewService creates a new health service. After failureThreshold consecutive failures a
// component is cooled down for cooldownDuration.
func NewService(clock clockwork.Clock, failureThreshold int, cooldownDuration time.Duration) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if failureThreshold <= 0 {
		failureThreshold = defaultFailureThreshold
	}
	if cooldownDuration <= 0 {
		cooldownDuration = defaultCooldownDuration
	}

	return &Service{
		components:       make(map[Component]*ComponentHealth),
		checkers:         make(map[Component]Checker),
		clock:            clock,
		failureThreshold: failureThreshold,
		cooldownDuration: cooldownDuration,
	}
}

// Register adds a component, optionally with an active checker
func (s *Service) Register(component Component, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.components[component]; !exists {
		s.components[component] = &ComponentHealth{Component: component, Status: StatusUnknown}
		log.Printf("[HEALTH] Registered component %s", component)
	}
	if checker != nil {
		s.checkers[component] = checker
	}
}

// Available reports whether calls to component should be attempted.
// Unknown components are assumed available.
func (s *Service) Available(component Component) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, exists := s.components[component]
	if !exists || h.Status != StatusCooldown {
		return true
	}
	return !s.clock.Now().Before(h.CooldownUntil)
}

// MarkHealthy records a successful call
func (s *Service) MarkHealthy(component Component, latencyMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.components[component]
	if !exists {
		return
	}

	wasUnhealthy := h.Status == StatusUnhealthy || h.Status == StatusCooldown
	now := s.clock.Now()
	h.Status = StatusHealthy
	h.FailureCount = 0
	h.LastError = ""
	h.LastSuccessAt = now
	h.LastChecked = now
	h.CooldownUntil = time.Time{}
	h.LatencyMs = latencyMs

	if wasUnhealthy {
		log.Printf("[HEALTH] %s recovered - now healthy", component)
	}
}

// MarkUnhealthy records a failure. Quota errors cool the component down immediately;
// other errors do so once the failure threshold is reached.
func (s *Service) MarkUnhealthy(component Component, errMsg string, httpCode int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, exists := s.components[component]
	if !exists {
		return
	}

	now := s.clock.Now()
	h.FailureCount++
	h.LastError = truncateStr(errMsg, 200)
	h.LastChecked = now

	switch {
	case IsQuotaError(httpCode, errMsg):
		h.Status = StatusCooldown
		h.CooldownUntil = now.Add(ParseCooldownDuration(httpCode, errMsg))
		log.Printf("[HEALTH] %s in COOLDOWN until %s (quota: %s)",
			component, h.CooldownUntil.Format(time.RFC3339), truncateStr(errMsg, 100))
	case h.FailureCount >= s.failureThreshold:
		h.Status = StatusCooldown
		h.CooldownUntil = now.Add(s.cooldownDuration)
		log.Printf("[HEALTH] %s marked UNHEALTHY after %d failures, cooling down for %v: %s",
			component, h.FailureCount, s.cooldownDuration, h.LastError)
	default:
		h.Status = StatusUnhealthy
		log.Printf("[HEALTH] %s failure %d/%d: %s",
			component, h.FailureCount, s.failureThreshold, h.LastError)
	}
}

// CheckAll runs every registered checker and records the outcome
func (s *Service) CheckAll(ctx context.Context) map[Component]error {
	s.mu.RLock()
	checkers := make([]Checker, 0, len(s.checkers))
	for _, c := range s.checkers {
		checkers = append(checkers, c)
	}
	s.mu.RUnlock()

	results := make(map[Component]error, len(checkers))
	for _, checker := range checkers {
		latency, err := checker.Check(ctx)
		if err != nil {
			s.MarkUnhealthy(checker.Component(), err.Error(), 0)
		} else {
			s.MarkHealthy(checker.Component(), latency)
		}
		results[checker.Component()] = err
	}
	return results
}

// Get returns a copy of one component's health
func (s *Service) Get(component Component) (ComponentHealth, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, exists := s.components[component]
	if !exists {
		return ComponentHealth{}, false
	}
	return *h, true
}

// Snapshot returns every component's health ordered by name
func (s *Service) Snapshot() []ComponentHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.clock.Now()
	result := make([]ComponentHealth, 0, len(s.components))
	for _, h := range s.components {
		entry := *h
		if entry.Status == StatusCooldown && !now.Before(entry.CooldownUntil) {
			entry.Status = StatusUnknown // cooldown expired
		}
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Component < result[j].Component })
	return result
}

// GetStatus returns a summary suitable for the health endpoint
func (s *Service) GetStatus() map[string]interface{} {
	snapshot := s.Snapshot()
	counts := map[string]int{"healthy": 0, "unhealthy": 0, "cooldown": 0, "unknown": 0}
	components := make(map[string]string, len(snapshot))
	for _, h := range snapshot {
		counts[string(h.Status)]++
		components[string(h.Component)] = string(h.Status)
	}

	return map[string]interface{}{
		"total":      len(snapshot),
		"counts":     counts,
		"components": components,
	}
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

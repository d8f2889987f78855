package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// IdlePhase is a user's position in the idle-debounce state machine
type IdlePhase int

const (
	PhaseIdle IdlePhase = iota
	PhaseArmed
	PhaseRunning
)

func (p IdlePhase) String() string {
	switch p {
	case PhaseArmed:
		return "armed"
	case PhaseRunning:
		return "running"
	default:
		return "idle"
	}
}

// IdleJob is the background work run once per idle period
type IdleJob func(ctx context.Context, userID string) error

type idleState struct {
	phase        IdlePhase
	timer        clockwork.Timer
	gen          uint64
	lastActivity time.Time
	deadline     time.Time
	dirty        bool
	locked       bool
}

// IdleScheduler debounces per-user activity into a single background job per idle period.
//
// Every transition of a user's state happens under one mutex. Each armed timer carries
// the generation it was armed with, so a timer that fires after being superseded is a no-op
// and at most one live timer exists per user. The per-user lock is held from the moment a
// run is handed to the pool until it finishes, so timer fires and explicit triggers never
// overlap for the same user.
type IdleScheduler struct {
	mu      sync.Mutex
	users   map[string]*idleState
	stopped bool

	enabled atomic.Bool
	clock   clockwork.Clock
	window  time.Duration
	pool    *WorkerPool
	job     IdleJob
}

// NewIdleScheduler creates an enabled scheduler
func NewIdleScheduler(clock clockwork.Clock, window time.Duration, pool *WorkerPool, job IdleJob) *IdleScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &IdleScheduler{
		users:  make(map[string]*idleState),
		clock:  clock,
		window: window,
		pool:   pool,
		job:    job,
	}
	s.enabled.Store(true)
	return s
}

func (s *IdleScheduler) stateLocked(userID string) *idleState {
	st, ok := s.users[userID]
	if !ok {
		st = &idleState{}
		s.users[userID] = st
	}
	return st
}

// RecordActivity notes a message from userID and pushes its idle deadline out by one window.
// While a run is in progress the activity is remembered and a fresh arm follows the run.
func (s *IdleScheduler) RecordActivity(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	st := s.stateLocked(userID)
	st.lastActivity = s.clock.Now()

	if !s.enabled.Load() {
		return
	}

	if st.locked {
		st.dirty = true
		return
	}

	s.armLocked(userID, st, s.window)
}

// armLocked cancels any pending timer and arms a new one delay from now
func (s *IdleScheduler) armLocked(userID string, st *idleState, delay time.Duration) {
	if st.timer != nil {
		st.timer.Stop()
	}

	st.gen++
	gen := st.gen
	st.phase = PhaseArmed
	st.deadline = s.clock.Now().Add(delay)
	// The callback must not block the clock that invokes it
	st.timer = s.clock.AfterFunc(delay, func() { go s.fire(userID, gen) })

	idleTimersArmed.Inc()
}

func (s *IdleScheduler) fire(userID string, gen uint64) {
	s.mu.Lock()

	st, ok := s.users[userID]
	if !ok || st.gen != gen || st.phase != PhaseArmed {
		s.mu.Unlock()
		return
	}
	st.timer = nil

	if s.stopped || !s.enabled.Load() {
		st.phase = PhaseIdle
		st.deadline = time.Time{}
		s.mu.Unlock()
		return
	}

	if since := s.clock.Now().Sub(st.lastActivity); since < s.window {
		s.armLocked(userID, st, s.window-since)
		s.mu.Unlock()
		return
	}

	if st.locked {
		st.dirty = true
		s.mu.Unlock()
		idleRuns.WithLabelValues("skipped_locked").Inc()
		return
	}

	st.locked = true
	st.phase = PhaseRunning
	snapshot := st.lastActivity
	s.mu.Unlock()

	s.dispatch(userID, snapshot, false)
}

// Trigger runs the job for userID now unless the feature is disabled or a run is already in progress.
// Any armed timer is cancelled.
func (s *IdleScheduler) Trigger(userID string) bool {
	s.mu.Lock()

	if s.stopped || !s.enabled.Load() {
		s.mu.Unlock()
		return false
	}

	st := s.stateLocked(userID)
	if st.locked {
		s.mu.Unlock()
		return false
	}

	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.gen++
	st.locked = true
	st.phase = PhaseRunning
	st.deadline = time.Time{}
	snapshot := st.lastActivity
	s.mu.Unlock()

	return s.dispatch(userID, snapshot, true)
}

func (s *IdleScheduler) dispatch(userID string, snapshot time.Time, explicit bool) bool {
	submitted := s.pool.Submit("idle:"+userID, func(ctx context.Context) {
		s.run(ctx, userID, snapshot, explicit)
	})
	if !submitted {
		log.Printf("⚠️  [IDLE] Could not queue background run for user %s", userID)
		idleRuns.WithLabelValues("rejected").Inc()
		s.finish(userID)
	}
	return submitted
}

func (s *IdleScheduler) run(ctx context.Context, userID string, snapshot time.Time, explicit bool) {
	defer s.finish(userID)

	if !s.enabled.Load() {
		idleRuns.WithLabelValues("disabled").Inc()
		return
	}

	if !explicit {
		s.mu.Lock()
		last := s.users[userID].lastActivity
		s.mu.Unlock()

		// Newer activity makes the snapshot stale; finish re-arms from it
		if last.After(snapshot) && s.clock.Now().Sub(last) < s.window {
			log.Printf("⏭️  [IDLE] User %s became active again, postponing background run", userID)
			idleRuns.WithLabelValues("postponed").Inc()
			return
		}
	}

	start := time.Now()
	if err := s.job(ctx, userID); err != nil {
		log.Printf("⚠️  [IDLE] Background run failed for user %s: %v", userID, err)
		idleRuns.WithLabelValues("failed").Inc()
		return
	}
	idleRuns.WithLabelValues("completed").Inc()
	log.Printf("✅ [IDLE] Background run completed for user %s in %v", userID, time.Since(start).Round(time.Millisecond))
}

// finish releases the user's lock and re-arms if activity arrived meanwhile
func (s *IdleScheduler) finish(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(userID)
	st.locked = false

	if st.dirty && !s.stopped && s.enabled.Load() {
		st.dirty = false
		remaining := st.lastActivity.Add(s.window).Sub(s.clock.Now())
		if remaining < 0 {
			remaining = 0
		}
		s.armLocked(userID, st, remaining)
		return
	}

	st.dirty = false
	st.phase = PhaseIdle
	st.deadline = time.Time{}
}

// SetEnabled toggles background extraction globally. Disabling cancels every armed timer;
// running jobs finish but queued ones skip their body.
func (s *IdleScheduler) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
	if enabled {
		log.Println("▶️  [IDLE] Background extraction enabled")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.users {
		s.disarmLocked(st)
	}
	log.Println("⏸️  [IDLE] Background extraction disabled")
}

func (s *IdleScheduler) disarmLocked(st *idleState) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	st.gen++
	st.dirty = false
	if st.phase == PhaseArmed {
		st.phase = PhaseIdle
		st.deadline = time.Time{}
	}
}

// Enabled reports the global flag
func (s *IdleScheduler) Enabled() bool {
	return s.enabled.Load()
}

// Phase returns the user's current state
func (s *IdleScheduler) Phase(userID string) IdlePhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[userID]; ok {
		return st.phase
	}
	return PhaseIdle
}

// Deadline returns when the user's armed timer fires, or the zero time if none is armed
func (s *IdleScheduler) Deadline(userID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[userID]; ok && st.phase == PhaseArmed {
		return st.deadline
	}
	return time.Time{}
}

// LastActivity returns the time of the user's most recent message
func (s *IdleScheduler) LastActivity(userID string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.users[userID]; ok {
		return st.lastActivity
	}
	return time.Time{}
}

// Users lists every user the scheduler has seen, sorted
func (s *IdleScheduler) Users() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]string, 0, len(s.users))
	for id := range s.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}

// Forget drops an idle user's state; armed or running users are kept
func (s *IdleScheduler) Forget(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.users[userID]
	if !ok || st.phase != PhaseIdle || st.locked {
		return false
	}
	delete(s.users, userID)
	return true
}

// Stop cancels all timers and refuses further arming
func (s *IdleScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for _, st := range s.users {
		s.disarmLocked(st)
	}
	log.Println("🛑 [IDLE] Scheduler stopped")
}

package jobs

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Job interface that all scheduled jobs must implement
type Job interface {
	Run(ctx context.Context) error
}

type registeredJob struct {
	job      Job
	interval time.Duration
	handle   gocron.Job
	lastRun  time.Time
	lastErr  error
	runs     int
}

// JobScheduler runs maintenance jobs at fixed intervals on top of gocron
type JobScheduler struct {
	scheduler gocron.Scheduler
	clock     clockwork.Clock
	jobs      map[string]*registeredJob
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex
	running   bool
}

// NewJobScheduler creates a new job scheduler. A nil clock uses wall time.
func NewJobScheduler(clock clockwork.Clock) (*JobScheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	scheduler, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithClock(clock),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobScheduler{
		scheduler: scheduler,
		clock:     clock,
		jobs:      make(map[string]*registeredJob),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Register adds a job that runs every interval once the scheduler is started.
// A run that overlaps the previous one is skipped.
func (s *JobScheduler) Register(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	entry := &registeredJob{job: job, interval: interval}
	handle, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			s.runJob(name, entry)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", name, err)
	}

	entry.handle = handle
	s.jobs[name] = entry
	log.Printf("✅ [SCHEDULER] Registered job: %s (every %v)", name, interval)
	return nil
}

// Start begins running all registered jobs
func (s *JobScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.scheduler.Start()
	log.Printf("🚀 [SCHEDULER] Starting job scheduler with %d jobs", len(s.jobs))
}

func (s *JobScheduler) runJob(name string, entry *registeredJob) error {
	log.Printf("▶️  [SCHEDULER] Running job: %s", name)
	startTime := time.Now()

	err := entry.job.Run(s.ctx)

	s.mu.Lock()
	entry.lastRun = s.clock.Now()
	entry.lastErr = err
	entry.runs++
	s.mu.Unlock()

	if err != nil {
		log.Printf("❌ [SCHEDULER] Job '%s' failed: %v", name, err)
		return err
	}
	log.Printf("✅ [SCHEDULER] Job '%s' completed in %v", name, time.Since(startTime))
	return nil
}

// Stop cancels running jobs and shuts gocron down
func (s *JobScheduler) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	log.Println("🛑 [SCHEDULER] Stopping job scheduler...")
	s.cancel()
	if err := s.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Println("✅ [SCHEDULER] Job scheduler stopped")
	return nil
}

// RunNow runs a job synchronously, outside its schedule
func (s *JobScheduler) RunNow(name string) error {
	s.mu.Lock()
	entry, exists := s.jobs[name]
	s.mu.Unlock()

	if !exists {
		return fmt.Errorf("job %s not found", name)
	}

	log.Printf("🚀 [SCHEDULER] Running job '%s' immediately", name)
	return s.runJob(name, entry)
}

// JobStatus represents the status of a job
type JobStatus struct {
	Name        string    `json:"name"`
	Interval    string    `json:"interval"`
	NextRunTime time.Time `json:"next_run_time,omitempty"`
	LastRunTime time.Time `json:"last_run_time,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Runs        int       `json:"runs"`
}

// GetStatus returns the status of all jobs, sorted by name
func (s *JobScheduler) GetStatus() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := make([]JobStatus, 0, len(s.jobs))
	for name, entry := range s.jobs {
		js := JobStatus{
			Name:        name,
			Interval:    entry.interval.String(),
			LastRunTime: entry.lastRun,
			Runs:        entry.runs,
		}
		if entry.lastErr != nil {
			js.LastError = entry.lastErr.Error()
		}
		if s.running {
			if next, err := entry.handle.NextRun(); err == nil {
				js.NextRunTime = next
			}
		}
		status = append(status, js)
	}

	sort.Slice(status, func(i, j int) bool { return status[i].Name < status[j].Name })
	return status
}

// Package scheduler admits, queues, and runs sort jobs.
//
// A fixed number of run slots bounds concurrent AI-assisted sorts;
// submissions past the slot count wait in a bounded queue and past the
// queue cap are refused. Heuristic-only runs bypass both the queue and
// the slots, so a degraded run never waits behind AI runs. The scheduler
// derives a 0-100 health score from its own load and the recent failure
// rate, and under low health it degrades new runs to heuristic-only
// instead of refusing them.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/groupmix/smartsort/internal/models"
	"github.com/groupmix/smartsort/internal/shared"
	"github.com/groupmix/smartsort/internal/tasks"
	"golang.org/x/sync/semaphore"
)

// JobState tracks one job through its lifecycle.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
)

// Job is one submitted sort and its outcome.
type Job struct {
	ID         string             `json:"id"`
	Request    models.SortRequest `json:"request"`
	State      JobState           `json:"state"`
	EnqueuedAt time.Time          `json:"enqueued_at"`
	StartedAt  time.Time          `json:"started_at,omitzero"`
	FinishedAt time.Time          `json:"finished_at,omitzero"`
	Result     *models.SortResult `json:"result,omitempty"`
	Error      string             `json:"error,omitempty"`

	err  error
	done chan struct{}
}

// Err returns the run's underlying error, nil for anything but a failed
// job. Unlike the Error field it preserves sentinel wrapping.
func (j Job) Err() error {
	return j.err
}

// Ticket is what a caller gets back from Submit.
type Ticket struct {
	JobID         string        `json:"job_id"`
	EstimatedWait time.Duration `json:"estimated_wait"`
	HealthScore   int           `json:"health_score"`
	Degraded      bool          `json:"degraded"`
}

// Runner executes one sort run.
type Runner interface {
	Run(ctx context.Context, req models.SortRequest, progress chan<- tasks.ProgressUpdate) (*models.SortResult, error)
}

// FailureHistory reports the recent failed-run fraction.
type FailureHistory interface {
	RecentFailureRate(limit int) float64
	Recent(limit int) []models.RunMetrics
}

// Config sizes the scheduler.
type Config struct {
	// MaxJobs is the number of concurrent run slots.
	MaxJobs int
	// QueueCap bounds jobs waiting for a slot; past it Submit refuses.
	QueueCap int
	// DegradeBelowHealth forces heuristic-only runs under this score.
	DegradeBelowHealth int
	// RetainJobs bounds how many finished jobs stay queryable; the
	// oldest are evicted past it.
	RetainJobs int
}

// Scheduler admits and runs sort jobs.
type Scheduler struct {
	runner  Runner
	history FailureHistory
	logger  *log.Logger

	maxJobs      int
	queueCap     int
	degradeBelow int
	retainJobs   int

	slots   *semaphore.Weighted
	queued  atomic.Int64
	running atomic.Int64

	mu   sync.RWMutex
	jobs map[string]*Job

	wg sync.WaitGroup
}

// New creates a scheduler over the given runner. history may be nil,
// which pins the failure component of the health score to zero.
func New(runner Runner, history FailureHistory, cfg Config, logger *log.Logger) *Scheduler {
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 10
	}
	if cfg.QueueCap <= 0 {
		cfg.QueueCap = 50
	}
	if cfg.DegradeBelowHealth <= 0 {
		cfg.DegradeBelowHealth = 30
	}
	if cfg.RetainJobs <= 0 {
		cfg.RetainJobs = 500
	}

	return &Scheduler{
		runner:       runner,
		history:      history,
		logger:       logger,
		maxJobs:      cfg.MaxJobs,
		queueCap:     cfg.QueueCap,
		degradeBelow: cfg.DegradeBelowHealth,
		retainJobs:   cfg.RetainJobs,
		slots:        semaphore.NewWeighted(int64(cfg.MaxJobs)),
		jobs:         make(map[string]*Job),
	}
}

// Submit admits one sort request and starts it in the background.
// Returns ErrQueueSaturated when the wait queue is full. Under low
// health the request is degraded to heuristic-only rather than refused,
// which the ticket reports.
func (s *Scheduler) Submit(ctx context.Context, req models.SortRequest) (*Ticket, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now()
	}

	health := s.Health()
	if health < s.degradeBelow && !req.SkipAI {
		s.logger.Warn("forcing heuristic-only run under low health",
			"health", health, "group", req.GroupID)
		req.SkipAI = true
	}

	// Claim the queue seat before spawning the worker so a burst of
	// submissions cannot all pass the cap check together. Heuristic-only
	// runs never sit behind AI runs, so they skip the seat entirely.
	if !req.SkipQueue && !req.SkipAI {
		for {
			queued := s.queued.Load()
			if queued >= int64(s.queueCap) {
				return nil, fmt.Errorf("%w: %d jobs already waiting", shared.ErrQueueSaturated, queued)
			}
			if s.queued.CompareAndSwap(queued, queued+1) {
				break
			}
		}
	}

	job := &Job{
		ID:         shared.GenerateID(),
		Request:    req,
		State:      StateQueued,
		EnqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	ticket := &Ticket{
		JobID:         job.ID,
		EstimatedWait: s.EstimatedWait(),
		HealthScore:   health,
		Degraded:      req.SkipAI,
	}

	s.wg.Add(1)
	go s.execute(job)

	return ticket, nil
}

// execute runs one job through its slot. Heuristic-only jobs hold no
// slot and start immediately. Counters are decremented on every exit
// path so a panicking run cannot leak queue or slot state.
func (s *Scheduler) execute(job *Job) {
	defer s.wg.Done()

	ctx := context.Background()

	if !job.Request.SkipQueue && !job.Request.SkipAI {
		// The queue seat was claimed in Submit; release it once a run
		// slot is held, error or not.
		err := s.slots.Acquire(ctx, 1)
		s.queued.Add(-1)
		if err != nil {
			s.finish(job, nil, err)
			return
		}
		defer s.slots.Release(1)
	}

	s.running.Add(1)
	defer s.running.Add(-1)

	s.setState(job, StateRunning)

	defer func() {
		if r := recover(); r != nil {
			s.finish(job, nil, fmt.Errorf("sort run panicked: %v", r))
		}
	}()

	result, err := s.runner.Run(ctx, job.Request, nil)
	s.finish(job, result, err)
}

func (s *Scheduler) setState(job *Job, state JobState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.State = state
	if state == StateRunning {
		job.StartedAt = time.Now()
	}
}

// finish records the job's outcome and closes its done channel. A run
// reaches here exactly once, through the panic path or the normal path.
func (s *Scheduler) finish(job *Job, result *models.SortResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.FinishedAt = time.Now()
	job.Result = result
	if err != nil {
		job.State = StateFailed
		job.Error = err.Error()
		job.err = err
		s.logger.Error("sort job failed", "job", job.ID, "group", job.Request.GroupID, "error", err)
	} else {
		job.State = StateCompleted
	}
	close(job.done)
	s.evictFinished()
}

// evictFinished drops the oldest terminal jobs past the retention
// bound so a long-lived server does not accumulate them forever.
// Caller holds s.mu.
func (s *Scheduler) evictFinished() {
	finished := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if j.State == StateCompleted || j.State == StateFailed {
			finished = append(finished, j)
		}
	}
	if len(finished) <= s.retainJobs {
		return
	}

	sort.Slice(finished, func(i, k int) bool {
		return finished[i].FinishedAt.Before(finished[k].FinishedAt)
	})
	for _, j := range finished[:len(finished)-s.retainJobs] {
		delete(s.jobs, j.ID)
	}
}

// Job returns a copy of the identified job.
func (s *Scheduler) Job(id string) (Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Await blocks until the identified job finishes and returns its final
// state.
func (s *Scheduler) Await(ctx context.Context, id string) (Job, error) {
	s.mu.RLock()
	job, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return Job{}, fmt.Errorf("unknown job %s", id)
	}

	select {
	case <-ctx.Done():
		return Job{}, ctx.Err()
	case <-job.done:
	}

	// Copy through the held pointer: the job may already have been
	// evicted from the map by a later finisher.
	s.mu.RLock()
	final := *job
	s.mu.RUnlock()
	return final, nil
}

// Snapshot reports the scheduler's externally visible state.
func (s *Scheduler) Snapshot() models.QueueSnapshot {
	return models.QueueSnapshot{
		Queued:      int(s.queued.Load()),
		Running:     int(s.running.Load()),
		HealthScore: s.Health(),
	}
}

// Health derives the 0-100 health score. Queue depth weighs heaviest,
// then running load, then the recent failure rate.
func (s *Scheduler) Health() int {
	score := 100
	score -= 5 * int(s.queued.Load())
	score -= 3 * int(s.running.Load())
	if s.history != nil {
		score -= int(40 * s.history.RecentFailureRate(20))
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// EstimatedWait projects how long a new submission waits for a slot,
// from queue depth and the recent mean run duration.
func (s *Scheduler) EstimatedWait() time.Duration {
	waiting := s.queued.Load()
	if waiting == 0 && s.running.Load() < int64(s.maxJobs) {
		return 0
	}

	mean := 30 * time.Second
	if s.history != nil {
		if recent := s.history.Recent(10); len(recent) > 0 {
			var total time.Duration
			for _, m := range recent {
				total += m.TotalDuration()
			}
			mean = total / time.Duration(len(recent))
		}
	}

	// Each slot drains one job per mean duration.
	return mean * time.Duration(waiting+1) / time.Duration(s.maxJobs)
}

// Wait blocks until every accepted job has finished. Used by tests and
// graceful shutdown.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

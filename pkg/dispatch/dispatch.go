// Package dispatch runs fire-and-forget jobs in the background with a
// pollable status, so long horizon extensions do not block their caller.
// State is polled, never pushed, and lives in process memory only.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is a job's lifecycle state
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is a snapshot of one dispatched job
type Job struct {
	ID         uuid.UUID
	Name       string
	Status     Status
	Error      string
	EnqueuedAt time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	// Result holds the job function's return value once succeeded
	Result interface{}
}

// Done reports whether the job reached a terminal state
func (j Job) Done() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// Func is the work a job performs
type Func func(ctx context.Context) (interface{}, error)

// Dispatcher tracks background jobs by ID
type Dispatcher struct {
	logger *zap.Logger

	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
	wg   sync.WaitGroup
}

// NewDispatcher creates an empty dispatcher
func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger: logger,
		jobs:   make(map[uuid.UUID]*Job),
	}
}

// Dispatch enqueues fn and returns immediately with the job's ID. The job
// runs on its own goroutine; its context is detached from the caller's so
// returning from the calling request does not cancel the work.
func (d *Dispatcher) Dispatch(name string, fn Func) uuid.UUID {
	job := &Job{
		ID:         uuid.New(),
		Name:       name,
		Status:     StatusPending,
		EnqueuedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	d.jobs[job.ID] = job
	d.mu.Unlock()

	d.wg.Add(1)
	go d.run(job.ID, name, fn)

	d.logger.Debug("Dispatched background job",
		zap.String("job", job.ID.String()),
		zap.String("name", name))

	return job.ID
}

func (d *Dispatcher) run(id uuid.UUID, name string, fn Func) {
	defer d.wg.Done()

	started := time.Now().UTC()
	d.update(id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &started
	})

	result, err := fn(context.Background())

	finished := time.Now().UTC()
	d.update(id, func(j *Job) {
		j.FinishedAt = &finished
		if err != nil {
			j.Status = StatusFailed
			j.Error = err.Error()
			return
		}
		j.Status = StatusSucceeded
		j.Result = result
	})

	if err != nil {
		d.logger.Warn("Background job failed",
			zap.String("job", id.String()),
			zap.String("name", name),
			zap.Error(err))
		return
	}
	d.logger.Info("Background job finished",
		zap.String("job", id.String()),
		zap.String("name", name),
		zap.Duration("took", finished.Sub(started)))
}

func (d *Dispatcher) update(id uuid.UUID, apply func(*Job)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if job, ok := d.jobs[id]; ok {
		apply(job)
	}
}

// Job returns a snapshot of the job with the given ID
func (d *Dispatcher) Job(id uuid.UUID) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Jobs returns a snapshot of every known job
func (d *Dispatcher) Jobs() []Job {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Job, 0, len(d.jobs))
	for _, job := range d.jobs {
		out = append(out, *job)
	}
	return out
}

// Wait blocks until every dispatched job has finished. Intended for
// shutdown paths and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

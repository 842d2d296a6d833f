package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrJobNotFound = errors.New("job not found")
)

type JobKind string

const (
	JobKindMention  JobKind = "mention"
	JobKindActions  JobKind = "action_items"
	JobKindMinutes  JobKind = "minutes"
	JobKindResearch JobKind = "research"
)

type JobStatus string

const (
	StatusQueued  JobStatus = "queued"
	StatusRunning JobStatus = "running"
	StatusDone    JobStatus = "done"
	StatusFailed  JobStatus = "failed"
)

// Job is one queued workflow run. Run closes over everything the
// workflow needs; the engine only schedules it.
type Job struct {
	ID        string
	MeetingID string
	Kind      JobKind
	CreatedAt time.Time
	Run       func(ctx context.Context) (any, error)
}

// JobResult is the terminal record for a job, queryable until the engine
// shuts down.
type JobResult struct {
	JobID      string    `json:"job_id"`
	MeetingID  string    `json:"meeting_id"`
	Kind       JobKind   `json:"kind"`
	Status     JobStatus `json:"status"`
	Value      any       `json:"value,omitempty"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Engine runs workflow jobs on a fixed worker pool so a burst of minutes
// requests cannot starve live mention handling by spawning unbounded
// goroutines.
type Engine struct {
	maxConcurrency int
	jobs           chan Job
	logger         *slog.Logger
	startOnce      sync.Once

	mu      sync.RWMutex
	results map[string]JobResult
}

func NewEngine(maxConcurrency int, logger *slog.Logger) *Engine {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Engine{
		maxConcurrency: maxConcurrency,
		jobs:           make(chan Job, maxConcurrency*50),
		logger:         logger,
		results:        map[string]JobResult{},
	}
}

// Start launches the workers and blocks until ctx is cancelled and all
// in-flight jobs finished.
func (e *Engine) Start(ctx context.Context) error {
	var workers sync.WaitGroup
	e.startOnce.Do(func() {
		for index := 0; index < e.maxConcurrency; index++ {
			workers.Add(1)
			go func(workerID int) {
				defer workers.Done()
				e.worker(ctx, workerID)
			}(index + 1)
		}
	})

	<-ctx.Done()
	workers.Wait()
	return nil
}

// Submit queues a job without blocking. A full queue is the caller's
// signal to shed load.
func (e *Engine) Submit(job Job) (Job, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	select {
	case e.jobs <- job:
		e.setResult(JobResult{JobID: job.ID, MeetingID: job.MeetingID, Kind: job.Kind, Status: StatusQueued})
		e.logger.Info("job queued", "job_id", job.ID, "meeting_id", job.MeetingID, "kind", job.Kind)
		return job, nil
	default:
		return Job{}, ErrQueueFull
	}
}

func (e *Engine) Result(jobID string) (JobResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	result, ok := e.results[jobID]
	if !ok {
		return JobResult{}, ErrJobNotFound
	}
	return result, nil
}

func (e *Engine) worker(ctx context.Context, workerID int) {
	e.logger.Info("worker started", "worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("worker stopped", "worker_id", workerID)
			return
		case job := <-e.jobs:
			e.process(ctx, workerID, job)
		}
	}
}

func (e *Engine) process(ctx context.Context, workerID int, job Job) {
	started := time.Now()
	e.setResult(JobResult{JobID: job.ID, MeetingID: job.MeetingID, Kind: job.Kind, Status: StatusRunning})
	e.logger.Info("processing job", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind)

	value, err := job.Run(ctx)
	result := JobResult{
		JobID:      job.ID,
		MeetingID:  job.MeetingID,
		Kind:       job.Kind,
		Status:     StatusDone,
		Value:      value,
		FinishedAt: time.Now().UTC(),
	}
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		e.logger.Error("job failed", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind,
			"duration", time.Since(started), "error", err)
	} else {
		e.logger.Info("job done", "worker_id", workerID, "job_id", job.ID, "kind", job.Kind,
			"duration", time.Since(started))
	}
	e.setResult(result)
}

func (e *Engine) setResult(result JobResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[result.JobID] = result
}

package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kaidolaptops/price-scraper/internal/models"
	"github.com/kaidolaptops/price-scraper/internal/pricing"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrEmptyBatch  = errors.New("job has no requests")
)

const maxRetainedJobs = 500

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// BatchFetcher prices a batch in order.
type BatchFetcher interface {
	FetchAll(ctx context.Context, reqs []models.PriceRequest) []models.PriceResult
}

// Job is an asynchronous price batch.
type Job struct {
	ID          string                `json:"id"`
	Status      Status                `json:"status"`
	Requests    []models.PriceRequest `json:"requests"`
	Results     []models.PriceResult  `json:"results,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty"`
}

func (j *Job) snapshot() *Job {
	cp := *j
	cp.Requests = append([]models.PriceRequest(nil), j.Requests...)
	cp.Results = append([]models.PriceResult(nil), j.Results...)
	return &cp
}

// Manager queues batches and runs them one at a time on a single worker.
type Manager struct {
	fetcher  BatchFetcher
	recorder pricing.Recorder
	queue    *Queue
	logger   *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

func NewManager(fetcher BatchFetcher, recorder pricing.Recorder, logger *slog.Logger) *Manager {
	return &Manager{
		fetcher:  fetcher,
		recorder: recorder,
		queue:    NewQueue(),
		logger:   logger.With("component", "job_manager"),
		jobs:     make(map[string]*Job),
	}
}

// CreateJob queues a batch and returns immediately.
func (m *Manager) CreateJob(ctx context.Context, reqs []models.PriceRequest) (*Job, error) {
	if len(reqs) == 0 {
		return nil, ErrEmptyBatch
	}

	job := &Job{
		ID:        uuid.New().String(),
		Status:    StatusPending,
		Requests:  append([]models.PriceRequest(nil), reqs...),
		CreatedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.pruneLocked()
	m.mu.Unlock()

	if err := m.queue.Push(job.ID); err != nil {
		m.mu.Lock()
		delete(m.jobs, job.ID)
		m.mu.Unlock()
		return nil, fmt.Errorf("failed to queue job: %w", err)
	}

	m.logger.Info("job created", "id", job.ID, "requests", len(reqs))
	return job.snapshot(), nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.snapshot(), nil
}

// ListJobs returns jobs newest first.
func (m *Manager) ListJobs(ctx context.Context) []*Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

// StartWorker processes queued jobs until ctx is done or Close is called.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started")

	for {
		jobID, err := m.queue.Pop(ctx)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			m.logger.Info("job worker stopping", "reason", err)
			return
		}
		m.processJob(ctx, jobID)
	}
}

func (m *Manager) Close() error {
	return m.queue.Close()
}

func (m *Manager) processJob(ctx context.Context, jobID string) {
	m.mu.Lock()
	job, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	started := time.Now()
	job.Status = StatusRunning
	job.StartedAt = &started
	reqs := append([]models.PriceRequest(nil), job.Requests...)
	m.mu.Unlock()

	m.logger.Info("processing job", "id", jobID, "requests", len(reqs))

	results := m.fetcher.FetchAll(ctx, reqs)

	// A cancelled batch has entries that were never tried; they are kept on
	// the job but not recorded.
	recordErr := ctx.Err()
	if recordErr == nil && m.recorder != nil {
		recordErr = m.recorder.Record(ctx, results)
		if recordErr != nil {
			m.logger.Error("failed to record job results", "id", jobID, "error", recordErr)
		}
	}

	completed := time.Now()
	m.mu.Lock()
	job.Status = StatusCompleted
	job.Results = results
	job.CompletedAt = &completed
	if recordErr != nil {
		job.Error = recordErr.Error()
	}
	m.mu.Unlock()

	m.logger.Info("job completed", "id", jobID, "duration", completed.Sub(started))
}

// pruneLocked drops the oldest completed jobs once the table is full.
func (m *Manager) pruneLocked() {
	if len(m.jobs) <= maxRetainedJobs {
		return
	}

	done := make([]*Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if job.Status == StatusCompleted {
			done = append(done, job)
		}
	}
	sort.Slice(done, func(i, j int) bool {
		return done[i].CreatedAt.Before(done[j].CreatedAt)
	})

	for _, job := range done {
		if len(m.jobs) <= maxRetainedJobs {
			return
		}
		delete(m.jobs, job.ID)
	}
}

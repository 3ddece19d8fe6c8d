// Package batch runs bulk delete and copy jobs over a key prefix.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eniz1806/VaultOSS/internal/storage"
)

// JobType defines the type of batch operation.
type JobType string

const (
	JobBulkDelete JobType = "bulk-delete"
	JobBulkCopy   JobType = "bulk-copy"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// DefaultWorkers bounds concurrent object calls per job.
const DefaultWorkers = 8

// Job represents a batch operation job. Copied objects keep their key in
// DstContainer.
type Job struct {
	ID           string    `json:"id"`
	Type         JobType   `json:"type"`
	Container    string    `json:"container"`
	Prefix       string    `json:"prefix,omitempty"`
	DstContainer string    `json:"dst_container,omitempty"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	Failed       int       `json:"failed"`
	Total        int       `json:"total"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the subset of storage.Store the processor uses.
type Store interface {
	List(ctx context.Context, container, prefix string) ([]storage.ObjectInfo, error)
	Delete(ctx context.Context, container, key string) error
	Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) (storage.ObjectInfo, error)
}

// Processor handles batch operations.
type Processor struct {
	store   Store
	workers int

	mu   sync.RWMutex
	jobs map[string]*Job
	seq  atomic.Uint64
}

// NewProcessor creates a processor. workers below 1 uses DefaultWorkers.
func NewProcessor(store Store, workers int) *Processor {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Processor{
		store:   store,
		workers: workers,
		jobs:    make(map[string]*Job),
	}
}

func (p *Processor) register(job *Job) error {
	if job.Container == "" {
		return fmt.Errorf("batch job: container is required")
	}
	switch job.Type {
	case JobBulkDelete:
	case JobBulkCopy:
		if job.DstContainer == "" {
			return fmt.Errorf("batch job: bulk copy requires a destination container")
		}
	default:
		return fmt.Errorf("batch job: unknown job type %q", job.Type)
	}
	if job.ID == "" {
		job.ID = fmt.Sprintf("job-%d", p.seq.Add(1))
	}
	job.Status = StatusQueued
	job.CreatedAt = time.Now().UTC()
	p.mu.Lock()
	p.jobs[job.ID] = job
	p.mu.Unlock()
	return nil
}

// Submit starts job in the background and returns its ID.
func (p *Processor) Submit(ctx context.Context, job *Job) (string, error) {
	if err := p.register(job); err != nil {
		return "", err
	}
	go p.execute(ctx, job)
	return job.ID, nil
}

// Run executes job and blocks until it finishes. Per-object failures are
// counted on the job and joined into the returned error.
func (p *Processor) Run(ctx context.Context, job *Job) error {
	if err := p.register(job); err != nil {
		return err
	}
	return p.execute(ctx, job)
}

// GetJob returns a copy of the job with the given ID.
func (p *Processor) GetJob(id string) (Job, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	j, ok := p.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// ListJobs returns copies of all jobs.
func (p *Processor) ListJobs() []Job {
	p.mu.RLock()
	defer p.mu.RUnlock()
	jobs := make([]Job, 0, len(p.jobs))
	for _, j := range p.jobs {
		jobs = append(jobs, *j)
	}
	return jobs
}

func (p *Processor) execute(ctx context.Context, job *Job) error {
	p.mu.Lock()
	job.Status = StatusRunning
	p.mu.Unlock()

	err := p.process(ctx, job)

	p.mu.Lock()
	if err != nil {
		job.Status = StatusFailed
		job.Error = err.Error()
	} else {
		job.Status = StatusCompleted
	}
	p.mu.Unlock()
	slog.Info("batch job finished", "id", job.ID, "type", job.Type, "status", job.Status, "total", job.Total, "failed", job.Failed)
	return err
}

func (p *Processor) process(ctx context.Context, job *Job) error {
	objects, err := p.store.List(ctx, job.Container, job.Prefix)
	if err != nil {
		return err
	}

	p.mu.Lock()
	job.Total = len(objects)
	p.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
		sem  = make(chan struct{}, p.workers)
	)
	for _, obj := range objects {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			var err error
			switch job.Type {
			case JobBulkDelete:
				err = p.store.Delete(ctx, job.Container, key)
			case JobBulkCopy:
				_, err = p.store.Copy(ctx, job.Container, key, job.DstContainer, key)
			}

			p.mu.Lock()
			if err != nil {
				job.Failed++
			} else {
				job.Progress++
			}
			p.mu.Unlock()

			if err != nil {
				slog.Error("batch object failed", "job", job.ID, "key", key, "error", err)
				emu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				emu.Unlock()
			}
		}(obj.Key)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

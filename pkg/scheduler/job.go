package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrDuplicateJob is returned when the user already has a job with the same derived name.
	ErrDuplicateJob = errors.New("an identical job already exists")
	// ErrJobNotFound is returned when cancelling a job that does not exist for the user.
	ErrJobNotFound = errors.New("job not found")
	// ErrClosed is returned once the scheduler has been closed.
	ErrClosed = errors.New("scheduler closed")
)

// Job is a recurring unattended submission owned by one user.
type Job struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	UserID  int64     `json:"user_id"`
	Cadence Cadence   `json:"cadence"`
	Start   time.Time `json:"start"`
	Created time.Time `json:"created"`
}

// Store persists jobs so they survive restarts.
type Store interface {
	SaveJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, id string) error
	ListJobs(ctx context.Context) ([]Job, error)
}

// MemoryStore keeps jobs in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]Job)}
}

func (m *MemoryStore) SaveJob(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

// ListJobs returns every job ordered by creation time.
func (m *MemoryStore) ListJobs(_ context.Context) ([]Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	SortJobs(jobs)
	return jobs, nil
}

// SortJobs orders jobs by creation time, then ID.
func SortJobs(jobs []Job) {
	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].Created.Equal(jobs[k].Created) {
			return jobs[i].Created.Before(jobs[k].Created)
		}
		return jobs[i].ID < jobs[k].ID
	})
}

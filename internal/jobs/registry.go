package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry is the single source of truth for job records. All mutation goes
// through Update, which applies the mutator atomically with respect to other
// callers for the same id. Implementations return value copies only.
//
// The in-memory implementation is process-lifetime state; the interface is
// the seam for swapping in a persistent keyed store.
type Registry interface {
	Create(id, filename, inputPath string) (Job, error)
	Get(id string) (Job, error)
	Update(id string, mutate func(*Job) error) (Job, error)
	Delete(id string) (Job, error)
	List() []Job
}

type memoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{jobs: make(map[string]*Job)}
}

func (r *memoryRegistry) Create(id, filename, inputPath string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[id]; exists {
		return Job{}, fmt.Errorf("duplicate job id %q", id)
	}
	now := time.Now()
	j := &Job{
		ID:        id,
		Status:    StatusUploaded,
		Filename:  filename,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.jobs[id] = j
	return *j, nil
}

func (r *memoryRegistry) Get(id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// Update applies mutate to a scratch copy and publishes it only if the
// mutator succeeds, so readers never observe a partial transition.
func (r *memoryRegistry) Update(id string, mutate func(*Job) error) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	next := *j
	if err := mutate(&next); err != nil {
		return *j, err
	}
	next.UpdatedAt = time.Now()
	*j = next
	return next, nil
}

func (r *memoryRegistry) Delete(id string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	delete(r.jobs, id)
	return *j, nil
}

func (r *memoryRegistry) List() []Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

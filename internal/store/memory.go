package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"docuvid/internal/models"
)

// MemoryStore keeps jobs in process memory. Snapshots are copied on the
// way in and out so callers never share a Job pointer with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]models.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[uuid.UUID]models.Job)}
}

func (s *MemoryStore) Create(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &job, nil
}

func (s *MemoryStore) List(ctx context.Context, status string, limit, offset int) ([]models.Job, error) {
	s.mu.RLock()
	all := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && string(job.Status) != status {
			continue
		}
		all = append(all, job)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID.String() > all[j].ID.String()
	})

	if offset >= len(all) {
		return []models.Job{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; !ok {
		return ErrNotFound
	}
	s.jobs[job.ID] = *job
	return nil
}

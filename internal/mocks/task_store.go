package mocks

import (
	"context"
	"database/sql"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/store"
)

// MemoryTaskStore is an in-memory store.TaskStore that honours the same
// contract as the postgres implementation. Tasks are cloned on the way in
// and out so callers never share memory with the store.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	// Err fields, when set, are returned instead of touching the store.
	CreateErr error
	GetErr    error
	UpdateErr error
	DeleteErr error

	updates      int
	failUpdates  int
	failUpdateBy error
}

// NewMemoryTaskStore creates an empty store.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

// Create implements store.TaskStore.
func (s *MemoryTaskStore) Create(_ context.Context, task *domain.Task) error {
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "invalid task", store.ErrInvalidEntity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tasks {
		if existing.OwnerID == task.OwnerID && existing.Image == task.Image &&
			(existing.State == domain.TaskStateCreated || existing.State == domain.TaskStateRunning) {
			return store.ErrDuplicateTask
		}
	}
	if _, ok := s.tasks[task.ID]; ok {
		return store.ErrDuplicateTask
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

// Get implements store.TaskStore.
func (s *MemoryTaskStore) Get(_ context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return nil, store.ErrTaskNotFound
	}
	return t.Clone(), nil
}

// List implements store.TaskStore.
func (s *MemoryTaskStore) List(_ context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListByState implements store.TaskStore.
func (s *MemoryTaskStore) ListByState(_ context.Context, state domain.TaskState) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Task{}
	for _, t := range s.tasks {
		if t.State == state {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// Update implements store.TaskStore.
func (s *MemoryTaskStore) Update(_ context.Context, task *domain.Task) error {
	if s.UpdateErr != nil {
		return s.UpdateErr
	}
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "update", "invalid task", store.ErrInvalidEntity)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates > 0 {
		s.failUpdates--
		return s.failUpdateBy
	}
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[task.ID] = task.Clone()
	s.updates++
	return nil
}

// Delete implements store.TaskStore.
func (s *MemoryTaskStore) Delete(_ context.Context, id, ownerID uuid.UUID, force bool) error {
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.OwnerID != ownerID {
		return store.ErrTaskNotFound
	}
	if t.State == domain.TaskStateRunning && !force {
		return store.ErrTaskRunning
	}
	delete(s.tasks, id)
	return nil
}

// WithTx implements store.TaskStore. The memory store has no transactions.
func (s *MemoryTaskStore) WithTx(*sql.Tx) store.TaskStore {
	return s
}

// Put stores a task as-is, bypassing the duplicate check.
func (s *MemoryTaskStore) Put(task *domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[task.ID] = task.Clone()
}

// Snapshot returns the stored copy of a task regardless of owner.
func (s *MemoryTaskStore) Snapshot(id uuid.UUID) (*domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// FailUpdates makes the next n updates return err. It is safe to call
// while the store is in use; n = 0 clears it.
func (s *MemoryTaskStore) FailUpdates(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdates = n
	s.failUpdateBy = err
}

// Updates returns how many successful updates were applied.
func (s *MemoryTaskStore) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

var _ store.TaskStore = (*MemoryTaskStore)(nil)

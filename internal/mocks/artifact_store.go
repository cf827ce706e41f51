package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/task"
)

// MemoryArtifactStore implements task.ArtifactStore in memory.
type MemoryArtifactStore struct {
	mu        sync.Mutex
	artifacts map[string][]byte
	removed   []string
	saves     int
}

// NewMemoryArtifactStore creates an empty store.
func NewMemoryArtifactStore() *MemoryArtifactStore {
	return &MemoryArtifactStore{artifacts: make(map[string][]byte)}
}

// Save implements task.ArtifactStore.
func (s *MemoryArtifactStore) Save(_ context.Context, taskID uuid.UUID, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	ref := fmt.Sprintf("%s/output-%d.tar", taskID, s.saves)
	s.artifacts[ref] = data
	return ref, nil
}

// Put stores data under ref.
func (s *MemoryArtifactStore) Put(ref string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[ref] = data
}

// Open implements task.ArtifactStore.
func (s *MemoryArtifactStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.artifacts[ref]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", ref, os.ErrNotExist)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Remove implements task.ArtifactStore. Removing an unknown ref is not an
// error.
func (s *MemoryArtifactStore) Remove(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, ref)
	s.removed = append(s.removed, ref)
	return nil
}

// Has reports whether ref is stored.
func (s *MemoryArtifactStore) Has(ref string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.artifacts[ref]
	return ok
}

// Removed returns the refs passed to Remove, in order.
func (s *MemoryArtifactStore) Removed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.removed...)
}

var _ task.ArtifactStore = (*MemoryArtifactStore)(nil)

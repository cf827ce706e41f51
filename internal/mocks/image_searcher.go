package mocks

import (
	"context"
	"sync"

	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/task"
)

// FakeImageSearcher implements task.ImageSearcher from a fixed catalogue.
type FakeImageSearcher struct {
	// Candidates is returned for every term unless SearchFn is set.
	Candidates []domain.ImageCandidate

	// SearchFn allows test cases to mock the Search behavior
	SearchFn func(ctx context.Context, term string) ([]domain.ImageCandidate, error)

	// Err is returned when set.
	Err error

	mu    sync.Mutex
	terms []string
}

// NewFakeImageSearcher returns a searcher that knows the given repositories.
func NewFakeImageSearcher(names ...string) *FakeImageSearcher {
	s := &FakeImageSearcher{}
	for _, name := range names {
		s.Candidates = append(s.Candidates, domain.NewImageCandidate(name, name+" image", 10, true))
	}
	return s
}

// Search implements task.ImageSearcher.
func (s *FakeImageSearcher) Search(ctx context.Context, term string) ([]domain.ImageCandidate, error) {
	s.mu.Lock()
	s.terms = append(s.terms, term)
	s.mu.Unlock()

	if s.SearchFn != nil {
		return s.SearchFn(ctx, term)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]domain.ImageCandidate{}, s.Candidates...), nil
}

// Terms returns the search terms received, in order.
func (s *FakeImageSearcher) Terms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.terms...)
}

var _ task.ImageSearcher = (*FakeImageSearcher)(nil)

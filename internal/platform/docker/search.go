package docker

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/registry"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/task"
)

// Searcher implements task.ImageSearcher through the daemon's registry
// search endpoint.
type Searcher struct {
	api   API
	limit int
}

// NewSearcher creates a Searcher returning at most limit results.
func NewSearcher(api API, limit int) *Searcher {
	return &Searcher{api: api, limit: limit}
}

// Search implements task.ImageSearcher.
func (s *Searcher) Search(ctx context.Context, term string) ([]domain.ImageCandidate, error) {
	results, err := s.api.ImageSearch(ctx, term, registry.SearchOptions{Limit: s.limit})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearchUnavailable, err)
	}

	candidates := make([]domain.ImageCandidate, 0, len(results))
	for i, res := range results {
		if res.Name == "" {
			return nil, fmt.Errorf("%w: result %d has no name", domain.ErrSearchUnavailable, i)
		}
		candidates = append(candidates, domain.NewImageCandidate(res.Name, res.Description, res.StarCount, res.IsOfficial))
	}
	return candidates, nil
}

var _ task.ImageSearcher = (*Searcher)(nil)

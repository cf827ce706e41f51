package docker

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/registry"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearcher(t *testing.T) {
	t.Parallel()

	t.Run("maps results in order", func(t *testing.T) {
		api := newFakeAPI()
		api.searchResults = []registry.SearchResult{
			{Name: "nginx", Description: "Official build of Nginx.", StarCount: 20000, IsOfficial: true},
			{Name: "bitnami/nginx", Description: "Bitnami nginx", StarCount: 190},
		}

		got, err := NewSearcher(api, 25).Search(context.Background(), "nginx")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, domain.ImageCandidate{
			Name: "nginx", Owner: "library", Description: "Official build of Nginx.", Stars: 20000, Official: true,
		}, got[0])
		assert.Equal(t, "bitnami", got[1].Owner)
		assert.False(t, got[1].Official)
	})

	t.Run("daemon error", func(t *testing.T) {
		api := newFakeAPI()
		api.searchErr = errors.New("Cannot connect to the Docker daemon")

		_, err := NewSearcher(api, 25).Search(context.Background(), "nginx")
		assert.ErrorIs(t, err, domain.ErrSearchUnavailable)
	})

	t.Run("malformed result", func(t *testing.T) {
		api := newFakeAPI()
		api.searchResults = []registry.SearchResult{{Name: "nginx"}, {Name: ""}}

		_, err := NewSearcher(api, 25).Search(context.Background(), "nginx")
		assert.ErrorIs(t, err, domain.ErrSearchUnavailable)
	})

	t.Run("empty result is not an error", func(t *testing.T) {
		got, err := NewSearcher(newFakeAPI(), 25).Search(context.Background(), "nothing")
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

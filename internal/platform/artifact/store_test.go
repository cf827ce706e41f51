package artifact

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveOpenRemove(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()
	taskID := uuid.New()

	ref, err := s.Save(ctx, taskID, strings.NewReader("archive"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, taskID.String()+"/output-"))
	assert.True(t, strings.HasSuffix(ref, ".tar"))

	rc, err := s.Open(ctx, ref)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "archive", string(data))

	entries, err := os.ReadDir(filepath.Join(s.Dir(), taskID.String()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")

	require.NoError(t, s.Remove(ctx, ref))
	_, err = s.Open(ctx, ref)
	assert.ErrorIs(t, err, os.ErrNotExist)
	_, err = os.Stat(filepath.Join(s.Dir(), taskID.String()))
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Removing twice is fine.
	assert.NoError(t, s.Remove(ctx, ref))
}

func TestRejectsEscapingRefs(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	for _, ref := range []string{"", ".", "../secret", "/etc/passwd", "a/../../b", "x/output.tar.tmp"} {
		_, err := s.Open(ctx, ref)
		assert.ErrorIs(t, err, ErrInvalidRef, ref)
		assert.ErrorIs(t, s.Remove(ctx, ref), ErrInvalidRef, ref)
	}
}

func TestSaveHonoursContext(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	taskID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Save(ctx, taskID, strings.NewReader("never written"))
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(filepath.Join(s.Dir(), taskID.String()))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

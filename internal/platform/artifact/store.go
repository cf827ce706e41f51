// Package artifact keeps the output archives of successful task runs on the
// local filesystem.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidRef is returned for references that do not name a file inside
// the store.
var ErrInvalidRef = errors.New("invalid artifact reference")

// FileStore writes artifacts below a root directory as
// <task-id>/output-<unix-nanos>.tar. References are paths relative to the
// root and never escape it.
type FileStore struct {
	root *os.Root
	dir  string
}

// NewFileStore opens dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("open artifact dir: %w", err)
	}
	return &FileStore{root: root, dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Close releases the root directory handle.
func (s *FileStore) Close() error {
	return s.root.Close()
}

// Save copies r into a new artifact for taskID. The file only becomes
// visible under its final name once fully written.
func (s *FileStore) Save(ctx context.Context, taskID uuid.UUID, r io.Reader) (string, error) {
	if err := s.root.MkdirAll(taskID.String(), 0o755); err != nil {
		return "", fmt.Errorf("create task artifact dir: %w", err)
	}

	ref := path.Join(taskID.String(), fmt.Sprintf("output-%d.tar", time.Now().UnixNano()))
	tmp := ref + ".tmp"

	f, err := s.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact tmp: %w", err)
	}

	_, err = io.Copy(f, &contextReader{ctx: ctx, r: r})
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.root.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}

	if err := s.root.Rename(tmp, ref); err != nil {
		_ = s.root.Remove(tmp)
		return "", fmt.Errorf("rename artifact: %w", err)
	}
	return ref, nil
}

// Open opens the artifact named by ref.
func (s *FileStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	name, err := clean(ref)
	if err != nil {
		return nil, err
	}
	f, err := s.root.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, nil
}

// Remove deletes the artifact named by ref, and its task directory once
// empty. A missing artifact is not an error.
func (s *FileStore) Remove(_ context.Context, ref string) error {
	name, err := clean(ref)
	if err != nil {
		return err
	}
	if err := s.root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	// Fails while other artifacts remain, which is fine.
	_ = s.root.Remove(path.Dir(name))
	return nil
}

func clean(ref string) (string, error) {
	name := path.Clean(ref)
	if ref == "" || !fs.ValidPath(name) || name == "." || strings.HasSuffix(name, ".tmp") {
		return "", fmt.Errorf("%w: %q", ErrInvalidRef, ref)
	}
	return name, nil
}

// contextReader stops a copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

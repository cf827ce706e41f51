package task

import (
	"context"
	"io"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
)

// LogSink receives a run's output one line at a time, in order.
type LogSink interface {
	Append(line string)
}

// Outcome is the single terminal event of a run.
type Outcome struct {
	Succeeded bool
	// Output is the artifact reference of a successful run.
	Output string
	// Reason explains a failed run.
	Reason string
}

// Completed returns a successful outcome carrying output.
func Completed(output string) Outcome {
	return Outcome{Succeeded: true, Output: output}
}

// Failed returns a failed outcome carrying reason.
func Failed(reason string) Outcome {
	return Outcome{Reason: reason}
}

// Run is a launched process. Done delivers exactly one Outcome and is then
// closed.
type Run struct {
	Handle string
	Done   <-chan Outcome
}

// ProcessRunner launches and stops the process behind a task.
type ProcessRunner interface {
	// Start launches image for taskID and returns once the process is
	// running. Launch failures are returned as errors and never produce an
	// Outcome.
	Start(ctx context.Context, taskID uuid.UUID, image string, sink LogSink) (*Run, error)

	// Stop asks the process identified by handle to terminate. The run's
	// Outcome is still delivered on Done.
	Stop(ctx context.Context, handle string) error
}

// ImageSearcher queries the image registry.
type ImageSearcher interface {
	// Search returns candidates in registry order. Failures wrap
	// domain.ErrSearchUnavailable.
	Search(ctx context.Context, term string) ([]domain.ImageCandidate, error)
}

// ArtifactStore holds the outputs of successful runs.
type ArtifactStore interface {
	Save(ctx context.Context, taskID uuid.UUID, r io.Reader) (string, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Remove(ctx context.Context, ref string) error
}

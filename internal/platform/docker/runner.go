package docker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/task"
)

// TaskLabel marks containers created for a task.
const TaskLabel = "packer-server.task-id"

const (
	// logDrainTimeout bounds how long a finished run waits for its log
	// stream to reach EOF.
	logDrainTimeout = 5 * time.Second
	cleanupTimeout  = 30 * time.Second
)

// RunnerConfig holds container settings for task runs.
type RunnerConfig struct {
	// OutputPath is copied out of a container that exits with status 0.
	OutputPath    string
	MemoryLimitMB int64
	CPULimit      float64
	// PullImages pulls the image before creating the container.
	PullImages bool
	// StopGrace is how long a container may take to exit after SIGTERM.
	StopGrace time.Duration
}

// ArtifactSaver stores the output archive of a successful run.
type ArtifactSaver interface {
	Save(ctx context.Context, taskID uuid.UUID, r io.Reader) (string, error)
}

// Runner implements task.ProcessRunner with one container per run.
type Runner struct {
	api       API
	artifacts ArtifactSaver
	config    RunnerConfig
	logger    *slog.Logger

	// supervised holds containers started by this runner and not yet
	// removed; the value is set once a stop was requested.
	mu         sync.Mutex
	supervised map[string]bool
}

// NewRunner creates a Runner.
func NewRunner(api API, artifacts ArtifactSaver, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		api:        api,
		artifacts:  artifacts,
		config:     config,
		logger:     logger.With("component", "docker_runner"),
		supervised: make(map[string]bool),
	}
}

// Start implements task.ProcessRunner.
func (r *Runner) Start(ctx context.Context, taskID uuid.UUID, ref string, sink task.LogSink) (*task.Run, error) {
	if r.config.PullImages {
		if err := r.pull(ctx, ref); err != nil {
			return nil, launchError("pull", err)
		}
	}

	created, err := r.api.ContainerCreate(ctx,
		&container.Config{
			Image:  ref,
			Labels: map[string]string{TaskLabel: taskID.String()},
		},
		&container.HostConfig{
			Resources: container.Resources{
				Memory:   r.config.MemoryLimitMB * 1024 * 1024,
				NanoCPUs: int64(r.config.CPULimit * math.Pow10(9)),
			},
		},
		nil, nil, "")
	if err != nil {
		return nil, launchError("create", err)
	}

	if err := r.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		r.remove(created.ID)
		return nil, launchError("start", err)
	}

	r.logger.Info("container started", "task_id", taskID, "container_id", created.ID, "image", ref)

	r.mu.Lock()
	r.supervised[created.ID] = false
	r.mu.Unlock()

	done := make(chan task.Outcome, 1)
	go r.supervise(taskID, created.ID, sink, done)
	return &task.Run{Handle: created.ID, Done: done}, nil
}

func (r *Runner) pull(ctx context.Context, ref string) error {
	rc, err := r.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return err
	}
	defer rc.Close()
	// The pull only completes once its progress stream is consumed.
	_, err = io.Copy(io.Discard, rc)
	return err
}

// supervise follows one container to its exit and sends the outcome. A
// container that was asked to stop ends as cancelled whatever its exit
// status, and its output is not collected.
func (r *Runner) supervise(taskID uuid.UUID, id string, sink task.LogSink, done chan<- task.Outcome) {
	defer close(done)
	ctx := context.Background()

	logsDone := make(chan struct{})
	go func() {
		defer close(logsDone)
		r.streamLogs(ctx, id, sink)
	}()

	outcome := r.wait(ctx, id)

	select {
	case <-logsDone:
	case <-time.After(logDrainTimeout):
		r.logger.Warn("log stream did not finish", "container_id", id)
	}

	if r.stopRequested(id) {
		outcome = task.Failed(task.ReasonCancelled)
	} else if outcome.Succeeded {
		outcome = r.collect(ctx, taskID, id)
	}

	r.remove(id)
	r.mu.Lock()
	delete(r.supervised, id)
	r.mu.Unlock()
	done <- outcome
}

func (r *Runner) stopRequested(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.supervised[id]
}

// wait blocks until the container exits. A zero exit status is reported as
// a success without output; the caller collects it.
func (r *Runner) wait(ctx context.Context, id string) task.Outcome {
	statusCh, errCh := r.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return task.Failed(fmt.Sprintf("wait failed: %v", err))
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return task.Failed(status.Error.Message)
		}
		if status.StatusCode != 0 {
			return task.Failed(fmt.Sprintf("exit code %d", status.StatusCode))
		}
		return task.Outcome{Succeeded: true}
	}
}

// collect copies the output path of a finished container into the artifact
// store.
func (r *Runner) collect(ctx context.Context, taskID uuid.UUID, id string) task.Outcome {
	rc, _, err := r.api.CopyFromContainer(ctx, id, r.config.OutputPath)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return task.Failed(fmt.Sprintf("no output at %s", r.config.OutputPath))
		}
		return task.Failed(fmt.Sprintf("output copy failed: %v", err))
	}
	defer rc.Close()

	ref, err := r.artifacts.Save(ctx, taskID, rc)
	if err != nil {
		r.logger.Error("failed to store task output", "task_id", taskID, "container_id", id, "error", err)
		return task.Failed("output could not be stored")
	}
	return task.Completed(ref)
}

func (r *Runner) streamLogs(ctx context.Context, id string, sink task.LogSink) {
	rc, err := r.api.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		r.logger.Warn("failed to attach to container logs", "container_id", id, "error", err)
		return
	}
	defer rc.Close()

	w := newLineWriter(sink)
	defer w.Flush()
	if _, err := stdcopy.StdCopy(w, w, rc); err != nil {
		r.logger.Warn("container log stream ended with error", "container_id", id, "error", err)
	}
}

// Stop implements task.ProcessRunner. A container that no longer exists is
// treated as stopped. A container this runner does not supervise, such as
// one left by a previous server process, is removed outright.
func (r *Runner) Stop(ctx context.Context, handle string) error {
	r.mu.Lock()
	_, ours := r.supervised[handle]
	if ours {
		r.supervised[handle] = true
	}
	r.mu.Unlock()

	if !ours {
		err := r.api.ContainerRemove(ctx, handle, container.RemoveOptions{Force: true})
		if err != nil && !cerrdefs.IsNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", handle, err)
		}
		return nil
	}

	grace := int(r.config.StopGrace.Seconds())
	err := r.api.ContainerStop(ctx, handle, container.StopOptions{Timeout: &grace})
	if err != nil && !cerrdefs.IsNotFound(err) {
		return fmt.Errorf("failed to stop container %s: %w", handle, err)
	}
	return nil
}

func (r *Runner) remove(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := r.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !cerrdefs.IsNotFound(err) {
		r.logger.Warn("failed to remove container", "container_id", id, "error", err)
	}
}

func launchError(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrLaunchFailed, step, err)
}

var _ task.ProcessRunner = (*Runner)(nil)

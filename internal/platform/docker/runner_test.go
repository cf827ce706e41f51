package docker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type collectingSink struct {
	mu    sync.Mutex
	lines []string
}

func (s *collectingSink) Append(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
}

func (s *collectingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.lines...)
}

type memorySaver struct {
	saved map[uuid.UUID][]byte
	err   error
}

func (m *memorySaver) Save(_ context.Context, taskID uuid.UUID, r io.Reader) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.saved[taskID] = data
	return taskID.String() + "/output.tar", nil
}

func newTestRunner(api *fakeAPI, saver *memorySaver) *Runner {
	return NewRunner(api, saver, RunnerConfig{
		OutputPath:    "/out",
		MemoryLimitMB: 256,
		CPULimit:      0.5,
		PullImages:    true,
		StopGrace:     3 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func awaitOutcome(t *testing.T, run *task.Run) task.Outcome {
	t.Helper()
	select {
	case outcome, ok := <-run.Done:
		require.True(t, ok, "done closed without an outcome")
		_, open := <-run.Done
		assert.False(t, open, "done must be closed after the outcome")
		return outcome
	case <-time.After(2 * time.Second):
		t.Fatal("no outcome")
		return task.Outcome{}
	}
}

func TestRunnerSuccessfulRun(t *testing.T) {
	api := newFakeAPI()
	api.stdout = []string{"building\n", "partial "}
	api.stderr = []string{"warning\n"}
	api.output = []byte("tar bytes")
	saver := &memorySaver{saved: map[uuid.UUID][]byte{}}
	r := newTestRunner(api, saver)
	sink := &collectingSink{}
	taskID := uuid.New()

	run, err := r.Start(context.Background(), taskID, "nginx:latest", sink)
	require.NoError(t, err)
	assert.Equal(t, "c0ffee", run.Handle)

	api.exit <- container.WaitResponse{StatusCode: 0}
	outcome := awaitOutcome(t, run)

	assert.True(t, outcome.Succeeded)
	assert.Equal(t, taskID.String()+"/output.tar", outcome.Output)
	assert.Equal(t, []byte("tar bytes"), saver.saved[taskID])
	assert.Equal(t, []string{"building", "partial warning"}, sink.snapshot())

	assert.Equal(t, []string{"nginx:latest"}, api.pulled)
	require.Len(t, api.created, 1)
	assert.Equal(t, "nginx:latest", api.created[0].Image)
	assert.Equal(t, taskID.String(), api.created[0].Labels[TaskLabel])
	assert.Equal(t, int64(256*1024*1024), api.hostCfgs[0].Resources.Memory)
	assert.Equal(t, int64(500_000_000), api.hostCfgs[0].Resources.NanoCPUs)
	assert.Equal(t, []string{"/out"}, api.copyPaths)
	assert.Equal(t, []string{"c0ffee"}, api.removedIDs())
}

func TestRunnerNonZeroExit(t *testing.T) {
	api := newFakeAPI()
	r := newTestRunner(api, &memorySaver{saved: map[uuid.UUID][]byte{}})

	run, err := r.Start(context.Background(), uuid.New(), "alpine:latest", &collectingSink{})
	require.NoError(t, err)

	api.exit <- container.WaitResponse{StatusCode: 2}
	outcome := awaitOutcome(t, run)

	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "exit code 2", outcome.Reason)
	assert.Empty(t, api.copyPaths)
}

func TestRunnerMissingOutput(t *testing.T) {
	api := newFakeAPI()
	r := newTestRunner(api, &memorySaver{saved: map[uuid.UUID][]byte{}})

	run, err := r.Start(context.Background(), uuid.New(), "alpine:latest", &collectingSink{})
	require.NoError(t, err)

	api.exit <- container.WaitResponse{StatusCode: 0}
	outcome := awaitOutcome(t, run)

	assert.False(t, outcome.Succeeded)
	assert.Equal(t, "no output at /out", outcome.Reason)
}

func TestRunnerStopReportsCancelled(t *testing.T) {
	api := newFakeAPI()
	r := newTestRunner(api, &memorySaver{saved: map[uuid.UUID][]byte{}})

	run, err := r.Start(context.Background(), uuid.New(), "nginx:latest", &collectingSink{})
	require.NoError(t, err)

	require.NoError(t, r.Stop(context.Background(), run.Handle))
	outcome := awaitOutcome(t, run)

	assert.False(t, outcome.Succeeded)
	assert.Equal(t, task.ReasonCancelled, outcome.Reason)
	assert.Equal(t, []string{"c0ffee"}, api.stopped)
	assert.Empty(t, supervisedHandles(r))
}

func TestRunnerStopWinsOverCleanExit(t *testing.T) {
	api := newFakeAPI()
	api.stopStatus = 0
	api.output = []byte("archive")
	saver := &memorySaver{saved: map[uuid.UUID][]byte{}}
	r := newTestRunner(api, saver)

	run, err := r.Start(context.Background(), uuid.New(), "nginx:latest", &collectingSink{})
	require.NoError(t, err)

	require.NoError(t, r.Stop(context.Background(), run.Handle))
	outcome := awaitOutcome(t, run)

	assert.False(t, outcome.Succeeded)
	assert.Equal(t, task.ReasonCancelled, outcome.Reason)
	assert.Empty(t, outcome.Output)
	assert.Empty(t, api.copiedPaths())
	assert.Empty(t, saver.saved)
	assert.Equal(t, []string{"c0ffee"}, api.removedIDs())
}

func TestRunnerStopRemovesUnsupervisedContainer(t *testing.T) {
	api := newFakeAPI()
	r := newTestRunner(api, &memorySaver{saved: map[uuid.UUID][]byte{}})

	require.NoError(t, r.Stop(context.Background(), "left-by-previous-process"))

	assert.Empty(t, api.stoppedIDs())
	assert.Equal(t, []string{"left-by-previous-process"}, api.removedIDs())
	assert.Empty(t, supervisedHandles(r))
}

func supervisedHandles(r *Runner) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	handles := make([]string, 0, len(r.supervised))
	for h := range r.supervised {
		handles = append(handles, h)
	}
	return handles
}

func TestRunnerLaunchFailures(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*fakeAPI)
		removed   bool
	}{
		{name: "pull", configure: func(f *fakeAPI) { f.pullErr = errors.New("pull access denied") }},
		{name: "create", configure: func(f *fakeAPI) { f.createErr = errors.New("no such image") }},
		{name: "start", configure: func(f *fakeAPI) { f.startErr = errors.New("port in use") }, removed: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			api := newFakeAPI()
			tc.configure(api)
			r := newTestRunner(api, &memorySaver{saved: map[uuid.UUID][]byte{}})

			run, err := r.Start(context.Background(), uuid.New(), "nginx:latest", &collectingSink{})
			assert.Nil(t, run)
			assert.ErrorIs(t, err, domain.ErrLaunchFailed)
			assert.Contains(t, err.Error(), tc.name)
			if tc.removed {
				assert.Equal(t, []string{"c0ffee"}, api.removedIDs())
			} else {
				assert.Empty(t, api.removedIDs())
			}
		})
	}
}

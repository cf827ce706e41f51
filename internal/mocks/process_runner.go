package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/task"
)

// FakeRun is one process launched by FakeRunner. Tests drive it to a
// terminal outcome with Complete or Fail.
type FakeRun struct {
	Handle string
	TaskID uuid.UUID
	Image  string

	sink task.LogSink
	done chan task.Outcome
	once sync.Once
}

// Log pushes lines to the run's log sink.
func (r *FakeRun) Log(lines ...string) {
	for _, line := range lines {
		r.sink.Append(line)
	}
}

// Complete ends the run successfully with output.
func (r *FakeRun) Complete(output string) {
	r.finish(task.Completed(output))
}

// Fail ends the run with reason.
func (r *FakeRun) Fail(reason string) {
	r.finish(task.Failed(reason))
}

func (r *FakeRun) finish(outcome task.Outcome) {
	r.once.Do(func() {
		r.done <- outcome
		close(r.done)
	})
}

// FakeRunner implements task.ProcessRunner without launching anything.
type FakeRunner struct {
	// StartErr is returned by Start when set.
	StartErr error

	// StartGate, when non-nil, blocks Start until it is closed or the
	// launch context ends.
	StartGate chan struct{}

	// IgnoreStop makes Stop a no-op so runs keep going.
	IgnoreStop bool

	// StopErr is returned by Stop when set.
	StopErr error

	mu       sync.Mutex
	launches int
	runs     map[string]*FakeRun
	latest   map[uuid.UUID]*FakeRun
	stopped  []string
	launched chan *FakeRun
}

// NewFakeRunner creates a runner. Launched runs are also published on
// Launched.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{
		runs:     make(map[string]*FakeRun),
		latest:   make(map[uuid.UUID]*FakeRun),
		launched: make(chan *FakeRun, 64),
	}
}

// Start implements task.ProcessRunner.
func (f *FakeRunner) Start(ctx context.Context, taskID uuid.UUID, image string, sink task.LogSink) (*task.Run, error) {
	if f.StartGate != nil {
		select {
		case <-f.StartGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.StartErr != nil {
		return nil, f.StartErr
	}

	f.mu.Lock()
	f.launches++
	run := &FakeRun{
		Handle: fmt.Sprintf("proc-%d", f.launches),
		TaskID: taskID,
		Image:  image,
		sink:   sink,
		done:   make(chan task.Outcome, 1),
	}
	f.runs[run.Handle] = run
	f.latest[taskID] = run
	f.mu.Unlock()

	select {
	case f.launched <- run:
	default:
	}
	return &task.Run{Handle: run.Handle, Done: run.done}, nil
}

// Stop implements task.ProcessRunner. Unless IgnoreStop is set the run ends
// with Failed("cancelled").
func (f *FakeRunner) Stop(_ context.Context, handle string) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, handle)
	run := f.runs[handle]
	f.mu.Unlock()

	if f.StopErr != nil {
		return f.StopErr
	}
	if run != nil && !f.IgnoreStop {
		run.Fail(task.ReasonCancelled)
	}
	return nil
}

// Launched delivers every run as it is started.
func (f *FakeRunner) Launched() <-chan *FakeRun {
	return f.launched
}

// Launches returns how many processes were started.
func (f *FakeRunner) Launches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.launches
}

// RunFor returns the most recent run of taskID.
func (f *FakeRunner) RunFor(taskID uuid.UUID) *FakeRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest[taskID]
}

// Stopped returns the handles Stop was called with, in order.
func (f *FakeRunner) Stopped() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.stopped...)
}

var _ task.ProcessRunner = (*FakeRunner)(nil)

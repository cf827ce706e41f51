package task

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/events"
	"github.com/mumahendras3/packer-server/internal/store"
)

const (
	// persistTimeout bounds store writes made outside of a request.
	persistTimeout = 10 * time.Second

	// A terminal state is written up to persistAttempts times, sleeping
	// persistBackoff, then twice that, between attempts.
	persistAttempts = 3
	persistBackoff  = 50 * time.Millisecond
)

// ManagerConfig holds the timing parameters of the manager.
type ManagerConfig struct {
	// LaunchTimeout bounds ProcessRunner.Start.
	LaunchTimeout time.Duration

	// StopTimeout bounds a stop request together with the wait for the
	// run's terminal transition.
	StopTimeout time.Duration

	// MaxRunDuration is how long a run may last before the watchdog stops
	// it. Zero disables the limit.
	MaxRunDuration time.Duration

	// MonitorInterval is how often the watchdog checks running tasks.
	MonitorInterval time.Duration
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		LaunchTimeout:   2 * time.Minute,
		StopTimeout:     30 * time.Second,
		MaxRunDuration:  time.Hour,
		MonitorInterval: 30 * time.Second,
	}
}

// activeRun is the in-memory record of a run between its reservation in
// StartTask and its terminal transition.
type activeRun struct {
	taskID  uuid.UUID
	ownerID uuid.UUID
	image   string
	logs    *LogBuffer

	// ready is closed once the launch attempt has resolved. handle,
	// startedAt and launched are written before that and never after.
	ready     chan struct{}
	handle    string
	startedAt time.Time
	launched  bool

	// done is closed after the terminal state is persisted, or after a
	// failed launch has been released.
	done chan struct{}

	mu         sync.Mutex
	stopReason string
}

// requestStop records why the run is being stopped. The first reason wins.
func (r *activeRun) requestStop(reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopReason != "" {
		return false
	}
	r.stopReason = reason
	return true
}

func (r *activeRun) reason() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopReason
}

func (r *activeRun) isLaunched() bool {
	select {
	case <-r.ready:
		return r.launched
	default:
		return false
	}
}

// Manager drives every task through its lifecycle. It is safe for
// concurrent use.
type Manager struct {
	store     store.TaskStore
	searcher  ImageSearcher
	runner    ProcessRunner
	artifacts ArtifactStore
	events    events.EventEmitter
	config    ManagerConfig
	logger    *slog.Logger

	mu      sync.Mutex
	runs    map[uuid.UUID]*activeRun
	stopped bool

	// unsettled holds finished runs whose terminal state the store has
	// not accepted yet. The stored record still says Running. settleMu
	// serializes the writes that retry them.
	unsettled map[uuid.UUID]*domain.Task
	settleMu  sync.Mutex

	// supervisors tracks supervise goroutines; background tracks the
	// watchdog.
	supervisors sync.WaitGroup
	background  sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewManager creates a Manager. emitter may be nil.
func NewManager(
	taskStore store.TaskStore,
	searcher ImageSearcher,
	runner ProcessRunner,
	artifacts ArtifactStore,
	emitter events.EventEmitter,
	config ManagerConfig,
	logger *slog.Logger,
) (*Manager, error) {
	if taskStore == nil {
		return nil, errors.New("task store cannot be nil")
	}
	if searcher == nil {
		return nil, errors.New("image searcher cannot be nil")
	}
	if runner == nil {
		return nil, errors.New("process runner cannot be nil")
	}
	if artifacts == nil {
		return nil, errors.New("artifact store cannot be nil")
	}
	if emitter == nil {
		emitter = events.NopEmitter{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultManagerConfig()
	if config.LaunchTimeout <= 0 {
		config.LaunchTimeout = defaults.LaunchTimeout
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = defaults.StopTimeout
	}
	if config.MonitorInterval <= 0 {
		config.MonitorInterval = defaults.MonitorInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:     taskStore,
		searcher:  searcher,
		runner:    runner,
		artifacts: artifacts,
		events:    emitter,
		config:    config,
		logger:    logger.With("component", "task_manager"),
		runs:      make(map[uuid.UUID]*activeRun),
		unsettled: make(map[uuid.UUID]*domain.Task),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Search queries the image registry for term.
func (m *Manager) Search(ctx context.Context, term string) ([]domain.ImageCandidate, error) {
	if term == "" {
		return nil, fmt.Errorf("%w: empty search term", domain.ErrInvalidImage)
	}
	candidates, err := m.searcher.Search(ctx, term)
	if err != nil {
		return nil, searchError(err)
	}
	return candidates, nil
}

// AddTask resolves image against the registry and records a new task in the
// Created state. No process is launched.
func (m *Manager) AddTask(ctx context.Context, ownerID uuid.UUID, image string) (*domain.Task, error) {
	ref, err := domain.ParseImageRef(image)
	if err != nil {
		return nil, err
	}

	candidates, err := m.searcher.Search(ctx, ref.Repository())
	if err != nil {
		return nil, searchError(err)
	}

	found := false
	for _, c := range candidates {
		if c.Matches(ref) {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoImageFound, ref.Repository())
	}

	t, err := domain.NewTask(ownerID, ref.String())
	if err != nil {
		return nil, err
	}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, err
	}

	m.logger.InfoContext(ctx, "task created", "task_id", t.ID, "owner_id", ownerID, "image", t.Image)
	m.emit(ctx, events.TaskCreated, t, nil)
	return t, nil
}

// GetTask returns the task.
func (m *Manager) GetTask(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	return m.load(ctx, id, ownerID)
}

// ListTasks returns the owner's tasks, newest first.
func (m *Manager) ListTasks(ctx context.Context, ownerID uuid.UUID) ([]*domain.Task, error) {
	tasks, err := m.store.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i, t := range tasks {
		if t.State != domain.TaskStateRunning {
			continue
		}
		if settled, ok := m.settle(ctx, t.ID); ok {
			tasks[i] = settled
		}
	}
	return tasks, nil
}

// load reads a task from the store. A record still Running after its run
// ended is replaced by the run's outcome, whose write is retried first.
func (m *Manager) load(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	pending := m.pending(id)
	t, err := m.store.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !pending || t.State != domain.TaskStateRunning {
		return t, nil
	}
	if settled, ok := m.settle(ctx, id); ok {
		return settled, nil
	}
	// Settled by someone else since the read.
	return m.store.Get(ctx, id, ownerID)
}

func (m *Manager) pending(id uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.unsettled[id]
	return ok
}

// settle retries writing the unrecorded outcome of id. It returns the
// outcome, recorded or not, and false when there is none.
func (m *Manager) settle(ctx context.Context, id uuid.UUID) (*domain.Task, bool) {
	m.settleMu.Lock()
	defer m.settleMu.Unlock()

	m.mu.Lock()
	t, ok := m.unsettled[id]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}

	err := m.store.Update(ctx, t)
	if err != nil && !errors.Is(err, domain.ErrTaskNotFound) {
		m.logger.WarnContext(ctx, "task outcome still not recorded", "task_id", id, "error", err)
		return t.Clone(), true
	}

	m.mu.Lock()
	delete(m.unsettled, id)
	m.mu.Unlock()
	if err == nil {
		m.logger.InfoContext(ctx, "task outcome recorded", "task_id", id, "state", t.State)
	}
	return t.Clone(), true
}

// settleAll retries every unrecorded outcome and returns how many remain.
func (m *Manager) settleAll(ctx context.Context) int {
	m.mu.Lock()
	ids := make([]uuid.UUID, 0, len(m.unsettled))
	for id := range m.unsettled {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.settle(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unsettled)
}

// StartTask launches a process for the task and returns it in the Running
// state. Starting a terminal task is a re-run: its previous logs and output
// are discarded. While a run is active, or being launched, further starts
// fail with domain.ErrTaskStillRunning.
func (m *Manager) StartTask(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	if _, err := m.load(ctx, id, ownerID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil, ErrManagerStopped
	}
	if _, busy := m.runs[id]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskStillRunning, id)
	}
	run := &activeRun{
		taskID: id,
		logs:   NewLogBuffer(),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	m.runs[id] = run
	m.mu.Unlock()

	// Re-read under the reservation so the state cannot be changed by
	// another start.
	t, err := m.load(ctx, id, ownerID)
	if err != nil {
		m.release(run)
		return nil, err
	}
	if m.pending(id) {
		m.release(run)
		return nil, fmt.Errorf("%w: %s", ErrOutcomeNotRecorded, id)
	}
	if t.State == domain.TaskStateRunning {
		m.release(run)
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskStillRunning, id)
	}
	run.ownerID = t.OwnerID
	run.image = t.Image

	// The process must not die with the request that started it.
	bg := context.WithoutCancel(ctx)
	launchCtx, cancel := context.WithTimeout(bg, m.config.LaunchTimeout)
	started, err := m.runner.Start(launchCtx, id, t.Image, run.logs)
	cancel()
	if err != nil {
		m.release(run)
		m.logger.WarnContext(ctx, "task launch failed", "task_id", id, "image", t.Image, "error", err)
		if !errors.Is(err, domain.ErrLaunchFailed) {
			err = fmt.Errorf("%w: %w", domain.ErrLaunchFailed, err)
		}
		return nil, err
	}

	previousOutput := t.Output
	now := time.Now()
	if err := t.MarkRunning(started.Handle, now); err != nil {
		m.abandon(run, started)
		return nil, err
	}
	persistCtx, cancel := context.WithTimeout(bg, persistTimeout)
	err = m.store.Update(persistCtx, t)
	cancel()
	if err != nil {
		m.abandon(run, started)
		return nil, fmt.Errorf("failed to record task start: %w", err)
	}

	run.handle = started.Handle
	run.startedAt = now
	run.launched = true
	m.supervisors.Add(1)
	close(run.ready)
	go m.supervise(run, t.Clone(), started.Done)

	if previousOutput != "" {
		m.removeArtifact(bg, id, previousOutput)
	}

	m.logger.InfoContext(ctx, "task started", "task_id", id, "image", t.Image, "handle", started.Handle)
	m.emit(ctx, events.TaskStarted, t, nil)
	return t.Clone(), nil
}

// release drops a reservation whose launch did not produce a run.
func (m *Manager) release(run *activeRun) {
	m.mu.Lock()
	delete(m.runs, run.taskID)
	m.mu.Unlock()
	run.logs.Close()
	close(run.ready)
	close(run.done)
}

// abandon stops a process that was launched but could not be recorded as
// running, and releases its reservation.
func (m *Manager) abandon(run *activeRun, started *Run) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.StopTimeout)
	defer cancel()
	if err := m.runner.Stop(ctx, started.Handle); err != nil {
		m.logger.Error("failed to stop abandoned process", "task_id", run.taskID, "handle", started.Handle, "error", err)
	}
	go func() {
		for range started.Done {
		}
	}()
	m.release(run)
}

// supervise waits for the terminal event of a run and settles the task. A
// run that was asked to stop fails with the stop reason even if the process
// went on to finish cleanly.
func (m *Manager) supervise(run *activeRun, t *domain.Task, done <-chan Outcome) {
	defer m.supervisors.Done()

	outcome, ok := <-done
	if !ok {
		outcome = Failed(ReasonLost)
	}
	if reason := run.reason(); reason != "" {
		if outcome.Succeeded && outcome.Output != "" {
			m.removeArtifact(context.Background(), run.taskID, outcome.Output)
		}
		outcome = Failed(reason)
	}
	if outcome.Succeeded && outcome.Output == "" {
		outcome = Failed(ReasonNoOutput)
	}

	run.logs.Close()
	logs := run.logs.Snapshot()
	now := time.Now()

	var err error
	eventType := events.TaskSucceeded
	if outcome.Succeeded {
		err = t.MarkSucceeded(outcome.Output, logs, now)
	} else {
		eventType = events.TaskFailed
		err = t.MarkFailed(outcome.Reason, logs, now)
	}
	if err == nil {
		err = m.persistOutcome(t)
	}

	m.mu.Lock()
	delete(m.runs, run.taskID)
	if err != nil && t.State != domain.TaskStateRunning {
		m.unsettled[run.taskID] = t.Clone()
	}
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("failed to record task outcome, keeping it in memory",
			"task_id", run.taskID,
			"state", t.State,
			"error", err)
	}

	m.logger.Info("task finished",
		"task_id", run.taskID,
		"state", t.State,
		"reason", t.FailureReason,
		"duration", now.Sub(run.startedAt))

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	m.emit(ctx, eventType, t, &run.startedAt)
	close(run.done)
}

// persistOutcome writes a terminal state, retrying with backoff.
func (m *Manager) persistOutcome(t *domain.Task) error {
	backoff := persistBackoff
	var err error
	for attempt := 1; attempt <= persistAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err = m.store.Update(ctx, t)
		cancel()
		// A deleted task has nothing left to record.
		if err == nil || errors.Is(err, domain.ErrTaskNotFound) {
			return nil
		}
		if attempt < persistAttempts {
			m.logger.Warn("retrying task outcome write", "task_id", t.ID, "attempt", attempt, "error", err)
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	return err
}

// active returns the in-memory run for id, if any.
func (m *Manager) active(id uuid.UUID) *activeRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[id]
}

// CheckTask returns the task's status. A task that was never started
// reports domain.ErrTaskNotStarted.
func (m *Manager) CheckTask(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	t, err := m.load(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if !t.HasRun() {
		return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotStarted, id)
	}
	return t, nil
}

// GetTaskLogs returns the task with the logs of its current or last run.
// While running, Logs is a snapshot of the live buffer.
func (m *Manager) GetTaskLogs(ctx context.Context, id, ownerID uuid.UUID) (*domain.Task, error) {
	t, err := m.CheckTask(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	if t.State == domain.TaskStateRunning {
		if run := m.active(id); run != nil && run.isLaunched() {
			t.Logs = run.logs.Snapshot()
		}
	}
	return t, nil
}

// FollowLogs calls emit with every log line of the task's current run as it
// is produced, and returns when the run ends or ctx is done. For a finished
// run the stored lines are emitted at once.
func (m *Manager) FollowLogs(ctx context.Context, id, ownerID uuid.UUID, emit func(lines []string) error) error {
	t, err := m.CheckTask(ctx, id, ownerID)
	if err != nil {
		return err
	}

	run := m.active(id)
	if t.State != domain.TaskStateRunning || run == nil || !run.isLaunched() {
		if len(t.Logs) == 0 {
			return nil
		}
		return emit(t.Logs)
	}

	from := 0
	for {
		lines, closed, err := run.logs.Wait(ctx, from)
		if err != nil {
			return err
		}
		if closed {
			return nil
		}
		if err := emit(lines); err != nil {
			return err
		}
		from += len(lines)
	}
}

// DownloadOutput returns the artifact reference recorded by the task's last
// successful run.
func (m *Manager) DownloadOutput(ctx context.Context, id, ownerID uuid.UUID) (string, error) {
	t, err := m.load(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	switch t.State {
	case domain.TaskStateCreated:
		return "", fmt.Errorf("%w: %s", domain.ErrTaskNotStarted, id)
	case domain.TaskStateRunning:
		return "", fmt.Errorf("%w: %s", domain.ErrTaskStillRunning, id)
	case domain.TaskStateFailed:
		return "", fmt.Errorf("%w: %s", domain.ErrTaskFailed, t.FailureReason)
	}
	return t.Output, nil
}

// OpenOutput opens the artifact returned by DownloadOutput.
func (m *Manager) OpenOutput(ctx context.Context, id, ownerID uuid.UUID) (io.ReadCloser, string, error) {
	ref, err := m.DownloadOutput(ctx, id, ownerID)
	if err != nil {
		return nil, "", err
	}
	rc, err := m.artifacts.Open(ctx, ref)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open task output: %w", err)
	}
	return rc, ref, nil
}

// DeleteTask removes a task. A running task is stopped first and the record
// is only removed once its run has ended. If that does not happen within the
// stop timeout, domain.ErrStopTimeout is returned and the task is kept.
func (m *Manager) DeleteTask(ctx context.Context, id, ownerID uuid.UUID) error {
	t, err := m.load(ctx, id, ownerID)
	if err != nil {
		return err
	}

	orphan := false
	if run := m.active(id); run != nil {
		if err := m.stopRun(ctx, run, ReasonCancelled); err != nil {
			return err
		}
		if t, err = m.load(ctx, id, ownerID); err != nil {
			return err
		}
	} else if t.State == domain.TaskStateRunning {
		// Recorded as running with nobody supervising it: the run belongs
		// to a previous server process. Stop the leftover process.
		m.stopOrphan(ctx, t)
		orphan = true
	}

	// The record may say Running while the outcome waits in memory.
	force := orphan || m.pending(id)
	if err := m.store.Delete(ctx, id, ownerID, force); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.unsettled, id)
	m.mu.Unlock()
	if t.Output != "" {
		m.removeArtifact(ctx, id, t.Output)
	}

	m.logger.InfoContext(ctx, "task deleted", "task_id", id, "owner_id", ownerID)
	m.emit(ctx, events.TaskDeleted, t, nil)
	return nil
}

// stopRun stops an active run and waits for its terminal transition.
func (m *Manager) stopRun(ctx context.Context, run *activeRun, reason string) error {
	// A launch in progress resolves within the launch timeout.
	select {
	case <-run.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	if !run.launched {
		<-run.done
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, m.config.StopTimeout)
	defer cancel()

	if run.requestStop(reason) {
		if err := m.runner.Stop(stopCtx, run.handle); err != nil {
			m.logger.WarnContext(ctx, "stop request failed",
				"task_id", run.taskID,
				"handle", run.handle,
				"error", err)
		}
	}

	select {
	case <-run.done:
		return nil
	case <-stopCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", domain.ErrStopTimeout, run.taskID)
	}
}

func (m *Manager) stopOrphan(ctx context.Context, t *domain.Task) {
	if t.ProcessHandle == "" {
		return
	}
	stopCtx, cancel := context.WithTimeout(ctx, m.config.StopTimeout)
	defer cancel()
	if err := m.runner.Stop(stopCtx, t.ProcessHandle); err != nil {
		m.logger.WarnContext(ctx, "failed to stop orphaned process",
			"task_id", t.ID,
			"handle", t.ProcessHandle,
			"error", err)
	}
}

func (m *Manager) removeArtifact(ctx context.Context, id uuid.UUID, ref string) {
	if err := m.artifacts.Remove(ctx, ref); err != nil {
		m.logger.WarnContext(ctx, "failed to remove task output", "task_id", id, "output", ref, "error", err)
	}
}

func (m *Manager) emit(ctx context.Context, eventType events.Type, t *domain.Task, startedAt *time.Time) {
	event := events.NewTaskEvent(eventType, t.ID, t.OwnerID, t.Image)
	if eventType != events.TaskDeleted {
		event.State = string(t.State)
	}
	event.Reason = t.FailureReason
	if startedAt != nil && t.EndedAt != nil {
		event.Duration = t.EndedAt.Sub(*startedAt)
	}
	if err := m.events.EmitEvent(ctx, event); err != nil {
		m.logger.WarnContext(ctx, "task event not fully delivered",
			"event_type", eventType,
			"task_id", t.ID,
			"error", err)
	}
}

func searchError(err error) error {
	if errors.Is(err, domain.ErrSearchUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrSearchUnavailable, err)
}

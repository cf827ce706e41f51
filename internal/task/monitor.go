package task

import (
	"context"
	"fmt"
	"time"

	"github.com/mumahendras3/packer-server/internal/domain"
	"github.com/mumahendras3/packer-server/internal/events"
)

// Start recovers tasks left running by a previous process and starts the
// watchdog, which stops overlong runs and retries unrecorded outcomes.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	m.background.Add(1)
	go m.watchdog()
	return nil
}

// Recover marks every task stored as Running, with no run supervised by this
// manager, as Failed. Process handles do not survive a restart, so the
// leftover processes are asked to stop as well. It returns the number of
// tasks recovered.
func (m *Manager) Recover(ctx context.Context) (int, error) {
	running, err := m.store.ListByState(ctx, domain.TaskStateRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to list running tasks: %w", err)
	}

	m.logger.InfoContext(ctx, "recovering interrupted tasks", "running_count", len(running))

	recovered := 0
	for _, t := range running {
		if m.active(t.ID) != nil || m.pending(t.ID) {
			continue
		}

		m.stopOrphan(ctx, t)
		if err := t.MarkFailed(ReasonInterrupted, t.Logs, time.Now()); err != nil {
			m.logger.ErrorContext(ctx, "failed to mark interrupted task", "task_id", t.ID, "error", err)
			continue
		}
		if err := m.store.Update(ctx, t); err != nil {
			m.logger.ErrorContext(ctx, "failed to persist interrupted task", "task_id", t.ID, "error", err)
			continue
		}

		recovered++
		m.emit(ctx, events.TaskFailed, t, nil)
	}

	if recovered > 0 {
		m.logger.InfoContext(ctx, "interrupted tasks marked failed", "recovered_count", recovered)
	}
	return recovered, nil
}

func (m *Manager) watchdog() {
	defer m.background.Done()

	ticker := time.NewTicker(m.config.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.config.MaxRunDuration > 0 {
				m.expireRuns(time.Now())
			}
			m.settleAll(m.ctx)
		}
	}
}

// expireRuns stops every launched run older than MaxRunDuration.
func (m *Manager) expireRuns(now time.Time) int {
	m.mu.Lock()
	var expired []*activeRun
	for _, run := range m.runs {
		if run.isLaunched() && now.Sub(run.startedAt) > m.config.MaxRunDuration && run.reason() == "" {
			expired = append(expired, run)
		}
	}
	m.mu.Unlock()

	for _, run := range expired {
		m.logger.Warn("stopping task that exceeded its run time",
			"task_id", run.taskID,
			"image", run.image,
			"max_run_duration", m.config.MaxRunDuration)
		if err := m.stopRun(m.ctx, run, ReasonTimedOut); err != nil {
			m.logger.Error("failed to stop expired task", "task_id", run.taskID, "error", err)
		}
	}
	return len(expired)
}

// Stop rejects further starts, stops every active run and waits for their
// supervisors to record the outcome, or for ctx to be done.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	m.stopped = true
	runs := make([]*activeRun, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}
	m.mu.Unlock()

	m.cancel()
	m.background.Wait()

	m.logger.Info("stopping active tasks", "active_count", len(runs))
	for _, run := range runs {
		if err := m.stopRun(ctx, run, ReasonShutdown); err != nil {
			m.logger.Error("failed to stop task on shutdown", "task_id", run.taskID, "error", err)
		}
	}

	waited := make(chan struct{})
	go func() {
		m.supervisors.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-ctx.Done():
		return ctx.Err()
	}

	if remaining := m.settleAll(ctx); remaining > 0 {
		m.logger.Error("task outcomes lost on shutdown; recovery will mark them interrupted",
			"unrecorded_count", remaining)
	}
	return nil
}

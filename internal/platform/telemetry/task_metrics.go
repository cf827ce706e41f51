package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mumahendras3/packer-server/internal/events"
)

// TaskMetrics records task lifecycle events as OpenTelemetry instruments.
type TaskMetrics struct {
	created  metric.Int64Counter
	started  metric.Int64Counter
	finished metric.Int64Counter
	deleted  metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTaskMetrics creates the task instruments on mp.
func NewTaskMetrics(mp metric.MeterProvider) (*TaskMetrics, error) {
	meter := mp.Meter(InstrumentationName)

	created, err := meter.Int64Counter("tasks.created",
		metric.WithDescription("Tasks created"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, fmt.Errorf("create tasks.created counter: %w", err)
	}
	started, err := meter.Int64Counter("tasks.started",
		metric.WithDescription("Runs launched, including re-runs"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("create tasks.started counter: %w", err)
	}
	finished, err := meter.Int64Counter("tasks.finished",
		metric.WithDescription("Runs that reached a terminal state"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("create tasks.finished counter: %w", err)
	}
	deleted, err := meter.Int64Counter("tasks.deleted",
		metric.WithDescription("Tasks deleted"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, fmt.Errorf("create tasks.deleted counter: %w", err)
	}
	duration, err := meter.Float64Histogram("tasks.run.duration",
		metric.WithDescription("Wall time of finished runs"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create tasks.run.duration histogram: %w", err)
	}

	return &TaskMetrics{
		created:  created,
		started:  started,
		finished: finished,
		deleted:  deleted,
		duration: duration,
	}, nil
}

// HandleEvent implements events.EventHandler.
func (m *TaskMetrics) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	switch event.Type {
	case events.TaskCreated:
		m.created.Add(ctx, 1)
	case events.TaskStarted:
		m.started.Add(ctx, 1)
	case events.TaskSucceeded, events.TaskFailed:
		state := metric.WithAttributes(attribute.String("state", event.State))
		m.finished.Add(ctx, 1, state)
		if event.Duration > 0 {
			m.duration.Record(ctx, event.Duration.Seconds(), state)
		}
	case events.TaskDeleted:
		m.deleted.Add(ctx, 1)
	}
	return nil
}

var _ events.EventHandler = (*TaskMetrics)(nil)

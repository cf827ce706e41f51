package task

import (
	"context"
	"log/slog"

	"github.com/mumahendras3/packer-server/internal/events"
)

// AuditEventHandler writes one structured log record per lifecycle event.
// Failures are logged at warn level, everything else at info.
type AuditEventHandler struct {
	logger *slog.Logger
}

// NewAuditEventHandler creates an audit handler writing to logger.
func NewAuditEventHandler(logger *slog.Logger) *AuditEventHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditEventHandler{
		logger: logger.With("component", "task_audit"),
	}
}

// HandleEvent implements events.EventHandler.
func (h *AuditEventHandler) HandleEvent(ctx context.Context, event *events.TaskEvent) error {
	attrs := []slog.Attr{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.Type)),
		slog.String("task_id", event.TaskID.String()),
		slog.String("owner_id", event.OwnerID.String()),
		slog.String("image", event.Image),
	}
	if event.State != "" {
		attrs = append(attrs, slog.String("state", event.State))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}
	if event.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", event.Duration))
	}

	level := slog.LevelInfo
	if event.Type == events.TaskFailed {
		level = slog.LevelWarn
	}
	h.logger.LogAttrs(ctx, level, "task lifecycle event", attrs...)
	return nil
}

var _ events.EventHandler = (*AuditEventHandler)(nil)

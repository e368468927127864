package data

import (
	"context"

	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// ExecutionSink fans execution lifecycle events out to the configured
// broker publisher and, on terminal transitions, into the history index.
// Either half may be nil.
type ExecutionSink struct {
	publisher *EventPublisher
	history   *HistoryIndexer
	logger    *zap.Logger
}

// NewExecutionSink combines the optional event outputs. Returns nil when
// neither is configured.
func NewExecutionSink(publisher *EventPublisher, history *HistoryIndexer, logger *zap.Logger) *ExecutionSink {
	if publisher == nil && history == nil {
		return nil
	}
	return &ExecutionSink{publisher: publisher, history: history, logger: logger}
}

// PublishExecutionEvent implements the tracker's event sink.
func (s *ExecutionSink) PublishExecutionEvent(ctx context.Context, event string, exec *types.CommandExecution) {
	if s.publisher != nil {
		s.publisher.PublishExecutionEvent(ctx, event, exec)
	}

	if s.history != nil && exec.State.Terminal() {
		if err := s.history.Index(ctx, exec); err != nil {
			s.logger.Warn("Failed to index execution history",
				zap.String("command_id", exec.CommandID),
				zap.Error(err))
		}
	}
}

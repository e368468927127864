package notify

import (
	"context"

	"fleetcmd/internal/server/track"
	"fleetcmd/internal/types"
)

// EventSink chains the manager into the tracker's event stream so command
// timeouts raise alerts. Other events pass straight through.
type EventSink struct {
	next    track.EventSink
	manager *Manager
}

// NewEventSink wraps next with timeout alerting. Either argument may be
// nil; a fully nil chain returns nil.
func NewEventSink(next track.EventSink, manager *Manager) track.EventSink {
	if manager == nil {
		return next
	}
	return &EventSink{next: next, manager: manager}
}

// PublishExecutionEvent implements the tracker's event sink.
func (s *EventSink) PublishExecutionEvent(ctx context.Context, event string, exec *types.CommandExecution) {
	if s.next != nil {
		s.next.PublishExecutionEvent(ctx, event, exec)
	}
	if event == string(types.ExecutionStateTimedOut) {
		s.manager.NotifyCommandTimeout(exec)
	}
}

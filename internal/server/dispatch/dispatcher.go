package dispatch

import (
	"context"
	"time"

	"fleetcmd/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender delivers a command envelope to one agent, failing fast when the
// agent has no live channel. The connection registry satisfies this.
type Sender interface {
	Send(ctx context.Context, agentID string, env *types.CommandEnvelope) error
}

// Recorder tracks execution records for later result correlation. The
// tracker satisfies this.
type Recorder interface {
	Track(ctx context.Context, exec *types.CommandExecution)
	Discard(ctx context.Context, agentID, commandID string)
}

// Request describes one execution request before fan-out.
type Request struct {
	Command    string
	TemplateID string
	Params     map[string]string
	Timeout    time.Duration
}

// Dispatcher fans an execution request out into independent per-agent
// command envelopes. Failures for one target never abort dispatch to the
// others; there is no batch-level state.
type Dispatcher struct {
	sender   Sender
	recorder Recorder
	logger   *zap.Logger
}

// New creates a dispatcher.
func New(sender Sender, recorder Recorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		recorder: recorder,
		logger:   logger,
	}
}

// Dispatch sends the resolved command to every target agent. Each agent
// gets a fresh command ID and an execution record created atomically with
// the registry send; per-agent failures are reported in the corresponding
// DispatchResult and leave no record behind.
func (d *Dispatcher) Dispatch(ctx context.Context, agentIDs []string, req Request) []types.DispatchResult {
	results := make([]types.DispatchResult, 0, len(agentIDs))

	for _, agentID := range agentIDs {
		results = append(results, d.dispatchOne(ctx, agentID, req))
	}
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, agentID string, req Request) types.DispatchResult {
	commandID := "cmd-" + uuid.New().String()
	now := time.Now()

	exec := &types.CommandExecution{
		CommandID:  commandID,
		AgentID:    agentID,
		Command:    req.Command,
		TemplateID: req.TemplateID,
		Params:     req.Params,
		Timeout:    req.Timeout,
		State:      types.ExecutionStateDispatched,
		CreatedAt:  now,
	}

	env := &types.CommandEnvelope{
		CommandID: commandID,
		AgentID:   agentID,
		Command:   req.Command,
		Timeout:   req.Timeout,
		CreatedAt: now,
	}

	// Track before send so a fast agent reply always finds its record;
	// a failed send discards the record again.
	d.recorder.Track(ctx, exec)

	if err := d.sender.Send(ctx, agentID, env); err != nil {
		d.recorder.Discard(ctx, agentID, commandID)
		d.logger.Debug("Dispatch failed",
			zap.String("agent_id", agentID),
			zap.String("command_id", commandID),
			zap.Error(err))
		return types.DispatchResult{AgentID: agentID, Err: err, Error: err.Error()}
	}

	d.logger.Info("Command dispatched",
		zap.String("agent_id", agentID),
		zap.String("command_id", commandID),
		zap.Duration("timeout", req.Timeout))

	return types.DispatchResult{AgentID: agentID, CommandID: commandID}
}

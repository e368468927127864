package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"fleetcmd/internal/server/dispatch"
	"fleetcmd/internal/server/template"
	"fleetcmd/internal/types"
)

// ExecuteRequest describes one batch execution request. Exactly one of
// Command or TemplateID must be set.
type ExecuteRequest struct {
	AgentIDs   []string          `json:"agent_ids" binding:"required,min=1"`
	Command    string            `json:"command,omitempty"`
	TemplateID string            `json:"template_id,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Timeout    time.Duration     `json:"timeout,omitempty"`
}

// ExecuteCommand resolves the command text once, then fans it out to every
// target agent. Per-agent failures are reported in the result slice; they
// never abort the rest of the batch.
func (s *Service) ExecuteCommand(ctx context.Context, req ExecuteRequest) ([]types.DispatchResult, error) {
	if len(req.AgentIDs) == 0 {
		return nil, fmt.Errorf("at least one agent id is required")
	}
	if (req.Command == "") == (req.TemplateID == "") {
		return nil, fmt.Errorf("exactly one of command or template_id is required")
	}

	command := req.Command
	if req.TemplateID != "" {
		tpl, err := s.templates.Get(req.TemplateID)
		if err != nil {
			return nil, err
		}
		command, err = template.Resolve(tpl, req.Params)
		if err != nil {
			return nil, err
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}
	if s.opts.MaxTimeout > 0 && timeout > s.opts.MaxTimeout {
		timeout = s.opts.MaxTimeout
	}

	results := s.dispatcher.Dispatch(ctx, req.AgentIDs, dispatch.Request{
		Command:    command,
		TemplateID: req.TemplateID,
		Params:     req.Params,
		Timeout:    timeout,
	})

	s.logger.Info("Command batch dispatched",
		zap.Int("targets", len(req.AgentIDs)),
		zap.String("template_id", req.TemplateID))
	return results, nil
}

// GetResult polls the current state of one execution. Executions pruned
// from memory are served from the database.
func (s *Service) GetResult(ctx context.Context, agentID, commandID string) (*types.ExecutionView, error) {
	view, err := s.tracker.Poll(ctx, agentID, commandID)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, types.ErrExecutionNotFound) || s.db == nil {
		return nil, err
	}

	exec, dberr := s.db.GetExecution(ctx, agentID, commandID)
	if dberr != nil {
		return nil, dberr
	}
	return viewFromExecution(exec), nil
}

// History returns recent executions, optionally filtered to one agent.
func (s *Service) History(ctx context.Context, agentID string, limit int) ([]*types.CommandExecution, error) {
	if s.db == nil {
		return nil, fmt.Errorf("history requires a database")
	}
	return s.db.GetExecutions(ctx, agentID, limit)
}

// SearchHistory runs a full-text search over the indexed command history.
func (s *Service) SearchHistory(ctx context.Context, text string, limit int) ([]*types.CommandExecution, error) {
	if s.history == nil {
		return nil, fmt.Errorf("history search is not configured")
	}
	return s.history.Search(ctx, text, limit)
}

// viewFromExecution maps a stored execution onto the caller-facing view.
func viewFromExecution(exec *types.CommandExecution) *types.ExecutionView {
	view := &types.ExecutionView{
		AgentID:   exec.AgentID,
		CommandID: exec.CommandID,
	}

	switch exec.State {
	case types.ExecutionStateDispatched:
		view.Status = types.PollStatusPending
	case types.ExecutionStateCompleted:
		view.Status = types.PollStatusCompleted
	case types.ExecutionStateFailed:
		view.Status = types.PollStatusFailed
	case types.ExecutionStateTimedOut:
		view.Status = types.PollStatusTimedOut
		view.Error = "command timed out"
	}

	if exec.Result != nil {
		view.Output = exec.Result.Output
		view.Error = exec.Result.Error
		exitCode := exec.Result.ExitCode
		view.ExitCode = &exitCode
		seconds := exec.Result.Duration.Seconds()
		view.ExecutionTimeSeconds = &seconds
	}
	return view
}

package service

import (
	"context"

	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// HandleRegister admits an agent into the registry when its channel opens.
func (s *Service) HandleRegister(ctx context.Context, req types.RegisterRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return err
	}
	_, err := s.registry.Register(ctx, req)
	return err
}

// HandleHeartbeat refreshes agent liveness and metrics.
func (s *Service) HandleHeartbeat(ctx context.Context, hb types.Heartbeat) {
	s.registry.Heartbeat(ctx, hb.AgentID, hb.Metrics)
}

// HandleUnregister marks the agent offline on a graceful disconnect.
func (s *Service) HandleUnregister(ctx context.Context, agentID string) {
	s.registry.Unregister(ctx, agentID)
}

// HandleResult correlates an agent's result report with its outstanding
// execution.
func (s *Service) HandleResult(ctx context.Context, result types.CommandResult) {
	s.logger.Debug("Result received",
		zap.String("agent_id", result.AgentID),
		zap.String("command_id", result.CommandID),
		zap.Bool("success", result.Success))
	s.tracker.OnResult(ctx, result.AgentID, result.CommandID, &result)
}

// GetAgent returns one agent record.
func (s *Service) GetAgent(agentID string) (*types.AgentInfo, error) {
	return s.registry.Get(agentID)
}

// ListAgents returns agent records, optionally filtered by status.
func (s *Service) ListAgents(status types.AgentStatus) []*types.AgentInfo {
	return s.registry.ListByStatus(status)
}

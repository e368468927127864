package notify

import (
	"time"

	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// notifier is the contract each channel implements.
type notifier interface {
	NotifyAgentOffline(agent *types.AgentInfo) error
	NotifyCommandTimeout(exec *types.CommandExecution) error
}

// Manager fans fleet events out to the enabled notification channels.
// Channel failures are logged, never propagated.
type Manager struct {
	notifiers []notifier
	logger    *zap.Logger
}

// NewManager creates a manager over the enabled channels. Returns nil when
// notifications are disabled or no channel is configured.
func NewManager(cfg *Config, logger *zap.Logger) *Manager {
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	m := &Manager{logger: logger}

	if cfg.Webhook.Enabled && cfg.Webhook.URL != "" {
		m.notifiers = append(m.notifiers, newWebhookNotifier(&cfg.Webhook, logger))
	}
	if cfg.Slack.Enabled && cfg.Slack.WebhookURL != "" {
		m.notifiers = append(m.notifiers, newSlackNotifier(&cfg.Slack, logger))
	}

	if len(m.notifiers) == 0 {
		return nil
	}

	logger.Info("Notifications enabled", zap.Int("channels", len(m.notifiers)))
	return m
}

// NotifyAgentOffline reports an agent that stopped heartbeating.
func (m *Manager) NotifyAgentOffline(agent *types.AgentInfo) {
	for _, n := range m.notifiers {
		if err := n.NotifyAgentOffline(agent); err != nil {
			m.logger.Warn("Agent offline notification failed",
				zap.String("agent_id", agent.ID),
				zap.Error(err))
		}
	}
}

// NotifyCommandTimeout reports an execution that expired undelivered.
func (m *Manager) NotifyCommandTimeout(exec *types.CommandExecution) {
	for _, n := range m.notifiers {
		if err := n.NotifyCommandTimeout(exec); err != nil {
			m.logger.Warn("Command timeout notification failed",
				zap.String("command_id", exec.CommandID),
				zap.Error(err))
		}
	}
}

// offlineDuration formats how long an agent has been silent.
func offlineDuration(agent *types.AgentInfo) string {
	return time.Since(agent.LastSeen).Round(time.Second).String()
}

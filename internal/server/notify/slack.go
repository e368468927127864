package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// slackNotifier posts fleet events to a slack incoming webhook.
type slackNotifier struct {
	config *SlackConfig
	logger *zap.Logger
	client *http.Client
}

// slackMessage represents a slack webhook message
type slackMessage struct {
	Channel     string            `json:"channel,omitempty"`
	Username    string            `json:"username,omitempty"`
	Text        string            `json:"text,omitempty"`
	Attachments []slackAttachment `json:"attachments,omitempty"`
}

// slackAttachment represents a slack message attachment
type slackAttachment struct {
	Color     string       `json:"color"`
	Title     string       `json:"title"`
	Text      string       `json:"text"`
	Fields    []slackField `json:"fields,omitempty"`
	Timestamp int64        `json:"ts"`
}

// slackField represents a slack attachment field
type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

func newSlackNotifier(cfg *SlackConfig, logger *zap.Logger) *slackNotifier {
	return &slackNotifier{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *slackNotifier) NotifyAgentOffline(agent *types.AgentInfo) error {
	return s.send(slackMessage{
		Channel:  s.config.Channel,
		Username: s.config.Username,
		Attachments: []slackAttachment{{
			Color: "danger",
			Title: "Agent Offline",
			Text:  fmt.Sprintf("Agent %s (%s) stopped heartbeating", agent.ID, agent.Hostname),
			Fields: []slackField{
				{Title: "Last Seen", Value: agent.LastSeen.Format(time.RFC3339), Short: true},
				{Title: "Offline For", Value: offlineDuration(agent), Short: true},
			},
			Timestamp: time.Now().Unix(),
		}},
	})
}

func (s *slackNotifier) NotifyCommandTimeout(exec *types.CommandExecution) error {
	return s.send(slackMessage{
		Channel:  s.config.Channel,
		Username: s.config.Username,
		Attachments: []slackAttachment{{
			Color: "warning",
			Title: "Command Timed Out",
			Text:  fmt.Sprintf("Command %s on agent %s produced no result", exec.CommandID, exec.AgentID),
			Fields: []slackField{
				{Title: "Command", Value: exec.Command, Short: false},
				{Title: "Timeout", Value: exec.Timeout.String(), Short: true},
			},
			Timestamp: time.Now().Unix(),
		}},
	})
}

func (s *slackNotifier) send(msg slackMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	resp, err := s.client.Post(s.config.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

package notify

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleetcmd/internal/types"
)

// webhookNotifier posts fleet events to a configured HTTP endpoint.
type webhookNotifier struct {
	config *WebhookConfig
	logger *zap.Logger
	client *http.Client
}

// webhookPayload represents the webhook payload structure
type webhookPayload struct {
	EventType string      `json:"event_type"`
	EventID   string      `json:"event_id"`
	Timestamp time.Time   `json:"timestamp"`
	AgentID   string      `json:"agent_id,omitempty"`
	Hostname  string      `json:"hostname,omitempty"`
	Data      interface{} `json:"data"`
}

func newWebhookNotifier(cfg *WebhookConfig, logger *zap.Logger) *webhookNotifier {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookNotifier{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: timeout},
	}
}

func (w *webhookNotifier) NotifyAgentOffline(agent *types.AgentInfo) error {
	return w.send(webhookPayload{
		EventType: "agent.offline",
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
		AgentID:   agent.ID,
		Hostname:  agent.Hostname,
		Data: map[string]interface{}{
			"last_seen": agent.LastSeen,
			"offline":   offlineDuration(agent),
			"version":   agent.Version,
		},
	})
}

func (w *webhookNotifier) NotifyCommandTimeout(exec *types.CommandExecution) error {
	return w.send(webhookPayload{
		EventType: "command.timeout",
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
		AgentID:   exec.AgentID,
		Data: map[string]interface{}{
			"command_id": exec.CommandID,
			"command":    exec.Command,
			"timeout":    exec.Timeout.String(),
			"created_at": exec.CreatedAt,
		},
	})
}

func (w *webhookNotifier) send(payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.config.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.config.Headers {
		req.Header.Set(k, v)
	}
	if w.config.Secret != "" {
		mac := hmac.New(sha256.New, []byte(w.config.Secret))
		mac.Write(body)
		req.Header.Set("X-Fleet-Signature", hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

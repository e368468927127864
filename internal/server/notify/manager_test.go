package notify

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleetcmd/internal/types"
)

func testAgent() *types.AgentInfo {
	return &types.AgentInfo{
		ID:       "agent-1",
		Hostname: "win-01",
		Status:   types.AgentStatusOffline,
		LastSeen: time.Now().Add(-2 * time.Minute),
	}
}

func TestManager_Disabled(t *testing.T) {
	assert.Nil(t, NewManager(nil, zaptest.NewLogger(t)))
	assert.Nil(t, NewManager(&Config{Enabled: false}, zaptest.NewLogger(t)))
	assert.Nil(t, NewManager(&Config{Enabled: true}, zaptest.NewLogger(t)))
}

func TestWebhook_AgentOffline(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &Config{Enabled: true}
	cfg.Webhook.Enabled = true
	cfg.Webhook.URL = srv.URL
	cfg.Webhook.Secret = "hunter2"

	m := NewManager(cfg, zaptest.NewLogger(t))
	require.NotNil(t, m)

	m.NotifyAgentOffline(testAgent())

	select {
	case r := <-received:
		body := <-bodies

		var payload webhookPayload
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "agent.offline", payload.EventType)
		assert.Equal(t, "agent-1", payload.AgentID)
		assert.Equal(t, "win-01", payload.Hostname)

		mac := hmac.New(sha256.New, []byte("hunter2"))
		mac.Write(body)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("X-Fleet-Signature"))
	case <-time.After(5 * time.Second):
		t.Fatal("webhook not received")
	}
}

func TestSlack_CommandTimeout(t *testing.T) {
	bodies := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &Config{Enabled: true}
	cfg.Slack.Enabled = true
	cfg.Slack.WebhookURL = srv.URL
	cfg.Slack.Channel = "#fleet-alerts"

	m := NewManager(cfg, zaptest.NewLogger(t))
	require.NotNil(t, m)

	m.NotifyCommandTimeout(&types.CommandExecution{
		CommandID: "cmd-1",
		AgentID:   "agent-1",
		Command:   "Restart-Service Spooler",
		Timeout:   30 * time.Second,
		State:     types.ExecutionStateTimedOut,
	})

	select {
	case body := <-bodies:
		var msg slackMessage
		require.NoError(t, json.Unmarshal(body, &msg))
		assert.Equal(t, "#fleet-alerts", msg.Channel)
		require.Len(t, msg.Attachments, 1)
		assert.Contains(t, msg.Attachments[0].Text, "cmd-1")
	case <-time.After(5 * time.Second):
		t.Fatal("slack message not received")
	}
}

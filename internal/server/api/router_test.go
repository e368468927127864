package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleetcmd/internal/server/config"
	"fleetcmd/internal/server/dispatch"
	"fleetcmd/internal/server/registry"
	"fleetcmd/internal/server/service"
	"fleetcmd/internal/server/template"
	"fleetcmd/internal/server/track"
	"fleetcmd/internal/types"
)

type nullChannel struct{}

func (nullChannel) Send(context.Context, string, *types.CommandEnvelope) error { return nil }

func newTestRouter(t *testing.T) (*Router, *service.Service) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	reg := registry.New(nullChannel{}, nil, nil, logger)
	templates := template.NewStore(nil, logger)
	templates.Seed(template.BuiltinTemplates())
	tracker := track.New(nil, nil, time.Hour, logger)
	dispatcher := dispatch.New(reg, tracker, logger)
	svc := service.New(reg, templates, dispatcher, tracker, nil, nil, service.DefaultOptions(), logger)

	cfg := &config.Config{}
	return NewRouter(cfg, svc, logger), svc
}

func doRequest(r *Router, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.engine.ServeHTTP(w, req)
	return w
}

func TestRouter_ExecuteAndPoll(t *testing.T) {
	r, svc := newTestRouter(t)
	require.NoError(t, svc.HandleRegister(context.Background(), types.RegisterRequest{
		AgentID:  "agent-1",
		Hostname: "win-01",
	}))

	w := doRequest(r, http.MethodPost, "/api/v1/commands/execute", map[string]any{
		"agent_ids": []string{"agent-1"},
		"command":   "hostname",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Data struct {
			Results []types.DispatchResult `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Data.Results, 1)
	commandID := out.Data.Results[0].CommandID
	require.NotEmpty(t, commandID)

	w = doRequest(r, http.MethodGet, "/api/v1/commands/result/agent-1/"+commandID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var poll struct {
		Data types.ExecutionView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &poll))
	assert.Equal(t, types.PollStatusPending, poll.Data.Status)
}

func TestRouter_ExecuteOfflineAgent(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/commands/execute", map[string]any{
		"agent_ids": []string{"ghost"},
		"command":   "hostname",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Data struct {
			Results []types.DispatchResult `json:"results"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Data.Results, 1)
	assert.Empty(t, out.Data.Results[0].CommandID)
	assert.NotEmpty(t, out.Data.Results[0].Error)
}

func TestRouter_ExecuteValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/commands/execute", map[string]any{
		"command": "hostname",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/commands/execute", map[string]any{
		"agent_ids":   []string{"agent-1"},
		"template_id": "sys-ping-host",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRouter_ResultNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/commands/result/agent-1/cmd-missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_Agents(t *testing.T) {
	r, svc := newTestRouter(t)
	require.NoError(t, svc.HandleRegister(context.Background(), types.RegisterRequest{
		AgentID:  "agent-1",
		Hostname: "win-01",
	}))

	w := doRequest(r, http.MethodGet, "/api/v1/agents?status=online", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "agent-1")

	w = doRequest(r, http.MethodGet, "/api/v1/agents/agent-1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/agents/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doRequest(r, http.MethodGet, "/api/v1/agents?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_TemplateCRUD(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodPost, "/api/v1/templates", map[string]any{
		"name":    "Echo",
		"command": "echo $Message",
		"params":  []map[string]any{{"name": "Message", "required": true}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Data types.CommandTemplate `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Data.ID)

	w = doRequest(r, http.MethodGet, "/api/v1/templates/"+created.Data.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/v1/templates/sys-ping-host", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(r, http.MethodDelete, "/api/v1/templates/"+created.Data.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRouter_AuthToken(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg := registry.New(nullChannel{}, nil, nil, logger)
	templates := template.NewStore(nil, logger)
	tracker := track.New(nil, nil, time.Hour, logger)
	dispatcher := dispatch.New(reg, tracker, logger)
	svc := service.New(reg, templates, dispatcher, tracker, nil, nil, service.DefaultOptions(), logger)

	cfg := &config.Config{}
	cfg.API.Auth.Enabled = true
	cfg.API.Auth.Token = "secret"
	r := NewRouter(cfg, svc, logger)

	w := doRequest(r, http.MethodGet, "/api/v1/agents", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agents", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	r.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Health(t *testing.T) {
	r, _ := newTestRouter(t)

	w := doRequest(r, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

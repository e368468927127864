package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fleetcmd/internal/types"
)

func testDatabase(t *testing.T) *Database {
	t.Helper()

	cfg := DefaultConfig()
	cfg.DSN = "file::memory:?cache=shared&_fk=1"
	cfg.MaxOpenConns = 1
	cfg.MigrationsPath = "../../../migrations"

	db, err := New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func testAgent(id string) *types.AgentInfo {
	now := time.Now().UTC().Truncate(time.Second)
	return &types.AgentInfo{
		ID:           id,
		Hostname:     "host-" + id,
		IPAddress:    "10.0.0.1",
		OS:           "windows",
		Version:      "1.0.0",
		Tags:         []string{"dc1"},
		Status:       types.AgentStatusOnline,
		LastSeen:     now,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
}

func TestDatabase_SaveAgent(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	agent := testAgent("agent-1")
	agent.Metrics = &types.MetricsSnapshot{
		CPUPercent:    12.5,
		MemoryPercent: 40.0,
		Volumes: []types.DiskUsage{
			{Mount: "C:", TotalBytes: 100, UsedBytes: 50, UsedPercent: 50},
		},
		CollectedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.SaveAgent(ctx, agent))

	got, err := db.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, agent.Hostname, got.Hostname)
	assert.Equal(t, types.AgentStatusOnline, got.Status)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, 12.5, got.Metrics.CPUPercent)
	require.Len(t, got.Metrics.Volumes, 1)
	assert.Equal(t, "C:", got.Metrics.Volumes[0].Mount)
}

func TestDatabase_SaveAgentUpsert(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	agent := testAgent("agent-1")
	require.NoError(t, db.SaveAgent(ctx, agent))

	agent.Status = types.AgentStatusOffline
	agent.Hostname = "renamed"
	require.NoError(t, db.SaveAgent(ctx, agent))

	got, err := db.GetAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusOffline, got.Status)
	assert.Equal(t, "renamed", got.Hostname)

	agents, err := db.GetAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 1)
}

func TestDatabase_GetAgentNotFound(t *testing.T) {
	db := testDatabase(t)

	_, err := db.GetAgent(context.Background(), "missing")
	assert.ErrorIs(t, err, types.ErrAgentNotFound)
}

func TestDatabase_SaveExecution(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	exec := &types.CommandExecution{
		CommandID: "cmd-1",
		AgentID:   "agent-1",
		Command:   "ipconfig /all",
		Params:    map[string]string{"Host": "example.com"},
		Timeout:   30 * time.Second,
		State:     types.ExecutionStateDispatched,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, db.SaveExecution(ctx, exec))

	exec.State = types.ExecutionStateCompleted
	exec.FinishedAt = exec.CreatedAt.Add(2 * time.Second)
	exec.Result = &types.CommandResult{
		CommandID: "cmd-1",
		AgentID:   "agent-1",
		Success:   true,
		Output:    "Windows IP Configuration",
		ExitCode:  0,
		Duration:  1800 * time.Millisecond,
	}
	require.NoError(t, db.SaveExecution(ctx, exec))

	got, err := db.GetExecution(ctx, "agent-1", "cmd-1")
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionStateCompleted, got.State)
	assert.Equal(t, 30*time.Second, got.Timeout)
	assert.Equal(t, "example.com", got.Params["Host"])
	require.NotNil(t, got.Result)
	assert.Equal(t, 0, got.Result.ExitCode)
	assert.Equal(t, 1800*time.Millisecond, got.Result.Duration)
}

func TestDatabase_GetExecutions(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, agentID := range []string{"agent-1", "agent-1", "agent-2"} {
		exec := &types.CommandExecution{
			CommandID: "cmd-" + string(rune('a'+i)),
			AgentID:   agentID,
			Command:   "hostname",
			Timeout:   time.Second,
			State:     types.ExecutionStateCompleted,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, db.SaveExecution(ctx, exec))
	}

	all, err := db.GetExecutions(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "cmd-c", all[0].CommandID)

	mine, err := db.GetExecutions(ctx, "agent-1", 10)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestDatabase_Cleanup(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	old := &types.CommandExecution{
		CommandID:  "cmd-old",
		AgentID:    "agent-1",
		Command:    "hostname",
		Timeout:    time.Second,
		State:      types.ExecutionStateCompleted,
		CreatedAt:  now.Add(-48 * time.Hour),
		FinishedAt: now.Add(-48 * time.Hour),
	}
	pending := &types.CommandExecution{
		CommandID: "cmd-live",
		AgentID:   "agent-1",
		Command:   "hostname",
		Timeout:   time.Second,
		State:     types.ExecutionStateDispatched,
		CreatedAt: now,
	}
	require.NoError(t, db.SaveExecution(ctx, old))
	require.NoError(t, db.SaveExecution(ctx, pending))

	n, err := db.Cleanup(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = db.GetExecution(ctx, "agent-1", "cmd-old")
	assert.ErrorIs(t, err, types.ErrExecutionNotFound)
	_, err = db.GetExecution(ctx, "agent-1", "cmd-live")
	assert.NoError(t, err)
}

func TestDatabase_Templates(t *testing.T) {
	db := testDatabase(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	tpl := &types.CommandTemplate{
		ID:      "tpl-1",
		Name:    "Ping Host",
		Command: "ping -n $Count $Host",
		Params: []types.Parameter{
			{Name: "Host", Required: true},
			{Name: "Count", Default: "4"},
		},
		Tags:      []string{"network"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, db.SaveTemplate(ctx, tpl))

	tpl.Name = "Ping"
	tpl.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, db.SaveTemplate(ctx, tpl))

	templates, err := db.GetTemplates(ctx)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "Ping", templates[0].Name)
	require.Len(t, templates[0].Params, 2)
	assert.True(t, templates[0].Params[0].Required)

	require.NoError(t, db.DeleteTemplate(ctx, "tpl-1"))
	templates, err = db.GetTemplates(ctx)
	require.NoError(t, err)
	assert.Empty(t, templates)
}

func TestDatabase_Rebind(t *testing.T) {
	db := &Database{cfg: &Config{Driver: DriverPostgres}}
	assert.Equal(t, "SELECT $1, $2", db.rebind("SELECT ?, ?"))

	db = &Database{cfg: &Config{Driver: DriverSQLite}}
	assert.Equal(t, "SELECT ?, ?", db.rebind("SELECT ?, ?"))
}

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"fleetcmd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSender fails sends for agents in the offline set
type fakeSender struct {
	mu      sync.Mutex
	offline map[string]bool
	sent    []*types.CommandEnvelope
}

func (f *fakeSender) Send(_ context.Context, agentID string, env *types.CommandEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline[agentID] {
		return fmt.Errorf("%w: %s", types.ErrAgentNotConnected, agentID)
	}
	f.sent = append(f.sent, env)
	return nil
}

// fakeRecorder collects tracked and discarded executions
type fakeRecorder struct {
	mu        sync.Mutex
	tracked   map[string]*types.CommandExecution // by command ID
	discarded []string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{tracked: make(map[string]*types.CommandExecution)}
}

func (f *fakeRecorder) Track(_ context.Context, exec *types.CommandExecution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked[exec.CommandID] = exec
}

func (f *fakeRecorder) Discard(_ context.Context, _, commandID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tracked, commandID)
	f.discarded = append(f.discarded, commandID)
}

func TestDispatchFanOut(t *testing.T) {
	sender := &fakeSender{}
	rec := newFakeRecorder()
	d := New(sender, rec, zaptest.NewLogger(t))

	results := d.Dispatch(context.Background(), []string{"a1", "a2"}, Request{
		Command: "echo test",
		Timeout: 30 * time.Second,
	})

	require.Len(t, results, 2)
	ids := make(map[string]bool)
	for _, r := range results {
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.CommandID)
		ids[r.CommandID] = true
	}
	assert.Len(t, ids, 2, "each agent carries its own command ID")
	assert.Len(t, sender.sent, 2)
	assert.Len(t, rec.tracked, 2)
}

func TestDispatchIsolatesPerAgentFailure(t *testing.T) {
	sender := &fakeSender{offline: map[string]bool{"a2": true}}
	rec := newFakeRecorder()
	d := New(sender, rec, zaptest.NewLogger(t))

	results := d.Dispatch(context.Background(), []string{"a1", "a2", "a3"}, Request{
		Command: "hostname",
		Timeout: time.Minute,
	})

	require.Len(t, results, 3)

	var ok, failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			assert.Equal(t, "a2", r.AgentID)
			assert.ErrorIs(t, r.Err, types.ErrAgentNotConnected)
			assert.Empty(t, r.CommandID)
		} else {
			ok++
		}
	}
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, failed)

	// The failed target leaves no execution record behind.
	assert.Len(t, rec.tracked, 2)
	assert.Len(t, rec.discarded, 1)
}

func TestDispatchEnvelopeMatchesRecord(t *testing.T) {
	sender := &fakeSender{}
	rec := newFakeRecorder()
	d := New(sender, rec, zaptest.NewLogger(t))

	results := d.Dispatch(context.Background(), []string{"a1"}, Request{
		Command:    "Restart-Service -Name spooler -Force",
		TemplateID: "sys-restart-service",
		Params:     map[string]string{"ServiceName": "spooler"},
		Timeout:    time.Minute,
	})

	require.Len(t, results, 1)
	require.Len(t, sender.sent, 1)

	env := sender.sent[0]
	assert.Equal(t, results[0].CommandID, env.CommandID)
	assert.Equal(t, "a1", env.AgentID)
	assert.Equal(t, "Restart-Service -Name spooler -Force", env.Command)

	exec := rec.tracked[env.CommandID]
	require.NotNil(t, exec)
	assert.Equal(t, types.ExecutionStateDispatched, exec.State)
	assert.Equal(t, "sys-restart-service", exec.TemplateID)
	assert.Equal(t, "spooler", exec.Params["ServiceName"])
}

func TestDispatchEmptyTargets(t *testing.T) {
	d := New(&fakeSender{}, newFakeRecorder(), zaptest.NewLogger(t))
	results := d.Dispatch(context.Background(), nil, Request{Command: "hostname"})
	assert.Empty(t, results)
}

package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleetcmd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeChannel records sends and optionally fails them
type fakeChannel struct {
	mu    sync.Mutex
	sent  []*types.CommandEnvelope
	err   error
	calls int
}

func (f *fakeChannel) Send(_ context.Context, _ string, env *types.CommandEnvelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, env)
	return nil
}

func newTestRegistry(t *testing.T) (*Registry, *fakeChannel) {
	t.Helper()
	ch := &fakeChannel{}
	return New(ch, nil, nil, zaptest.NewLogger(t)), ch
}

func register(t *testing.T, r *Registry, id string) {
	t.Helper()
	_, err := r.Register(context.Background(), types.RegisterRequest{
		AgentID:  id,
		Hostname: id + "-host",
		OS:       "windows",
		Version:  "1.2.3",
	})
	require.NoError(t, err)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry(t)

	register(t, r, "a1")
	first, err := r.Get("a1")
	require.NoError(t, err)

	_, err = r.Register(context.Background(), types.RegisterRequest{
		AgentID:  "a1",
		Hostname: "renamed-host",
	})
	require.NoError(t, err)

	agents := r.ListByStatus("")
	assert.Len(t, agents, 1, "re-registering must not create a duplicate")

	second, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, "renamed-host", second.Hostname)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
	assert.Equal(t, types.AgentStatusOnline, second.Status)
}

func TestHeartbeatReplacesMetricsWholesale(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, "a1")

	r.Heartbeat(context.Background(), "a1", &types.MetricsSnapshot{
		CPUPercent:    50,
		MemoryPercent: 60,
		Volumes:       []types.DiskUsage{{Mount: "C:", UsedPercent: 80}},
	})
	r.Heartbeat(context.Background(), "a1", &types.MetricsSnapshot{
		CPUPercent: 10,
	})

	info, err := r.Get("a1")
	require.NoError(t, err)
	require.NotNil(t, info.Metrics)
	assert.Equal(t, 10.0, info.Metrics.CPUPercent)
	assert.Zero(t, info.Metrics.MemoryPercent, "snapshot must be replaced, not merged")
	assert.Empty(t, info.Metrics.Volumes)
}

func TestHeartbeatUnknownAgentIsNoop(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Heartbeat(context.Background(), "ghost", &types.MetricsSnapshot{CPUPercent: 1})

	assert.Empty(t, r.ListByStatus(""))
}

func TestUnregisterKeepsRecord(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, "a1")

	r.Unregister(context.Background(), "a1")

	info, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusOffline, info.Status)
}

func TestSendFailsFastWhenOffline(t *testing.T) {
	r, ch := newTestRegistry(t)
	register(t, r, "a1")
	r.Unregister(context.Background(), "a1")

	err := r.Send(context.Background(), "a1", &types.CommandEnvelope{CommandID: "c1"})
	assert.ErrorIs(t, err, types.ErrAgentNotConnected)
	assert.Zero(t, ch.calls, "no delivery attempt for offline agents")
}

func TestSendFailsFastWhenUnknown(t *testing.T) {
	r, ch := newTestRegistry(t)

	err := r.Send(context.Background(), "nope", &types.CommandEnvelope{CommandID: "c1"})
	assert.ErrorIs(t, err, types.ErrAgentNotConnected)
	assert.Zero(t, ch.calls)
}

func TestSendWrapsTransportError(t *testing.T) {
	r, ch := newTestRegistry(t)
	ch.err = errors.New("broken pipe")
	register(t, r, "a1")

	err := r.Send(context.Background(), "a1", &types.CommandEnvelope{CommandID: "c1"})
	assert.ErrorIs(t, err, types.ErrDeliveryFailed)
}

func TestSendDeliversEnvelope(t *testing.T) {
	r, ch := newTestRegistry(t)
	register(t, r, "a1")

	env := &types.CommandEnvelope{CommandID: "c1", AgentID: "a1", Command: "hostname"}
	require.NoError(t, r.Send(context.Background(), "a1", env))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "c1", ch.sent[0].CommandID)
}

func TestListByStatusFilters(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, "a1")
	register(t, r, "a2")
	r.Unregister(context.Background(), "a2")

	online := r.ListByStatus(types.AgentStatusOnline)
	require.Len(t, online, 1)
	assert.Equal(t, "a1", online[0].ID)

	assert.Len(t, r.ListByStatus(""), 2)
}

func TestSeedDemotesOnlineToOffline(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Seed([]*types.AgentInfo{
		{ID: "a1", Status: types.AgentStatusOnline},
		{ID: "a2", Status: types.AgentStatusPending},
	})

	a1, err := r.Get("a1")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusOffline, a1.Status)

	a2, err := r.Get("a2")
	require.NoError(t, err)
	assert.Equal(t, types.AgentStatusPending, a2.Status)
}

func TestMarkStale(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, "a1")
	register(t, r, "a2")

	// Age a1 past the threshold.
	e := r.lookup("a1")
	e.mu.Lock()
	e.info.LastSeen = time.Now().Add(-time.Hour)
	e.mu.Unlock()

	stale := r.MarkStale(context.Background(), 10*time.Minute)
	assert.Equal(t, []string{"a1"}, stale)

	a1, _ := r.Get("a1")
	assert.Equal(t, types.AgentStatusOffline, a1.Status)
	a2, _ := r.Get("a2")
	assert.Equal(t, types.AgentStatusOnline, a2.Status)
}

func TestConcurrentRegisterAndHeartbeat(t *testing.T) {
	r, _ := newTestRegistry(t)
	register(t, r, "a1")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Heartbeat(context.Background(), "a1", &types.MetricsSnapshot{CPUPercent: 1})
		}()
		go func() {
			defer wg.Done()
			_ = r.ListByStatus("")
		}()
	}
	wg.Wait()

	assert.Len(t, r.ListByStatus(""), 1)
}

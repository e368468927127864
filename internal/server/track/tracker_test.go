package track

import (
	"context"
	"sync"
	"testing"
	"time"

	"fleetcmd/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeSink collects published lifecycle events
type fakeSink struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeSink) PublishExecutionEvent(_ context.Context, event string, _ *types.CommandExecution) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func newTestTracker(t *testing.T) (*Tracker, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	return New(nil, sink, 0, zaptest.NewLogger(t)), sink
}

func dispatched(agentID, commandID string, timeout time.Duration) *types.CommandExecution {
	return &types.CommandExecution{
		CommandID: commandID,
		AgentID:   agentID,
		Command:   "echo test",
		Timeout:   timeout,
		State:     types.ExecutionStateDispatched,
		CreatedAt: time.Now(),
	}
}

func TestPollPendingThenCompleted(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	tr.Track(ctx, dispatched("a1", "c1", time.Minute))

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusPending, view.Status)

	tr.OnResult(ctx, "a1", "c1", &types.CommandResult{
		CommandID: "c1",
		AgentID:   "a1",
		Success:   true,
		Output:    "test",
		Duration:  120 * time.Millisecond,
	})

	view, err = tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusCompleted, view.Status)
	assert.Equal(t, "test", view.Output)
	require.NotNil(t, view.ExecutionTimeSeconds)
	assert.InDelta(t, 0.12, *view.ExecutionTimeSeconds, 0.001)
}

func TestFailureResultMapsToFailed(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	tr.Track(ctx, dispatched("a1", "c1", time.Minute))
	tr.OnResult(ctx, "a1", "c1", &types.CommandResult{
		Success:  false,
		Error:    "access denied",
		ExitCode: 5,
	})

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusFailed, view.Status)
	assert.Equal(t, "access denied", view.Error)
	require.NotNil(t, view.ExitCode)
	assert.Equal(t, 5, *view.ExitCode)
}

func TestDuplicateResultIsNoop(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	tr.Track(ctx, dispatched("a1", "c1", time.Minute))
	tr.OnResult(ctx, "a1", "c1", &types.CommandResult{Success: true, Output: "first"})
	tr.OnResult(ctx, "a1", "c1", &types.CommandResult{Success: false, Output: "second", Error: "late"})

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusCompleted, view.Status, "second result must not overwrite the first")
	assert.Equal(t, "first", view.Output)
}

func TestResultForUnknownExecutionDiscarded(t *testing.T) {
	tr, _ := newTestTracker(t)
	tr.OnResult(context.Background(), "a1", "ghost", &types.CommandResult{Success: true})

	_, err := tr.Poll(context.Background(), "a1", "ghost")
	assert.ErrorIs(t, err, types.ErrExecutionNotFound)
}

func TestResultAttributionIsPerAgent(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	tr.Track(ctx, dispatched("a1", "c1", time.Minute))
	tr.Track(ctx, dispatched("a2", "c2", time.Minute))

	// Agent B's result must never satisfy agent A's outstanding command.
	tr.OnResult(ctx, "a2", "c1", &types.CommandResult{Success: true, Output: "wrong"})

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusPending, view.Status)
}

func TestLazyTimeoutTransition(t *testing.T) {
	tr, sink := newTestTracker(t)
	ctx := context.Background()

	clock := time.Now()
	tr.now = func() time.Time { return clock }

	exec := dispatched("a1", "c1", time.Second)
	exec.CreatedAt = clock
	tr.Track(ctx, exec)

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusPending, view.Status)

	// Advance past the deadline; the first poll transitions, later polls
	// read a stable terminal state.
	clock = clock.Add(2 * time.Second)

	view, err = tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusTimedOut, view.Status)

	view, err = tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusTimedOut, view.Status)

	timedOut := 0
	for _, e := range sink.all() {
		if e == string(types.ExecutionStateTimedOut) {
			timedOut++
		}
	}
	assert.Equal(t, 1, timedOut, "exactly one timed_out transition")
}

func TestLateResultAfterTimeoutDiscarded(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	clock := time.Now()
	tr.now = func() time.Time { return clock }

	exec := dispatched("a1", "c1", time.Second)
	exec.CreatedAt = clock
	tr.Track(ctx, exec)

	clock = clock.Add(5 * time.Second)
	_, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)

	tr.OnResult(ctx, "a1", "c1", &types.CommandResult{Success: true, Output: "too late"})

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusTimedOut, view.Status)
	assert.Empty(t, view.Output)
}

func TestDiscardRemovesOnlyDispatchedRecords(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	tr.Track(ctx, dispatched("a1", "c1", time.Minute))
	tr.Discard(ctx, "a1", "c1")
	_, err := tr.Poll(ctx, "a1", "c1")
	assert.ErrorIs(t, err, types.ErrExecutionNotFound)

	// A result that won the race keeps its record.
	tr.Track(ctx, dispatched("a1", "c2", time.Minute))
	tr.OnResult(ctx, "a1", "c2", &types.CommandResult{Success: true, Output: "kept"})
	tr.Discard(ctx, "a1", "c2")

	view, err := tr.Poll(ctx, "a1", "c2")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusCompleted, view.Status)
	assert.Equal(t, "kept", view.Output)
}

func TestSweepExpiresAndPrunes(t *testing.T) {
	sink := &fakeSink{}
	tr := New(nil, sink, time.Minute, zaptest.NewLogger(t))
	ctx := context.Background()

	clock := time.Now()
	tr.now = func() time.Time { return clock }

	exec := dispatched("a1", "c1", time.Second)
	exec.CreatedAt = clock
	tr.Track(ctx, exec)

	clock = clock.Add(2 * time.Second)
	tr.Sweep(ctx)

	view, err := tr.Poll(ctx, "a1", "c1")
	require.NoError(t, err)
	assert.Equal(t, types.PollStatusTimedOut, view.Status)

	// Past the retention window the terminal record is dropped.
	clock = clock.Add(2 * time.Minute)
	tr.Sweep(ctx)

	_, err = tr.Poll(ctx, "a1", "c1")
	assert.ErrorIs(t, err, types.ErrExecutionNotFound)
}

func TestConcurrentResultAndSweepSingleWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		tr, sink := newTestTracker(t)
		ctx := context.Background()

		exec := dispatched("a1", "c1", 0) // already past deadline
		tr.Track(ctx, exec)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			tr.Sweep(ctx)
		}()
		go func() {
			defer wg.Done()
			tr.OnResult(ctx, "a1", "c1", &types.CommandResult{Success: true})
		}()
		wg.Wait()

		terminal := 0
		for _, e := range sink.all() {
			if e != "dispatched" {
				terminal++
			}
		}
		assert.Equal(t, 1, terminal, "exactly one terminal transition per record")
	}
}

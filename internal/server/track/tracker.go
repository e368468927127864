package track

import (
	"context"
	"sync"
	"time"

	"fleetcmd/internal/types"

	"go.uber.org/zap"
)

// Persistence writes execution records through to durable storage. A nil
// persistence disables it.
type Persistence interface {
	SaveExecution(ctx context.Context, exec *types.CommandExecution) error
}

// EventSink receives execution lifecycle events (dispatched, completed,
// failed, timed_out) for audit streaming. A nil sink disables it.
type EventSink interface {
	PublishExecutionEvent(ctx context.Context, event string, exec *types.CommandExecution)
}

type key struct {
	agentID   string
	commandID string
}

// record wraps one execution. The record mutex serializes the competing
// writers (result arrival vs timeout expiry) so exactly one terminal
// transition wins; unrelated keys stay independent.
type record struct {
	mu       sync.Mutex
	exec     *types.CommandExecution
	deadline time.Time
}

// Tracker is the keyed store of outstanding and completed command
// executions. Results are attributed strictly per (agentID, commandID);
// expiry is lazy, checked on poll and on the periodic sweep.
type Tracker struct {
	mu      sync.RWMutex
	records map[key]*record

	db     Persistence
	sink   EventSink
	logger *zap.Logger

	retention time.Duration
	now       func() time.Time
}

// New creates a tracker. Terminal records are pruned from memory after
// retention; zero means keep until process exit. db and sink may be nil.
func New(db Persistence, sink EventSink, retention time.Duration, logger *zap.Logger) *Tracker {
	return &Tracker{
		records:   make(map[key]*record),
		db:        db,
		sink:      sink,
		logger:    logger,
		retention: retention,
		now:       time.Now,
	}
}

// Track registers a freshly dispatched execution. The deadline clock
// starts at dispatch creation time.
func (t *Tracker) Track(ctx context.Context, exec *types.CommandExecution) {
	cp := *exec
	rec := &record{
		exec:     &cp,
		deadline: cp.CreatedAt.Add(cp.Timeout),
	}

	t.mu.Lock()
	t.records[key{cp.AgentID, cp.CommandID}] = rec
	t.mu.Unlock()

	t.persist(ctx, &cp)
	t.publish(ctx, "dispatched", &cp)
}

// Discard removes an execution that never left the dispatcher, used when
// registry delivery fails after the record was created. The record is only
// removed while still dispatched; a result that won the race is kept. The
// state check and the delete happen under the map lock so a result landing
// in between cannot be recorded and then dropped.
func (t *Tracker) Discard(_ context.Context, agentID, commandID string) {
	k := key{agentID, commandID}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[k]
	if !ok {
		return
	}

	rec.mu.Lock()
	dispatched := rec.exec.State == types.ExecutionStateDispatched
	rec.mu.Unlock()
	if dispatched {
		delete(t.records, k)
	}
}

// OnResult correlates an agent-reported result with its outstanding
// execution. Results for unknown IDs or records already terminal are
// discarded and logged; a late or duplicate result never resurrects or
// overwrites a terminal record.
func (t *Tracker) OnResult(ctx context.Context, agentID, commandID string, result *types.CommandResult) {
	rec := t.lookup(agentID, commandID)
	if rec == nil {
		t.logger.Debug("Discarding result for unknown execution",
			zap.String("agent_id", agentID),
			zap.String("command_id", commandID))
		return
	}

	rec.mu.Lock()
	if rec.exec.State != types.ExecutionStateDispatched {
		state := rec.exec.State
		rec.mu.Unlock()
		t.logger.Debug("Discarding late or duplicate result",
			zap.String("agent_id", agentID),
			zap.String("command_id", commandID),
			zap.String("state", string(state)))
		return
	}

	if result.Success {
		rec.exec.State = types.ExecutionStateCompleted
	} else {
		rec.exec.State = types.ExecutionStateFailed
	}
	rec.exec.FinishedAt = t.now()
	cp := *result
	rec.exec.Result = &cp
	exec := *rec.exec
	rec.mu.Unlock()

	t.persist(ctx, &exec)
	t.publish(ctx, string(exec.State), &exec)

	t.logger.Debug("Command result recorded",
		zap.String("agent_id", agentID),
		zap.String("command_id", commandID),
		zap.String("state", string(exec.State)),
		zap.Duration("duration", result.Duration))
}

// Poll returns the caller-facing view of an execution. The first poll that
// observes a passed deadline with no result transitions the record to
// timed out; later polls read the terminal state unchanged.
func (t *Tracker) Poll(ctx context.Context, agentID, commandID string) (*types.ExecutionView, error) {
	rec := t.lookup(agentID, commandID)
	if rec == nil {
		return nil, types.ErrExecutionNotFound
	}

	rec.mu.Lock()
	t.expireLocked(ctx, rec)
	view := buildView(rec.exec)
	rec.mu.Unlock()

	return view, nil
}

// Sweep expires all dispatched executions whose deadline has passed and
// prunes terminal records older than the retention window.
func (t *Tracker) Sweep(ctx context.Context) {
	t.mu.RLock()
	keys := make([]key, 0, len(t.records))
	for k := range t.records {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	cutoff := t.now().Add(-t.retention)
	var prune []key

	for _, k := range keys {
		rec := t.lookup(k.agentID, k.commandID)
		if rec == nil {
			continue
		}
		rec.mu.Lock()
		t.expireLocked(ctx, rec)
		if t.retention > 0 && rec.exec.State.Terminal() && rec.exec.FinishedAt.Before(cutoff) {
			prune = append(prune, k)
		}
		rec.mu.Unlock()
	}

	if len(prune) > 0 {
		t.mu.Lock()
		for _, k := range prune {
			delete(t.records, k)
		}
		t.mu.Unlock()
		t.logger.Debug("Pruned terminal executions", zap.Int("count", len(prune)))
	}
}

// RunSweeper runs Sweep on a ticker until the context is canceled.
func (t *Tracker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// expireLocked transitions a dispatched record past its deadline to timed
// out. Caller holds rec.mu.
func (t *Tracker) expireLocked(ctx context.Context, rec *record) {
	if rec.exec.State != types.ExecutionStateDispatched {
		return
	}
	if t.now().Before(rec.deadline) {
		return
	}

	rec.exec.State = types.ExecutionStateTimedOut
	rec.exec.FinishedAt = t.now()
	exec := *rec.exec

	t.persist(ctx, &exec)
	t.publish(ctx, string(types.ExecutionStateTimedOut), &exec)

	t.logger.Info("Command execution timed out",
		zap.String("agent_id", exec.AgentID),
		zap.String("command_id", exec.CommandID),
		zap.Duration("timeout", exec.Timeout))
}

func (t *Tracker) lookup(agentID, commandID string) *record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[key{agentID, commandID}]
}

func (t *Tracker) persist(ctx context.Context, exec *types.CommandExecution) {
	if t.db == nil {
		return
	}
	if err := t.db.SaveExecution(ctx, exec); err != nil {
		t.logger.Error("Failed to persist execution",
			zap.String("command_id", exec.CommandID),
			zap.Error(err))
	}
}

func (t *Tracker) publish(ctx context.Context, event string, exec *types.CommandExecution) {
	if t.sink == nil {
		return
	}
	t.sink.PublishExecutionEvent(ctx, event, exec)
}

// buildView maps an execution record to its poll response. Caller holds
// the record lock.
func buildView(exec *types.CommandExecution) *types.ExecutionView {
	view := &types.ExecutionView{
		AgentID:   exec.AgentID,
		CommandID: exec.CommandID,
	}

	switch exec.State {
	case types.ExecutionStateDispatched:
		view.Status = types.PollStatusPending
	case types.ExecutionStateCompleted:
		view.Status = types.PollStatusCompleted
	case types.ExecutionStateFailed:
		view.Status = types.PollStatusFailed
	case types.ExecutionStateTimedOut:
		view.Status = types.PollStatusTimedOut
		view.Error = "command timed out"
	}

	if exec.Result != nil {
		view.Output = exec.Result.Output
		if exec.Result.Error != "" {
			view.Error = exec.Result.Error
		}
		exitCode := exec.Result.ExitCode
		view.ExitCode = &exitCode
		secs := exec.Result.Duration.Seconds()
		view.ExecutionTimeSeconds = &secs
	}
	return view
}

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fleetcmd/internal/types"

	"go.uber.org/zap"
)

// Channel delivers command envelopes to a connected agent. Implementations
// must bound the write so one unresponsive agent cannot stall dispatch to
// others.
type Channel interface {
	Send(ctx context.Context, agentID string, env *types.CommandEnvelope) error
}

// Store persists agent records as a write-through behind the in-memory
// table. A nil store disables persistence.
type Store interface {
	SaveAgent(ctx context.Context, agent *types.AgentInfo) error
}

// Presence mirrors agent liveness into an external cache. A nil presence
// sink disables mirroring.
type Presence interface {
	Touch(ctx context.Context, agentID string, seen time.Time) error
}

// entry wraps one agent record. The entry mutex serializes all mutation of
// the record; the registry map lock is never held across a record update.
type entry struct {
	mu   sync.Mutex
	info *types.AgentInfo
}

// Registry tracks one live channel per connected agent and reports
// online/offline/pending status. It owns the Agent records; nothing with
// command semantics lives here.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*entry

	channel  Channel
	store    Store
	presence Presence
	logger   *zap.Logger
}

// New creates a registry delivering through the given channel. store and
// presence may be nil.
func New(channel Channel, store Store, presence Presence, logger *zap.Logger) *Registry {
	return &Registry{
		agents:   make(map[string]*entry),
		channel:  channel,
		store:    store,
		presence: presence,
		logger:   logger,
	}
}

// Seed preloads known agent records, typically from the database at
// startup. Seeded agents read as offline until they reconnect; records with
// no prior connection keep their pending status.
func (r *Registry) Seed(agents []*types.AgentInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range agents {
		info := *a
		if info.Status == types.AgentStatusOnline {
			info.Status = types.AgentStatusOffline
		}
		r.agents[info.ID] = &entry{info: &info}
	}
}

// Register handles an agent channel opening. Re-registering a known ID is
// idempotent: metadata is replaced in place, no duplicate is created.
func (r *Registry) Register(ctx context.Context, req types.RegisterRequest) (*types.AgentInfo, error) {
	if req.AgentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}

	now := time.Now()
	e := r.entryFor(req.AgentID)

	e.mu.Lock()
	if e.info == nil {
		e.info = &types.AgentInfo{ID: req.AgentID, RegisteredAt: now}
	}
	e.info.Hostname = req.Hostname
	e.info.IPAddress = req.IPAddress
	e.info.OS = req.OS
	e.info.Version = req.Version
	e.info.Tags = req.Tags
	e.info.Status = types.AgentStatusOnline
	e.info.LastSeen = now
	e.info.UpdatedAt = now
	info := *e.info
	e.mu.Unlock()

	r.persist(ctx, &info)

	r.logger.Info("Agent registered",
		zap.String("agent_id", info.ID),
		zap.String("hostname", info.Hostname),
		zap.String("version", info.Version))

	return &info, nil
}

// Heartbeat updates last-seen and replaces the metrics snapshot wholesale.
// Heartbeats from unknown agents are dropped and logged.
func (r *Registry) Heartbeat(ctx context.Context, agentID string, metrics *types.MetricsSnapshot) {
	e := r.lookup(agentID)
	if e == nil {
		r.logger.Warn("Heartbeat from unknown agent", zap.String("agent_id", agentID))
		return
	}

	now := time.Now()

	e.mu.Lock()
	e.info.LastSeen = now
	e.info.UpdatedAt = now
	e.info.Status = types.AgentStatusOnline
	if metrics != nil {
		e.info.Metrics = metrics
	}
	info := *e.info
	e.mu.Unlock()

	r.persist(ctx, &info)

	if r.presence != nil {
		if err := r.presence.Touch(ctx, agentID, now); err != nil {
			r.logger.Debug("Presence mirror update failed",
				zap.String("agent_id", agentID),
				zap.Error(err))
		}
	}
}

// Unregister marks the agent offline when its channel closes. The record
// is kept for history.
func (r *Registry) Unregister(ctx context.Context, agentID string) {
	e := r.lookup(agentID)
	if e == nil {
		return
	}

	now := time.Now()

	e.mu.Lock()
	e.info.Status = types.AgentStatusOffline
	e.info.UpdatedAt = now
	info := *e.info
	e.mu.Unlock()

	r.persist(ctx, &info)

	r.logger.Info("Agent unregistered", zap.String("agent_id", agentID))
}

// Send delivers an envelope over the agent's live channel. It fails fast
// with ErrAgentNotConnected when the agent is offline, pending or unknown;
// there is no queueing and no store-and-forward.
func (r *Registry) Send(ctx context.Context, agentID string, env *types.CommandEnvelope) error {
	e := r.lookup(agentID)
	if e == nil {
		return fmt.Errorf("%w: %s", types.ErrAgentNotConnected, agentID)
	}

	e.mu.Lock()
	status := e.info.Status
	e.mu.Unlock()

	if status != types.AgentStatusOnline {
		return fmt.Errorf("%w: %s is %s", types.ErrAgentNotConnected, agentID, status)
	}

	if err := r.channel.Send(ctx, agentID, env); err != nil {
		return fmt.Errorf("%w: %v", types.ErrDeliveryFailed, err)
	}
	return nil
}

// Get returns a snapshot of one agent record.
func (r *Registry) Get(agentID string) (*types.AgentInfo, error) {
	e := r.lookup(agentID)
	if e == nil {
		return nil, types.ErrAgentNotFound
	}

	e.mu.Lock()
	info := *e.info
	e.mu.Unlock()
	return &info, nil
}

// ListByStatus returns a snapshot of agent records, optionally filtered by
// status. An empty filter returns all agents.
func (r *Registry) ListByStatus(filter types.AgentStatus) []*types.AgentInfo {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	agents := make([]*types.AgentInfo, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		info := *e.info
		e.mu.Unlock()
		if filter == "" || info.Status == filter {
			agents = append(agents, &info)
		}
	}
	return agents
}

// MarkStale transitions online agents whose last heartbeat is older than
// threshold to offline. Returns the IDs that were transitioned.
func (r *Registry) MarkStale(ctx context.Context, threshold time.Duration) []string {
	cutoff := time.Now().Add(-threshold)

	var stale []string
	for _, info := range r.ListByStatus(types.AgentStatusOnline) {
		if info.LastSeen.Before(cutoff) {
			r.Unregister(ctx, info.ID)
			stale = append(stale, info.ID)
		}
	}

	if len(stale) > 0 {
		r.logger.Info("Marked stale agents offline", zap.Strings("agent_ids", stale))
	}
	return stale
}

// entryFor returns the entry for agentID, creating it if absent.
func (r *Registry) entryFor(agentID string) *entry {
	r.mu.RLock()
	e, ok := r.agents[agentID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.agents[agentID]; ok {
		return e
	}
	e = &entry{}
	r.agents[agentID] = e
	return e
}

// lookup returns the entry for agentID or nil.
func (r *Registry) lookup(agentID string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[agentID]
	if !ok || e.info == nil {
		return nil
	}
	return e
}

// persist writes the record through to the store, if configured.
func (r *Registry) persist(ctx context.Context, info *types.AgentInfo) {
	if r.store == nil {
		return
	}
	if err := r.store.SaveAgent(ctx, info); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Error("Failed to persist agent record",
			zap.String("agent_id", info.ID),
			zap.Error(err))
	}
}

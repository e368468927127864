package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"fleetcmd/internal/types"
)

// Channel delivers command envelopes onto per-agent subjects. It satisfies
// the registry's channel interface: a publish that cannot be flushed to the
// broker reports a delivery failure immediately.
type Channel struct {
	nc  *nats.Conn
	cfg *Config
}

// NewChannel wraps an established connection.
func NewChannel(nc *nats.Conn, cfg *Config) *Channel {
	return &Channel{nc: nc, cfg: cfg}
}

// Send publishes one envelope to the agent's command subject and flushes
// the connection so broker failures surface to the caller.
func (c *Channel) Send(ctx context.Context, agentID string, env *types.CommandEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := c.nc.Publish(AgentCommandSubject(agentID), data); err != nil {
		return fmt.Errorf("failed to publish command: %w", err)
	}

	flushCtx := ctx
	if c.cfg != nil && c.cfg.FlushTimeout > 0 {
		var cancel context.CancelFunc
		flushCtx, cancel = context.WithTimeout(ctx, c.cfg.FlushTimeout)
		defer cancel()
	}
	if err := c.nc.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("failed to flush command: %w", err)
	}
	return nil
}

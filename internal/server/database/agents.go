package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"fleetcmd/internal/types"
)

// SaveAgent inserts or updates an agent record.
func (d *Database) SaveAgent(ctx context.Context, agent *types.AgentInfo) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	tags, err := json.Marshal(agent.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal agent tags: %w", err)
	}
	metrics, err := marshalNullable(agent.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal agent metrics: %w", err)
	}

	_, err = d.db.ExecContext(ctx, d.upsertAgentQuery(),
		agent.ID, agent.Hostname, agent.IPAddress, agent.OS, agent.Version,
		string(tags), string(agent.Status), agent.LastSeen, agent.RegisteredAt,
		agent.UpdatedAt, metrics)
	if err != nil {
		return fmt.Errorf("failed to save agent: %w", err)
	}
	return nil
}

// GetAgent loads a single agent by ID.
func (d *Database) GetAgent(ctx context.Context, agentID string) (*types.AgentInfo, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	row := d.db.QueryRowContext(ctx, d.rebind(`
		SELECT id, hostname, ip_address, os, version, tags, status,
		       last_seen, registered_at, updated_at, metrics
		FROM agents WHERE id = ?`), agentID)

	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

// GetAgents loads every known agent, most recently seen first.
func (d *Database) GetAgents(ctx context.Context) ([]*types.AgentInfo, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, hostname, ip_address, os, version, tags, status,
		       last_seen, registered_at, updated_at, metrics
		FROM agents ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var agents []*types.AgentInfo
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

func (d *Database) upsertAgentQuery() string {
	if d.cfg.Driver == DriverMySQL {
		return `
		INSERT INTO agents (id, hostname, ip_address, os, version, tags,
			status, last_seen, registered_at, updated_at, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			hostname = VALUES(hostname), ip_address = VALUES(ip_address),
			os = VALUES(os), version = VALUES(version), tags = VALUES(tags),
			status = VALUES(status), last_seen = VALUES(last_seen),
			updated_at = VALUES(updated_at), metrics = VALUES(metrics)`
	}
	return d.rebind(`
		INSERT INTO agents (id, hostname, ip_address, os, version, tags,
			status, last_seen, registered_at, updated_at, metrics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			hostname = excluded.hostname, ip_address = excluded.ip_address,
			os = excluded.os, version = excluded.version, tags = excluded.tags,
			status = excluded.status, last_seen = excluded.last_seen,
			updated_at = excluded.updated_at, metrics = excluded.metrics`)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*types.AgentInfo, error) {
	var (
		agent   types.AgentInfo
		status  string
		tags    string
		metrics sql.NullString
	)
	err := row.Scan(&agent.ID, &agent.Hostname, &agent.IPAddress, &agent.OS,
		&agent.Version, &tags, &status, &agent.LastSeen, &agent.RegisteredAt,
		&agent.UpdatedAt, &metrics)
	if err != nil {
		return nil, err
	}

	agent.Status = types.AgentStatus(status)
	if err := json.Unmarshal([]byte(tags), &agent.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent tags: %w", err)
	}
	if metrics.Valid && metrics.String != "" {
		agent.Metrics = &types.MetricsSnapshot{}
		if err := json.Unmarshal([]byte(metrics.String), agent.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal agent metrics: %w", err)
		}
	}
	return &agent, nil
}

// marshalNullable encodes v as JSON, mapping nil pointers to SQL NULL.
func marshalNullable(v any) (sql.NullString, error) {
	switch m := v.(type) {
	case *types.MetricsSnapshot:
		if m == nil {
			return sql.NullString{}, nil
		}
	case *types.CommandResult:
		if m == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

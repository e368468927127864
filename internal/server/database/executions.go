package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fleetcmd/internal/types"
)

// SaveExecution inserts or updates a command execution record. The tracker
// writes through on every state transition, so the upsert replaces the
// prior row for the same agent and command pair.
func (d *Database) SaveExecution(ctx context.Context, exec *types.CommandExecution) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	params, err := json.Marshal(exec.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal execution params: %w", err)
	}
	result, err := marshalNullable(exec.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal execution result: %w", err)
	}

	var finishedAt sql.NullTime
	if !exec.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: exec.FinishedAt, Valid: true}
	}

	_, err = d.db.ExecContext(ctx, d.upsertExecutionQuery(),
		exec.AgentID, exec.CommandID, exec.Command, exec.TemplateID,
		string(params), exec.Timeout.Milliseconds(), string(exec.State),
		exec.CreatedAt, finishedAt, result)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

// GetExecution loads a single execution by its agent and command IDs.
func (d *Database) GetExecution(ctx context.Context, agentID, commandID string) (*types.CommandExecution, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	row := d.db.QueryRowContext(ctx, d.rebind(`
		SELECT agent_id, command_id, command, template_id, params,
		       timeout_ms, state, created_at, finished_at, result
		FROM command_executions WHERE agent_id = ? AND command_id = ?`),
		agentID, commandID)

	exec, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}
	return exec, nil
}

// GetExecutions loads the most recent executions, newest first. An empty
// agentID returns history across the whole fleet.
func (d *Database) GetExecutions(ctx context.Context, agentID string, limit int) ([]*types.CommandExecution, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT agent_id, command_id, command, template_id, params,
		       timeout_ms, state, created_at, finished_at, result
		FROM command_executions`
	args := []any{}
	if agentID != "" {
		query += ` WHERE agent_id = ?`
		args = append(args, agentID)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.db.QueryContext(ctx, d.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var execs []*types.CommandExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

func (d *Database) upsertExecutionQuery() string {
	if d.cfg.Driver == DriverMySQL {
		return `
		INSERT INTO command_executions (agent_id, command_id, command,
			template_id, params, timeout_ms, state, created_at,
			finished_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			state = VALUES(state), finished_at = VALUES(finished_at),
			result = VALUES(result)`
	}
	return d.rebind(`
		INSERT INTO command_executions (agent_id, command_id, command,
			template_id, params, timeout_ms, state, created_at,
			finished_at, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (agent_id, command_id) DO UPDATE SET
			state = excluded.state, finished_at = excluded.finished_at,
			result = excluded.result`)
}

func scanExecution(row rowScanner) (*types.CommandExecution, error) {
	var (
		exec       types.CommandExecution
		params     string
		timeoutMS  int64
		state      string
		finishedAt sql.NullTime
		result     sql.NullString
	)
	err := row.Scan(&exec.AgentID, &exec.CommandID, &exec.Command,
		&exec.TemplateID, &params, &timeoutMS, &state, &exec.CreatedAt,
		&finishedAt, &result)
	if err != nil {
		return nil, err
	}

	exec.Timeout = time.Duration(timeoutMS) * time.Millisecond
	exec.State = types.ExecutionState(state)
	if finishedAt.Valid {
		exec.FinishedAt = finishedAt.Time
	}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &exec.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution params: %w", err)
		}
	}
	if result.Valid && result.String != "" {
		exec.Result = &types.CommandResult{}
		if err := json.Unmarshal([]byte(result.String), exec.Result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
		}
	}
	return &exec, nil
}

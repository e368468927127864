package database

import (
	"context"
	"encoding/json"
	"fmt"

	"fleetcmd/internal/types"
)

// SaveTemplate inserts or updates a command template. Built-in system
// templates are seeded in memory and never written here.
func (d *Database) SaveTemplate(ctx context.Context, tpl *types.CommandTemplate) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	params, err := json.Marshal(tpl.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal template params: %w", err)
	}
	tags, err := json.Marshal(tpl.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal template tags: %w", err)
	}

	_, err = d.db.ExecContext(ctx, d.upsertTemplateQuery(),
		tpl.ID, tpl.Name, tpl.Category, tpl.Command, string(params),
		string(tags), tpl.CreatedAt, tpl.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}
	return nil
}

// DeleteTemplate removes a template by ID.
func (d *Database) DeleteTemplate(ctx context.Context, id string) error {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		d.rebind(`DELETE FROM command_templates WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

// GetTemplates loads every stored user template.
func (d *Database) GetTemplates(ctx context.Context) ([]*types.CommandTemplate, error) {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT id, name, category, command, params, tags, created_at, updated_at
		FROM command_templates ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var templates []*types.CommandTemplate
	for rows.Next() {
		var (
			tpl    types.CommandTemplate
			params string
			tags   string
		)
		err := rows.Scan(&tpl.ID, &tpl.Name, &tpl.Category, &tpl.Command,
			&params, &tags, &tpl.CreatedAt, &tpl.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if err := json.Unmarshal([]byte(params), &tpl.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template params: %w", err)
		}
		if err := json.Unmarshal([]byte(tags), &tpl.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal template tags: %w", err)
		}
		templates = append(templates, &tpl)
	}
	return templates, rows.Err()
}

func (d *Database) upsertTemplateQuery() string {
	if d.cfg.Driver == DriverMySQL {
		return `
		INSERT INTO command_templates (id, name, category, command, params,
			tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), category = VALUES(category),
			command = VALUES(command), params = VALUES(params),
			tags = VALUES(tags), updated_at = VALUES(updated_at)`
	}
	return d.rebind(`
		INSERT INTO command_templates (id, name, category, command, params,
			tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, category = excluded.category,
			command = excluded.command, params = excluded.params,
			tags = excluded.tags, updated_at = excluded.updated_at`)
}

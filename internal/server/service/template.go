package service

import (
	"context"
	"fmt"

	"fleetcmd/internal/types"
)

// validateTemplate checks the declared parameter names before a template
// is stored. Bad names could never match a placeholder token.
func (s *Service) validateTemplate(tpl *types.CommandTemplate) error {
	for _, p := range tpl.Params {
		if err := s.validate.Var(p.Name, "required,param_name"); err != nil {
			return fmt.Errorf("invalid parameter name %q", p.Name)
		}
	}
	return nil
}

// GetTemplate returns one template.
func (s *Service) GetTemplate(id string) (*types.CommandTemplate, error) {
	return s.templates.Get(id)
}

// ListTemplates returns all templates, built-ins included.
func (s *Service) ListTemplates() []*types.CommandTemplate {
	return s.templates.List()
}

// CreateTemplate stores a new user template.
func (s *Service) CreateTemplate(ctx context.Context, tpl *types.CommandTemplate) (*types.CommandTemplate, error) {
	if err := s.validateTemplate(tpl); err != nil {
		return nil, err
	}
	return s.templates.Create(ctx, tpl)
}

// UpdateTemplate replaces an existing user template.
func (s *Service) UpdateTemplate(ctx context.Context, tpl *types.CommandTemplate) (*types.CommandTemplate, error) {
	if err := s.validateTemplate(tpl); err != nil {
		return nil, err
	}
	return s.templates.Update(ctx, tpl)
}

// DeleteTemplate removes a user template.
func (s *Service) DeleteTemplate(ctx context.Context, id string) error {
	return s.templates.Delete(ctx, id)
}

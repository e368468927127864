package template

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleetcmd/internal/types"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Persistence writes template records through to durable storage. A nil
// persistence disables it.
type Persistence interface {
	SaveTemplate(ctx context.Context, tpl *types.CommandTemplate) error
	DeleteTemplate(ctx context.Context, id string) error
}

// Store holds the saved-command library. The in-memory table is
// authoritative; changes are written through when persistence is
// configured. System templates cannot be modified or deleted.
type Store struct {
	mu        sync.RWMutex
	templates map[string]*types.CommandTemplate

	db     Persistence
	logger *zap.Logger
}

// NewStore creates an empty template store.
func NewStore(db Persistence, logger *zap.Logger) *Store {
	return &Store{
		templates: make(map[string]*types.CommandTemplate),
		db:        db,
		logger:    logger,
	}
}

// Seed loads templates without hitting persistence, used at startup for
// records read from the database and for the built-in system library.
func (s *Store) Seed(templates []*types.CommandTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tpl := range templates {
		cp := *tpl
		s.templates[cp.ID] = &cp
	}
}

// Get returns one template by ID.
func (s *Store) Get(id string) (*types.CommandTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, types.ErrTemplateNotFound
	}
	cp := *tpl
	return &cp, nil
}

// List returns all templates sorted by name.
func (s *Store) List() []*types.CommandTemplate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*types.CommandTemplate, 0, len(s.templates))
	for _, tpl := range s.templates {
		cp := *tpl
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create adds a user-defined template.
func (s *Store) Create(ctx context.Context, tpl *types.CommandTemplate) (*types.CommandTemplate, error) {
	if tpl.Name == "" || tpl.Command == "" {
		return nil, fmt.Errorf("template name and command are required")
	}

	now := time.Now()
	cp := *tpl
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	cp.System = false
	cp.CreatedAt = now
	cp.UpdatedAt = now

	s.mu.Lock()
	if _, exists := s.templates[cp.ID]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("template %s already exists", cp.ID)
	}
	s.templates[cp.ID] = &cp
	s.mu.Unlock()

	s.persist(ctx, &cp)

	out := cp
	return &out, nil
}

// Update replaces a user-defined template in place.
func (s *Store) Update(ctx context.Context, tpl *types.CommandTemplate) (*types.CommandTemplate, error) {
	s.mu.Lock()
	current, ok := s.templates[tpl.ID]
	if !ok {
		s.mu.Unlock()
		return nil, types.ErrTemplateNotFound
	}
	if current.System {
		s.mu.Unlock()
		return nil, types.ErrTemplateReadOnly
	}

	cp := *tpl
	cp.System = false
	cp.CreatedAt = current.CreatedAt
	cp.UpdatedAt = time.Now()
	s.templates[cp.ID] = &cp
	s.mu.Unlock()

	s.persist(ctx, &cp)

	out := cp
	return &out, nil
}

// Delete removes a user-defined template.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	current, ok := s.templates[id]
	if !ok {
		s.mu.Unlock()
		return types.ErrTemplateNotFound
	}
	if current.System {
		s.mu.Unlock()
		return types.ErrTemplateReadOnly
	}
	delete(s.templates, id)
	s.mu.Unlock()

	if s.db != nil {
		if err := s.db.DeleteTemplate(ctx, id); err != nil {
			s.logger.Error("Failed to delete persisted template",
				zap.String("template_id", id),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Store) persist(ctx context.Context, tpl *types.CommandTemplate) {
	if s.db == nil {
		return
	}
	if err := s.db.SaveTemplate(ctx, tpl); err != nil {
		s.logger.Error("Failed to persist template",
			zap.String("template_id", tpl.ID),
			zap.Error(err))
	}
}

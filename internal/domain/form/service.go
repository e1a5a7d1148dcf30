package form

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rehab/clinic/internal/platform/db"
	"github.com/rehab/clinic/internal/platform/events"
)

var (
	ErrNotFound = errors.New("form not found")
	ErrReadOnly = errors.New("archived forms are read-only")
	// ErrConcurrentUpdate means the form changed between read and write.
	ErrConcurrentUpdate = errors.New("form was modified concurrently")
)

type Service struct {
	forms  Repository
	events *events.Emitter
	now    func() time.Time
}

func NewService(forms Repository, em *events.Emitter) *Service {
	return &Service{forms: forms, events: em, now: time.Now}
}

func (s *Service) Create(ctx context.Context, f *Form) error {
	if f.Status == "" {
		f.Status = Statuses.Initial()
	}
	if !Statuses.Valid(f.Status) {
		return fmt.Errorf("create form: %w", Statuses.Check(f.Status, f.Status))
	}
	if err := f.Schema.Validate(); err != nil {
		return err
	}

	f.ID = uuid.New()
	f.Version = 1
	now := s.now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	if err := s.forms.Create(ctx, f); err != nil {
		return fmt.Errorf("create form: %w", err)
	}
	s.events.Emit(ctx, events.FormCreated, "form", f.ID.String(), map[string]any{
		"type":    f.Type,
		"title":   f.Title,
		"version": f.Version,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Form, error) {
	f, err := s.forms.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get form: %w", err)
	}
	return f, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Form, int, error) {
	items, total, err := s.forms.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}
	return items, total, nil
}

// Update changes title, description or schema. A schema change bumps the
// version. Archived forms cannot be changed.
func (s *Service) Update(ctx context.Context, id uuid.UUID, changes map[string]any) (*Form, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == StatusArchived {
		return nil, ErrReadOnly
	}

	for _, k := range []string{"status", "version", "type"} {
		delete(changes, k)
	}
	if schema, ok := changes["schema"].(Schema); ok {
		if err := schema.Validate(); err != nil {
			return nil, err
		}
		if reflect.DeepEqual(schema, cur.Schema) {
			delete(changes, "schema")
		} else {
			changes["version"] = cur.Version + 1
		}
	}
	changes["updatedAt"] = s.now().UTC()

	return s.update(ctx, cur, changes)
}

// ChangeStatus moves the form along draft -> active -> archived.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to string) (*Form, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Statuses.Check(cur.Status, to); err != nil {
		return nil, fmt.Errorf("change form status: %w", err)
	}
	if cur.Status == to {
		return cur, nil
	}

	f, err := s.update(ctx, cur, map[string]any{"status": to, "updatedAt": s.now().UTC()})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.FormStatusChanged, "form", id.String(), map[string]string{
		"from": cur.Status,
		"to":   to,
	})
	return f, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.forms.Delete(ctx, id); err != nil {
		if db.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete form: %w", err)
	}
	return nil
}

// update writes changes only if the form still has the version and status it
// was read with. Status changes do not bump the version, so both are needed to
// keep a stale edit off an archived form.
func (s *Service) update(ctx context.Context, cur *Form, changes map[string]any) (*Form, error) {
	f, err := s.forms.Update(ctx, cur.ID, cur.Version, cur.Status, changes)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrConcurrentUpdate
		}
		return nil, fmt.Errorf("update form: %w", err)
	}
	return f, nil
}

// SeedResult counts what SeedCatalog did per template.
type SeedResult struct {
	Created   int
	Updated   int
	Unchanged int
}

// SeedCatalog upserts the built-in templates by (type, title). An existing
// template gets the catalog schema as a new version; archived ones are left
// alone.
func (s *Service) SeedCatalog(ctx context.Context, logger zerolog.Logger) (SeedResult, error) {
	var res SeedResult
	for _, tmpl := range Catalog() {
		tmpl := tmpl
		existing, err := s.forms.GetByTypeTitle(ctx, tmpl.Type, tmpl.Title)
		switch {
		case db.IsNotFound(err):
			if err := s.Create(ctx, &tmpl); err != nil {
				return res, fmt.Errorf("seed %s: %w", tmpl.Type, err)
			}
			res.Created++
			logger.Info().Str("type", tmpl.Type).Str("id", tmpl.ID.String()).Msg("form template created")
		case err != nil:
			return res, fmt.Errorf("seed %s: %w", tmpl.Type, err)
		case existing.Status == StatusArchived || reflect.DeepEqual(existing.Schema, tmpl.Schema):
			res.Unchanged++
		default:
			f, err := s.Update(ctx, existing.ID, map[string]any{
				"schema":      tmpl.Schema,
				"description": tmpl.Description,
			})
			if err != nil {
				return res, fmt.Errorf("seed %s: %w", tmpl.Type, err)
			}
			res.Updated++
			logger.Info().Str("type", tmpl.Type).Int("version", f.Version).Msg("form template updated")
		}
	}
	return res, nil
}

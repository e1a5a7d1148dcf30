package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rehab/clinic/internal/platform/db"
	"github.com/rehab/clinic/internal/platform/events"
)

var (
	ErrNotFound = errors.New("client not found")
	// ErrStatusChanged means another request changed the status first.
	ErrStatusChanged = errors.New("client status changed concurrently")
)

type Service struct {
	clients Repository
	events  *events.Emitter
	now     func() time.Time
}

func NewService(clients Repository, em *events.Emitter) *Service {
	return &Service{clients: clients, events: em, now: time.Now}
}

func (s *Service) Create(ctx context.Context, c *Client) error {
	if c.Status == "" {
		c.Status = Statuses.Initial()
	}
	if !Statuses.Valid(c.Status) {
		return fmt.Errorf("create client: %w", Statuses.Check(c.Status, c.Status))
	}
	c.ID = uuid.New()
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	if err := s.clients.Create(ctx, c); err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	s.events.Emit(ctx, events.ClientCreated, "client", c.ID.String(), map[string]string{
		"status": c.Status,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	c, err := s.clients.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get client")
	}
	return c, nil
}

// Status returns the client's status. Other domains use it to refuse work
// for unknown or discharged clients.
func (s *Service) Status(ctx context.Context, id uuid.UUID) (string, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return c.Status, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Client, int, error) {
	items, total, err := s.clients.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	return items, total, nil
}

// Update applies changes keyed by API field name. Status is changed through
// ChangeStatus only.
func (s *Service) Update(ctx context.Context, id uuid.UUID, changes map[string]any) (*Client, error) {
	delete(changes, "status")
	changes["updatedAt"] = s.now().UTC()
	c, err := s.clients.Update(ctx, id, "", changes)
	if err != nil {
		return nil, notFound(err, "update client")
	}
	return c, nil
}

// ChangeStatus moves the client along its lifecycle.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to string) (*Client, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Statuses.Check(cur.Status, to); err != nil {
		return nil, fmt.Errorf("change client status: %w", err)
	}
	if cur.Status == to {
		return cur, nil
	}

	c, err := s.clients.Update(ctx, id, cur.Status, map[string]any{
		"status":    to,
		"updatedAt": s.now().UTC(),
	})
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrStatusChanged
		}
		return nil, fmt.Errorf("change client status: %w", err)
	}

	s.events.Emit(ctx, events.ClientStatusChanged, "client", id.String(), map[string]string{
		"from": cur.Status,
		"to":   to,
	})
	return c, nil
}

// Delete removes the client. The database refuses while devices or form
// entries still reference it.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.clients.Delete(ctx, id); err != nil {
		return notFound(err, "delete client")
	}
	return nil
}

func notFound(err error, op string) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

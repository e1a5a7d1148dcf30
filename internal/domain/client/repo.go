package client

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists clients. Lookups that match nothing return db.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	GetByID(ctx context.Context, id uuid.UUID) (*Client, error)
	// Update writes changes, keyed by API field name. When expectStatus is set
	// the row is only written while it still has that status.
	Update(ctx context.Context, id uuid.UUID, expectStatus string, changes map[string]any) (*Client, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Client, int, error)
}

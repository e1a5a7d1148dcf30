package formentry

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists form entries. Lookups that match nothing return
// db.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// Update writes changes keyed by API field name, guarded by expectStatus
	// when it is set.
	Update(ctx context.Context, id uuid.UUID, expectStatus string, changes map[string]any) (*Entry, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Entry, int, error)
}

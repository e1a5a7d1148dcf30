package form

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists form templates. Lookups that match nothing return
// db.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, f *Form) error
	GetByID(ctx context.Context, id uuid.UUID) (*Form, error)
	GetByTypeTitle(ctx context.Context, formType, title string) (*Form, error)
	// Update writes changes keyed by API field name. The row is only written
	// while it still has expectVersion and expectStatus; zero values skip the
	// check.
	Update(ctx context.Context, id uuid.UUID, expectVersion int, expectStatus string, changes map[string]any) (*Form, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Form, int, error)
}

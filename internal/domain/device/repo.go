package device

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists devices. Lookups that match nothing return db.ErrNoRows.
type Repository interface {
	Create(ctx context.Context, d *Device) error
	GetByID(ctx context.Context, id uuid.UUID) (*Device, error)
	GetBySerial(ctx context.Context, serial string) (*Device, error)
	// Update writes changes keyed by API field name, guarded by expectStatus
	// when it is set.
	Update(ctx context.Context, id uuid.UUID, expectStatus string, changes map[string]any) (*Device, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f Filter) ([]*Device, int, error)
}

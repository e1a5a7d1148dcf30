package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rehab/clinic/internal/domain/client"
	"github.com/rehab/clinic/internal/platform/db"
	"github.com/rehab/clinic/internal/platform/events"
)

var (
	ErrNotFound        = errors.New("device not found")
	ErrDuplicateSerial = errors.New("device serial already registered")
	ErrNotAssignable   = errors.New("device is not available for assignment")
	ErrNotAssigned     = errors.New("device is not assigned")
	// ErrAssignmentOnly is returned when the status endpoint is used to move
	// a device into or out of assigned.
	ErrAssignmentOnly = errors.New("assigned status is managed by assign and unassign")
	ErrStillAssigned  = errors.New("device is assigned to a client")
	ErrStatusChanged  = errors.New("device status changed concurrently")

	ErrClientNotFound   = errors.New("client not found")
	ErrClientDischarged = errors.New("client is discharged")
)

// ClientLookup reports a client's status. It returns client.ErrNotFound for
// unknown clients.
type ClientLookup interface {
	Status(ctx context.Context, id uuid.UUID) (string, error)
}

type Service struct {
	devices Repository
	clients ClientLookup
	events  *events.Emitter
	now     func() time.Time
}

func NewService(devices Repository, clients ClientLookup, em *events.Emitter) *Service {
	return &Service{devices: devices, clients: clients, events: em, now: time.Now}
}

func (s *Service) Create(ctx context.Context, d *Device) error {
	d.Serial = NormalizeSerial(d.Serial)
	if d.Status == "" {
		d.Status = Statuses.Initial()
	}
	if !Statuses.Valid(d.Status) {
		return fmt.Errorf("create device: %w", Statuses.Check(d.Status, d.Status))
	}
	if d.Status == StatusAssigned {
		return ErrAssignmentOnly
	}
	if err := s.checkSerial(ctx, d.Serial, uuid.Nil); err != nil {
		return err
	}

	d.ID = uuid.New()
	d.ClientID, d.AssignedAt = nil, nil
	now := s.now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now

	if err := s.devices.Create(ctx, d); err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	s.events.Emit(ctx, events.DeviceRegistered, "device", d.ID.String(), map[string]string{
		"serial": d.Serial,
		"model":  d.Model,
	})
	return nil
}

// checkSerial catches duplicates before the unique index does, so the caller
// gets a clean error.
func (s *Service) checkSerial(ctx context.Context, serial string, self uuid.UUID) error {
	existing, err := s.devices.GetBySerial(ctx, serial)
	switch {
	case db.IsNotFound(err):
		return nil
	case err != nil:
		return fmt.Errorf("check serial: %w", err)
	case existing.ID != self:
		return ErrDuplicateSerial
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Device, error) {
	d, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get device")
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Device, int, error) {
	items, total, err := s.devices.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	return items, total, nil
}

// ListForClient lists the devices currently assigned to a client.
func (s *Service) ListForClient(ctx context.Context, clientID uuid.UUID, f Filter) ([]*Device, int, error) {
	if _, err := s.clientStatus(ctx, clientID); err != nil {
		return nil, 0, err
	}
	f.ClientID = &clientID
	return s.List(ctx, f)
}

// Update applies descriptive changes keyed by API field name. Status and
// assignment fields are ignored.
func (s *Service) Update(ctx context.Context, id uuid.UUID, changes map[string]any) (*Device, error) {
	for _, k := range []string{"status", "clientId", "assignedAt"} {
		delete(changes, k)
	}
	if v, ok := changes["serial"].(string); ok {
		serial := NormalizeSerial(v)
		if err := s.checkSerial(ctx, serial, id); err != nil {
			return nil, err
		}
		changes["serial"] = serial
	}
	changes["updatedAt"] = s.now().UTC()

	d, err := s.devices.Update(ctx, id, "", changes)
	if err != nil {
		return nil, notFound(err, "update device")
	}
	return d, nil
}

// ChangeStatus moves the device along its lifecycle, except into or out of
// assigned.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, to string) (*Device, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Statuses.Check(cur.Status, to); err != nil {
		return nil, fmt.Errorf("change device status: %w", err)
	}
	if cur.Status == to {
		return cur, nil
	}
	if to == StatusAssigned || cur.Status == StatusAssigned {
		return nil, ErrAssignmentOnly
	}

	d, err := s.update(ctx, id, cur.Status, map[string]any{"status": to})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.DeviceStatusChanged, "device", id.String(), map[string]string{
		"from": cur.Status,
		"to":   to,
	})
	return d, nil
}

// Assign lends the device to a client who is not discharged.
func (s *Service) Assign(ctx context.Context, id, clientID uuid.UUID) (*Device, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !cur.Assignable() {
		return nil, fmt.Errorf("%w: status is %s", ErrNotAssignable, cur.Status)
	}

	st, err := s.clientStatus(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if st == client.StatusDischarged {
		return nil, ErrClientDischarged
	}

	now := s.now().UTC()
	d, err := s.update(ctx, id, cur.Status, map[string]any{
		"status":     StatusAssigned,
		"clientId":   &clientID,
		"assignedAt": &now,
	})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.DeviceAssigned, "device", id.String(), map[string]string{
		"clientId": clientID.String(),
		"from":     cur.Status,
	})
	return d, nil
}

// Unassign takes the device back to the clinic.
func (s *Service) Unassign(ctx context.Context, id uuid.UUID) (*Device, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusAssigned {
		return nil, ErrNotAssigned
	}

	d, err := s.update(ctx, id, cur.Status, map[string]any{
		"status":     StatusAtClinic,
		"clientId":   (*uuid.UUID)(nil),
		"assignedAt": (*time.Time)(nil),
	})
	if err != nil {
		return nil, err
	}
	payload := map[string]string{}
	if cur.ClientID != nil {
		payload["clientId"] = cur.ClientID.String()
	}
	s.events.Emit(ctx, events.DeviceUnassigned, "device", id.String(), payload)
	return d, nil
}

// Delete removes a device that is not out with a client.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == StatusAssigned {
		return ErrStillAssigned
	}
	if err := s.devices.Delete(ctx, id); err != nil {
		return notFound(err, "delete device")
	}
	return nil
}

func (s *Service) update(ctx context.Context, id uuid.UUID, from string, changes map[string]any) (*Device, error) {
	changes["updatedAt"] = s.now().UTC()
	d, err := s.devices.Update(ctx, id, from, changes)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrStatusChanged
		}
		return nil, fmt.Errorf("update device: %w", err)
	}
	return d, nil
}

func (s *Service) clientStatus(ctx context.Context, id uuid.UUID) (string, error) {
	st, err := s.clients.Status(ctx, id)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return "", ErrClientNotFound
		}
		return "", fmt.Errorf("look up client: %w", err)
	}
	return st, nil
}

func notFound(err error, op string) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

package formentry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/rehab/clinic/internal/domain/client"
	"github.com/rehab/clinic/internal/domain/form"
	"github.com/rehab/clinic/internal/platform/blobstore"
	"github.com/rehab/clinic/internal/platform/db"
	"github.com/rehab/clinic/internal/platform/events"
)

var (
	ErrNotFound         = errors.New("form entry not found")
	ErrFormNotFound     = errors.New("form not found")
	ErrFormNotActive    = errors.New("form is not active")
	ErrClientNotFound   = errors.New("client not found")
	ErrClientDischarged = errors.New("client is discharged")
	ErrNotInProgress    = errors.New("form entry is not in progress")
	ErrCompleted        = errors.New("completed form entries cannot be deleted")
	ErrStatusChanged    = errors.New("form entry status changed concurrently")
	ErrNotArchived      = errors.New("form entry has no archived snapshot")
)

// DefaultArchivePrefix is the key prefix of archived snapshots.
const DefaultArchivePrefix = "form-entries"

// FormLookup loads templates. It returns form.ErrNotFound for unknown ids.
type FormLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*form.Form, error)
}

// ClientLookup reports a client's status. It returns client.ErrNotFound for
// unknown clients.
type ClientLookup interface {
	Status(ctx context.Context, id uuid.UUID) (string, error)
}

// Archive is where completed entries are written.
type Archive struct {
	Store  blobstore.Store
	Prefix string
}

type Service struct {
	entries Repository
	forms   FormLookup
	clients ClientLookup
	archive Archive
	events  *events.Emitter
	logger  zerolog.Logger
	now     func() time.Time
}

func NewService(entries Repository, forms FormLookup, clients ClientLookup, archive Archive, em *events.Emitter, logger zerolog.Logger) *Service {
	if archive.Prefix == "" {
		archive.Prefix = DefaultArchivePrefix
	}
	return &Service{
		entries: entries,
		forms:   forms,
		clients: clients,
		archive: archive,
		events:  em,
		logger:  logger.With().Str("component", "formentry").Logger(),
		now:     time.Now,
	}
}

// ArchiveKey is the blob key of one completion attempt's snapshot:
// <prefix>/<clientId>/<entryId>/<attempt>.json. Attempts never share a key, so
// a losing attempt can only ever remove its own blob.
func ArchiveKey(prefix string, e *Entry, attempt uuid.UUID) string {
	return blobstore.Key(prefix, e.ClientID.String(), e.ID.String(), attempt.String()+".json")
}

// Create starts an entry on an active template for a client who is not
// discharged. Data may be incomplete.
func (s *Service) Create(ctx context.Context, e *Entry) error {
	f, err := s.form(ctx, e.FormID)
	if err != nil {
		return err
	}
	if f.Status != form.StatusActive {
		return fmt.Errorf("%w: status is %s", ErrFormNotActive, f.Status)
	}
	if err := s.checkClient(ctx, e.ClientID); err != nil {
		return err
	}
	if e.Data == nil {
		e.Data = map[string]any{}
	}
	if err := f.Schema.ValidateData(e.Data, false); err != nil {
		return err
	}

	e.ID = uuid.New()
	e.FormVersion = f.Version
	e.Status = Statuses.Initial()
	e.Score, e.ScoreDetails, e.CompletedAt = nil, nil, nil
	e.CompletedFormVersion, e.ArchiveKey = nil, nil
	now := s.now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	if err := s.entries.Create(ctx, e); err != nil {
		return fmt.Errorf("create form entry: %w", err)
	}
	s.events.Emit(ctx, events.FormEntryCreated, "form_entry", e.ID.String(), map[string]string{
		"formId":   e.FormID.String(),
		"formType": f.Type,
		"clientId": e.ClientID.String(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Entry, error) {
	e, err := s.entries.GetByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "get form entry")
	}
	return e, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Entry, int, error) {
	items, total, err := s.entries.List(ctx, f)
	if err != nil {
		return nil, 0, fmt.Errorf("list form entries: %w", err)
	}
	return items, total, nil
}

// ListForClient lists a client's entries, newest first by default.
func (s *Service) ListForClient(ctx context.Context, clientID uuid.UUID, f Filter) ([]*Entry, int, error) {
	if _, err := s.clientStatus(ctx, clientID); err != nil {
		return nil, 0, err
	}
	f.ClientID = &clientID
	return s.List(ctx, f)
}

// Patch is a change to an in-progress entry. Data keys are merged into the
// saved data; a null value clears the answer.
type Patch struct {
	Data  map[string]any
	Notes *string
}

// Update saves answers and notes while the entry is in progress.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*Entry, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusInProgress {
		return nil, ErrNotInProgress
	}

	changes := map[string]any{}
	if p.Data != nil {
		f, err := s.form(ctx, cur.FormID)
		if err != nil {
			return nil, err
		}
		data := mergeData(cur.Data, p.Data)
		if err := f.Schema.ValidateData(data, false); err != nil {
			return nil, err
		}
		changes["data"] = data
	}
	if p.Notes != nil {
		changes["notes"] = p.Notes
	}
	if len(changes) == 0 {
		return cur, nil
	}
	return s.update(ctx, id, StatusInProgress, changes)
}

// Complete validates the full submission, scores it, archives a snapshot and
// marks the entry completed. Data in p is merged first.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, p Patch) (*Entry, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status != StatusInProgress {
		return nil, ErrNotInProgress
	}
	f, err := s.form(ctx, cur.FormID)
	if err != nil {
		return nil, err
	}

	done := *cur
	done.Data = mergeData(cur.Data, p.Data)
	if p.Notes != nil {
		done.Notes = p.Notes
	}
	if err := f.Schema.ValidateData(done.Data, true); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	version := f.Version
	key := ArchiveKey(s.archive.Prefix, cur, uuid.New())
	done.Status = StatusCompleted
	done.Score, done.ScoreDetails = Score(f.Type, f.Schema, done.Data)
	done.CompletedAt = &now
	done.UpdatedAt = now
	done.CompletedFormVersion = &version
	done.ArchiveKey = &key

	if err := s.writeSnapshot(ctx, &done, f); err != nil {
		return nil, err
	}

	e, err := s.update(ctx, id, StatusInProgress, map[string]any{
		"status":               done.Status,
		"data":                 done.Data,
		"notes":                done.Notes,
		"score":                done.Score,
		"scoreDetails":         done.ScoreDetails,
		"completedAt":          done.CompletedAt,
		"completedFormVersion": done.CompletedFormVersion,
		"archiveKey":           done.ArchiveKey,
	})
	if err != nil {
		if delErr := s.archive.Store.Delete(ctx, key); delErr != nil {
			s.logger.Warn().Err(delErr).Str("key", key).Msg("failed to remove orphaned snapshot")
		}
		return nil, err
	}

	payload := map[string]any{
		"formId":   e.FormID.String(),
		"formType": f.Type,
		"clientId": e.ClientID.String(),
		"archive":  key,
	}
	if e.Score != nil {
		payload["score"] = *e.Score
	}
	if len(e.ScoreDetails) > 0 {
		payload["scoreDetails"] = e.ScoreDetails
	}
	s.events.Emit(ctx, events.FormEntryCompleted, "form_entry", id.String(), payload)
	return e, nil
}

// writeSnapshot stores e under e.ArchiveKey. f is the template the data was
// validated against.
func (s *Service) writeSnapshot(ctx context.Context, e *Entry, f *form.Form) error {
	body, err := json.Marshal(Snapshot{
		Entry: e,
		Form: SnapshotForm{
			ID:               f.ID,
			Title:            f.Title,
			Type:             f.Type,
			Version:          f.Version,
			StartedOnVersion: e.FormVersion,
		},
		ArchivedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := *e.ArchiveKey
	meta, err := s.archive.Store.Put(ctx, key, "application/json", body)
	if err != nil {
		return fmt.Errorf("archive form entry: %w", err)
	}
	s.logger.Info().
		Str("entry_id", e.ID.String()).
		Str("key", key).
		Str("sha256", meta.Hash).
		Int64("size", meta.Size).
		Msg("form entry archived")
	return nil
}

// Cancel abandons an in-progress entry.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Entry, error) {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := Statuses.Check(cur.Status, StatusCancelled); err != nil {
		return nil, fmt.Errorf("cancel form entry: %w", err)
	}
	if cur.Status == StatusCancelled {
		return cur, nil
	}

	e, err := s.update(ctx, id, cur.Status, map[string]any{"status": StatusCancelled})
	if err != nil {
		return nil, err
	}
	s.events.Emit(ctx, events.FormEntryCancelled, "form_entry", id.String(), map[string]string{
		"formId":   e.FormID.String(),
		"clientId": e.ClientID.String(),
	})
	return e, nil
}

// Delete removes an entry that was never completed.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.Status == StatusCompleted {
		return ErrCompleted
	}
	if err := s.entries.Delete(ctx, id); err != nil {
		return notFound(err, "delete form entry")
	}
	return nil
}

// Archived returns the stored snapshot of a completed entry.
func (s *Service) Archived(ctx context.Context, id uuid.UUID) ([]byte, *blobstore.Metadata, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if e.Status != StatusCompleted || e.ArchiveKey == nil {
		return nil, nil, ErrNotArchived
	}
	data, meta, err := s.archive.Store.Get(ctx, *e.ArchiveKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return nil, nil, ErrNotArchived
		}
		return nil, nil, fmt.Errorf("read archive: %w", err)
	}
	return data, meta, nil
}

func (s *Service) update(ctx context.Context, id uuid.UUID, from string, changes map[string]any) (*Entry, error) {
	changes["updatedAt"] = s.now().UTC()
	e, err := s.entries.Update(ctx, id, from, changes)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, ErrStatusChanged
		}
		return nil, fmt.Errorf("update form entry: %w", err)
	}
	return e, nil
}

func (s *Service) form(ctx context.Context, id uuid.UUID) (*form.Form, error) {
	f, err := s.forms.Get(ctx, id)
	if err != nil {
		if errors.Is(err, form.ErrNotFound) {
			return nil, ErrFormNotFound
		}
		return nil, fmt.Errorf("look up form: %w", err)
	}
	return f, nil
}

func (s *Service) checkClient(ctx context.Context, id uuid.UUID) error {
	st, err := s.clientStatus(ctx, id)
	if err != nil {
		return err
	}
	if st == client.StatusDischarged {
		return ErrClientDischarged
	}
	return nil
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

func mergeData(saved, patch map[string]any) map[string]any {
	return lo.OmitBy(lo.Assign(saved, patch), func(_ string, v any) bool { return v == nil })
}

func notFound(err error, op string) error {
	if db.IsNotFound(err) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

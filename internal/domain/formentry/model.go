package formentry

import (
	"time"

	"github.com/google/uuid"

	"github.com/rehab/clinic/internal/platform/fieldmap"
	"github.com/rehab/clinic/internal/platform/lifecycle"
	"github.com/rehab/clinic/internal/platform/validation"
)

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Statuses is the entry lifecycle. Completed entries are clinical records
// and never change again.
var Statuses = lifecycle.New(StatusInProgress, map[string][]string{
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
})

func init() {
	validation.RegisterStatus("entrystatus", Statuses)
}

// Entry is one filling of a form template for a client. FormVersion pins the
// template version the entry was started on; CompletedFormVersion is the one
// its final data was validated and scored against. ArchiveKey locates the
// snapshot written by the completion that committed.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	FormID       uuid.UUID      `json:"formId"`
	FormVersion  int            `json:"formVersion"`
	ClientID     uuid.UUID      `json:"clientId"`
	Status       string         `json:"status"`
	Data         map[string]any `json:"data"`
	Score        *int           `json:"score,omitempty"`
	ScoreDetails map[string]int `json:"scoreDetails,omitempty"`
	Notes        *string        `json:"notes,omitempty"`
	CompletedAt  *time.Time     `json:"completedAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`

	CompletedFormVersion *int    `json:"completedFormVersion,omitempty"`
	ArchiveKey           *string `json:"archiveKey,omitempty"`
}

var columns = fieldmap.NewMapping(nil).Allow(
	"id", "formId", "formVersion", "clientId", "status", "data", "score",
	"scoreDetails", "notes", "completedAt", "createdAt", "updatedAt",
	"completedFormVersion", "archiveKey",
)

var sortable = fieldmap.NewMapping(nil).Allow(
	"status", "score", "completedAt", "createdAt", "updatedAt",
)

// Filter narrows List.
type Filter struct {
	FormID   *uuid.UUID
	ClientID *uuid.UUID
	Status   string
	Sort     string
	Limit    int
	Offset   int
}

// Snapshot is the immutable archive document of a completed entry.
type Snapshot struct {
	Entry      *Entry       `json:"entry"`
	Form       SnapshotForm `json:"form"`
	ArchivedAt time.Time    `json:"archivedAt"`
}

// SnapshotForm identifies the template an entry was completed on. Version is
// the schema the data was validated against; StartedOnVersion differs from it
// when the template was edited while the entry was open.
type SnapshotForm struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Type             string    `json:"type"`
	Version          int       `json:"version"`
	StartedOnVersion int       `json:"startedOnVersion"`
}

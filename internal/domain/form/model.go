package form

import (
	"time"

	"github.com/google/uuid"

	"github.com/rehab/clinic/internal/platform/fieldmap"
	"github.com/rehab/clinic/internal/platform/lifecycle"
	"github.com/rehab/clinic/internal/platform/validation"
)

const (
	TypeLFK           = "lfk"
	TypeFIM           = "fim"
	TypeAssessment    = "assessment"
	TypeQuestionnaire = "questionnaire"
)

var Types = []string{TypeLFK, TypeFIM, TypeAssessment, TypeQuestionnaire}

const (
	StatusDraft    = "draft"
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Statuses is the template lifecycle. Archived templates are read-only.
var Statuses = lifecycle.New(StatusDraft, map[string][]string{
	StatusDraft:    {StatusActive, StatusArchived},
	StatusActive:   {StatusArchived},
	StatusArchived: {},
})

func init() {
	validation.RegisterStatus("formstatus", Statuses)
	validation.RegisterOneOf("formtype", Types...)
}

// Form is a versioned template for a clinical form. Version starts at 1 and
// grows with every schema change.
type Form struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Type        string    `json:"type"`
	Status      string    `json:"status"`
	Version     int       `json:"version"`
	Description *string   `json:"description,omitempty"`
	Schema      Schema    `json:"schema"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

var columns = fieldmap.NewMapping(nil).Allow(
	"id", "title", "type", "status", "version", "description", "schema", "createdAt", "updatedAt",
)

var sortable = fieldmap.NewMapping(nil).Allow(
	"id", "title", "type", "status", "version", "createdAt", "updatedAt",
)

// Filter narrows List.
type Filter struct {
	Type   string
	Status string
	Search string
	Sort   string
	Limit  int
	Offset int
}

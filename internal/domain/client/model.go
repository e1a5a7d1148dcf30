package client

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rehab/clinic/internal/platform/fieldmap"
	"github.com/rehab/clinic/internal/platform/lifecycle"
	"github.com/rehab/clinic/internal/platform/validation"
)

const (
	StatusIntake     = "intake"
	StatusActive     = "active"
	StatusOnHold     = "on_hold"
	StatusDischarged = "discharged"
)

// Statuses is the client lifecycle. A discharged client can be readmitted.
var Statuses = lifecycle.New(StatusIntake, map[string][]string{
	StatusIntake:     {StatusActive, StatusDischarged},
	StatusActive:     {StatusOnHold, StatusDischarged},
	StatusOnHold:     {StatusActive, StatusDischarged},
	StatusDischarged: {StatusIntake},
})

var Genders = []string{"male", "female"}

func init() {
	validation.RegisterStatus("clientstatus", Statuses)
	validation.RegisterOneOf("gender", Genders...)
}

// Client is a patient of the clinic.
type Client struct {
	ID         uuid.UUID `json:"id"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	MiddleName *string   `json:"middleName,omitempty"`
	BirthDate  *Date     `json:"birthDate,omitempty"`
	Gender     *string   `json:"gender,omitempty"`
	Contacts   *Contacts `json:"contacts,omitempty"`
	Diagnosis  *string   `json:"diagnosis,omitempty"`
	Notes      *string   `json:"notes,omitempty"`
	Status     string    `json:"status"`
	ClinicID   *string   `json:"clinicId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// FullName is "Last First Middle".
func (c *Client) FullName() string {
	parts := []string{c.LastName, c.FirstName}
	if c.MiddleName != nil && *c.MiddleName != "" {
		parts = append(parts, *c.MiddleName)
	}
	return strings.Join(parts, " ")
}

// Contacts is stored as JSONB.
type Contacts struct {
	Phone            string            `json:"phone,omitempty" validate:"omitempty,max=32"`
	Email            string            `json:"email,omitempty" validate:"omitempty,email"`
	Address          string            `json:"address,omitempty" validate:"omitempty,max=500"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
}

type EmergencyContact struct {
	Name     string `json:"name" validate:"required,max=200"`
	Phone    string `json:"phone" validate:"required,max=32"`
	Relation string `json:"relation,omitempty" validate:"omitempty,max=100"`
}

// Date is a calendar date rendered as YYYY-MM-DD and stored as DATE.
type Date struct {
	time.Time
}

const dateLayout = "2006-01-02"

// ParseDate parses YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// ScanDate implements pgtype.DateScanner.
func (d *Date) ScanDate(v pgtype.Date) error {
	if !v.Valid {
		*d = Date{}
		return nil
	}
	*d = Date{Time: v.Time}
	return nil
}

// DateValue implements pgtype.DateValuer.
func (d Date) DateValue() (pgtype.Date, error) {
	return pgtype.Date{Time: d.Time, Valid: !d.IsZero()}, nil
}

// columns maps API fields to clients columns. Registration order is the
// SELECT order used by scanClient.
var columns = fieldmap.NewMapping(nil).Allow(
	"id", "firstName", "lastName", "middleName", "birthDate", "gender",
	"contacts", "diagnosis", "notes", "status", "clinicId", "createdAt", "updatedAt",
)

var sortable = fieldmap.NewMapping(nil).Allow(
	"id", "firstName", "lastName", "birthDate", "status", "createdAt", "updatedAt",
)

// Filter narrows List.
type Filter struct {
	Status   string
	ClinicID string
	Search   string
	Sort     string
	Limit    int
	Offset   int
}

package device

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rehab/clinic/internal/platform/fieldmap"
	"github.com/rehab/clinic/internal/platform/lifecycle"
	"github.com/rehab/clinic/internal/platform/validation"
)

const (
	StatusRegistered     = "registered"
	StatusInStock        = "in_stock"
	StatusAtClinic       = "at_clinic"
	StatusAssigned       = "assigned"
	StatusMaintenance    = "maintenance"
	StatusDecommissioned = "decommissioned"
)

// Statuses is the device lifecycle. Edges into and out of assigned are only
// taken by Assign and Unassign.
var Statuses = lifecycle.New(StatusRegistered, map[string][]string{
	StatusRegistered:     {StatusInStock, StatusDecommissioned},
	StatusInStock:        {StatusAtClinic, StatusMaintenance, StatusDecommissioned, StatusAssigned},
	StatusAtClinic:       {StatusInStock, StatusMaintenance, StatusDecommissioned, StatusAssigned},
	StatusMaintenance:    {StatusInStock, StatusAtClinic, StatusDecommissioned},
	StatusAssigned:       {StatusAtClinic},
	StatusDecommissioned: {},
})

func init() {
	validation.RegisterStatus("devicestatus", Statuses)
}

// Device is a piece of rehabilitation hardware that can be lent to a client.
// TelemetryEndpoint is stored for the vendor's tooling; the API never calls it.
type Device struct {
	ID                uuid.UUID  `json:"id"`
	Serial            string     `json:"serial"`
	Model             string     `json:"model"`
	HardwareRevision  *string    `json:"hardwareRevision,omitempty"`
	FirmwareVersion   *string    `json:"firmwareVersion,omitempty"`
	Status            string     `json:"status"`
	ClientID          *uuid.UUID `json:"clientId,omitempty"`
	AssignedAt        *time.Time `json:"assignedAt,omitempty"`
	TelemetryEndpoint *string    `json:"telemetryEndpoint,omitempty"`
	Notes             *string    `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// NormalizeSerial trims and upper-cases a serial number.
func NormalizeSerial(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Assignable reports whether the device can be handed to a client.
func (d *Device) Assignable() bool {
	return d.Status == StatusInStock || d.Status == StatusAtClinic
}

var columns = fieldmap.NewMapping(nil).Allow(
	"id", "serial", "model", "hardwareRevision", "firmwareVersion", "status",
	"clientId", "assignedAt", "telemetryEndpoint", "notes", "createdAt", "updatedAt",
)

var sortable = fieldmap.NewMapping(nil).Allow(
	"id", "serial", "model", "status", "assignedAt", "createdAt", "updatedAt",
)

// Filter narrows List.
type Filter struct {
	Status   string
	ClientID *uuid.UUID
	Model    string
	Search   string
	Sort     string
	Limit    int
	Offset   int
}

package middleware

import (
	"bytes"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rehab/clinic/internal/platform/errs"
)

func TestAudit_RecordsMutation(t *testing.T) {
	var got []AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		got = append(got, e)
		return nil
	})

	c, _ := newContext(http.MethodPatch, "/api/v1/clients/c-1/status")
	c.Set("request_id", "req-7")

	if err := Audit(zerolog.Nop(), rec)(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.Resource != "clients" || e.ResourceID != "c-1" || e.ClientID != "c-1" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Action != "update" || e.RequestID != "req-7" || e.StatusCode != http.StatusOK {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestAudit_SkipsReads(t *testing.T) {
	called := false
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		called = true
		return nil
	})
	c, _ := newContext(http.MethodGet, "/api/v1/clients")
	_ = Audit(zerolog.Nop(), rec)(okHandler)(c)
	if called {
		t.Error("reads must not be audited")
	}
}

func TestAudit_ClientFromHandler(t *testing.T) {
	var got AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	c, _ := newContext(http.MethodPost, "/api/v1/devices/d-1/assign")
	handler := func(c echo.Context) error {
		c.Set(AuditClientKey, "c-42")
		return errs.NewConflict("DEVICE_NOT_ASSIGNABLE", "decommissioned")
	}

	err := Audit(zerolog.Nop(), rec)(handler)(c)
	if err == nil {
		t.Fatal("expected handler error to pass through")
	}
	if got.Resource != "devices" || got.ResourceID != "d-1" || got.ClientID != "c-42" {
		t.Errorf("unexpected entry %+v", got)
	}
	if got.Action != "create" || got.StatusCode != http.StatusConflict {
		t.Errorf("unexpected entry %+v", got)
	}
}

func TestAudit_RecorderErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	rec := AuditRecorderFunc(func(e AuditEntry) error { return errors.New("disk full") })
	c, _ := newContext(http.MethodDelete, "/api/v1/form-entries/fe-1")

	if err := Audit(zerolog.New(&buf), rec)(okHandler)(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "disk full") || !strings.Contains(buf.String(), `"action":"delete"`) {
		t.Errorf("unexpected log %s", buf.String())
	}
}

func TestResourceFromPath(t *testing.T) {
	tests := []struct {
		path, resource, id string
	}{
		{"/api/v1/clients", "clients", ""},
		{"/api/v1/devices/d-1/assign", "devices", "d-1"},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		r, id := resourceFromPath(tt.path)
		if r != tt.resource || id != tt.id {
			t.Errorf("resourceFromPath(%q) = %q, %q", tt.path, r, id)
		}
	}
}

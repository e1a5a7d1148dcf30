//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"

	"github.com/rehab/clinic/internal/domain/client"
	"github.com/rehab/clinic/internal/domain/device"
	"github.com/rehab/clinic/internal/domain/form"
	"github.com/rehab/clinic/internal/domain/formentry"
	"github.com/rehab/clinic/internal/platform/db"
	"github.com/rehab/clinic/internal/platform/errs"
	"github.com/rehab/clinic/internal/platform/events"
	"github.com/rehab/clinic/internal/platform/query"
	"github.com/rehab/clinic/internal/platform/sqlerr"
)

func TestClients_ListSearchAndSort(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	for _, last := range []string{"Petrov", "Sidorov", "Ivanov"} {
		newClient(t, s, last)
	}
	diagnosis := "post-stroke hemiparesis"
	intake := &client.Client{FirstName: "Anna", LastName: "Kuznetsova", Diagnosis: &diagnosis}
	if err := s.clients.Create(ctx, intake); err != nil {
		t.Fatal(err)
	}

	items, total, err := s.clients.List(ctx, client.Filter{Status: client.StatusActive, Sort: "lastName", Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 2 of 3 active clients, got %d of %d", len(items), total)
	}
	if items[0].LastName != "Ivanov" || items[1].LastName != "Petrov" {
		t.Errorf("unexpected order %s, %s", items[0].LastName, items[1].LastName)
	}

	items, total, err = s.clients.List(ctx, client.Filter{Search: "STROKE", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || items[0].ID != intake.ID {
		t.Errorf("expected search to match diagnosis, got %d results", total)
	}

	if _, _, err := s.clients.List(ctx, client.Filter{Sort: "passport", Limit: 10}); !errors.Is(err, query.ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestClients_UpdateRoundTrip(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	c := newClient(t, s, "Orlov")

	bd, _ := client.ParseDate("1961-04-12")
	updated, err := s.clients.Update(ctx, c.ID, map[string]any{
		"birthDate": &bd,
		"contacts":  &client.Contacts{Phone: "+7 900 000-00-00", Email: "orlov@example.org"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.BirthDate == nil || updated.BirthDate.String() != "1961-04-12" {
		t.Errorf("unexpected birth date %v", updated.BirthDate)
	}
	if updated.Contacts == nil || updated.Contacts.Email != "orlov@example.org" {
		t.Errorf("contacts not persisted: %+v", updated.Contacts)
	}
	if updated.UpdatedAt.Before(c.CreatedAt) {
		t.Error("updatedAt moved backwards")
	}
}

func TestDevices_AssignBlocksClientDelete(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	c := newClient(t, s, "Volkov")

	d := &device.Device{Serial: " sn-1001 ", Model: "Stabilometer S1", Status: device.StatusInStock}
	if err := s.devices.Create(ctx, d); err != nil {
		t.Fatal(err)
	}
	if d.Serial != "SN-1001" {
		t.Errorf("expected normalized serial, got %q", d.Serial)
	}

	assigned, err := s.devices.Assign(ctx, d.ID, c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if assigned.Status != device.StatusAssigned || assigned.ClientID == nil || *assigned.ClientID != c.ID {
		t.Fatalf("unexpected device %+v", assigned)
	}

	list, total, err := s.devices.ListForClient(ctx, c.ID, device.Filter{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || list[0].ID != d.ID {
		t.Errorf("expected the assigned device, got %d", total)
	}

	err = s.clients.Delete(ctx, c.ID)
	var httpErr *errs.HTTPError
	if !errors.As(sqlerr.HandleError(err), &httpErr) {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Status != http.StatusConflict || httpErr.Code != "CLIENT_IN_USE" {
		t.Errorf("unexpected error %+v", httpErr)
	}

	if _, err := s.devices.Unassign(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.clients.Delete(ctx, c.ID); err != nil {
		t.Errorf("expected delete after unassign, got %v", err)
	}
}

func TestDevices_SerialUniqueIndex(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	if err := s.devices.Create(ctx, &device.Device{Serial: "SN-2002", Model: "Walker W2"}); err != nil {
		t.Fatal(err)
	}
	if err := s.devices.Create(ctx, &device.Device{Serial: "sn-2002", Model: "Walker W2"}); !errors.Is(err, device.ErrDuplicateSerial) {
		t.Errorf("expected ErrDuplicateSerial, got %v", err)
	}

	// Bypass the service check to hit the index itself.
	err := device.NewRepoPG(testPool).Create(ctx, &device.Device{
		ID: uuid.New(), Serial: "SN-2002", Model: "Walker W2", Status: device.StatusRegistered,
	})
	var httpErr *errs.HTTPError
	if !errors.As(sqlerr.HandleError(err), &httpErr) {
		t.Fatalf("expected HTTP error, got %v", err)
	}
	if httpErr.Code != "DEVICE_ALREADY_EXISTS" {
		t.Errorf("unexpected code %s", httpErr.Code)
	}
}

func TestForms_SeedCatalog(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()

	res, err := s.forms.SeedCatalog(ctx, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != len(form.Catalog()) {
		t.Errorf("expected %d created, got %+v", len(form.Catalog()), res)
	}

	err = db.WithTx(ctx, testPool, func(ctx context.Context) error {
		res, err = s.forms.SeedCatalog(ctx, testLogger())
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Unchanged != len(form.Catalog()) || res.Created != 0 {
		t.Errorf("expected reseed to be a no-op, got %+v", res)
	}

	items, _, err := s.forms.List(ctx, form.Filter{Type: form.TypeFIM, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one FIM template, got %d", len(items))
	}
	fim := items[0]
	if len(fim.Schema.Sections) != 2 || len(fim.Schema.Sections[0].Fields) != 13 {
		t.Errorf("schema did not survive JSONB round trip: %+v", fim.Schema.Sections)
	}
	if fim.Status != form.StatusActive {
		t.Errorf("expected seeded template to be active, got %s", fim.Status)
	}
}

func TestFormEntries_CompleteFIM(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	c := newClient(t, s, "Smirnov")

	if _, err := s.forms.SeedCatalog(ctx, testLogger()); err != nil {
		t.Fatal(err)
	}
	forms, _, err := s.forms.List(ctx, form.Filter{Type: form.TypeFIM, Limit: 1})
	if err != nil || len(forms) != 1 {
		t.Fatalf("fim template: %v", err)
	}
	fim := forms[0]

	e := &formentry.Entry{FormID: fim.ID, ClientID: c.ID}
	if err := s.entries.Create(ctx, e); err != nil {
		t.Fatal(err)
	}

	answers := map[string]any{}
	for _, sec := range fim.Schema.Sections {
		v := 5.0
		if sec.ID == form.FIMCognitive {
			v = 6
		}
		for _, f := range sec.Fields {
			answers[f.ID] = v
		}
	}
	done, err := s.entries.Complete(ctx, e.ID, formentry.Patch{Data: answers})
	if err != nil {
		t.Fatal(err)
	}
	if done.Score == nil || *done.Score != 13*5+5*6 {
		t.Fatalf("unexpected score %v", done.Score)
	}

	stored, err := s.entries.Get(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != formentry.StatusCompleted || stored.CompletedAt == nil {
		t.Errorf("unexpected stored entry %+v", stored)
	}
	if stored.ScoreDetails[form.FIMMotor] != 65 || stored.ScoreDetails[form.FIMCognitive] != 30 {
		t.Errorf("score details not persisted: %v", stored.ScoreDetails)
	}
	if stored.FormVersion != fim.Version {
		t.Errorf("expected form version %d, got %d", fim.Version, stored.FormVersion)
	}

	if stored.CompletedFormVersion == nil || *stored.CompletedFormVersion != fim.Version {
		t.Errorf("completed form version not persisted: %v", stored.CompletedFormVersion)
	}
	if stored.ArchiveKey == nil {
		t.Fatal("archive key not persisted")
	}
	if keys := s.archive.Keys(formentry.DefaultArchivePrefix); len(keys) != 1 || keys[0] != *stored.ArchiveKey {
		t.Errorf("expected archive %s, got %v", *stored.ArchiveKey, keys)
	}
	if _, _, err := s.entries.Archived(ctx, e.ID); err != nil {
		t.Errorf("archived snapshot: %v", err)
	}
	if types := s.events.Types(); types[len(types)-1] != events.FormEntryCompleted {
		t.Errorf("expected completion event last, got %v", types)
	}

	if err := s.entries.Delete(ctx, e.ID); !errors.Is(err, formentry.ErrCompleted) {
		t.Errorf("expected ErrCompleted, got %v", err)
	}
	if err := s.clients.Delete(ctx, c.ID); err == nil {
		t.Error("expected client delete to be refused while entries exist")
	}
}

package query

import (
	"errors"
	"testing"

	"github.com/rehab/clinic/internal/platform/fieldmap"
)

func TestParseSort(t *testing.T) {
	specs := ParseSort("-createdAt, lastName,,+serial")
	if len(specs) != 3 {
		t.Fatalf("expected 3 specs, got %d", len(specs))
	}
	if specs[0].Field != "createdAt" || !specs[0].Descending {
		t.Errorf("unexpected first spec %+v", specs[0])
	}
	if specs[1].Field != "lastName" || specs[1].Descending {
		t.Errorf("unexpected second spec %+v", specs[1])
	}
	if specs[2].Field != "serial" {
		t.Errorf("unexpected third spec %+v", specs[2])
	}
	if ParseSort("") != nil {
		t.Error("expected nil for empty sort")
	}
}

func testMapping() *fieldmap.Mapping {
	return fieldmap.NewMapping(nil).Allow("id", "lastName", "createdAt", "status")
}

func TestOrderClause(t *testing.T) {
	m := testMapping()

	got, err := OrderClause("", m, "created_at DESC")
	if err != nil || got != " ORDER BY created_at DESC" {
		t.Errorf("default: %q, %v", got, err)
	}

	got, err = OrderClause("-createdAt,lastName", m, "created_at DESC")
	if err != nil {
		t.Fatal(err)
	}
	want := " ORDER BY created_at DESC NULLS LAST, last_name ASC, id ASC"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	got, _ = OrderClause("-id", m, "")
	if got != " ORDER BY id DESC NULLS LAST" {
		t.Errorf("got %q", got)
	}
}

func TestOrderClause_UnknownField(t *testing.T) {
	_, err := OrderClause("password", testMapping(), "")
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("expected ErrUnknownField, got %v", err)
	}
}

func TestWhere_Empty(t *testing.T) {
	var w Where
	if w.SQL() != "" {
		t.Errorf("expected empty SQL, got %q", w.SQL())
	}
	if w.Next() != 1 {
		t.Errorf("expected next placeholder 1, got %d", w.Next())
	}
}

func TestWhere_Build(t *testing.T) {
	var w Where
	w.Eq("status", "active").
		Eq("clinic_id", "").
		Search("ivan", "first_name", "last_name").
		In("id", []string{"a", "b"}).
		IsNull("deleted_at")

	want := " WHERE status = $1 AND (first_name ILIKE '%' || $2 || '%' OR last_name ILIKE '%' || $2 || '%') AND id = ANY($3) AND deleted_at IS NULL"
	if w.SQL() != want {
		t.Errorf("got  %q\nwant %q", w.SQL(), want)
	}
	if len(w.Args()) != 3 {
		t.Errorf("expected 3 args, got %d", len(w.Args()))
	}

	page, args := w.Page(20, 40)
	if page != " LIMIT $4 OFFSET $5" {
		t.Errorf("unexpected page clause %q", page)
	}
	if len(args) != 5 || args[3] != 20 || args[4] != 40 {
		t.Errorf("unexpected page args %v", args)
	}
	if len(w.Args()) != 3 {
		t.Error("Page must not modify the filter args")
	}
}

func TestWhere_SingleColumnSearch(t *testing.T) {
	var w Where
	w.Search("  ab12 ", "serial")
	if w.SQL() != " WHERE serial ILIKE '%' || $1 || '%'" {
		t.Errorf("got %q", w.SQL())
	}
	if w.Args()[0] != "ab12" {
		t.Errorf("expected trimmed term, got %v", w.Args()[0])
	}
}

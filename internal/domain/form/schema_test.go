package form

import (
	"errors"
	"testing"

	"github.com/rehab/clinic/internal/platform/validation"
)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var ce validation.CustomValidationErrors
	if !errors.As(err, &ce) {
		t.Fatalf("expected CustomValidationErrors, got %v", err)
	}
	out := map[string]string{}
	for _, e := range ce {
		out[e.Field] = e.Message
	}
	return out
}

func sampleSchema() Schema {
	return Schema{Sections: []Section{
		{ID: "main", Title: "Main", Fields: []Field{
			{ID: "notes", Label: "Notes", Type: FieldTextarea, Required: true},
			{ID: "pain", Label: "Pain", Type: FieldScale, Min: num(0), Max: num(10)},
			{ID: "weight", Label: "Weight", Type: FieldNumber, Min: num(20), Unit: "kg"},
			{ID: "side", Label: "Side", Type: FieldRadio, Options: options("left", "Left", "right", "Right")},
			{ID: "aids", Label: "Aids", Type: FieldCheckbox, Options: options("cane", "Cane", "walker", "Walker")},
			{ID: "smoker", Label: "Smoker", Type: FieldBoolean},
			{ID: "visit", Label: "Visit", Type: FieldDate},
		}},
	}}
}

func TestSchemaValidate_OK(t *testing.T) {
	if err := sampleSchema().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchemaValidate_Empty(t *testing.T) {
	errs := fieldErrors(t, Schema{}.Validate())
	if errs["schema.sections"] != "must contain at least one section" {
		t.Errorf("unexpected errors %v", errs)
	}
}

func TestSchemaValidate_Problems(t *testing.T) {
	s := Schema{Sections: []Section{
		{ID: "a", Title: "A", Fields: []Field{
			{ID: "x", Label: "X", Type: FieldSelect},
			{ID: "y", Label: "Y", Type: "slider"},
		}},
		{ID: "a", Title: "", Fields: []Field{
			{ID: "x", Label: "", Type: FieldNumber, Min: num(5), Max: num(1)},
		}},
	}}
	errs := fieldErrors(t, s.Validate())

	for _, path := range []string{
		"schema.sections",
		"schema.sections[0].fields[0].options",
		"schema.sections[0].fields[1].type",
		"schema.sections[1].title",
		"schema.sections[1].fields[0].label",
		"schema.sections[1].fields[0].min",
	} {
		if _, ok := errs[path]; !ok {
			t.Errorf("expected error at %s, got %v", path, errs)
		}
	}
}

func TestValidateData_Partial(t *testing.T) {
	s := sampleSchema()
	err := s.ValidateData(map[string]any{"pain": float64(3), "side": "left"}, false)
	if err != nil {
		t.Errorf("partial data should pass, got %v", err)
	}
}

func TestValidateData_Complete(t *testing.T) {
	s := sampleSchema()
	errs := fieldErrors(t, s.ValidateData(map[string]any{"pain": float64(3)}, true))
	if errs["data.notes"] != "is required" {
		t.Errorf("expected notes to be required, got %v", errs)
	}
	if err := s.ValidateData(map[string]any{"notes": "ok"}, true); err != nil {
		t.Errorf("unexpected error %v", err)
	}
}

func TestValidateData_Types(t *testing.T) {
	s := sampleSchema()
	data := map[string]any{
		"notes":   42.0,
		"pain":    11.0,
		"weight":  10.0,
		"side":    "up",
		"aids":    []any{"cane", "wheelchair"},
		"smoker":  "no",
		"visit":   "01.02.2024",
		"unknown": true,
	}
	errs := fieldErrors(t, s.ValidateData(data, false))

	want := map[string]string{
		"data.notes":   "must be a string",
		"data.pain":    "must not exceed 10",
		"data.weight":  "must be at least 20",
		"data.side":    `"up" is not an allowed option`,
		"data.aids":    "wheelchair is not an allowed option",
		"data.smoker":  "must be true or false",
		"data.visit":   "must be a date in YYYY-MM-DD format",
		"data.unknown": "is not a field of this form",
	}
	for k, v := range want {
		if errs[k] != v {
			t.Errorf("%s: got %q, want %q", k, errs[k], v)
		}
	}
}

func TestValidateData_ScaleMustBeWhole(t *testing.T) {
	errs := fieldErrors(t, sampleSchema().ValidateData(map[string]any{"pain": 2.5}, false))
	if errs["data.pain"] != "must be a whole number" {
		t.Errorf("unexpected %v", errs)
	}
}

func TestSchemaLookup(t *testing.T) {
	s := sampleSchema()
	if f, ok := s.Field("side"); !ok || f.Type != FieldRadio {
		t.Errorf("unexpected field %+v", f)
	}
	if _, ok := s.Section("missing"); ok {
		t.Error("expected no section")
	}
	if len(s.Fields()) != 7 {
		t.Errorf("expected 7 fields, got %d", len(s.Fields()))
	}
}

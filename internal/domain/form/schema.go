package form

import (
	"fmt"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/rehab/clinic/internal/platform/fieldmap"
	"github.com/rehab/clinic/internal/platform/validation"
)

// Field types understood by the dashboard renderer.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldNumber   = "number"
	FieldScale    = "scale"
	FieldSelect   = "select"
	FieldRadio    = "radio"
	FieldCheckbox = "checkbox"
	FieldBoolean  = "boolean"
	FieldDate     = "date"
)

var FieldTypes = []string{
	FieldText, FieldTextarea, FieldNumber, FieldScale, FieldSelect,
	FieldRadio, FieldCheckbox, FieldBoolean, FieldDate,
}

// Schema describes the sections and fields of a form.
type Schema struct {
	Sections []Section `json:"sections"`
}

type Section struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Fields []Field `json:"fields"`
}

type Field struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Required    bool     `json:"required,omitempty"`
	Options     []Option `json:"options,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
}

type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

func (f Field) needsOptions() bool {
	return f.Type == FieldSelect || f.Type == FieldRadio || f.Type == FieldCheckbox
}

// Fields lists every field in schema order.
func (s Schema) Fields() []Field {
	return lo.FlatMap(s.Sections, func(sec Section, _ int) []Field { return sec.Fields })
}

// Field finds a field by id.
func (s Schema) Field(id string) (Field, bool) {
	return lo.Find(s.Fields(), func(f Field) bool { return f.ID == id })
}

// Section finds a section by id.
func (s Schema) Section(id string) (Section, bool) {
	return lo.Find(s.Sections, func(sec Section) bool { return sec.ID == id })
}

// Validate checks the structure of the schema. Errors are keyed by JSON path
// under "schema".
func (s Schema) Validate() error {
	var out validation.CustomValidationErrors
	add := func(path, msg string) {
		out = append(out, validation.CustomValidationError{Field: "schema" + path, Message: msg})
	}

	if len(s.Sections) == 0 {
		add(".sections", "must contain at least one section")
		return out
	}

	sectionIDs := lo.Map(s.Sections, func(sec Section, _ int) string { return sec.ID })
	for _, id := range lo.FindDuplicates(sectionIDs) {
		add(".sections", fmt.Sprintf("duplicate section id %q", id))
	}
	fieldIDs := lo.Map(s.Fields(), func(f Field, _ int) string { return f.ID })
	for _, id := range lo.FindDuplicates(fieldIDs) {
		add(".sections", fmt.Sprintf("duplicate field id %q", id))
	}

	for i, sec := range s.Sections {
		sp := fmt.Sprintf(".sections[%d]", i)
		if sec.ID == "" {
			add(sp+".id", "is required")
		}
		if sec.Title == "" {
			add(sp+".title", "is required")
		}
		if len(sec.Fields) == 0 {
			add(sp+".fields", "must contain at least one field")
		}
		for j, f := range sec.Fields {
			fp := fmt.Sprintf("%s.fields[%d]", sp, j)
			if f.ID == "" {
				add(fp+".id", "is required")
			}
			if f.Label == "" {
				add(fp+".label", "is required")
			}
			if !lo.Contains(FieldTypes, f.Type) {
				add(fp+".type", fmt.Sprintf("unknown field type %q", f.Type))
			}
			if f.needsOptions() && len(f.Options) == 0 {
				add(fp+".options", "is required for "+f.Type+" fields")
			}
			values := lo.Map(f.Options, func(o Option, _ int) string { return o.Value })
			for _, v := range lo.FindDuplicates(values) {
				add(fp+".options", fmt.Sprintf("duplicate option value %q", v))
			}
			if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
				add(fp+".min", "must not exceed max")
			}
		}
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

// ValidateData checks a submission against the schema. Unknown keys are
// rejected. With complete set, every required field must be present.
// Errors are keyed "data.<fieldId>".
func (s Schema) ValidateData(data map[string]any, complete bool) error {
	var out validation.CustomValidationErrors
	add := func(id, msg string) {
		out = append(out, validation.CustomValidationError{Field: "data." + id, Message: msg})
	}

	fields := lo.KeyBy(s.Fields(), func(f Field) string { return f.ID })

	for _, key := range fieldmap.SortedKeys(data) {
		f, ok := fields[key]
		if !ok {
			add(key, "is not a field of this form")
			continue
		}
		if msg := checkValue(f, data[key]); msg != "" {
			add(key, msg)
		}
	}

	if complete {
		for _, f := range s.Fields() {
			if !f.Required {
				continue
			}
			if v, ok := data[f.ID]; !ok || isEmpty(v) {
				add(f.ID, "is required")
			}
		}
	}

	if len(out) > 0 {
		return out
	}
	return nil
}

func checkValue(f Field, v any) string {
	if v == nil {
		return ""
	}
	switch f.Type {
	case FieldText, FieldTextarea:
		if _, ok := v.(string); !ok {
			return "must be a string"
		}
	case FieldNumber, FieldScale:
		n, ok := v.(float64)
		if !ok {
			return "must be a number"
		}
		if f.Type == FieldScale && n != math.Trunc(n) {
			return "must be a whole number"
		}
		if f.Min != nil && n < *f.Min {
			return fmt.Sprintf("must be at least %g", *f.Min)
		}
		if f.Max != nil && n > *f.Max {
			return fmt.Sprintf("must not exceed %g", *f.Max)
		}
	case FieldSelect, FieldRadio:
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		if !hasOption(f, s) {
			return fmt.Sprintf("%q is not an allowed option", s)
		}
	case FieldCheckbox:
		items, ok := v.([]any)
		if !ok {
			return "must be a list of options"
		}
		for _, item := range items {
			s, ok := item.(string)
			if !ok || !hasOption(f, s) {
				return fmt.Sprintf("%v is not an allowed option", item)
			}
		}
	case FieldBoolean:
		if _, ok := v.(bool); !ok {
			return "must be true or false"
		}
	case FieldDate:
		s, ok := v.(string)
		if !ok {
			return "must be a date in YYYY-MM-DD format"
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
	}
	return ""
}

func hasOption(f Field, value string) bool {
	return lo.ContainsBy(f.Options, func(o Option) bool { return o.Value == value })
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	}
	return false
}

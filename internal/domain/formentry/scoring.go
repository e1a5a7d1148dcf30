package formentry

import (
	"math"

	"github.com/samber/lo"

	"github.com/rehab/clinic/internal/domain/form"
)

// Scorer computes the result of a completed entry. A nil total means the
// form type has no overall score.
type Scorer func(schema form.Schema, data map[string]any) (total *int, details map[string]int)

var scorers = map[string]Scorer{
	form.TypeFIM:           scoreFIM,
	form.TypeLFK:           scoreLFK,
	form.TypeAssessment:    sumScales,
	form.TypeQuestionnaire: sumScales,
}

// Score runs the scorer registered for the form type.
func Score(formType string, schema form.Schema, data map[string]any) (*int, map[string]int) {
	sc, ok := scorers[formType]
	if !ok {
		return nil, nil
	}
	return sc(schema, data)
}

// scoreFIM sums the motor (13-91) and cognitive (5-35) items into a total of
// 18-126.
func scoreFIM(schema form.Schema, data map[string]any) (*int, map[string]int) {
	motor, _ := sectionSum(schema, form.FIMMotor, data)
	cognitive, _ := sectionSum(schema, form.FIMCognitive, data)
	total := motor + cognitive
	return &total, map[string]int{
		form.FIMMotor:     motor,
		form.FIMCognitive: cognitive,
	}
}

// scoreLFK has no total. Muscle strength grades are summed when recorded.
func scoreLFK(schema form.Schema, data map[string]any) (*int, map[string]int) {
	sum, ok := sectionSum(schema, form.LFKMuscleStrength, data)
	if !ok {
		return nil, nil
	}
	return nil, map[string]int{form.LFKMuscleStrength: sum}
}

// sumScales totals every answered scale field, with a subtotal per section.
func sumScales(schema form.Schema, data map[string]any) (*int, map[string]int) {
	details := map[string]int{}
	for _, sec := range schema.Sections {
		if sum, ok := sectionSum(schema, sec.ID, data); ok {
			details[sec.ID] = sum
		}
	}
	if len(details) == 0 {
		return nil, nil
	}
	total := lo.Sum(lo.Values(details))
	return &total, details
}

// sectionSum adds the answered scale fields of a section. ok is false when
// none were answered.
func sectionSum(schema form.Schema, sectionID string, data map[string]any) (int, bool) {
	sec, found := schema.Section(sectionID)
	if !found {
		return 0, false
	}
	answered := lo.Filter(sec.Fields, func(f form.Field, _ int) bool {
		_, ok := intValue(data[f.ID])
		return f.Type == form.FieldScale && ok
	})
	if len(answered) == 0 {
		return 0, false
	}
	return lo.SumBy(answered, func(f form.Field) int {
		v, _ := intValue(data[f.ID])
		return v
	}), true
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(math.Round(n)), true
	case int:
		return n, true
	}
	return 0, false
}

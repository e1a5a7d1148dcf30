package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rehab/clinic/internal/platform/fieldmap"
)

// ErrUnknownField is returned when a sort or filter names a field outside the
// mapping's whitelist.
var ErrUnknownField = errors.New("unknown field")

// SortSpec represents a single sort directive.
type SortSpec struct {
	Field      string
	Descending bool
}

// ParseSort parses a sort expression.
// Format: "-createdAt,lastName" means created_at DESC, last_name ASC.
func ParseSort(sortParam string) []SortSpec {
	if sortParam == "" {
		return nil
	}

	parts := strings.Split(sortParam, ",")
	specs := make([]SortSpec, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		spec := SortSpec{}
		if strings.HasPrefix(part, "-") {
			spec.Descending = true
			spec.Field = part[1:]
		} else {
			spec.Field = strings.TrimPrefix(part, "+")
		}

		if spec.Field != "" {
			specs = append(specs, spec)
		}
	}

	return specs
}

// OrderClause renders " ORDER BY ..." for the given sort expression. Fields are
// resolved through the mapping; an unknown field is an error. defaultOrder is
// used when the expression is empty. "id" is appended as a tiebreaker so that
// paging is stable.
func OrderClause(sortParam string, m *fieldmap.Mapping, defaultOrder string) (string, error) {
	specs := ParseSort(sortParam)
	if len(specs) == 0 {
		if defaultOrder == "" {
			return "", nil
		}
		return " ORDER BY " + defaultOrder, nil
	}

	parts := make([]string, 0, len(specs)+1)
	hasID := false
	for _, spec := range specs {
		col, ok := m.Resolve(spec.Field)
		if !ok {
			return "", fmt.Errorf("sort by %q: %w", spec.Field, ErrUnknownField)
		}
		if col == "id" {
			hasID = true
		}

		dir := "ASC"
		if spec.Descending {
			dir = "DESC NULLS LAST"
		}
		parts = append(parts, fmt.Sprintf("%s %s", col, dir))
	}
	if !hasID {
		parts = append(parts, "id ASC")
	}

	return " ORDER BY " + strings.Join(parts, ", "), nil
}

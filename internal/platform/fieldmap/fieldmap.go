// Package fieldmap converts between API field names (camelCase) and database
// column names (snake_case).
package fieldmap

import (
	"sort"
	"strings"
	"unicode"
)

// ToSnake converts a camelCase or PascalCase identifier to snake_case.
// Runs of capitals are treated as one word: "clientID" -> "client_id",
// "HTTPStatus" -> "http_status".
func ToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)

	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamel converts snake_case to camelCase. Empty segments are dropped.
func ToCamel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.Grow(len(s))

	first := true
	for _, p := range parts {
		if p == "" {
			continue
		}
		if first {
			b.WriteString(strings.ToLower(p[:1]) + p[1:])
			first = false
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// Mapping is a bidirectional field/column table. Fields without an override
// fall back to ToSnake and ToCamel.
type Mapping struct {
	toColumn map[string]string
	toField  map[string]string
	allowed  map[string]struct{}
	order    []string
}

// NewMapping builds a Mapping from field -> column overrides.
func NewMapping(overrides map[string]string) *Mapping {
	m := &Mapping{
		toColumn: make(map[string]string, len(overrides)),
		toField:  make(map[string]string, len(overrides)),
		allowed:  make(map[string]struct{}),
	}
	for field, col := range overrides {
		m.toColumn[field] = col
		m.toField[col] = field
	}
	return m
}

// Allow registers the fields that Resolve and Columns accept, in column order.
func (m *Mapping) Allow(fields ...string) *Mapping {
	for _, f := range fields {
		if _, ok := m.allowed[f]; ok {
			continue
		}
		m.allowed[f] = struct{}{}
		m.order = append(m.order, f)
	}
	return m
}

// Column returns the column for an API field.
func (m *Mapping) Column(field string) string {
	if col, ok := m.toColumn[field]; ok {
		return col
	}
	return ToSnake(field)
}

// Field returns the API field for a column.
func (m *Mapping) Field(column string) string {
	if f, ok := m.toField[column]; ok {
		return f
	}
	return ToCamel(column)
}

// Resolve returns the column for field if it is allowed. field may be given in
// either camelCase or snake_case.
func (m *Mapping) Resolve(field string) (string, bool) {
	if field == "" {
		return "", false
	}
	canonical := field
	if strings.Contains(field, "_") {
		canonical = m.Field(field)
	}
	if _, ok := m.allowed[canonical]; !ok {
		return "", false
	}
	return m.Column(canonical), true
}

// Columns lists the columns of all allowed fields in registration order.
func (m *Mapping) Columns() []string {
	cols := make([]string, len(m.order))
	for i, f := range m.order {
		cols[i] = m.Column(f)
	}
	return cols
}

// SelectList is Columns joined for a SELECT, each prefixed with alias when set.
func (m *Mapping) SelectList(alias string) string {
	cols := m.Columns()
	if alias != "" {
		for i, c := range cols {
			cols[i] = alias + "." + c
		}
	}
	return strings.Join(cols, ", ")
}

// KeysToSnake converts map keys to columns. Values are not touched.
func (m *Mapping) KeysToSnake(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[m.Column(k)] = v
	}
	return out
}

// KeysToCamel converts map keys to API fields. Values are not touched.
func (m *Mapping) KeysToCamel(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[m.Field(k)] = v
	}
	return out
}

// SortedKeys returns the keys of m in lexical order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var defaultMapping = NewMapping(nil)

// KeysToSnake converts map keys using plain case conversion.
func KeysToSnake(in map[string]any) map[string]any { return defaultMapping.KeysToSnake(in) }

// KeysToCamel converts map keys using plain case conversion.
func KeysToCamel(in map[string]any) map[string]any { return defaultMapping.KeysToCamel(in) }

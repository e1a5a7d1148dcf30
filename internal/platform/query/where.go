// Package query builds the parameterised WHERE and ORDER BY fragments shared
// by the list queries of every repository.
package query

import (
	"fmt"
	"strings"
)

// Where accumulates AND-ed conditions with positional placeholders.
// The same Where renders both the COUNT query and the page query.
type Where struct {
	conds []string
	args  []interface{}
}

// Eq adds "col = $n". Empty string values are skipped.
func (w *Where) Eq(col string, val interface{}) *Where {
	if s, ok := val.(string); ok && s == "" {
		return w
	}
	w.args = append(w.args, val)
	w.conds = append(w.conds, fmt.Sprintf("%s = $%d", col, len(w.args)))
	return w
}

// In adds "col = ANY($n)". An empty slice is skipped.
func (w *Where) In(col string, vals []string) *Where {
	if len(vals) == 0 {
		return w
	}
	w.args = append(w.args, vals)
	w.conds = append(w.conds, fmt.Sprintf("%s = ANY($%d)", col, len(w.args)))
	return w
}

// Search adds a case-insensitive substring match over one or more columns
// using a single placeholder. An empty term is skipped.
func (w *Where) Search(term string, cols ...string) *Where {
	term = strings.TrimSpace(term)
	if term == "" || len(cols) == 0 {
		return w
	}
	w.args = append(w.args, term)
	n := len(w.args)
	ors := make([]string, len(cols))
	for i, c := range cols {
		ors[i] = fmt.Sprintf("%s ILIKE '%%' || $%d || '%%'", c, n)
	}
	if len(ors) == 1 {
		w.conds = append(w.conds, ors[0])
	} else {
		w.conds = append(w.conds, "("+strings.Join(ors, " OR ")+")")
	}
	return w
}

// IsNull adds "col IS NULL".
func (w *Where) IsNull(col string) *Where {
	w.conds = append(w.conds, col+" IS NULL")
	return w
}

// SQL renders " WHERE ..." or an empty string when there are no conditions.
func (w *Where) SQL() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// Args returns the accumulated arguments.
func (w *Where) Args() []interface{} {
	return w.args
}

// Next is the index of the next free placeholder.
func (w *Where) Next() int {
	return len(w.args) + 1
}

// Page renders " LIMIT $n OFFSET $n+1" and returns the args with limit and
// offset appended. The receiver's args are not modified.
func (w *Where) Page(limit, offset int) (string, []interface{}) {
	n := w.Next()
	args := make([]interface{}, 0, len(w.args)+2)
	args = append(args, w.args...)
	args = append(args, limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n, n+1), args
}

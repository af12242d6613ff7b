package db

import (
	"strconv"
	"strings"
)

// Filter accumulates WHERE predicates with positional parameters. Clauses are
// written with "?" and rewritten to $n; values are always bound, never inlined.
type Filter struct {
	clauses []string
	args    []any
}

// Add appends clause, binding every "?" in it to arg.
func (f *Filter) Add(clause string, arg any) {
	f.clauses = append(f.clauses, strings.ReplaceAll(clause, "?", f.Bind(arg)))
}

// AddRaw appends a clause that takes no parameters.
func (f *Filter) AddRaw(clause string) {
	f.clauses = append(f.clauses, clause)
}

// Bind registers arg and returns its placeholder.
func (f *Filter) Bind(arg any) string {
	f.args = append(f.args, arg)
	return "$" + strconv.Itoa(len(f.args))
}

// Where renders " WHERE a AND b", or "" when empty.
func (f *Filter) Where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// Args returns the bound values in placeholder order.
func (f *Filter) Args() []any {
	return f.args
}

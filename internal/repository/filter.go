package repository

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/noah-isme/civic-workflow-api/internal/models"
)

// ErrUnknownColumn is returned when a predicate names a column the repository does not expose.
var ErrUnknownColumn = errors.New("unknown filter column")

type predicateKind int

const (
	kindEq predicateKind = iota
	kindLike
	kindIn
	kindAnyOf
	kindIsNull
)

// Predicate is a single structured condition. Values are always bound as parameters.
type Predicate struct {
	kind   predicateKind
	column string
	value  interface{}
	values []string
	any    []Predicate
}

// Eq matches rows whose column equals value.
func Eq(column string, value interface{}) Predicate {
	return Predicate{kind: kindEq, column: column, value: value}
}

// Like matches rows whose column contains term, case-insensitively.
func Like(column, term string) Predicate {
	return Predicate{kind: kindLike, column: column, value: term}
}

// In matches rows whose column is one of values. An empty list matches nothing.
func In(column string, values []string) Predicate {
	return Predicate{kind: kindIn, column: column, values: values}
}

// IsNull matches rows whose column is NULL.
func IsNull(column string) Predicate {
	return Predicate{kind: kindIsNull, column: column}
}

// AnyOf matches rows satisfying at least one of preds. An empty group matches nothing.
func AnyOf(preds ...Predicate) Predicate {
	return Predicate{kind: kindAnyOf, any: preds}
}

// Search builds an AnyOf group of Like predicates over columns. A blank term yields no predicate.
func Search(term string, columns ...string) []Predicate {
	term = strings.TrimSpace(term)
	if term == "" || len(columns) == 0 {
		return nil
	}
	group := make([]Predicate, len(columns))
	for i, col := range columns {
		group[i] = Like(col, term)
	}
	return []Predicate{AnyOf(group...)}
}

// Filter is a conjunction of predicates.
type Filter []Predicate

// Where builds a filter from predicates.
func Where(preds ...Predicate) Filter {
	return Filter(preds)
}

// And returns a new filter with extra predicates appended.
func (f Filter) And(preds ...Predicate) Filter {
	out := make(Filter, 0, len(f)+len(preds))
	out = append(out, f...)
	return append(out, preds...)
}

// Columns maps the logical column names a repository accepts to SQL expressions.
type Columns map[string]string

// clause renders the filter as a WHERE body. args already bound by the caller are extended.
func (f Filter) clause(cols Columns, args []interface{}) (string, []interface{}, error) {
	if len(f) == 0 {
		return "TRUE", args, nil
	}
	parts := make([]string, 0, len(f))
	for _, p := range f {
		sql, next, err := p.render(cols, args)
		if err != nil {
			return "", nil, err
		}
		args = next
		parts = append(parts, sql)
	}
	return strings.Join(parts, " AND "), args, nil
}

func (p Predicate) render(cols Columns, args []interface{}) (string, []interface{}, error) {
	if p.kind == kindAnyOf {
		if len(p.any) == 0 {
			return "FALSE", args, nil
		}
		parts := make([]string, 0, len(p.any))
		for _, sub := range p.any {
			sql, next, err := sub.render(cols, args)
			if err != nil {
				return "", nil, err
			}
			args = next
			parts = append(parts, sql)
		}
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	}

	expr, ok := cols[p.column]
	if !ok {
		return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, p.column)
	}

	switch p.kind {
	case kindEq:
		args = append(args, p.value)
		return fmt.Sprintf("%s = $%d", expr, len(args)), args, nil
	case kindLike:
		args = append(args, "%"+escapeLike(fmt.Sprint(p.value))+"%")
		return fmt.Sprintf("%s ILIKE $%d", expr, len(args)), args, nil
	case kindIn:
		if len(p.values) == 0 {
			return "FALSE", args, nil
		}
		args = append(args, pq.Array(p.values))
		return fmt.Sprintf("%s = ANY($%d)", expr, len(args)), args, nil
	case kindIsNull:
		return expr + " IS NULL", args, nil
	default:
		return "", nil, fmt.Errorf("unsupported predicate kind %d", p.kind)
	}
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// assignments renders a SET list for changes restricted to settable fields, in stable order.
func assignments(settable map[models.Field]string, changes models.Changes, args []interface{}) (string, []interface{}, error) {
	fields := make([]models.Field, 0, len(changes))
	for f := range changes {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })

	parts := make([]string, 0, len(fields)+1)
	for _, f := range fields {
		col, ok := settable[f]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownColumn, f)
		}
		args = append(args, changes[f])
		parts = append(parts, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return strings.Join(parts, ", "), args, nil
}

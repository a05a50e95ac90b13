package query

import (
	"reflect"
	"strconv"
	"strings"
)

// condition renders one WHERE predicate. bind records an argument and returns
// its positional placeholder.
type condition func(bind func(arg any) string) string

// SortField is one ORDER BY term. Field is a view name resolved through the
// projection.
type SortField struct {
	Field      string
	Descending bool
}

// Builder assembles parameterized SELECT statements over a ProjectionMap.
// Conditions are ANDed in the order they are added and placeholders are
// numbered at build time.
type Builder struct {
	projection  *ProjectionMap
	conditions  []condition
	sort        []SortField
	defaultSort []SortField
	lock        bool
}

// NewBuilder creates a Builder for the given projection with optional default sort fields.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{projection: projection, defaultSort: defaultSort}
}

// ParseSortFields parses a comma-separated sort string such as
// "name,-createdAt". A leading "-" sorts descending. Returns nil for empty input.
func ParseSortFields(s string) []SortField {
	if s == "" {
		return nil
	}

	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: name, Descending: desc})
	}
	return fields
}

// Build returns a SELECT query with the current conditions and ordering.
func (b *Builder) Build() (string, []any) {
	return b.selectSQL(true, "")
}

// BuildCount returns a COUNT(*) query with the current conditions.
func (b *Builder) BuildCount() (string, []any) {
	where, args := b.where()
	return "SELECT COUNT(*) FROM " + b.projection.From() + where, args
}

// BuildPage returns a SELECT query for one page of results.
func (b *Builder) BuildPage(page, pageSize int) (string, []any) {
	offset := (page - 1) * pageSize
	return b.selectSQL(true, " LIMIT "+strconv.Itoa(pageSize)+" OFFSET "+strconv.Itoa(offset))
}

// BuildSingle returns a SELECT query for the record whose idField equals id.
// Existing conditions and ordering are ignored.
func (b *Builder) BuildSingle(idField string, id any) (string, []any) {
	single := &Builder{projection: b.projection}
	single.WhereEquals(idField, id)
	return single.selectSQL(false, "")
}

// BuildSingleOrNull returns a SELECT query limited to one row with the current
// conditions. After ForUpdate the row is locked for the enclosing transaction.
func (b *Builder) BuildSingleOrNull() (string, []any) {
	suffix := " LIMIT 1"
	if b.lock {
		suffix += " FOR UPDATE OF " + b.projection.Alias()
	}
	return b.selectSQL(true, suffix)
}

// ForUpdate appends a row lock to BuildSingleOrNull queries.
func (b *Builder) ForUpdate() *Builder {
	b.lock = true
	return b
}

// OrderByFields sets the sort order, overriding default sort fields. Fields
// the projection does not map are dropped, so caller-supplied sort strings
// never reach the SQL text. If none remain the default sort applies.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.sort = b.sort[:0]
	for _, f := range fields {
		if _, ok := b.projection.Lookup(f.Field); ok {
			b.sort = append(b.sort, f)
		}
	}
	return b
}

// WhereEquals adds an equality condition. No-op for nil values.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	if isNil(value) {
		return b
	}
	col := b.projection.Column(field)
	return b.add(func(bind func(any) string) string {
		return col + " = " + bind(value)
	})
}

// WhereAny adds an OR of equality conditions matching value against each field.
// No-op for nil values or no fields.
func (b *Builder) WhereAny(value any, fields ...string) *Builder {
	if isNil(value) || len(fields) == 0 {
		return b
	}
	return b.add(func(bind func(any) string) string {
		terms := make([]string, len(fields))
		for i, f := range fields {
			terms[i] = b.projection.Column(f) + " = " + bind(value)
		}
		return "(" + strings.Join(terms, " OR ") + ")"
	})
}

// WhereIn adds an IN condition for multiple values. No-op for empty slices.
func (b *Builder) WhereIn(field string, values []any) *Builder {
	if len(values) == 0 {
		return b
	}
	col := b.projection.Column(field)
	return b.add(func(bind func(any) string) string {
		params := make([]string, len(values))
		for i, v := range values {
			params[i] = bind(v)
		}
		return col + " IN (" + strings.Join(params, ", ") + ")"
	})
}

// WhereRange bounds field to the half-open interval [from, to). Either bound
// may be nil.
func (b *Builder) WhereRange(field string, from, to any) *Builder {
	col := b.projection.Column(field)
	if !isNil(from) {
		b.add(func(bind func(any) string) string { return col + " >= " + bind(from) })
	}
	if !isNil(to) {
		b.add(func(bind func(any) string) string { return col + " < " + bind(to) })
	}
	return b
}

// WhereSearch adds a case-insensitive substring match across fields, ORed
// together. No-op for nil or empty search.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}
	pattern := "%" + *search + "%"
	return b.add(func(bind func(any) string) string {
		terms := make([]string, len(fields))
		for i, f := range fields {
			terms[i] = b.projection.Column(f) + " ILIKE " + bind(pattern)
		}
		return "(" + strings.Join(terms, " OR ") + ")"
	})
}

func (b *Builder) add(c condition) *Builder {
	b.conditions = append(b.conditions, c)
	return b
}

func (b *Builder) selectSQL(ordered bool, suffix string) (string, []any) {
	where, args := b.where()

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.projection.Columns())
	sb.WriteString(" FROM ")
	sb.WriteString(b.projection.From())
	sb.WriteString(where)
	if ordered {
		sb.WriteString(b.orderBy())
	}
	sb.WriteString(suffix)
	return sb.String(), args
}

func (b *Builder) orderBy() string {
	fields := b.sort
	if len(fields) == 0 {
		fields = b.defaultSort
	}
	if len(fields) == 0 {
		return ""
	}

	terms := make([]string, len(fields))
	for i, f := range fields {
		dir := " ASC"
		if f.Descending {
			dir = " DESC"
		}
		terms[i] = b.projection.Column(f.Field) + dir
	}
	return " ORDER BY " + strings.Join(terms, ", ")
}

func (b *Builder) where() (string, []any) {
	if len(b.conditions) == 0 {
		return "", nil
	}

	var args []any
	bind := func(arg any) string {
		args = append(args, arg)
		return "$" + strconv.Itoa(len(args))
	}

	clauses := make([]string, len(b.conditions))
	for i, c := range b.conditions {
		clauses[i] = c(bind)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func isNil(value any) bool {
	if value == nil {
		return true
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

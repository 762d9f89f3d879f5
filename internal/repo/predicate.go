package repo

import (
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Column is a searchable books column. Values can only come from the
// variables below, so column names never carry request input.
type Column struct {
	name string
}

var (
	ColumnTitle  = Column{name: "title"}
	ColumnAuthor = Column{name: "author"}
	ColumnGenre  = Column{name: "genre"}
)

// Predicate is one SQL condition with its bound arguments.
type Predicate struct {
	SQL  string
	Args []interface{}
}

// Filter accumulates predicates that are ANDed together. The zero value
// matches every row.
type Filter struct {
	predicates []Predicate
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// Contains matches rows whose column contains value, ignoring case.
// An empty value adds nothing.
func (f *Filter) Contains(col Column, value string) *Filter {
	value = strings.TrimSpace(value)
	if value == "" {
		return f
	}
	return f.add(Predicate{
		SQL:  "LOWER(" + col.name + `) LIKE ? ESCAPE '\'`,
		Args: []interface{}{likePattern(value)},
	})
}

// AnyContains matches rows where at least one of the columns contains value.
func (f *Filter) AnyContains(value string, cols ...Column) *Filter {
	value = strings.TrimSpace(value)
	if value == "" || len(cols) == 0 {
		return f
	}
	pattern := likePattern(value)
	clauses := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, col := range cols {
		clauses[i] = "LOWER(" + col.name + `) LIKE ? ESCAPE '\'`
		args[i] = pattern
	}
	return f.add(Predicate{
		SQL:  "(" + strings.Join(clauses, " OR ") + ")",
		Args: args,
	})
}

// HasElement matches rows whose comma-separated column holds value as one
// of its elements, ignoring case.
func (f *Filter) HasElement(col Column, value string) *Filter {
	value = strings.TrimSpace(value)
	if value == "" {
		return f
	}
	return f.add(Predicate{
		SQL:  "(',' || REPLACE(LOWER(" + col.name + "), ', ', ',') || ',') LIKE ? ESCAPE '\\'",
		Args: []interface{}{"%," + escapeLike(strings.ToLower(value)) + ",%"},
	})
}

// MinPrice keeps rows priced at or above min.
func (f *Filter) MinPrice(min decimal.Decimal) *Filter {
	return f.add(Predicate{SQL: "price >= ?", Args: []interface{}{min}})
}

// MaxPrice keeps rows priced at or below max.
func (f *Filter) MaxPrice(max decimal.Decimal) *Filter {
	return f.add(Predicate{SQL: "price <= ?", Args: []interface{}{max}})
}

// Predicates returns a copy of the accumulated predicates.
func (f *Filter) Predicates() []Predicate {
	out := make([]Predicate, len(f.predicates))
	copy(out, f.predicates)
	return out
}

// Len is the number of predicates.
func (f *Filter) Len() int {
	return len(f.predicates)
}

func (f *Filter) add(p Predicate) *Filter {
	f.predicates = append(f.predicates, p)
	return f
}

func (f *Filter) apply(query *gorm.DB) *gorm.DB {
	if f == nil {
		return query
	}
	for _, p := range f.predicates {
		query = query.Where(p.SQL, p.Args...)
	}
	return query
}

func likePattern(value string) string {
	return "%" + escapeLike(strings.ToLower(value)) + "%"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

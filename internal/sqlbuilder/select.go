package sqlbuilder

import (
	"fmt"
	"strings"

	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// validOps is the allowlist of comparison operators for WHERE clauses.
// The operator position cannot be parameterized, so anything else is rejected.
var validOps = map[string]bool{
	"=":     true,
	"!=":    true,
	"<>":    true,
	"<":     true,
	">":     true,
	"<=":    true,
	">=":    true,
	"LIKE":  true,
	"ILIKE": true,
}

// SelectBuilder constructs a parameterized SELECT using a fluent API.
//
// Usage:
//
//	sql, params, err := sqlbuilder.Select("users").
//	    Columns("id", "name", "email").
//	    Where("active", "=", true).
//	    OrderBy("created_at", sqlbuilder.Desc).
//	    Limit(20).
//	    Offset(40).
//	    Build()
type SelectBuilder struct {
	table   string
	columns []string
	where   []whereClause
	orderBy []orderClause
	limit   *int
	offset  *int
}

// SortDirection controls the ORDER BY direction.
type SortDirection bool

const (
	Asc  SortDirection = false
	Desc SortDirection = true
)

type whereClause struct {
	column string
	op     string
	value  any
	isNull *bool
}

type orderClause struct {
	column string
	dir    SortDirection
}

// Select starts a new SelectBuilder for the given table.
func Select(table string) *SelectBuilder {
	return &SelectBuilder{table: table}
}

// Columns restricts the SELECT to the specified columns.
// If not called, SELECT * is used.
func (b *SelectBuilder) Columns(cols ...string) *SelectBuilder {
	b.columns = cols
	return b
}

// Where adds a condition; multiple calls are combined with AND.
func (b *SelectBuilder) Where(column, op string, value any) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, op: op, value: value})
	return b
}

// WhereNull adds "column IS NULL", or "IS NOT NULL" when null is false.
func (b *SelectBuilder) WhereNull(column string, null bool) *SelectBuilder {
	b.where = append(b.where, whereClause{column: column, isNull: &null})
	return b
}

// OrderBy appends an ORDER BY clause for the given column and direction.
func (b *SelectBuilder) OrderBy(column string, dir SortDirection) *SelectBuilder {
	b.orderBy = append(b.orderBy, orderClause{column, dir})
	return b
}

// Limit sets the maximum number of rows to return.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *SelectBuilder) Offset(n int) *SelectBuilder {
	b.offset = &n
	return b
}

// Build produces the SQL string and its text parameters.
func (b *SelectBuilder) Build() (string, []types.Param, error) {
	if err := checkIdent(b.table); err != nil {
		return "", nil, err
	}

	cols := "*"
	if len(b.columns) > 0 {
		for _, c := range b.columns {
			if err := checkIdent(c); err != nil {
				return "", nil, err
			}
		}
		cols = strings.Join(b.columns, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(cols)
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)

	var params []types.Param

	// --- WHERE ---
	if len(b.where) > 0 {
		parts := make([]string, 0, len(b.where))
		for _, w := range b.where {
			if err := checkIdent(w.column); err != nil {
				return "", nil, err
			}
			if w.isNull != nil {
				if *w.isNull {
					parts = append(parts, w.column+" IS NULL")
				} else {
					parts = append(parts, w.column+" IS NOT NULL")
				}
				continue
			}
			op := strings.ToUpper(w.op)
			if !validOps[op] {
				return "", nil, errs.Newf(errs.ErrKindInvalidInput, "unsupported WHERE operator: %q", w.op)
			}
			p, err := types.EncodeAny(w.value)
			if err != nil {
				return "", nil, fmt.Errorf("where %s: %w", w.column, err)
			}
			params = append(params, p)
			parts = append(parts, fmt.Sprintf("%s %s %s", w.column, op, placeholder(len(params))))
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(parts, " AND "))
	}

	// --- ORDER BY ---
	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			if err := checkIdent(o.column); err != nil {
				return "", nil, err
			}
			dir := "ASC"
			if o.dir == Desc {
				dir = "DESC"
			}
			parts[i] = o.column + " " + dir
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(parts, ", "))
	}

	// --- LIMIT / OFFSET ---
	if b.limit != nil {
		params = append(params, types.TextParam(fmt.Sprint(*b.limit)))
		sb.WriteString(" LIMIT " + placeholder(len(params)))
	}
	if b.offset != nil {
		params = append(params, types.TextParam(fmt.Sprint(*b.offset)))
		sb.WriteString(" OFFSET " + placeholder(len(params)))
	}

	return sb.String(), params, nil
}

func checkIdent(name string) error {
	if !entity.IsSafeIdentifier(name) {
		return errs.Newf(errs.ErrKindInvalidInput, "invalid identifier %q", name)
	}
	return nil
}

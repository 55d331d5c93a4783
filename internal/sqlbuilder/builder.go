// Package sqlbuilder generates parameterized PostgreSQL statements from
// entity metadata. Values never appear in SQL text; they are returned as
// ordered parameter lists matching the $n placeholders.
package sqlbuilder

import (
	"strconv"
	"strings"

	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// Builder produces the CRUD statements for one entity type.
// It holds no mutable state and is safe for concurrent use.
type Builder[T any] struct {
	meta *entity.Metadata[T]
}

func New[T any](meta *entity.Metadata[T]) *Builder[T] {
	return &Builder[T]{meta: meta}
}

func (b *Builder[T]) Metadata() *entity.Metadata[T] { return b.meta }

// InsertSQL returns INSERT … RETURNING *. AutoIncrement columns are skipped
// unless includeAuto is set.
func (b *Builder[T]) InsertSQL(includeAuto bool) string {
	cols := b.insertColumns(includeAuto)

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(b.meta.TableName())
	if len(cols) == 0 {
		sb.WriteString(" DEFAULT VALUES RETURNING *")
		return sb.String()
	}

	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
		marks[i] = placeholder(i + 1)
	}
	sb.WriteString(" (")
	sb.WriteString(strings.Join(names, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(strings.Join(marks, ", "))
	sb.WriteString(") RETURNING *")
	return sb.String()
}

// InsertParams renders e in the column order of InsertSQL(includeAuto).
func (b *Builder[T]) InsertParams(e *T, includeAuto bool) []types.Param {
	cols := b.insertColumns(includeAuto)
	params := make([]types.Param, len(cols))
	for i, c := range cols {
		params[i] = c.Encode(e)
	}
	return params
}

func (b *Builder[T]) insertColumns(includeAuto bool) []entity.Column[T] {
	var cols []entity.Column[T]
	for _, c := range b.meta.Columns() {
		if c.IsAutoIncrement() && !includeAuto {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func (b *Builder[T]) SelectAllSQL() string {
	return "SELECT * FROM " + b.meta.TableName()
}

func (b *Builder[T]) CountSQL() string {
	return "SELECT COUNT(*) FROM " + b.meta.TableName()
}

// SelectByIDSQL returns SELECT * … WHERE k1 = $1 AND k2 = $2 ….
func (b *Builder[T]) SelectByIDSQL() (string, error) {
	where, err := b.keyClause(1, "select by id")
	if err != nil {
		return "", err
	}
	return "SELECT * FROM " + b.meta.TableName() + " WHERE " + where, nil
}

// ExistsByIDSQL returns SELECT 1 … WHERE <key> LIMIT 1.
func (b *Builder[T]) ExistsByIDSQL() (string, error) {
	where, err := b.keyClause(1, "exists by id")
	if err != nil {
		return "", err
	}
	return "SELECT 1 FROM " + b.meta.TableName() + " WHERE " + where + " LIMIT 1", nil
}

// DeleteSQL returns DELETE … WHERE <key>.
func (b *Builder[T]) DeleteSQL() (string, error) {
	where, err := b.keyClause(1, "delete")
	if err != nil {
		return "", err
	}
	return "DELETE FROM " + b.meta.TableName() + " WHERE " + where, nil
}

// UpdateSQL returns UPDATE … SET <non-key columns> WHERE <key> RETURNING *.
// Key placeholders continue after the SET placeholders.
func (b *Builder[T]) UpdateSQL() (string, error) {
	if err := b.meta.RequirePrimaryKey("update"); err != nil {
		return "", err
	}
	set := b.setColumns()
	if len(set) == 0 {
		return "", errs.Newf(errs.ErrKindConfiguration,
			"update requires a non-key column but entity %s has only key columns", b.meta.TableName())
	}

	assignments := make([]string, len(set))
	for i, c := range set {
		assignments[i] = c.Name + " = " + placeholder(i+1)
	}
	where, err := b.keyClause(len(set)+1, "update")
	if err != nil {
		return "", err
	}
	return "UPDATE " + b.meta.TableName() +
		" SET " + strings.Join(assignments, ", ") +
		" WHERE " + where + " RETURNING *", nil
}

// UpdateParams renders the SET values of e followed by its key values.
func (b *Builder[T]) UpdateParams(e *T) ([]types.Param, error) {
	keys, err := b.meta.EntityKeyParams(e)
	if err != nil {
		return nil, err
	}
	set := b.setColumns()
	params := make([]types.Param, 0, len(set)+len(keys))
	for _, c := range set {
		params = append(params, c.Encode(e))
	}
	return append(params, keys...), nil
}

// KeyParams validates and renders a caller-supplied key.
func (b *Builder[T]) KeyParams(k entity.Key) ([]types.Param, error) {
	return b.meta.KeyParams(k)
}

// EntityKeyParams renders the key fields of e.
func (b *Builder[T]) EntityKeyParams(e *T) ([]types.Param, error) {
	return b.meta.EntityKeyParams(e)
}

// Select starts a fluent query against the entity's table.
func (b *Builder[T]) Select() *SelectBuilder {
	return Select(b.meta.TableName())
}

func (b *Builder[T]) setColumns() []entity.Column[T] {
	var cols []entity.Column[T]
	for _, c := range b.meta.Columns() {
		if !c.IsPrimaryKey() {
			cols = append(cols, c)
		}
	}
	return cols
}

// keyClause conjoins every key column, numbering placeholders from start.
func (b *Builder[T]) keyClause(start int, op string) (string, error) {
	if err := b.meta.RequirePrimaryKey(op); err != nil {
		return "", err
	}
	keys := b.meta.PrimaryKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k.Name + " = " + placeholder(start+i)
	}
	return strings.Join(parts, " AND "), nil
}

func placeholder(idx int) string {
	return "$" + strconv.Itoa(idx)
}

// Package entity holds the per-record-type mapping contract: the table name,
// the ordered column descriptors and the primary-key subset.
//
// Usage:
//
//	var users = entity.MustDefine("users",
//	    entity.Field("ID", "id", func(u *User) *int32 { return &u.ID }, types.Int32,
//	        entity.PrimaryKey, entity.AutoIncrement),
//	    entity.Field("Name", "name", func(u *User) *string { return &u.Name }, types.Varchar).WithLength(100),
//	    entity.NullField("Email", "email", func(u *User) *types.Null[string] { return &u.Email }, types.Text),
//	)
package entity

import (
	"fmt"

	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// Table is the type-erased view of Metadata used by the schema validator.
type Table interface {
	TableName() string
	ColumnInfos() []ColumnInfo
}

// Metadata is the immutable mapping of T onto a table.
type Metadata[T any] struct {
	table   string
	columns []Column[T]
	keys    []int
	byName  map[string]int
}

// Define validates the descriptors and returns the metadata for T.
func Define[T any](table string, columns ...Column[T]) (*Metadata[T], error) {
	if !isSafeIdentifier(table) {
		return nil, errs.Newf(errs.ErrKindConfiguration, "invalid table name %q", table)
	}
	if hasUpper(table) {
		return nil, errs.Newf(errs.ErrKindConfiguration, "table name %q must be lower case", table)
	}
	if len(columns) == 0 {
		return nil, errs.Newf(errs.ErrKindConfiguration, "entity %s declares no columns", table)
	}

	m := &Metadata[T]{
		table:   table,
		columns: make([]Column[T], len(columns)),
		byName:  make(map[string]int, len(columns)),
	}
	copy(m.columns, columns)

	for i, c := range m.columns {
		if !isSafeIdentifier(c.Name) || containsDot(c.Name) {
			return nil, errs.Newf(errs.ErrKindConfiguration, "entity %s: invalid column name %q", table, c.Name)
		}
		if hasUpper(c.Name) {
			return nil, errs.Newf(errs.ErrKindConfiguration, "entity %s: column name %q must be lower case", table, c.Name)
		}
		if c.encode == nil || c.decode == nil {
			return nil, errs.Newf(errs.ErrKindConfiguration, "entity %s: column %s has no accessor", table, c.Name)
		}
		if _, dup := m.byName[c.Name]; dup {
			return nil, errs.Newf(errs.ErrKindConfiguration, "entity %s: duplicate column %s", table, c.Name)
		}
		m.byName[c.Name] = i
		if c.IsPrimaryKey() {
			m.keys = append(m.keys, i)
		}
	}
	return m, nil
}

// MustDefine is Define for package-level declarations; it panics on error.
func MustDefine[T any](table string, columns ...Column[T]) *Metadata[T] {
	m, err := Define(table, columns...)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metadata[T]) TableName() string { return m.table }

// Columns returns the descriptors in declaration order.
func (m *Metadata[T]) Columns() []Column[T] { return m.columns }

// Column looks a descriptor up by column name.
func (m *Metadata[T]) Column(name string) (Column[T], bool) {
	i, ok := m.byName[name]
	if !ok {
		return Column[T]{}, false
	}
	return m.columns[i], true
}

// HasColumn reports whether name is a mapped column.
func (m *Metadata[T]) HasColumn(name string) bool {
	_, ok := m.byName[name]
	return ok
}

// PrimaryKeys returns the key descriptors in declaration order.
func (m *Metadata[T]) PrimaryKeys() []Column[T] {
	keys := make([]Column[T], len(m.keys))
	for i, k := range m.keys {
		keys[i] = m.columns[k]
	}
	return keys
}

func (m *Metadata[T]) HasPrimaryKey() bool { return len(m.keys) > 0 }

func (m *Metadata[T]) ColumnInfos() []ColumnInfo {
	infos := make([]ColumnInfo, len(m.columns))
	for i, c := range m.columns {
		infos[i] = c.Info()
	}
	return infos
}

// RequirePrimaryKey fails with a configuration error when T has no key.
func (m *Metadata[T]) RequirePrimaryKey(op string) error {
	if !m.HasPrimaryKey() {
		return errs.Newf(errs.ErrKindConfiguration, "%s requires a primary key but entity %s declares none", op, m.table)
	}
	return nil
}

// Key is an ordered tuple of primary-key values in declaration order.
type Key []any

// KeyOf builds a Key from positional values.
func KeyOf(values ...any) Key { return Key(values) }

// NormalizeKey accepts either a single Key or positional values and
// returns the canonical tuple.
func NormalizeKey(values []any) Key {
	if len(values) == 1 {
		if k, ok := values[0].(Key); ok {
			return k
		}
	}
	return Key(values)
}

// KeyParams validates k against the key columns and renders it.
func (m *Metadata[T]) KeyParams(k Key) ([]types.Param, error) {
	if err := m.RequirePrimaryKey("lookup by id"); err != nil {
		return nil, err
	}
	if len(k) != len(m.keys) {
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"entity %s: expected %d key value(s), got %d", m.table, len(m.keys), len(k))
	}
	params := make([]types.Param, len(k))
	for i, idx := range m.keys {
		col := m.columns[idx]
		p, err := col.EncodeKey(k[i])
		if err != nil {
			return nil, fmt.Errorf("key column %s: %w", col.Name, err)
		}
		if !p.Valid {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "key column %s: value is NULL", col.Name)
		}
		params[i] = p
	}
	return params, nil
}

// EntityKeyParams renders the key fields of e. A NULL key field is rejected
// since "WHERE k = NULL" matches no row.
func (m *Metadata[T]) EntityKeyParams(e *T) ([]types.Param, error) {
	if err := m.RequirePrimaryKey("lookup by entity"); err != nil {
		return nil, err
	}
	params := make([]types.Param, len(m.keys))
	for i, idx := range m.keys {
		col := m.columns[idx]
		p := col.Encode(e)
		if !p.Valid {
			return nil, errs.Newf(errs.ErrKindInvalidInput, "key column %s: value is NULL", col.Name)
		}
		params[i] = p
	}
	return params, nil
}

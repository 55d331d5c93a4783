package entity

import (
	"strings"

	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// Flag marks a column with a constraint the mapper and builder care about.
type Flag uint8

const (
	PrimaryKey Flag = 1 << iota
	AutoIncrement
	NotNull
	Unique
)

// Has reports whether all bits of x are set.
func (f Flag) Has(x Flag) bool { return f&x == x }

func (f Flag) String() string {
	var names []string
	for _, n := range []struct {
		f    Flag
		name string
	}{{PrimaryKey, "primary_key"}, {AutoIncrement, "auto_increment"}, {NotNull, "not_null"}, {Unique, "unique"}} {
		if f.Has(n.f) {
			names = append(names, n.name)
		}
	}
	return strings.Join(names, "|")
}

// Column describes how one field of T maps to one table column.
// Build it with Field or NullField.
type Column[T any] struct {
	Field  string
	Name   string
	Type   types.TypeID
	Flags  Flag
	Length int // declared max length for bounded text, 0 when unbounded

	nullable  bool
	encode    func(*T) types.Param
	decode    func(*T, types.Param) error
	encodeKey func(any) (types.Param, error)
}

// Field declares a non-nullable column backed by a field of type F.
func Field[T, F any](field, column string, ref func(*T) *F, c types.Codec[F], flags ...Flag) Column[T] {
	return Column[T]{
		Field: field,
		Name:  column,
		Type:  c.TypeID(),
		Flags: combine(flags),
		encode: func(e *T) types.Param {
			return types.TextParam(c.Encode(*ref(e)))
		},
		decode: func(e *T, p types.Param) error {
			v, err := c.Decode(p.V)
			if err != nil {
				return err
			}
			*ref(e) = v
			return nil
		},
		encodeKey: keyEncoder(c),
	}
}

// NullField declares a nullable column backed by a types.Null[F] field.
// Adding the NotNull flag keeps the Go-side optional while the column
// itself rejects NULL.
func NullField[T, F any](field, column string, ref func(*T) *types.Null[F], c types.Codec[F], flags ...Flag) Column[T] {
	return Column[T]{
		Field:    field,
		Name:     column,
		Type:     c.TypeID(),
		Flags:    combine(flags),
		nullable: true,
		encode: func(e *T) types.Param {
			return types.EncodeNull(c, *ref(e))
		},
		decode: func(e *T, p types.Param) error {
			v, err := types.DecodeNull(c, p)
			if err != nil {
				return err
			}
			*ref(e) = v
			return nil
		},
		encodeKey: keyEncoder(c),
	}
}

func keyEncoder[F any](c types.Codec[F]) func(any) (types.Param, error) {
	return func(v any) (types.Param, error) {
		switch x := v.(type) {
		case F:
			return types.TextParam(c.Encode(x)), nil
		case types.Null[F]:
			return types.EncodeNull(c, x), nil
		}
		return types.EncodeAny(v)
	}
}

func combine(flags []Flag) Flag {
	var f Flag
	for _, x := range flags {
		f |= x
	}
	return f
}

// WithLength returns a copy of c with a declared max length.
func (c Column[T]) WithLength(n int) Column[T] {
	c.Length = n
	return c
}

// Nullable reports whether the column accepts NULL.
func (c Column[T]) Nullable() bool { return c.nullable && !c.Flags.Has(NotNull) }

func (c Column[T]) IsPrimaryKey() bool    { return c.Flags.Has(PrimaryKey) }
func (c Column[T]) IsAutoIncrement() bool { return c.Flags.Has(AutoIncrement) }

// Encode renders the column's field of e as a parameter.
func (c Column[T]) Encode(e *T) types.Param {
	return c.encode(e)
}

// Decode parses p into the column's field of e.
func (c Column[T]) Decode(e *T, p types.Param) error {
	if !p.Valid && !c.Nullable() {
		return errs.Newf(errs.ErrKindNotNullViolation, "NULL value in non-nullable column: %s", c.Name)
	}
	if err := c.decode(e, p); err != nil {
		return errs.Wrap(errs.ErrKindParse, "column "+c.Name, err)
	}
	return nil
}

// EncodeKey renders a caller-supplied key value for this column.
func (c Column[T]) EncodeKey(v any) (types.Param, error) {
	return c.encodeKey(v)
}

// Info returns the type-erased description of c.
func (c Column[T]) Info() ColumnInfo {
	return ColumnInfo{
		Field:    c.Field,
		Name:     c.Name,
		Type:     c.Type,
		Flags:    c.Flags,
		Nullable: c.Nullable(),
		Length:   c.Length,
	}
}

// ColumnInfo is a column descriptor without the typed accessors,
// for consumers that do not know T.
type ColumnInfo struct {
	Field    string
	Name     string
	Type     types.TypeID
	Flags    Flag
	Nullable bool
	Length   int
}

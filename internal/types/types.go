// Package types converts Go values to and from the PostgreSQL text wire
// format. Every codec is deterministic and its Decode inverts its Encode.
package types

import (
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/koustreak/relmap/internal/errs"
)

// TypeID is a PostgreSQL type OID.
type TypeID uint32

const (
	BoolID        TypeID = pgtype.BoolOID
	Int2ID        TypeID = pgtype.Int2OID
	Int4ID        TypeID = pgtype.Int4OID
	Int8ID        TypeID = pgtype.Int8OID
	Float4ID      TypeID = pgtype.Float4OID
	Float8ID      TypeID = pgtype.Float8OID
	TextID        TypeID = pgtype.TextOID
	VarcharID     TypeID = pgtype.VarcharOID
	DateID        TypeID = pgtype.DateOID
	TimeID        TypeID = pgtype.TimeOID
	TimestampID   TypeID = pgtype.TimestampOID
	TimestampTzID TypeID = pgtype.TimestamptzOID
	NumericID     TypeID = pgtype.NumericOID
	UUIDID        TypeID = pgtype.UUIDOID
	JSONBID       TypeID = pgtype.JSONBOID
)

// Info describes a registered type: its canonical name and the catalog
// spellings (information_schema data_type or udt_name) compatible with it.
type Info struct {
	ID      TypeID
	Name    string
	Aliases []string
}

var registry = map[TypeID]Info{
	BoolID:        {BoolID, "boolean", []string{"boolean", "bool"}},
	Int2ID:        {Int2ID, "smallint", []string{"smallint", "int2"}},
	Int4ID:        {Int4ID, "integer", []string{"integer", "int4", "int"}},
	Int8ID:        {Int8ID, "bigint", []string{"bigint", "int8"}},
	Float4ID:      {Float4ID, "real", []string{"real", "float4"}},
	Float8ID:      {Float8ID, "double precision", []string{"double precision", "float8"}},
	TextID:        {TextID, "text", textAliases},
	VarcharID:     {VarcharID, "character varying", textAliases},
	DateID:        {DateID, "date", []string{"date"}},
	TimeID:        {TimeID, "time without time zone", []string{"time", "time without time zone"}},
	TimestampID:   {TimestampID, "timestamp without time zone", []string{"timestamp", "timestamp without time zone"}},
	TimestampTzID: {TimestampTzID, "timestamp with time zone", []string{"timestamptz", "timestamp with time zone"}},
	NumericID:     {NumericID, "numeric", []string{"numeric", "decimal"}},
	UUIDID:        {UUIDID, "uuid", []string{"uuid"}},
	JSONBID:       {JSONBID, "jsonb", []string{"jsonb"}},
}

var textAliases = []string{"text", "character varying", "varchar", "character", "char", "bpchar"}

// Lookup returns the registry entry for id.
func Lookup(id TypeID) (Info, bool) {
	info, ok := registry[id]
	return info, ok
}

// Name returns the canonical name of id, or "oid <n>" for unregistered ids.
func (id TypeID) Name() string {
	if info, ok := registry[id]; ok {
		return info.Name
	}
	return "oid " + Int64.Encode(int64(id))
}

// Compatible reports whether a catalog type spelling can hold values of id.
// Unregistered ids are compatible with anything.
func Compatible(id TypeID, catalogType string) bool {
	info, ok := registry[id]
	if !ok {
		return true
	}
	return slices.Contains(info.Aliases, strings.ToLower(strings.TrimSpace(catalogType)))
}

// IsCharacterType reports whether a catalog type spelling belongs to the
// bounded character family (varchar / char).
func IsCharacterType(catalogType string) bool {
	switch strings.ToLower(strings.TrimSpace(catalogType)) {
	case "character varying", "varchar", "character", "char", "bpchar":
		return true
	}
	return false
}

// Null is the nullable wrapper: the zero value is NULL.
type Null[T any] struct {
	V     T
	Valid bool
}

// Some wraps a present value.
func Some[T any](v T) Null[T] {
	return Null[T]{V: v, Valid: true}
}

// Get returns the value and whether it is present.
func (n Null[T]) Get() (T, bool) {
	return n.V, n.Valid
}

// Inner returns the wrapped value as any, or nil when NULL.
func (n Null[T]) Inner() (any, bool) {
	if !n.Valid {
		return nil, false
	}
	return n.V, true
}

// Param is a single positional statement parameter in text form.
// An invalid Param is sent as SQL NULL.
type Param = Null[string]

// TextParam returns a non-NULL parameter.
func TextParam(s string) Param {
	return Param{V: s, Valid: true}
}

// Codec converts between a Go type and its text wire form.
type Codec[T any] interface {
	TypeID() TypeID
	Encode(v T) string
	Decode(s string) (T, error)
}

type codec[T any] struct {
	id  TypeID
	enc func(T) string
	dec func(string) (T, error)
}

func (c codec[T]) TypeID() TypeID             { return c.id }
func (c codec[T]) Encode(v T) string          { return c.enc(v) }
func (c codec[T]) Decode(s string) (T, error) { return c.dec(s) }

// NewCodec builds a codec from an encode/decode pair, for types outside the
// built-in set.
func NewCodec[T any](id TypeID, enc func(T) string, dec func(string) (T, error)) Codec[T] {
	return codec[T]{id: id, enc: enc, dec: dec}
}

// EncodeNull renders a nullable value as a parameter.
func EncodeNull[T any](c Codec[T], v Null[T]) Param {
	if !v.Valid {
		return Param{}
	}
	return TextParam(c.Encode(v.V))
}

// DecodeNull parses a nullable cell; NULL yields the empty state.
func DecodeNull[T any](c Codec[T], p Param) (Null[T], error) {
	if !p.Valid {
		return Null[T]{}, nil
	}
	v, err := c.Decode(p.V)
	if err != nil {
		return Null[T]{}, err
	}
	return Some(v), nil
}

func parseErr(typ, s string) error {
	return errs.Newf(errs.ErrKindParse, "invalid %s value %q", typ, s)
}

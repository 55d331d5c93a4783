// Package schema compares declared entity metadata with the live PostgreSQL
// catalog.
//
// Usage:
//
//	v := schema.NewValidator(schema.Strict)
//	res := schema.ValidateEntity[User](ctx, v, conn)
//	if !res.IsValid() {
//	    return res.Err()
//	}
package schema

import (
	"context"
	"fmt"
	"strconv"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/logger"
	"github.com/koustreak/relmap/internal/types"
)

// Validator diffs entity metadata against the catalog. It keeps no state
// between runs and is safe for concurrent use.
type Validator struct {
	mode Mode
	log  *logger.Logger
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used to report findings.
func WithLogger(l *logger.Logger) Option {
	return func(v *Validator) { v.log = l }
}

func NewValidator(mode Mode, opts ...Option) *Validator {
	v := &Validator{mode: mode}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Mode() Mode { return v.mode }

// Validate introspects table on conn and diffs it against the declared columns.
// When conn implements Introspector it is used directly; otherwise the
// information_schema queries of PgIntrospector run over conn.
func (v *Validator) Validate(ctx context.Context, conn database.Conn, table entity.Table) *Result {
	res := &Result{Table: table.TableName()}

	if conn == nil || !conn.IsConnected() {
		res.add(v.mode, Issue{
			Type:    ConnectionError,
			Table:   table.TableName(),
			Message: "not connected to database",
		})
		v.report(ctx, res)
		return res
	}

	introspector, ok := conn.(Introspector)
	if !ok {
		introspector = NewPgIntrospector(conn)
	}

	info, err := introspector.LookupTable(ctx, table.TableName())
	if err != nil {
		res.add(v.mode, Issue{
			Type:    ConnectionError,
			Table:   table.TableName(),
			Message: fmt.Sprintf("failed to introspect table %s: %v", table.TableName(), err),
		})
		v.report(ctx, res)
		return res
	}
	if info == nil {
		res.add(v.mode, Issue{
			Type:    TableNotFound,
			Table:   table.TableName(),
			Message: fmt.Sprintf("table %s does not exist", table.TableName()),
		})
		v.report(ctx, res)
		return res
	}

	v.diff(res, table, info)
	v.report(ctx, res)
	return res
}

// ValidateEntity validates the registered metadata of T.
func ValidateEntity[T any](ctx context.Context, v *Validator, conn database.Conn) (*Result, error) {
	meta, err := entity.Of[T]()
	if err != nil {
		return nil, err
	}
	return v.Validate(ctx, conn, meta), nil
}

func (v *Validator) diff(res *Result, table entity.Table, info *TableInfo) {
	name := table.TableName()
	declared := make(map[string]bool)

	for _, col := range table.ColumnInfos() {
		declared[col.Name] = true

		actual, ok := info.Column(col.Name)
		if !ok {
			res.add(v.mode, Issue{
				Type:    ColumnNotFound,
				Table:   name,
				Column:  col.Name,
				Message: fmt.Sprintf("column %s.%s does not exist", name, col.Name),
			})
			continue
		}

		if col.Length > 0 {
			v.checkLength(res, name, col, actual)
		} else if !types.Compatible(col.Type, actual.DataType) && !types.Compatible(col.Type, actual.UDTName) {
			res.add(v.mode, Issue{
				Type:     TypeMismatch,
				Table:    name,
				Column:   col.Name,
				Expected: col.Type.Name(),
				Actual:   actual.DataType,
				Message: fmt.Sprintf("column %s.%s: expected type %s, found %s",
					name, col.Name, col.Type.Name(), actual.DataType),
			})
		}

		if col.Nullable != actual.IsNullable {
			res.add(v.mode, Issue{
				Type:     NullableMismatch,
				Table:    name,
				Column:   col.Name,
				Expected: nullability(col.Nullable),
				Actual:   nullability(actual.IsNullable),
				Message: fmt.Sprintf("column %s.%s: entity declares %s but column is %s",
					name, col.Name, nullability(col.Nullable), nullability(actual.IsNullable)),
			})
		}
	}

	for _, actual := range info.Columns {
		if declared[actual.Name] {
			continue
		}
		res.add(v.mode, Issue{
			Type:    ExtraColumn,
			Table:   name,
			Column:  actual.Name,
			Actual:  actual.DataType,
			Message: fmt.Sprintf("column %s.%s is not mapped by the entity", name, actual.Name),
		})
	}
}

// checkLength handles columns with a declared length: the catalog type
// must be a bounded character type of exactly that length.
func (v *Validator) checkLength(res *Result, table string, col entity.ColumnInfo, actual ColumnInfo) {
	expected := "varchar(" + strconv.Itoa(col.Length) + ")"
	if !types.IsCharacterType(actual.DataType) && !types.IsCharacterType(actual.UDTName) {
		res.add(v.mode, Issue{
			Type:     TypeMismatch,
			Table:    table,
			Column:   col.Name,
			Expected: expected,
			Actual:   actual.DataType,
			Message:  fmt.Sprintf("column %s.%s: expected type %s, found %s", table, col.Name, expected, actual.DataType),
		})
		return
	}
	if actual.MaxLength != nil && *actual.MaxLength == col.Length {
		return
	}
	got := "<unbounded>"
	if actual.MaxLength != nil {
		got = strconv.Itoa(*actual.MaxLength)
	}
	res.add(v.mode, Issue{
		Type:     LengthMismatch,
		Table:    table,
		Column:   col.Name,
		Expected: strconv.Itoa(col.Length),
		Actual:   got,
		Message:  fmt.Sprintf("column %s.%s: expected length %d, found %s", table, col.Name, col.Length, got),
	})
}

func nullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

func (v *Validator) report(ctx context.Context, res *Result) {
	log := v.log
	if log == nil {
		log = logger.FromContext(ctx)
	}
	for _, issue := range res.Errors {
		log.WarnWith("schema validation error", map[string]interface{}{
			"table": issue.Table, "column": issue.Column, "issue": issue.Type.String(), "detail": issue.Message,
		})
	}
	for _, issue := range res.Warnings {
		log.DebugWith("schema validation warning", map[string]interface{}{
			"table": issue.Table, "column": issue.Column, "issue": issue.Type.String(), "detail": issue.Message,
		})
	}
	log.With().Str("table", res.Table).Str("mode", v.mode.String()).Logger().Debug(res.Summary())
}

package mapper

import (
	"fmt"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/schema"
	"github.com/koustreak/relmap/internal/types"
)

// Config controls how strictly rows are mapped and whether repositories
// validate the schema before each operation. It never changes SQL text.
type Config struct {
	StrictColumnMapping bool        `yaml:"strict_column_mapping"`
	IgnoreExtraColumns  bool        `yaml:"ignore_extra_columns"`
	AutoValidateSchema  bool        `yaml:"auto_validate_schema"`
	ValidationMode      schema.Mode `yaml:"validation_mode"`
}

// DefaultConfig maps strictly and does not validate automatically.
func DefaultConfig() Config {
	return Config{
		StrictColumnMapping: true,
		ValidationMode:      schema.Strict,
	}
}

// Mapper converts result rows into T and T into parameters.
// It is stateless and safe for concurrent use.
type Mapper[T any] struct {
	meta *entity.Metadata[T]
	cfg  Config
}

func New[T any](meta *entity.Metadata[T], cfg Config) *Mapper[T] {
	return &Mapper[T]{meta: meta, cfg: cfg}
}

func (m *Mapper[T]) Config() Config { return m.cfg }

// checksColumns reports whether unmapped result columns are fatal.
func (m *Mapper[T]) checksColumns() bool {
	return m.cfg.StrictColumnMapping && !m.cfg.IgnoreExtraColumns
}

// ValidateColumns fails when row has a column the entity does not map.
// It is a no-op unless strict mapping is on and extra columns are not ignored.
func (m *Mapper[T]) ValidateColumns(row database.Row) error {
	if !m.checksColumns() {
		return nil
	}
	for _, c := range row.Columns() {
		if !m.meta.HasColumn(c.Name) {
			return errs.Newf(errs.ErrKindUnmappedColumn, "Result contains column not mapped to entity: %s", c.Name)
		}
	}
	return nil
}

// MapRow builds a T from row, checking columns first when configured to.
func (m *Mapper[T]) MapRow(row database.Row) (T, error) {
	var e T
	if err := m.ValidateColumns(row); err != nil {
		return e, err
	}
	for _, col := range m.meta.Columns() {
		cell, ok := row.Get(col.Name)
		if !ok {
			return e, errs.Newf(errs.ErrKindColumnNotFound, "Required column not found in result: %s", col.Name)
		}
		if err := col.Decode(&e, cell); err != nil {
			return e, err
		}
	}
	return e, nil
}

// MapAll maps every row in order. The first failing row fails the whole call.
func (m *Mapper[T]) MapAll(res *database.Result) ([]T, error) {
	out := make([]T, 0, res.Len())
	for i, row := range res.Rows() {
		e, err := m.MapRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// MapOne maps the first row only. An empty result yields ok == false.
func (m *Mapper[T]) MapOne(res *database.Result) (e T, ok bool, err error) {
	row, found := res.First()
	if !found {
		return e, false, nil
	}
	e, err = m.MapRow(row)
	if err != nil {
		return e, false, err
	}
	return e, true, nil
}

// Params renders every column of e in declaration order.
func (m *Mapper[T]) Params(e *T) []types.Param {
	cols := m.meta.Columns()
	params := make([]types.Param, len(cols))
	for i, c := range cols {
		params[i] = c.Encode(e)
	}
	return params
}

// Values renders e as a column→parameter map.
func (m *Mapper[T]) Values(e *T) map[string]types.Param {
	cols := m.meta.Columns()
	values := make(map[string]types.Param, len(cols))
	for _, c := range cols {
		values[c.Name] = c.Encode(e)
	}
	return values
}

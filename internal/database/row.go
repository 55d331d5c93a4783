package database

import (
	"github.com/koustreak/relmap/internal/types"
)

// Column describes one result column.
type Column struct {
	Name string
	Type types.TypeID
}

// Status tells whether a statement produced rows or only a command tag.
type Status int

const (
	StatusCommandOK Status = iota // no result set (INSERT without RETURNING, DDL, …)
	StatusTuplesOK                // a result set, possibly empty
)

// Result is the rectangular outcome of one statement.
type Result struct {
	Status       Status
	Command      string // command tag as reported by the server, e.g. "INSERT 0 1"
	RowsAffected int64

	columns []Column
	index   map[string]int
	rows    [][]types.Param
}

// NewResult builds a result set. Every row must have len(columns) cells.
func NewResult(columns []Column, rows [][]types.Param) *Result {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		// duplicate names resolve to the first occurrence
		if _, ok := index[c.Name]; !ok {
			index[c.Name] = i
		}
	}
	return &Result{
		Status:       StatusTuplesOK,
		RowsAffected: int64(len(rows)),
		columns:      columns,
		index:        index,
		rows:         rows,
	}
}

// NewCommandResult builds the result of a statement that returned no rows.
func NewCommandResult(command string, affected int64) *Result {
	return &Result{Status: StatusCommandOK, Command: command, RowsAffected: affected}
}

func (r *Result) Len() int          { return len(r.rows) }
func (r *Result) Empty() bool       { return len(r.rows) == 0 }
func (r *Result) Columns() []Column { return r.columns }

// ColumnIndex returns the position of name, or -1.
func (r *Result) ColumnIndex(name string) int {
	if i, ok := r.index[name]; ok {
		return i
	}
	return -1
}

// Row returns row i. It panics when i is out of range, like slice indexing.
func (r *Result) Row(i int) Row {
	_ = r.rows[i]
	return Row{res: r, idx: i}
}

// Rows returns every row in order.
func (r *Result) Rows() []Row {
	rows := make([]Row, len(r.rows))
	for i := range r.rows {
		rows[i] = Row{res: r, idx: i}
	}
	return rows
}

// First returns the first row, if any.
func (r *Result) First() (Row, bool) {
	if r.Empty() {
		return Row{}, false
	}
	return r.Row(0), true
}

// Maps converts every row to a column→value map. NULL becomes nil.
func (r *Result) Maps() []map[string]any {
	out := make([]map[string]any, len(r.rows))
	for i, cells := range r.rows {
		m := make(map[string]any, len(r.columns))
		for j, c := range r.columns {
			if cells[j].Valid {
				m[c.Name] = cells[j].V
			} else {
				m[c.Name] = nil
			}
		}
		out[i] = m
	}
	return out
}

// Row is one record of a Result. It is only valid while the Result is.
type Row struct {
	res *Result
	idx int
}

func (r Row) Len() int { return len(r.res.columns) }

func (r Row) Columns() []Column { return r.res.columns }

func (r Row) ColumnName(i int) string { return r.res.columns[i].Name }

func (r Row) ColumnType(i int) types.TypeID { return r.res.columns[i].Type }

// Index returns the position of the named column, or -1.
func (r Row) Index(name string) int { return r.res.ColumnIndex(name) }

func (r Row) Has(name string) bool { return r.Index(name) >= 0 }

// Value returns cell i.
func (r Row) Value(i int) types.Param { return r.res.rows[r.idx][i] }

func (r Row) IsNull(i int) bool { return !r.Value(i).Valid }

// Get returns the named cell and whether the column exists.
func (r Row) Get(name string) (types.Param, bool) {
	i := r.Index(name)
	if i < 0 {
		return types.Param{}, false
	}
	return r.Value(i), true
}

// Text returns the named cell's text, or "" when it is NULL or missing.
func (r Row) Text(name string) string {
	p, _ := r.Get(name)
	return p.V
}

// Package dbtest provides an in-memory database.Conn for tests. Statements
// are answered by a caller-supplied handler and recorded for assertions.
package dbtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// Handler answers one statement.
type Handler func(sql string, params []types.Param) (*database.Result, error)

// Statement is one recorded call to Execute or ExecuteUpdate.
type Statement struct {
	SQL    string
	Params []types.Param
}

// Conn is a scriptable database.Conn.
type Conn struct {
	mu         sync.Mutex
	handler    Handler
	statements []Statement
	connected  bool
	inTx       bool
	pingErr    error
	closed     int
}

var _ database.Conn = (*Conn)(nil)

// New returns a connected Conn. A nil handler answers every statement with
// an empty command result.
func New(h Handler) *Conn {
	return &Conn{handler: h, connected: true}
}

func (c *Conn) Execute(_ context.Context, sql string, params ...types.Param) (*database.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, errs.New(errs.ErrKindConnectionFailed, "not connected")
	}
	c.statements = append(c.statements, Statement{SQL: sql, Params: params})
	if c.handler == nil {
		return database.NewCommandResult("", 0), nil
	}
	return c.handler(sql, params)
}

func (c *Conn) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	res, err := c.Execute(ctx, sql)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

func (c *Conn) Begin(ctx context.Context) error {
	if _, err := c.Execute(ctx, "BEGIN"); err != nil {
		return err
	}
	c.setTx(true)
	return nil
}

func (c *Conn) Commit(ctx context.Context) error {
	defer c.setTx(false)
	_, err := c.Execute(ctx, "COMMIT")
	return err
}

func (c *Conn) Rollback(ctx context.Context) error {
	defer c.setTx(false)
	_, err := c.Execute(ctx, "ROLLBACK")
	return err
}

func (c *Conn) setTx(v bool) {
	c.mu.Lock()
	c.inTx = v
	c.mu.Unlock()
}

func (c *Conn) InTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inTx
}

func (c *Conn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Conn) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return errs.New(errs.ErrKindConnectionFailed, "not connected")
	}
	return c.pingErr
}

func (c *Conn) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.closed++
	return nil
}

// Disconnect simulates a lost connection.
func (c *Conn) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

// FailPing makes Ping return err while the connection still looks open.
func (c *Conn) FailPing(err error) {
	c.mu.Lock()
	c.pingErr = err
	c.mu.Unlock()
}

// Closed reports how many times Close was called.
func (c *Conn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Statements returns a copy of everything executed so far.
func (c *Conn) Statements() []Statement {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Statement(nil), c.statements...)
}

// SQL returns only the statement texts.
func (c *Conn) SQL() []string {
	stmts := c.Statements()
	out := make([]string, len(stmts))
	for i, s := range stmts {
		out[i] = s.SQL
	}
	return out
}

// Rows builds a result set. Cell values are rendered with types.EncodeAny;
// nil is NULL. Column types default to text.
func Rows(columns []string, rows ...[]any) *database.Result {
	cols := make([]database.Column, len(columns))
	for i, name := range columns {
		cols[i] = database.Column{Name: name, Type: types.TextID}
	}
	cells := make([][]types.Param, len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			panic(fmt.Sprintf("dbtest: row %d has %d cells, want %d", i, len(r), len(columns)))
		}
		cells[i] = make([]types.Param, len(r))
		for j, v := range r {
			p, err := types.EncodeAny(v)
			if err != nil {
				panic(err)
			}
			cells[i][j] = p
		}
	}
	return database.NewResult(cols, cells)
}

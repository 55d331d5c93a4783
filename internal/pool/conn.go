package pool

import (
	"context"
	"sync/atomic"

	"github.com/jackc/puddle/v2"
	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// Conn is a borrowed connection. It satisfies database.Conn, so it can back
// a repository directly; Close returns it to the pool instead of closing it.
// Using a Conn after Release fails with ConnectionFailed.
type Conn struct {
	pool     *Pool
	res      *puddle.Resource[database.Conn]
	conn     database.Conn
	released atomic.Bool
}

var _ database.Conn = (*Conn)(nil)

// Release returns the connection to the pool. A transaction left open is
// rolled back first; a connection that is lost, or whose rollback fails, is
// closed and replaced. Calling Release more than once is a no-op.
func (c *Conn) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	p := c.pool

	if !c.conn.IsConnected() {
		p.discard(c.res, "connection lost")
		p.replenish()
		return
	}
	if c.conn.InTransaction() {
		ctx, cancel := p.cleanupContext()
		err := c.conn.Rollback(ctx)
		cancel()
		if err != nil {
			p.discard(c.res, "rollback on release failed")
			p.replenish()
			return
		}
		p.log.Warn("rolled back transaction left open on released connection")
	}
	c.res.Release()
}

// Raw returns the physical connection.
func (c *Conn) Raw() database.Conn { return c.conn }

func (c *Conn) live() error {
	if c.released.Load() {
		return errs.New(errs.ErrKindConnectionFailed, "connection already released to pool")
	}
	return nil
}

func (c *Conn) Execute(ctx context.Context, sql string, params ...types.Param) (*database.Result, error) {
	if err := c.live(); err != nil {
		return nil, err
	}
	return c.conn.Execute(ctx, sql, params...)
}

func (c *Conn) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	if err := c.live(); err != nil {
		return 0, err
	}
	return c.conn.ExecuteUpdate(ctx, sql)
}

func (c *Conn) Begin(ctx context.Context) error {
	if err := c.live(); err != nil {
		return err
	}
	return c.conn.Begin(ctx)
}

func (c *Conn) Commit(ctx context.Context) error {
	if err := c.live(); err != nil {
		return err
	}
	return c.conn.Commit(ctx)
}

func (c *Conn) Rollback(ctx context.Context) error {
	if err := c.live(); err != nil {
		return err
	}
	return c.conn.Rollback(ctx)
}

func (c *Conn) InTransaction() bool {
	return !c.released.Load() && c.conn.InTransaction()
}

func (c *Conn) IsConnected() bool {
	return !c.released.Load() && c.conn.IsConnected()
}

func (c *Conn) Ping(ctx context.Context) error {
	if err := c.live(); err != nil {
		return err
	}
	return c.conn.Ping(ctx)
}

// Close releases the connection back to the pool.
func (c *Conn) Close(context.Context) error {
	c.Release()
	return nil
}

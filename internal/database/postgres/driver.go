package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
)

// Conn is a PostgreSQL implementation of database.Conn on a single pgx
// connection. All values travel in the text format.
// It is not safe for concurrent use.
type Conn struct {
	conn *pgx.Conn
}

var _ database.Conn = (*Conn)(nil)

// Connect opens one connection using the DSN and connect timeout of cfg.
func Connect(ctx context.Context, cfg *database.Config) (*Conn, error) {
	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	if cfg.ConnectTimeout > 0 {
		connCfg.ConnectTimeout = cfg.ConnectTimeout
	}

	conn, err := pgx.ConnectConfig(ctx, connCfg)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to connect", err)
	}
	return &Conn{conn: conn}, nil
}

// Connector returns a constructor suitable for pool.New.
func Connector(cfg *database.Config) func(ctx context.Context) (database.Conn, error) {
	return func(ctx context.Context) (database.Conn, error) {
		return Connect(ctx, cfg)
	}
}

// --- database.Conn implementation ---

// Execute runs sql with text-format parameters and collects the whole result.
func (c *Conn) Execute(ctx context.Context, sql string, params ...types.Param) (*database.Result, error) {
	if !c.IsConnected() {
		return nil, errs.New(errs.ErrKindConnectionFailed, "not connected")
	}

	values := make([][]byte, len(params))
	for i, p := range params {
		if p.Valid {
			values[i] = []byte(p.V)
		}
	}

	// nil formats select text for both parameters and results
	res := c.conn.PgConn().ExecParams(ctx, sql, values, nil, nil, nil).Read()
	if res.Err != nil {
		return nil, mapError(res.Err, "execute failed")
	}

	if res.FieldDescriptions == nil {
		return database.NewCommandResult(res.CommandTag.String(), res.CommandTag.RowsAffected()), nil
	}

	cols := make([]database.Column, len(res.FieldDescriptions))
	for i, fd := range res.FieldDescriptions {
		cols[i] = database.Column{Name: fd.Name, Type: types.TypeID(fd.DataTypeOID)}
	}
	rows := make([][]types.Param, len(res.Rows))
	for i, raw := range res.Rows {
		cells := make([]types.Param, len(raw))
		for j, b := range raw {
			if b != nil {
				cells[j] = types.TextParam(string(b))
			}
		}
		rows[i] = cells
	}

	out := database.NewResult(cols, rows)
	out.Command = res.CommandTag.String()
	if n := res.CommandTag.RowsAffected(); n > 0 {
		out.RowsAffected = n
	}
	return out, nil
}

// ExecuteUpdate runs a statement without parameters.
func (c *Conn) ExecuteUpdate(ctx context.Context, sql string) (int64, error) {
	if !c.IsConnected() {
		return 0, errs.New(errs.ErrKindConnectionFailed, "not connected")
	}
	tag, err := c.conn.Exec(ctx, sql)
	if err != nil {
		return 0, mapError(err, "execute update failed")
	}
	return tag.RowsAffected(), nil
}

func (c *Conn) Begin(ctx context.Context) error {
	_, err := c.ExecuteUpdate(ctx, "BEGIN")
	return err
}

func (c *Conn) Commit(ctx context.Context) error {
	_, err := c.ExecuteUpdate(ctx, "COMMIT")
	return err
}

func (c *Conn) Rollback(ctx context.Context) error {
	_, err := c.ExecuteUpdate(ctx, "ROLLBACK")
	return err
}

// InTransaction reports the server-side transaction status, including a
// failed transaction awaiting rollback.
func (c *Conn) InTransaction() bool {
	return c.IsConnected() && c.conn.PgConn().TxStatus() != 'I'
}

func (c *Conn) IsConnected() bool {
	return c.conn != nil && !c.conn.IsClosed()
}

// Ping verifies the server answers an empty statement.
func (c *Conn) Ping(ctx context.Context) error {
	if !c.IsConnected() {
		return errs.New(errs.ErrKindConnectionFailed, "not connected")
	}
	if err := c.conn.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close terminates the connection. Closing twice is a no-op.
func (c *Conn) Close(ctx context.Context) error {
	if c.conn == nil || c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close(ctx)
}

// ServerVersion returns the server_version parameter reported at startup.
func (c *Conn) ServerVersion() string {
	if !c.IsConnected() {
		return ""
	}
	return c.conn.PgConn().ParameterStatus("server_version")
}

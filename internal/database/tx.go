package database

import (
	"context"

	"github.com/koustreak/relmap/internal/errs"
)

// Tx is a scoped transaction on one connection. Close rolls back unless
// Commit succeeded, so the usual shape is:
//
//	tx, err := database.Begin(ctx, conn)
//	if err != nil {
//	    return err
//	}
//	defer tx.Close(ctx)
//	...
//	return tx.Commit(ctx)
type Tx struct {
	conn      Conn
	committed bool
	done      bool
}

// Begin opens a transaction on conn. Transactions do not nest: Begin on a
// connection that already has one open fails, use Tx.Savepoint instead.
func Begin(ctx context.Context, conn Conn) (*Tx, error) {
	if !conn.IsConnected() {
		return nil, errs.New(errs.ErrKindConnectionFailed, "begin transaction: not connected")
	}
	if conn.InTransaction() {
		return nil, errs.New(errs.ErrKindInvalidInput, "already in transaction")
	}
	if err := conn.Begin(ctx); err != nil {
		return nil, err
	}
	return &Tx{conn: conn}, nil
}

// Conn returns the connection the transaction runs on.
func (tx *Tx) Conn() Conn { return tx.conn }

func (tx *Tx) usable() error {
	switch {
	case tx.committed:
		return errs.New(errs.ErrKindInvalidInput, "transaction already committed")
	case tx.done:
		return errs.New(errs.ErrKindInvalidInput, "transaction not valid")
	}
	return nil
}

func (tx *Tx) Commit(ctx context.Context) error {
	if err := tx.usable(); err != nil {
		return err
	}
	tx.done = true
	if err := tx.conn.Commit(ctx); err != nil {
		return err
	}
	tx.committed = true
	return nil
}

func (tx *Tx) Rollback(ctx context.Context) error {
	if err := tx.usable(); err != nil {
		return err
	}
	tx.done = true
	return tx.conn.Rollback(ctx)
}

// Close rolls back if the transaction is still open. It is safe to defer
// after a successful Commit.
func (tx *Tx) Close(ctx context.Context) {
	if !tx.done {
		_ = tx.Rollback(ctx)
	}
}

// Savepoint creates a named savepoint inside the transaction.
func (tx *Tx) Savepoint(ctx context.Context, name string) (*Savepoint, error) {
	if err := tx.usable(); err != nil {
		return nil, err
	}
	if !isPlainIdentifier(name) {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "invalid savepoint name %q", name)
	}
	if _, err := tx.conn.ExecuteUpdate(ctx, "SAVEPOINT "+name); err != nil {
		return nil, err
	}
	return &Savepoint{tx: tx, name: name}, nil
}

// Savepoint is a nested rollback target within a Tx.
type Savepoint struct {
	tx       *Tx
	name     string
	released bool
}

func (sp *Savepoint) Name() string { return sp.name }

// Release forgets the savepoint, keeping its work.
func (sp *Savepoint) Release(ctx context.Context) error {
	if sp.released {
		return nil
	}
	if _, err := sp.tx.conn.ExecuteUpdate(ctx, "RELEASE SAVEPOINT "+sp.name); err != nil {
		return err
	}
	sp.released = true
	return nil
}

// RollbackTo undoes everything since the savepoint was created.
func (sp *Savepoint) RollbackTo(ctx context.Context) error {
	if sp.released {
		return errs.Newf(errs.ErrKindInvalidInput, "savepoint %s already released", sp.name)
	}
	_, err := sp.tx.conn.ExecuteUpdate(ctx, "ROLLBACK TO SAVEPOINT "+sp.name)
	return err
}

// InTx runs fn inside a transaction on conn, committing when fn returns nil
// and rolling back otherwise. A panic in fn rolls back and re-panics.
func InTx(ctx context.Context, conn Conn, fn func(ctx context.Context) error) (err error) {
	tx, err := Begin(ctx, conn)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Close(ctx)
			panic(p)
		}
	}()
	if err := fn(ctx); err != nil {
		tx.Close(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func isPlainIdentifier(name string) bool {
	if name == "" || len(name) > 63 {
		return false
	}
	for i := 0; i < len(name); i++ {
		ch := name[i]
		alpha := ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch == '_'
		if !alpha && (i == 0 || ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}

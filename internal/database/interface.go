package database

import (
	"context"

	"github.com/koustreak/relmap/internal/types"
)

// Conn is a single physical database connection speaking the text protocol.
// A Conn is not safe for concurrent use; the pool hands each one to a
// single owner at a time.
type Conn interface {
	// Execute runs a parameterized statement and returns its full result.
	// An invalid Param is bound as NULL.
	Execute(ctx context.Context, sql string, params ...types.Param) (*Result, error)

	// ExecuteUpdate runs a statement without parameters and returns the
	// number of affected rows.
	ExecuteUpdate(ctx context.Context, sql string) (int64, error)

	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// InTransaction reports whether a transaction is open.
	InTransaction() bool

	// IsConnected reports whether the connection is usable without a round trip.
	IsConnected() bool

	// Ping verifies the server answers.
	Ping(ctx context.Context) error

	Close(ctx context.Context) error
}

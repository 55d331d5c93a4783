package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/relmap/internal/errs"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || pgconn.Timeout(err) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 — connection exceptions
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return &errs.Error{
				Kind:     errs.ErrKindConnectionFailed,
				Message:  fmt.Sprintf("%s: %s", msg, pgErr.Message),
				SQLState: pgErr.Code,
				Cause:    err,
			}
		}
		return errs.Database(fmt.Sprintf("%s: %s", msg, pgErr.Message), pgErr.Code, 0, err)
	}

	// Fallthrough: connection-level errors (TLS, network, closed socket)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

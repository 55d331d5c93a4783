package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/stretchr/testify/assert"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
		state string
	}{
		{"deadline", context.DeadlineExceeded, errs.IsTimeout, ""},
		{"canceled wrapped", fmt.Errorf("read: %w", context.Canceled), errs.IsTimeout, ""},
		{"unique violation", &pgconn.PgError{Code: "23505", Message: "duplicate key"}, errs.IsDatabase, "23505"},
		{"undefined table", &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}, errs.IsDatabase, "42P01"},
		{"connection class", &pgconn.PgError{Code: "08006", Message: "connection failure"}, errs.IsConnectionFailed, "08006"},
		{"network", errors.New("broken pipe"), errs.IsConnectionFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapError(tt.err, "execute failed")
			assert.True(t, tt.check(err), err.Error())
			assert.Equal(t, tt.state, errs.SQLState(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	assert.Nil(t, mapError(nil, "x"))
}

func TestMapError_MessageIncludesServerText(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "23502", Message: `null value in column "name"`}, "insert failed")
	assert.Contains(t, err.Error(), `insert failed: null value in column "name"`)
	assert.Contains(t, err.Error(), "SQLSTATE 23502")
}

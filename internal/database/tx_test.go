package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/database/dbtest"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTx_CloseRollsBackUncommitted(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(nil)

	func() {
		tx, err := database.Begin(ctx, conn)
		require.NoError(t, err)
		defer tx.Close(ctx)
		assert.True(t, conn.InTransaction())
	}()

	assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, conn.SQL())
	assert.False(t, conn.InTransaction())
}

func TestTx_CommitThenClose(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(nil)

	tx, err := database.Begin(ctx, conn)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))
	tx.Close(ctx)

	assert.Equal(t, []string{"BEGIN", "COMMIT"}, conn.SQL())

	err = tx.Commit(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction already committed")

	err = tx.Rollback(ctx)
	assert.Contains(t, err.Error(), "transaction already committed")
}

func TestTx_RolledBackIsNotValid(t *testing.T) {
	ctx := context.Background()
	tx, err := database.Begin(ctx, dbtest.New(nil))
	require.NoError(t, err)
	require.NoError(t, tx.Rollback(ctx))

	_, err = tx.Savepoint(ctx, "sp1")
	assert.Contains(t, err.Error(), "transaction not valid")
}

func TestTx_BeginDisconnected(t *testing.T) {
	conn := dbtest.New(nil)
	conn.Disconnect()
	_, err := database.Begin(context.Background(), conn)
	assert.True(t, errs.IsConnectionFailed(err))
}

func TestTx_DoesNotNest(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(nil)

	outer, err := database.Begin(ctx, conn)
	require.NoError(t, err)
	defer outer.Close(ctx)

	_, err = database.Begin(ctx, conn)
	assert.True(t, errs.IsInvalidInput(err), "%v", err)

	called := false
	err = database.InTx(ctx, conn, func(context.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in transaction")
	assert.False(t, called)

	assert.True(t, conn.InTransaction())
	assert.Equal(t, []string{"BEGIN"}, conn.SQL())

	require.NoError(t, outer.Commit(ctx))
	assert.Equal(t, []string{"BEGIN", "COMMIT"}, conn.SQL())
}

func TestSavepoint(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.New(nil)

	tx, err := database.Begin(ctx, conn)
	require.NoError(t, err)
	defer tx.Close(ctx)

	sp, err := tx.Savepoint(ctx, "before_items")
	require.NoError(t, err)
	require.NoError(t, sp.RollbackTo(ctx))
	require.NoError(t, sp.Release(ctx))
	require.NoError(t, sp.Release(ctx))
	assert.Error(t, sp.RollbackTo(ctx))

	_, err = tx.Savepoint(ctx, "bad name;")
	assert.True(t, errs.IsInvalidInput(err))

	assert.Equal(t, []string{
		"BEGIN",
		"SAVEPOINT before_items",
		"ROLLBACK TO SAVEPOINT before_items",
		"RELEASE SAVEPOINT before_items",
	}, conn.SQL())
}

func TestInTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit", func(t *testing.T) {
		conn := dbtest.New(nil)
		err := database.InTx(ctx, conn, func(ctx context.Context) error {
			_, err := conn.ExecuteUpdate(ctx, "DELETE FROM t")
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"BEGIN", "DELETE FROM t", "COMMIT"}, conn.SQL())
	})

	t.Run("rollback on error", func(t *testing.T) {
		conn := dbtest.New(nil)
		boom := errors.New("boom")
		err := database.InTx(ctx, conn, func(context.Context) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, conn.SQL())
	})

	t.Run("rollback on panic", func(t *testing.T) {
		conn := dbtest.New(nil)
		assert.Panics(t, func() {
			_ = database.InTx(ctx, conn, func(context.Context) error { panic("boom") })
		})
		assert.Equal(t, []string{"BEGIN", "ROLLBACK"}, conn.SQL())
	})
}

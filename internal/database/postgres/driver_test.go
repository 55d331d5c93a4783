package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectForTest connects to RELMAP_TEST_DSN or skips.
func connectForTest(t *testing.T) *Conn {
	t.Helper()
	dsn := os.Getenv("RELMAP_TEST_DSN")
	if dsn == "" {
		t.Skip("RELMAP_TEST_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := Connect(ctx, database.DefaultConfig(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(context.Background()) })
	return conn
}

func TestConn_TextRoundTrip(t *testing.T) {
	conn := connectForTest(t)
	ctx := context.Background()

	res, err := conn.Execute(ctx,
		"SELECT $1::int4 AS n, $2::text AS s, $3::timestamptz AS ts, $4::numeric AS d, $5::text AS missing",
		types.TextParam("42"),
		types.TextParam("hello"),
		types.TextParam("2024-01-02 03:04:05+00"),
		types.TextParam("12345678901234567890.0001"),
		types.Param{},
	)
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())

	row := res.Row(0)
	assert.Equal(t, types.Int4ID, row.ColumnType(0))
	assert.Equal(t, "42", row.Text("n"))
	assert.Equal(t, "hello", row.Text("s"))
	assert.Equal(t, "12345678901234567890.0001", row.Text("d"))
	assert.True(t, row.IsNull(4))

	_, err = types.TimestampTzCodec.Decode(row.Text("ts"))
	assert.NoError(t, err)
}

func TestConn_TransactionsAndErrors(t *testing.T) {
	conn := connectForTest(t)
	ctx := context.Background()

	assert.NotEmpty(t, conn.ServerVersion())
	require.NoError(t, conn.Ping(ctx))

	_, err := conn.ExecuteUpdate(ctx, "CREATE TEMP TABLE relmap_tx (id int PRIMARY KEY)")
	require.NoError(t, err)

	err = database.InTx(ctx, conn, func(ctx context.Context) error {
		assert.True(t, conn.InTransaction())
		_, err := conn.Execute(ctx, "INSERT INTO relmap_tx (id) VALUES ($1)", types.TextParam("1"))
		return err
	})
	require.NoError(t, err)
	assert.False(t, conn.InTransaction())

	_, err = conn.Execute(ctx, "INSERT INTO relmap_tx (id) VALUES ($1)", types.TextParam("1"))
	require.Error(t, err)
	assert.True(t, errs.IsDatabase(err))
	assert.Equal(t, "23505", errs.SQLState(err))

	n, err := conn.ExecuteUpdate(ctx, "DELETE FROM relmap_tx")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, conn.Close(ctx))
	assert.False(t, conn.IsConnected())
	_, err = conn.Execute(ctx, "SELECT 1")
	assert.True(t, errs.IsConnectionFailed(err))
}

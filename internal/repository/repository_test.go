package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/database/dbtest"
	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/logger"
	"github.com/koustreak/relmap/internal/mapper"
	"github.com/koustreak/relmap/internal/schema"
	"github.com/koustreak/relmap/internal/sqlbuilder"
	"github.com/koustreak/relmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type user struct {
	ID    int32
	Name  string
	Email types.Null[string]
}

var users = entity.MustDefine("users",
	entity.Field("ID", "id", func(u *user) *int32 { return &u.ID }, types.Int32, entity.PrimaryKey, entity.AutoIncrement),
	entity.Field("Name", "name", func(u *user) *string { return &u.Name }, types.Varchar).WithLength(100),
	entity.NullField("Email", "email", func(u *user) *types.Null[string] { return &u.Email }, types.Text),
)

const (
	insertUser = "INSERT INTO users (name, email) VALUES ($1, $2) RETURNING *"
	selectUser = "SELECT * FROM users WHERE id = $1"
	selectAll  = "SELECT * FROM users"
	countUsers = "SELECT COUNT(*) FROM users"
	existsUser = "SELECT 1 FROM users WHERE id = $1 LIMIT 1"
	updateUser = "UPDATE users SET name = $1, email = $2 WHERE id = $3 RETURNING *"
	deleteUser = "DELETE FROM users WHERE id = $1"
	byName     = "SELECT * FROM users WHERE name = $1"
)

type userRow struct {
	id    int32
	name  string
	email types.Param
}

// usersTable is an in-memory users table answering the statements the
// repository generates. BEGIN snapshots the rows and ROLLBACK restores them.
type usersTable struct {
	next     int32
	rows     []userRow
	snapshot []userRow
	snapNext int32
	failOn   string
	extra    bool
}

func (tb *usersTable) result(rows ...userRow) *database.Result {
	header := []string{"id", "name", "email"}
	if tb.extra {
		header = append(header, "created_at")
	}
	cells := make([][]any, len(rows))
	for i, r := range rows {
		var email any
		if r.email.Valid {
			email = r.email.V
		}
		cells[i] = []any{r.id, r.name, email}
		if tb.extra {
			cells[i] = append(cells[i], "2024-01-01 00:00:00+00")
		}
	}
	return dbtest.Rows(header, cells...)
}

func (tb *usersTable) find(id string) int {
	for i, r := range tb.rows {
		if fmt.Sprint(r.id) == id {
			return i
		}
	}
	return -1
}

func (tb *usersTable) handle(sql string, params []types.Param) (*database.Result, error) {
	switch sql {
	case "BEGIN":
		tb.snapshot = append([]userRow(nil), tb.rows...)
		tb.snapNext = tb.next
		return database.NewCommandResult("BEGIN", 0), nil
	case "COMMIT":
		tb.snapshot = nil
		return database.NewCommandResult("COMMIT", 0), nil
	case "ROLLBACK":
		tb.rows, tb.next = tb.snapshot, tb.snapNext
		return database.NewCommandResult("ROLLBACK", 0), nil
	case insertUser:
		if params[0].V == tb.failOn {
			return nil, errs.Database("duplicate key value violates unique constraint", "23505", 0, nil)
		}
		tb.next++
		row := userRow{id: tb.next, name: params[0].V, email: params[1]}
		tb.rows = append(tb.rows, row)
		return tb.result(row), nil
	case selectUser:
		if i := tb.find(params[0].V); i >= 0 {
			return tb.result(tb.rows[i]), nil
		}
		return tb.result(), nil
	case selectAll:
		return tb.result(tb.rows...), nil
	case byName:
		var out []userRow
		for _, r := range tb.rows {
			if r.name == params[0].V {
				out = append(out, r)
			}
		}
		return tb.result(out...), nil
	case countUsers:
		return dbtest.Rows([]string{"count"}, []any{int64(len(tb.rows))}), nil
	case existsUser:
		if tb.find(params[0].V) >= 0 {
			return dbtest.Rows([]string{"?column?"}, []any{1}), nil
		}
		return dbtest.Rows([]string{"?column?"}), nil
	case updateUser:
		i := tb.find(params[2].V)
		if i < 0 {
			return tb.result(), nil
		}
		tb.rows[i].name, tb.rows[i].email = params[0].V, params[1]
		return tb.result(tb.rows[i]), nil
	case deleteUser:
		i := tb.find(params[0].V)
		if i < 0 {
			return database.NewCommandResult("DELETE 0", 0), nil
		}
		tb.rows = append(tb.rows[:i], tb.rows[i+1:]...)
		return database.NewCommandResult("DELETE 1", 1), nil
	}
	return nil, errors.New("unexpected statement: " + sql)
}

func newRepo(t *testing.T, opts ...Option) (*Repository[user], *usersTable, *dbtest.Conn) {
	t.Helper()
	tb := &usersTable{}
	conn := dbtest.New(tb.handle)
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	return ForMetadata(conn, users, opts...), tb, conn
}

func TestRepository_EndToEnd(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepo(t)

	saved, err := repo.Save(ctx, user{Name: "alice", Email: types.Some("alice@example.com")})
	require.NoError(t, err)
	assert.Positive(t, saved.ID)

	found, ok, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, saved, found)

	found.Email = types.Null[string]{}
	updated, err := repo.Update(ctx, found)
	require.NoError(t, err)
	assert.False(t, updated.Email.Valid)
	assert.Equal(t, "alice", updated.Name)

	n, err := repo.RemoveByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	exists, err := repo.ExistsByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	_, ok, err = repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_FindAllAndCount(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newRepo(t)

	for _, name := range []string{"a", "b", "c"} {
		_, err := repo.Save(ctx, user{Name: name})
		require.NoError(t, err)
	}

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].Name, all[1].Name, all[2].Name})

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	removed, err := repo.Remove(ctx, all[1])
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRepository_UpdateMissingRow(t *testing.T) {
	repo, _, _ := newRepo(t)
	_, err := repo.Update(context.Background(), user{ID: 99, Name: "ghost"})
	assert.True(t, errs.IsNotFound(err))
}

func TestRepository_SaveAllIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo, tb, conn := newRepo(t)
	tb.failOn = "bad"

	_, err := repo.SaveAll(ctx, []user{{Name: "ok"}, {Name: "bad"}, {Name: "never"}})
	require.Error(t, err)
	assert.True(t, errs.IsDatabase(err))
	assert.Equal(t, "23505", errs.SQLState(err))
	assert.Empty(t, tb.rows)
	assert.Equal(t, []string{"BEGIN", insertUser, insertUser, "ROLLBACK"}, conn.SQL())
	assert.False(t, conn.InTransaction())

	saved, err := repo.SaveAll(ctx, []user{{Name: "x"}, {Name: "y"}})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Len(t, tb.rows, 2)
	assert.Equal(t, "COMMIT", conn.SQL()[len(conn.SQL())-1])
}

func TestRepository_BatchInsideCallerTransaction(t *testing.T) {
	ctx := context.Background()
	repo, _, conn := newRepo(t)

	err := database.InTx(ctx, conn, func(ctx context.Context) error {
		saved, err := repo.SaveAll(ctx, []user{{Name: "a"}, {Name: "b"}})
		if err != nil {
			return err
		}
		_, err = repo.RemoveAll(ctx, saved)
		return err
	})
	require.NoError(t, err)

	stmts := conn.SQL()
	assert.Equal(t, "BEGIN", stmts[0])
	assert.Equal(t, "COMMIT", stmts[len(stmts)-1])
	assert.Len(t, stmts, 6)
}

func TestRepository_RemoveAll(t *testing.T) {
	ctx := context.Background()
	repo, tb, _ := newRepo(t)

	saved, err := repo.SaveAll(ctx, []user{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	require.NoError(t, err)

	n, err := repo.RemoveAll(ctx, []user{saved[0], saved[2], {ID: 404}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	require.Len(t, tb.rows, 1)
	assert.Equal(t, "b", tb.rows[0].name)
}

func TestRepository_FindAndQuery(t *testing.T) {
	ctx := context.Background()
	repo, _, conn := newRepo(t)
	_, err := repo.SaveAll(ctx, []user{{Name: "bob"}, {Name: "eve"}, {Name: "bob"}})
	require.NoError(t, err)

	bobs, err := repo.Find(ctx, repo.Select().Where("name", "=", "bob"))
	require.NoError(t, err)
	assert.Len(t, bobs, 2)

	raw, err := repo.Query(ctx, byName, "eve")
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "eve", raw[0].Name)

	one, ok, err := repo.QueryOne(ctx, byName, "bob")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(1), one.ID)

	last := conn.Statements()[len(conn.Statements())-1]
	assert.Equal(t, []types.Param{types.TextParam("bob")}, last.Params)

	_, err = repo.Query(ctx, byName, struct{}{})
	assert.True(t, errs.IsInvalidInput(err))

	_, err = repo.Find(ctx, repo.Select().Where("name", "; DROP", "x"))
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRepository_ExtraColumns(t *testing.T) {
	ctx := context.Background()

	repo, tb, conn := newRepo(t)
	tb.extra = true
	_, err := repo.Save(ctx, user{Name: "a"})
	assert.True(t, errs.IsUnmappedColumn(err))
	assert.Empty(t, tb.rows, "insert must not survive a mapping failure")
	assert.Equal(t, []string{"BEGIN", insertUser, "ROLLBACK"}, conn.SQL())

	tb.extra = false
	saved, err := repo.Save(ctx, user{Name: "b"})
	require.NoError(t, err)
	tb.extra = true
	_, err = repo.Update(ctx, user{ID: saved.ID, Name: "renamed"})
	assert.True(t, errs.IsUnmappedColumn(err))
	require.Len(t, tb.rows, 1)
	assert.Equal(t, "b", tb.rows[0].name)

	cfg := mapper.DefaultConfig()
	cfg.IgnoreExtraColumns = true
	repo, tb, _ = newRepo(t, WithConfig(cfg))
	tb.extra = true
	saved, err = repo.Save(ctx, user{Name: "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", saved.Name)
}

func TestRepository_KeyForms(t *testing.T) {
	type orderItem struct {
		OrderID   int64
		ProductID int64
		Quantity  int32
	}
	items := entity.MustDefine("order_items",
		entity.Field("OrderID", "order_id", func(o *orderItem) *int64 { return &o.OrderID }, types.Int64, entity.PrimaryKey),
		entity.Field("ProductID", "product_id", func(o *orderItem) *int64 { return &o.ProductID }, types.Int64, entity.PrimaryKey),
		entity.Field("Quantity", "quantity", func(o *orderItem) *int32 { return &o.Quantity }, types.Int32),
	)
	ctx := context.Background()
	conn := dbtest.New(nil)
	repo := ForMetadata(conn, items, WithLogger(logger.Nop()))

	_, ok, err := repo.FindByID(ctx, entity.KeyOf(int64(1001), int64(42)))
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = repo.FindByID(ctx, 1001, 42)
	require.NoError(t, err)

	stmts := conn.Statements()
	require.Len(t, stmts, 2)
	assert.Equal(t, "SELECT * FROM order_items WHERE order_id = $1 AND product_id = $2", stmts[0].SQL)
	assert.Equal(t, stmts[0], stmts[1])
	assert.Equal(t, []types.Param{types.TextParam("1001"), types.TextParam("42")}, stmts[0].Params)

	tests := []struct {
		name string
		key  []any
	}{
		{"too few", []any{1001}},
		{"too many", []any{1, 2, 3}},
		{"tuple too short", []any{entity.KeyOf(1)}},
		{"null component", []any{1001, nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := repo.FindByID(ctx, tt.key...)
			assert.True(t, errs.IsInvalidInput(err), "%v", err)
			_, err = repo.RemoveByID(ctx, tt.key...)
			assert.True(t, errs.IsInvalidInput(err))
		})
	}
	assert.Len(t, conn.Statements(), 2)
}

func TestRepository_NoPrimaryKey(t *testing.T) {
	type event struct{ Name string }
	events := entity.MustDefine("events",
		entity.Field("Name", "name", func(e *event) *string { return &e.Name }, types.Text),
	)
	conn := dbtest.New(nil)
	repo := ForMetadata(conn, events, WithLogger(logger.Nop()))
	ctx := context.Background()

	_, _, err := repo.FindByID(ctx, 1)
	assert.True(t, errs.IsConfiguration(err))
	_, err = repo.Update(ctx, event{Name: "x"})
	assert.True(t, errs.IsConfiguration(err))
	_, err = repo.Remove(ctx, event{Name: "x"})
	assert.True(t, errs.IsConfiguration(err))
	_, err = repo.ExistsByID(ctx, 1)
	assert.True(t, errs.IsConfiguration(err))
	assert.Empty(t, conn.Statements())
}

// catalogConn answers schema lookups itself so validation issues no SQL.
type catalogConn struct {
	*dbtest.Conn
	info *schema.TableInfo
}

func (c catalogConn) LookupTable(context.Context, string) (*schema.TableInfo, error) {
	return c.info, nil
}

func TestRepository_AutoValidateSchema(t *testing.T) {
	length := 100
	columns := []schema.ColumnInfo{
		{Name: "id", DataType: "integer"},
		{Name: "name", DataType: "character varying", MaxLength: &length},
	}
	ctx := context.Background()

	for _, mode := range []schema.Mode{schema.Strict, schema.Lenient} {
		t.Run(mode.String(), func(t *testing.T) {
			tb := &usersTable{}
			conn := catalogConn{
				Conn: dbtest.New(tb.handle),
				info: &schema.TableInfo{Schema: "public", Name: "users", Columns: columns},
			}
			cfg := mapper.DefaultConfig()
			cfg.AutoValidateSchema = true
			cfg.ValidationMode = mode
			repo := ForMetadata[user](conn, users, WithConfig(cfg), WithLogger(logger.Nop()))

			ops := map[string]func() error{
				"save":     func() error { _, err := repo.Save(ctx, user{Name: "a"}); return err },
				"findById": func() error { _, _, err := repo.FindByID(ctx, 1); return err },
				"findAll":  func() error { _, err := repo.FindAll(ctx); return err },
				"count":    func() error { _, err := repo.Count(ctx); return err },
				"query":    func() error { _, err := repo.Query(ctx, selectAll); return err },
				"removeAll": func() error {
					_, err := repo.RemoveAll(ctx, []user{{ID: 1}})
					return err
				},
			}
			for name, op := range ops {
				err := op()
				if mode == schema.Strict {
					require.Error(t, err, name)
					assert.True(t, errs.IsSchemaValidation(err), name)
					assert.Contains(t, err.Error(), "column users.email does not exist", name)
				} else {
					assert.NoError(t, err, name)
				}
			}
			if mode == schema.Strict {
				assert.Empty(t, conn.Statements())
			} else {
				assert.NotEmpty(t, conn.Statements())
			}
		})
	}
}

func TestRepository_Validate(t *testing.T) {
	repo, _, _ := newRepo(t, WithValidator(schema.NewValidator(schema.Lenient, schema.WithLogger(logger.Nop()))))
	repo.Conn().(*dbtest.Conn).Disconnect()

	res := repo.Validate(context.Background())
	assert.False(t, res.IsValid())
	assert.Equal(t, schema.ConnectionError, res.Errors[0].Type)
}

func TestRepository_LogsStatements(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "debug", Format: "json", Output: &buf})
	repo, _, _ := newRepo(t, WithLogger(log))

	_, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"sql":"SELECT COUNT(*) FROM users"`)
	assert.Contains(t, buf.String(), `"table":"users"`)
}

func TestRepository_SelectUsesTable(t *testing.T) {
	repo, _, _ := newRepo(t)
	sql, _, err := repo.Select().OrderBy("id", sqlbuilder.Desc).Build()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users ORDER BY id DESC", sql)
}

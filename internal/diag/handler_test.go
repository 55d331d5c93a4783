package diag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/database/dbtest"
	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/logger"
	"github.com/koustreak/relmap/internal/pool"
	"github.com/koustreak/relmap/internal/schema"
	"github.com/koustreak/relmap/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type note struct {
	ID   int64
	Body string
}

var notes = entity.MustDefine("notes",
	entity.Field("ID", "id", func(n *note) *int64 { return &n.ID }, types.Int64, entity.PrimaryKey),
	entity.Field("Body", "body", func(n *note) *string { return &n.Body }, types.Text),
)

// catalogConn answers schema lookups from a fixed table list.
type catalogConn struct {
	*dbtest.Conn
	tables map[string]*schema.TableInfo
}

func (c catalogConn) LookupTable(_ context.Context, name string) (*schema.TableInfo, error) {
	return c.tables[name], nil
}

type fakePool struct {
	conn database.Conn
	err  error
	stat pool.Stat
}

func (p *fakePool) Stat() pool.Stat { return p.stat }

func (p *fakePool) With(ctx context.Context, fn func(context.Context, database.Conn) error) error {
	if p.err != nil {
		return p.err
	}
	return fn(ctx, p.conn)
}

func newFakePool(tables map[string]*schema.TableInfo) *fakePool {
	return &fakePool{
		conn: catalogConn{Conn: dbtest.New(nil), tables: tables},
		stat: pool.Stat{Idle: 2, InUse: 1, Total: 3, Max: 10, Min: 1},
	}
}

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

var notesTable = &schema.TableInfo{Schema: "public", Name: "notes", Columns: []schema.ColumnInfo{
	{Name: "id", DataType: "bigint"},
	{Name: "body", DataType: "text"},
}}

func TestHealthz(t *testing.T) {
	p := newFakePool(nil)
	h := New(p, WithLogger(logger.Nop()))

	rec, body := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	p.conn.(catalogConn).FailPing(errors.New("connection reset"))
	rec, body = serve(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unavailable", body["status"])
	assert.Contains(t, body["error"], "connection reset")

	p.err = errs.New(errs.ErrKindPoolExhausted, "no connection available")
	rec, _ = serve(t, h, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPoolStat(t *testing.T) {
	h := New(newFakePool(nil), WithLogger(logger.Nop()))
	rec, body := serve(t, h, "/pool")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["idle"])
	assert.EqualValues(t, 1, body["in_use"])
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 10, body["max"])
}

func TestSchema(t *testing.T) {
	p := newFakePool(map[string]*schema.TableInfo{"notes": notesTable})
	h := New(p, WithLogger(logger.Nop()), WithTables(notes))

	rec, body := serve(t, h, "/schema")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])
	require.Len(t, body["results"], 1)

	rec, body = serve(t, h, "/schema/notes")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "notes", body["table"])

	rec, _ = serve(t, h, "/schema/unknown")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSchema_Invalid(t *testing.T) {
	p := newFakePool(map[string]*schema.TableInfo{"notes": {
		Schema: "public", Name: "notes",
		Columns: []schema.ColumnInfo{{Name: "id", DataType: "bigint"}},
	}})
	h := New(p, WithLogger(logger.Nop()), WithTables(notes))

	rec, body := serve(t, h, "/schema/notes")
	assert.Equal(t, http.StatusConflict, rec.Code)
	issues := body["errors"].([]any)
	require.Len(t, issues, 1)
	issue := issues[0].(map[string]any)
	assert.Equal(t, "column_not_found", issue["type"])
	assert.Equal(t, "body", issue["column"])

	lenient := New(p, WithLogger(logger.Nop()), WithTables(notes),
		WithValidator(schema.NewValidator(schema.Lenient, schema.WithLogger(logger.Nop()))))
	rec, body = serve(t, lenient, "/schema")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&logger.Config{Level: "info", Format: "json", Output: &buf})
	h := New(newFakePool(nil), WithLogger(log))

	serve(t, h, "/pool")
	assert.Contains(t, buf.String(), `"path":"/pool"`)
	assert.Contains(t, buf.String(), `"status":200`)
	assert.Contains(t, buf.String(), `"request_id"`)
}

func TestRealPool(t *testing.T) {
	cfg := database.DefaultConfig("postgres://fake")
	p, err := pool.New(context.Background(), cfg, func(context.Context) (database.Conn, error) {
		return dbtest.New(nil), nil
	}, pool.WithLogger(logger.Nop()))
	require.NoError(t, err)
	defer p.Close()

	rec, body := serve(t, New(p, WithLogger(logger.Nop())), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Zero(t, p.Stat().InUse)
}

// Package repository runs CRUD operations for one entity type over a
// database.Conn, combining the mapper, the SQL builder and, optionally,
// schema validation before every call.
//
// Usage:
//
//	users, err := repository.New[User](conn)
//	if err != nil {
//	    return err
//	}
//	saved, err := users.Save(ctx, User{Name: "alice"})
//	u, ok, err := users.FindByID(ctx, saved.ID)
package repository

import (
	"context"
	"time"

	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/logger"
	"github.com/koustreak/relmap/internal/mapper"
	"github.com/koustreak/relmap/internal/schema"
	"github.com/koustreak/relmap/internal/sqlbuilder"
	"github.com/koustreak/relmap/internal/types"
)

// Repository is bound to one connection. It is not safe for concurrent use
// because the connection it wraps is not.
type Repository[T any] struct {
	conn      database.Conn
	meta      *entity.Metadata[T]
	sql       *sqlbuilder.Builder[T]
	mapper    *mapper.Mapper[T]
	cfg       mapper.Config
	validator *schema.Validator
	log       *logger.Logger
}

type options struct {
	cfg       mapper.Config
	log       *logger.Logger
	validator *schema.Validator
}

// Option configures a Repository.
type Option func(*options)

// WithConfig replaces the default mapper configuration.
func WithConfig(cfg mapper.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger sets the logger for statements. Without it the logger in the
// call context is used.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithValidator overrides the validator built from the config's mode.
func WithValidator(v *schema.Validator) Option {
	return func(o *options) { o.validator = v }
}

// New builds a repository from the registered metadata of T.
func New[T any](conn database.Conn, opts ...Option) (*Repository[T], error) {
	meta, err := entity.Of[T]()
	if err != nil {
		return nil, err
	}
	return ForMetadata(conn, meta, opts...), nil
}

// ForMetadata builds a repository from explicit metadata.
func ForMetadata[T any](conn database.Conn, meta *entity.Metadata[T], opts ...Option) *Repository[T] {
	o := options{cfg: mapper.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	v := o.validator
	if v == nil {
		v = schema.NewValidator(o.cfg.ValidationMode, schema.WithLogger(o.log))
	}
	return &Repository[T]{
		conn:      conn,
		meta:      meta,
		sql:       sqlbuilder.New(meta),
		mapper:    mapper.New(meta, o.cfg),
		cfg:       o.cfg,
		validator: v,
		log:       o.log,
	}
}

func (r *Repository[T]) Conn() database.Conn             { return r.conn }
func (r *Repository[T]) Metadata() *entity.Metadata[T]   { return r.meta }
func (r *Repository[T]) Builder() *sqlbuilder.Builder[T] { return r.sql }
func (r *Repository[T]) Mapper() *mapper.Mapper[T]       { return r.mapper }

// Validate compares the entity with the live table.
func (r *Repository[T]) Validate(ctx context.Context) *schema.Result {
	return r.validator.Validate(ctx, r.conn, r.meta)
}

// guard runs schema validation first when the config asks for it.
func (r *Repository[T]) guard(ctx context.Context) error {
	if !r.cfg.AutoValidateSchema {
		return nil
	}
	return r.Validate(ctx).Err()
}

func (r *Repository[T]) logger(ctx context.Context) *logger.Logger {
	if r.log != nil {
		return r.log
	}
	return logger.FromContext(ctx)
}

func (r *Repository[T]) exec(ctx context.Context, sql string, params []types.Param) (*database.Result, error) {
	start := time.Now()
	res, err := r.conn.Execute(ctx, sql, params...)
	log := r.logger(ctx).With().
		Str("table", r.meta.TableName()).
		Str("sql", sql).
		Int("params", len(params)).
		Dur("elapsed", time.Since(start)).
		Logger()
	if err != nil {
		log.ErrorWith("statement failed", err, nil)
		return nil, err
	}
	log.Debug("statement executed")
	return res, nil
}

// Save inserts e and returns the row as stored, including server defaults
// and generated keys. The insert is rolled back if the returned row cannot
// be mapped, so a failed Save never leaves a row behind.
func (r *Repository[T]) Save(ctx context.Context, e T) (T, error) {
	if err := r.guard(ctx); err != nil {
		return e, err
	}
	saved := e
	err := r.atomically(ctx, func(ctx context.Context) error {
		var err error
		saved, err = r.insert(ctx, e)
		return err
	})
	if err != nil {
		return e, err
	}
	return saved, nil
}

func (r *Repository[T]) insert(ctx context.Context, e T) (T, error) {
	res, err := r.exec(ctx, r.sql.InsertSQL(false), r.sql.InsertParams(&e, false))
	if err != nil {
		return e, err
	}
	saved, ok, err := r.mapper.MapOne(res)
	if err != nil {
		return e, err
	}
	if !ok {
		return e, errs.Newf(errs.ErrKindDatabase, "insert into %s returned no row", r.meta.TableName())
	}
	return saved, nil
}

// SaveAll inserts every entity in one transaction. Nothing is written if
// any insert fails. Inside an existing transaction the caller owns it.
func (r *Repository[T]) SaveAll(ctx context.Context, es []T) ([]T, error) {
	if err := r.guard(ctx); err != nil {
		return nil, err
	}
	saved := make([]T, 0, len(es))
	err := r.atomically(ctx, func(ctx context.Context) error {
		for _, e := range es {
			s, err := r.insert(ctx, e)
			if err != nil {
				return err
			}
			saved = append(saved, s)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *Repository[T]) atomically(ctx context.Context, fn func(context.Context) error) error {
	if r.conn.InTransaction() {
		return fn(ctx)
	}
	return database.InTx(ctx, r.conn, fn)
}

// FindByID loads the entity with the given key. The key is either one
// entity.Key or the key values in column order.
func (r *Repository[T]) FindByID(ctx context.Context, key ...any) (T, bool, error) {
	var zero T
	if err := r.guard(ctx); err != nil {
		return zero, false, err
	}
	sql, err := r.sql.SelectByIDSQL()
	if err != nil {
		return zero, false, err
	}
	params, err := r.sql.KeyParams(entity.NormalizeKey(key))
	if err != nil {
		return zero, false, err
	}
	res, err := r.exec(ctx, sql, params)
	if err != nil {
		return zero, false, err
	}
	return r.mapper.MapOne(res)
}

func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	if err := r.guard(ctx); err != nil {
		return nil, err
	}
	res, err := r.exec(ctx, r.sql.SelectAllSQL(), nil)
	if err != nil {
		return nil, err
	}
	return r.mapper.MapAll(res)
}

// Find runs a query built with Select and maps every row.
func (r *Repository[T]) Find(ctx context.Context, q *sqlbuilder.SelectBuilder) ([]T, error) {
	if err := r.guard(ctx); err != nil {
		return nil, err
	}
	sql, params, err := q.Build()
	if err != nil {
		return nil, err
	}
	res, err := r.exec(ctx, sql, params)
	if err != nil {
		return nil, err
	}
	return r.mapper.MapAll(res)
}

// Select starts a query against the repository's table for use with Find.
func (r *Repository[T]) Select() *sqlbuilder.SelectBuilder {
	return r.sql.Select()
}

func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	if err := r.guard(ctx); err != nil {
		return 0, err
	}
	res, err := r.exec(ctx, r.sql.CountSQL(), nil)
	if err != nil {
		return 0, err
	}
	row, ok := res.First()
	if !ok || row.Len() == 0 {
		return 0, errs.Newf(errs.ErrKindDatabase, "count on %s returned no row", r.meta.TableName())
	}
	n, err := types.DecodeNull(types.Int64, row.Value(0))
	if err != nil {
		return 0, err
	}
	return n.V, nil
}

func (r *Repository[T]) ExistsByID(ctx context.Context, key ...any) (bool, error) {
	if err := r.guard(ctx); err != nil {
		return false, err
	}
	sql, err := r.sql.ExistsByIDSQL()
	if err != nil {
		return false, err
	}
	params, err := r.sql.KeyParams(entity.NormalizeKey(key))
	if err != nil {
		return false, err
	}
	res, err := r.exec(ctx, sql, params)
	if err != nil {
		return false, err
	}
	return !res.Empty(), nil
}

// Update writes every non-key column of e and returns the stored row.
// It fails with NotFound when no row has e's key.
func (r *Repository[T]) Update(ctx context.Context, e T) (T, error) {
	if err := r.guard(ctx); err != nil {
		return e, err
	}
	sql, err := r.sql.UpdateSQL()
	if err != nil {
		return e, err
	}
	params, err := r.sql.UpdateParams(&e)
	if err != nil {
		return e, err
	}
	var updated T
	err = r.atomically(ctx, func(ctx context.Context) error {
		res, err := r.exec(ctx, sql, params)
		if err != nil {
			return err
		}
		var ok bool
		if updated, ok, err = r.mapper.MapOne(res); err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.ErrKindNotFound, "update %s: no row matches the key", r.meta.TableName())
		}
		return nil
	})
	if err != nil {
		return e, err
	}
	return updated, nil
}

// Remove deletes the row with e's key and returns the number of rows removed.
func (r *Repository[T]) Remove(ctx context.Context, e T) (int64, error) {
	if err := r.guard(ctx); err != nil {
		return 0, err
	}
	params, err := r.sql.EntityKeyParams(&e)
	if err != nil {
		return 0, err
	}
	return r.delete(ctx, params)
}

func (r *Repository[T]) RemoveByID(ctx context.Context, key ...any) (int64, error) {
	if err := r.guard(ctx); err != nil {
		return 0, err
	}
	params, err := r.sql.KeyParams(entity.NormalizeKey(key))
	if err != nil {
		return 0, err
	}
	return r.delete(ctx, params)
}

// RemoveAll deletes every entity in one transaction and returns the total
// number of rows removed.
func (r *Repository[T]) RemoveAll(ctx context.Context, es []T) (int64, error) {
	if err := r.guard(ctx); err != nil {
		return 0, err
	}
	var total int64
	err := r.atomically(ctx, func(ctx context.Context) error {
		for i := range es {
			params, err := r.sql.EntityKeyParams(&es[i])
			if err != nil {
				return err
			}
			n, err := r.delete(ctx, params)
			if err != nil {
				return err
			}
			total += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *Repository[T]) delete(ctx context.Context, keys []types.Param) (int64, error) {
	sql, err := r.sql.DeleteSQL()
	if err != nil {
		return 0, err
	}
	res, err := r.exec(ctx, sql, keys)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}

// Query runs raw parameterized SQL and maps every row to T.
// Arguments are rendered with types.EncodeAny.
func (r *Repository[T]) Query(ctx context.Context, sql string, args ...any) ([]T, error) {
	res, err := r.query(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	return r.mapper.MapAll(res)
}

// QueryOne is Query restricted to the first row.
func (r *Repository[T]) QueryOne(ctx context.Context, sql string, args ...any) (T, bool, error) {
	var zero T
	res, err := r.query(ctx, sql, args)
	if err != nil {
		return zero, false, err
	}
	return r.mapper.MapOne(res)
}

func (r *Repository[T]) query(ctx context.Context, sql string, args []any) (*database.Result, error) {
	if err := r.guard(ctx); err != nil {
		return nil, err
	}
	params, err := types.EncodeAll(args)
	if err != nil {
		return nil, err
	}
	return r.exec(ctx, sql, params)
}

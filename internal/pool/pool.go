// Package pool keeps a bounded set of database connections on top of
// jackc/puddle. Acquire blocks until a connection is free or the acquire
// timeout elapses; broken connections are closed and replaced.
//
// Usage:
//
//	p, err := pool.New(ctx, cfg, postgres.Connector(cfg))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//	defer conn.Release()
package pool

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/puddle/v2"
	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/errs"
	"github.com/koustreak/relmap/internal/logger"
)

// Connector opens one physical connection.
type Connector func(ctx context.Context) (database.Conn, error)

// Pool is safe for concurrent use.
type Pool struct {
	res  *puddle.Pool[database.Conn]
	cfg  database.Config
	log  *logger.Logger
	open Connector
}

// Option configures a Pool.
type Option func(*Pool)

func WithLogger(l *logger.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// New validates cfg, builds the pool and opens MinConns connections up front.
func New(ctx context.Context, cfg *database.Config, connect Connector, opts ...Option) (*Pool, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindConfiguration, "pool config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if connect == nil {
		return nil, errs.New(errs.ErrKindConfiguration, "pool connector is required")
	}

	p := &Pool{cfg: *cfg, open: connect, log: logger.Global()}
	for _, opt := range opts {
		opt(p)
	}

	res, err := puddle.NewPool(&puddle.Config[database.Conn]{
		Constructor: p.construct,
		Destructor:  p.destruct,
		MaxSize:     cfg.MaxConns,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConfiguration, "create pool", err)
	}
	p.res = res

	for i := int32(0); i < cfg.MinConns; i++ {
		if err := res.CreateResource(ctx); err != nil {
			res.Close()
			return nil, p.connectError(err)
		}
	}

	p.log.With().
		Int("min_conns", int(cfg.MinConns)).
		Int("max_conns", int(cfg.MaxConns)).
		Logger().Info("connection pool ready")
	return p, nil
}

func (p *Pool) construct(ctx context.Context) (database.Conn, error) {
	if p.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		defer cancel()
	}
	conn, err := p.open(ctx)
	if err != nil {
		p.log.ErrorWith("failed to open connection", err, nil)
		return nil, err
	}
	return conn, nil
}

func (p *Pool) destruct(conn database.Conn) {
	ctx, cancel := p.cleanupContext()
	defer cancel()
	if err := conn.Close(ctx); err != nil {
		p.log.WarnWith("failed to close connection", map[string]interface{}{"error": err.Error()})
	}
}

func (p *Pool) cleanupContext() (context.Context, context.CancelFunc) {
	d := p.cfg.ConnectTimeout
	if d <= 0 {
		d = 5 * time.Second
	}
	return context.WithTimeout(context.Background(), d)
}

// Acquire waits up to the configured AcquireTimeout for a connection.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	return p.AcquireTimeout(ctx, p.cfg.AcquireTimeout)
}

// AcquireTimeout waits up to d for a connection; d <= 0 waits until ctx ends.
// Running out of time gives a PoolExhausted error.
func (p *Pool) AcquireTimeout(ctx context.Context, d time.Duration) (*Conn, error) {
	if d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	// Each failed probe closes one connection and tops the pool back up to
	// MinConns; give up once every slot has been tried so a dead server
	// cannot spin here.
	for attempt := int32(0); attempt <= p.cfg.MaxConns; attempt++ {
		res, err := p.res.Acquire(ctx)
		if err != nil {
			return nil, p.acquireError(ctx, d, err)
		}
		if p.healthy(ctx, res) {
			return &Conn{pool: p, res: res, conn: res.Value()}, nil
		}
		p.discard(res, "failed health check")
		p.replenish()
	}
	return nil, errs.New(errs.ErrKindConnectionFailed, "no healthy connection available")
}

// healthy probes idle-expired connections, or every connection when
// ValidateOnAcquire is set.
func (p *Pool) healthy(ctx context.Context, res *puddle.Resource[database.Conn]) bool {
	conn := res.Value()
	if !conn.IsConnected() {
		return false
	}
	stale := p.cfg.MaxConnIdleTime > 0 && res.IdleDuration() >= p.cfg.MaxConnIdleTime
	if !p.cfg.ValidateOnAcquire && !stale {
		return true
	}
	return conn.Ping(ctx) == nil
}

// discard takes res out of the pool and closes it before returning, so the
// slot is free for a replacement immediately.
func (p *Pool) discard(res *puddle.Resource[database.Conn], reason string) {
	conn := res.Value()
	res.Hijack()
	p.destruct(conn)
	p.log.WarnWith("discarded pooled connection", map[string]interface{}{"reason": reason})
}

// replenish tops the pool back up to MinConns.
func (p *Pool) replenish() {
	ctx, cancel := p.cleanupContext()
	defer cancel()
	for p.res.Stat().TotalResources() < p.cfg.MinConns {
		if err := p.res.CreateResource(ctx); err != nil {
			if !errors.Is(err, puddle.ErrNotAvailable) && !errors.Is(err, puddle.ErrClosedPool) {
				p.log.ErrorWith("failed to replace connection", err, nil)
			}
			return
		}
	}
}

func (p *Pool) acquireError(ctx context.Context, d time.Duration, err error) error {
	switch {
	case errors.Is(err, puddle.ErrClosedPool):
		return errs.New(errs.ErrKindConnectionFailed, "pool is closed")
	case errors.Is(err, context.DeadlineExceeded):
		p.log.WarnWith("connection pool exhausted", map[string]interface{}{
			"max_conns": p.cfg.MaxConns,
			"waited":    d.String(),
		})
		return errs.Wrap(errs.ErrKindPoolExhausted,
			"no connection available within "+d.String(), err)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return errs.Wrap(errs.ErrKindTimeout, "acquire canceled", err)
	}
	return p.connectError(err)
}

func (p *Pool) connectError(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, puddle.ErrClosedPool) {
		return errs.New(errs.ErrKindConnectionFailed, "pool is closed")
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, "open connection", err)
}

// With acquires a connection, runs fn and releases the connection.
func (p *Pool) With(ctx context.Context, fn func(ctx context.Context, conn database.Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return fn(ctx, conn)
}

// Stat is a point-in-time snapshot of pool usage.
type Stat struct {
	Idle           int32         `json:"idle"`
	InUse          int32         `json:"in_use"`
	Constructing   int32         `json:"constructing"`
	Total          int32         `json:"total"`
	Max            int32         `json:"max"`
	Min            int32         `json:"min"`
	Acquires       int64         `json:"acquires"`
	EmptyAcquires  int64         `json:"empty_acquires"`
	CanceledWaits  int64         `json:"canceled_waits"`
	AcquireWaiting time.Duration `json:"acquire_wait_ns"`
}

func (p *Pool) Stat() Stat {
	s := p.res.Stat()
	return Stat{
		Idle:           s.IdleResources(),
		InUse:          s.AcquiredResources(),
		Constructing:   s.ConstructingResources(),
		Total:          s.TotalResources(),
		Max:            s.MaxResources(),
		Min:            p.cfg.MinConns,
		Acquires:       s.AcquireCount(),
		EmptyAcquires:  s.EmptyAcquireCount(),
		CanceledWaits:  s.CanceledAcquireCount(),
		AcquireWaiting: s.EmptyAcquireWaitTime(),
	}
}

// Close closes idle connections and rejects further acquires. It blocks
// until every borrowed connection has been released.
func (p *Pool) Close() {
	p.res.Close()
	p.log.Info("connection pool closed")
}

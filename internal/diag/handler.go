// Package diag serves pool statistics, a health probe and on-demand schema
// validation over HTTP.
//
//	GET /healthz          ping through a pooled connection
//	GET /pool             pool statistics
//	GET /schema           validate every registered table
//	GET /schema/{table}   validate one table
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/koustreak/relmap/internal/database"
	"github.com/koustreak/relmap/internal/entity"
	"github.com/koustreak/relmap/internal/logger"
	"github.com/koustreak/relmap/internal/pool"
	"github.com/koustreak/relmap/internal/schema"
)

// Pool is the part of *pool.Pool the handler needs.
type Pool interface {
	Stat() pool.Stat
	With(ctx context.Context, fn func(ctx context.Context, conn database.Conn) error) error
}

type Handler struct {
	pool      Pool
	validator *schema.Validator
	tables    map[string]entity.Table
	log       *logger.Logger
	router    chi.Router
}

type Option func(*Handler)

func WithLogger(l *logger.Logger) Option {
	return func(h *Handler) { h.log = l }
}

// WithTables registers tables for /schema.
func WithTables(tables ...entity.Table) Option {
	return func(h *Handler) {
		for _, t := range tables {
			h.tables[t.TableName()] = t
		}
	}
}

// WithValidator sets the validator used by /schema. Defaults to strict.
func WithValidator(v *schema.Validator) Option {
	return func(h *Handler) { h.validator = v }
}

func New(p Pool, opts ...Option) *Handler {
	h := &Handler{
		pool:   p,
		tables: make(map[string]entity.Table),
		log:    logger.Global(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.validator == nil {
		h.validator = schema.NewValidator(schema.Strict, schema.WithLogger(h.log))
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(h.log))

	r.Get("/healthz", h.health)
	r.Get("/pool", h.poolStat)
	r.Route("/schema", func(r chi.Router) {
		r.Get("/", h.validateAll)
		r.Get("/{table}", h.validateOne)
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	err := h.pool.With(r.Context(), func(ctx context.Context, conn database.Conn) error {
		return conn.Ping(ctx)
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *Handler) poolStat(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Stat())
}

type schemaReport struct {
	Valid   bool             `json:"valid"`
	Results []*schema.Result `json:"results"`
}

func (h *Handler) validateAll(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.tables))
	for name := range h.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	report := schemaReport{Valid: true, Results: make([]*schema.Result, 0, len(names))}
	err := h.pool.With(r.Context(), func(ctx context.Context, conn database.Conn) error {
		for _, name := range names {
			res := h.validator.Validate(ctx, conn, h.tables[name])
			report.Valid = report.Valid && res.IsValid()
			report.Results = append(report.Results, res)
		}
		return nil
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, statusFor(report.Valid), report)
}

func (h *Handler) validateOne(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "table")
	table, ok := h.tables[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "table not registered: " + name})
		return
	}
	var res *schema.Result
	err := h.pool.With(r.Context(), func(ctx context.Context, conn database.Conn) error {
		res = h.validator.Validate(ctx, conn, table)
		return nil
	})
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, statusFor(res.IsValid()), res)
}

func statusFor(valid bool) int {
	if valid {
		return http.StatusOK
	}
	return http.StatusConflict
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func accessLog(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.HTTPEvent().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("diag request")
		})
	}
}

// Serve runs h on addr until ctx is canceled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

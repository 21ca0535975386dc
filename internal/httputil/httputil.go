package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"insight-agents/internal/app"
	"insight-agents/internal/orchestrator"
	"insight-agents/internal/parser"
	"insight-agents/internal/store"
)

// MIMEMsgpack is the Accept value that selects a msgpack response body.
const MIMEMsgpack = "application/msgpack"

// NewRouter creates a chi router with standard middleware (RequestID, Recoverer, Logger, Timeout, RealIP).
func NewRouter(log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(Recoverer(log))
	r.Use(RequestLogger(log))

	return r
}

// WriteJSON writes a JSON response with proper headers.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(body)
}

// Respond writes body as msgpack when the client asks for it and as JSON otherwise.
// Struct fields keep their json names in both encodings.
func Respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	if !strings.Contains(r.Header.Get("Accept"), MIMEMsgpack) {
		WriteJSON(w, status, body)
		return
	}
	w.Header().Set("Content-Type", MIMEMsgpack)
	w.WriteHeader(status)
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)
	_ = enc.Encode(toPlain(body))
}

// toPlain round-trips body through JSON so custom MarshalJSON methods shape the msgpack output too.
// Numbers keep integer precision.
func toPlain(body any) any {
	b, err := json.Marshal(body)
	if err != nil {
		return body
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return body
	}
	return plainNumbers(v)
}

func plainNumbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = plainNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = plainNumbers(e)
		}
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(t.String(), 10, 64); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}

var started = time.Now()

// HealthHandler returns a simple liveness endpoint.
func HealthHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadinessHandler pings the store and reports its latency. It answers 503 when the store is unreachable.
func ReadinessHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		start := time.Now()
		err := deps.Store.Ping(ctx)
		body := map[string]any{
			"status":           "ok",
			"timestamp":        time.Now().UTC(),
			"uptime_seconds":   int64(time.Since(started).Seconds()),
			"model_configured": deps.LLM != nil,
		}
		if err != nil {
			deps.Log.Warn("store ping failed", "err", err)
			body["status"] = "degraded"
			body["store"] = map[string]any{"provider": deps.Config.StoreProvider, "status": "failed", "error": err.Error()}
			WriteJSON(w, http.StatusServiceUnavailable, body)
			return
		}
		body["store"] = map[string]any{
			"provider":   deps.Config.StoreProvider,
			"status":     "ok",
			"latency_ms": time.Since(start).Milliseconds(),
		}
		WriteJSON(w, http.StatusOK, body)
	}
}

// ServeHealth runs a health-only server for worker processes until ctx ends.
func ServeHealth(ctx context.Context, deps app.Deps, addr string) error {
	r := chi.NewRouter()
	r.Get("/health", HealthHandler(deps))
	r.Get("/api/health", ReadinessHandler(deps))
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// RequestLogger is a lightweight HTTP logger that uses slog.
func RequestLogger(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Recoverer logs panics via slog while preserving chi's Recoverer behavior.
func Recoverer(log *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("panic recovered", "panic", rec, "path", r.URL.Path, "method", r.Method, "request_id", middleware.GetReqID(r.Context()))
					WriteJSON(w, http.StatusInternalServerError, errorBody{Error: http.StatusText(http.StatusInternalServerError)})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// Fail writes an error response with consistent logging. A zero status is derived from err.
// Client errors carry err's text as detail; server errors do not.
func Fail(log *slog.Logger, w http.ResponseWriter, message string, err error, status int) {
	if status == 0 {
		status = StatusFor(err)
	}
	body := errorBody{Error: message}
	if status >= http.StatusInternalServerError {
		log.Error(message, "err", err, "status", status)
	} else {
		log.Warn(message, "err", err, "status", status)
		if err != nil {
			body.Detail = err.Error()
		}
	}
	WriteJSON(w, status, body)
}

// StatusFor maps domain errors to HTTP status codes.
func StatusFor(err error) int {
	var (
		parseErr *parser.ParseError
		tooLarge *http.MaxBytesError
		invalid  validator.ValidationErrors
		badParam *ParamError
	)
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, parser.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &parseErr), errors.As(err, &invalid), errors.As(err, &badParam):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ParamError reports a malformed path or query parameter.
type ParamError struct {
	Name  string
	Value string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Name, e.Value)
}

// IDParam reads the {id} path parameter as a UUID.
func IDParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &ParamError{Name: "id", Value: raw}
	}
	return id, nil
}

// Page holds validated pagination parameters.
type Page struct {
	Limit  int `validate:"min=1,max=500"`
	Offset int `validate:"min=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// PageParams reads limit and offset from the query string. Absent values fall back to defaultLimit and 0.
func PageParams(r *http.Request, defaultLimit int) (Page, error) {
	p := Page{Limit: defaultLimit}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Page{}, &ParamError{Name: name, Value: raw}
		}
		*dst = n
	}
	if err := validate.Struct(p); err != nil {
		return Page{}, err
	}
	return p, nil
}

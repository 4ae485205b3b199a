// Package api exposes the task journal over HTTP: entry classification,
// task CRUD, list filtering, dashboard statistics and a websocket change
// stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/c360studio/taskjournal/feed"
	"github.com/c360studio/taskjournal/journal"
	"github.com/c360studio/taskjournal/metrics"
	"github.com/c360studio/taskjournal/storage"
	"github.com/c360studio/taskjournal/tasks"
	"github.com/c360studio/taskjournal/taskstore"
)

// maxRequestBodySize limits POST/PATCH body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

// Store is the read side of persistence the handlers need.
type Store interface {
	List(ctx context.Context, order storage.Order) ([]tasks.Task, error)
	Get(ctx context.Context, id string) (*tasks.Task, error)
	Ping(ctx context.Context) error
	Subscribe(fn func(tasks.ChangeKind, tasks.Task)) (feed.Subscription, error)
}

// Handler serves the HTTP API.
type Handler struct {
	journal  *journal.Service
	store    Store
	working  *taskstore.Store
	metrics  *metrics.Metrics
	limiter  *rate.Limiter
	location *time.Location
	logger   *slog.Logger
	stream   streamConfig
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithWorkingSet serves list and option queries from an in-memory task store
// kept current by the change feed, instead of querying the database.
func WithWorkingSet(s *taskstore.Store) Option {
	return func(h *Handler) {
		h.working = s
	}
}

// WithAnalyzeLimit caps classification requests per second. A zero limit
// disables limiting.
func WithAnalyzeLimit(perSecond float64, burst int) Option {
	return func(h *Handler) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// WithLocation sets the default zone for dashboard day buckets.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) {
		h.location = loc
	}
}

// New creates the API handler.
func New(j *journal.Service, store Store, opts ...Option) *Handler {
	h := &Handler{
		journal:  j,
		store:    store,
		location: time.Local,
		logger:   slog.Default(),
		stream:   defaultStreamConfig(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterHTTPHandlers registers every route on mux:
//
//	POST   /api/analyze-task
//	GET    /api/tasks
//	POST   /api/tasks
//	GET    /api/tasks/options
//	GET    /api/tasks/stream
//	GET    /api/tasks/{id}
//	PATCH  /api/tasks/{id}
//	DELETE /api/tasks/{id}
//	POST   /api/tasks/{id}/complete
//	POST   /api/tasks/{id}/log-now
//	GET    /api/stats
//	GET    /healthz
//	GET    /metrics
func (h *Handler) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze-task", h.handleAnalyze)
	mux.HandleFunc("GET /api/tasks", h.handleListTasks)
	mux.HandleFunc("POST /api/tasks", h.handleCreateTask)
	mux.HandleFunc("GET /api/tasks/options", h.handleOptions)
	mux.HandleFunc("GET /api/tasks/stream", h.handleStream)
	mux.HandleFunc("GET /api/tasks/{id}", h.handleGetTask)
	mux.HandleFunc("PATCH /api/tasks/{id}", h.handlePatchTask)
	mux.HandleFunc("DELETE /api/tasks/{id}", h.handleDeleteTask)
	mux.HandleFunc("POST /api/tasks/{id}/complete", h.handleComplete)
	mux.HandleFunc("POST /api/tasks/{id}/log-now", h.handleLogNow)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics.Handler())
	}
}

// Routes returns a fully wired, instrumented handler.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterHTTPHandlers(mux)
	return h.instrument(mux)
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("Health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeActionError maps a journal or storage error to a status code.
func (h *Handler) writeActionError(w http.ResponseWriter, r *http.Request, err error) {
	out := journal.Describe(err)

	status := http.StatusInternalServerError
	switch out.Class {
	case journal.ClassValidation:
		status = http.StatusBadRequest
	case journal.ClassConstraintViolation:
		status = http.StatusUnprocessableEntity
	case journal.ClassNotFound:
		status = http.StatusNotFound
	case journal.ClassUnavailable:
		status = http.StatusServiceUnavailable
	}

	if status >= 500 {
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, ErrorResponse{Error: out.Message, Details: err.Error()})
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing useful to do with an encode error.
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	return nil
}

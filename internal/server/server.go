// Package server exposes the course progress HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/p-n-ai/pai-course/internal/assistant"
	"github.com/p-n-ai/pai-course/internal/content"
	"github.com/p-n-ai/pai-course/internal/navigator"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/session"
	"github.com/p-n-ai/pai-course/internal/viewer"
)

const (
	healthTimeout    = 2 * time.Second
	assistantTimeout = 30 * time.Second
)

// HealthChecker is a dependency probed by /readyz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server holds the API dependencies.
type Server struct {
	catalog    content.Catalog
	tracker    *progress.Tracker
	viewer     *viewer.Viewer
	verifier   *session.Verifier
	assistants *assistant.Pool
	checks     map[string]HealthChecker
}

// Option configures a Server.
type Option func(*Server)

// WithHealthCheck adds a dependency to /readyz.
func WithHealthCheck(name string, c HealthChecker) Option {
	return func(s *Server) { s.checks[name] = c }
}

// WithAssistant enables the assistant route.
func WithAssistant(p *assistant.Pool) Option {
	return func(s *Server) { s.assistants = p }
}

// New creates a server.
func New(catalog content.Catalog, tracker *progress.Tracker, verifier *session.Verifier, opts ...Option) *Server {
	s := &Server{
		catalog:  catalog,
		tracker:  tracker,
		viewer:   viewer.New(catalog, tracker),
		verifier: verifier,
		checks:   make(map[string]HealthChecker),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	api := http.NewServeMux()
	api.HandleFunc("GET /v1/courses", s.handleListCourses)
	api.HandleFunc("GET /v1/courses/{courseID}", s.handleGetCourse)
	api.HandleFunc("GET /v1/courses/{courseID}/continue", s.handleContinue)
	api.HandleFunc("GET /v1/courses/{courseID}/progress", s.handleGetProgress)
	api.HandleFunc("GET /v1/courses/{courseID}/report.xlsx", s.handleReport)
	api.HandleFunc("GET /v1/courses/{courseID}/modules/{moduleID}/lessons/{lessonID}", s.handleGetLesson)
	api.HandleFunc("GET /v1/courses/{courseID}/modules/{moduleID}/lessons/{lessonID}/next", s.handleNeighbour(true))
	api.HandleFunc("GET /v1/courses/{courseID}/modules/{moduleID}/lessons/{lessonID}/prev", s.handleNeighbour(false))
	api.HandleFunc("POST /v1/courses/{courseID}/modules/{moduleID}/lessons/{lessonID}/complete", s.handleCompleteLesson)
	api.HandleFunc("POST /v1/courses/{courseID}/assessments/{assessmentID}/complete", s.handleCompleteAssessment)
	api.HandleFunc("POST /v1/courses/{courseID}/assistant", s.handleAskAssistant)
	mux.Handle("/v1/", session.Middleware(s.verifier, func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, err)
	})(api))

	return logRequests(mux)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	failed := map[string]string{}
	for name, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		err := c.HealthCheck(ctx)
		cancel()
		if err != nil {
			slog.Warn("readiness check failed", "check", name, "error", err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not ready", "failed": failed})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorStatus maps domain errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, errForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, content.ErrCourseNotFound):
		return http.StatusNotFound, "course_not_found"
	case errors.Is(err, navigator.ErrPositionNotFound):
		return http.StatusNotFound, "lesson_not_found"
	case errors.Is(err, errEndOfCourse):
		return http.StatusNotFound, "end_of_course"
	case errors.Is(err, errStartOfCourse):
		return http.StatusNotFound, "start_of_course"
	case errors.Is(err, navigator.ErrNotResumable):
		return http.StatusConflict, "not_resumable"
	case errors.Is(err, progress.ErrNotFound):
		return http.StatusNotFound, "progress_not_found"
	case errors.Is(err, progress.ErrProgressUnavailable):
		return http.StatusServiceUnavailable, "progress_unavailable"
	case errors.Is(err, progress.ErrListUnsupported):
		return http.StatusNotImplemented, "report_unsupported"
	case errors.Is(err, viewer.ErrSuperseded):
		return http.StatusConflict, "superseded"
	case errors.Is(err, assistant.ErrNotConnected), errors.Is(err, errAssistantDisabled):
		return http.StatusServiceUnavailable, "assistant_unavailable"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response", "error", err)
		http.Error(w, `{"error":{"code":"internal","message":"internal error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/civicconnect/civic/internal/classify"
	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/ratelimit"
	"github.com/civicconnect/civic/internal/session"
	"github.com/civicconnect/civic/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store      store.Store
	tracker    *issues.Tracker
	tokens     *session.TokenIssuer
	limiter    ratelimit.Limiter
	classifier *classify.Classifier
}

// NewServer creates a new API server.
// limiter and classifier may be nil: submissions are then unlimited and
// category suggestions use keywords only.
func NewServer(s store.Store, tr *issues.Tracker, tokens *session.TokenIssuer, limiter ratelimit.Limiter, cl *classify.Classifier) *Server {
	if limiter == nil {
		limiter = ratelimit.Nop{}
	}
	if cl == nil {
		cl = classify.New(nil, nil)
	}
	return &Server{
		store:      s,
		tracker:    tr,
		tokens:     tokens,
		limiter:    limiter,
		classifier: cl,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/healthz", s.healthz)
	mux.HandleFunc("POST /api/v1/login", s.login)
	mux.HandleFunc("GET /api/v1/categories", s.listCategories)

	mux.HandleFunc("GET /api/v1/me", s.authed(s.me))
	mux.HandleFunc("GET /api/v1/issues", s.authed(s.listIssues))
	mux.HandleFunc("POST /api/v1/issues", s.authed(s.createIssue))
	mux.HandleFunc("GET /api/v1/issues/{id}", s.authed(s.getIssue))
	mux.HandleFunc("POST /api/v1/issues/{id}/assign", s.authed(s.assignIssue))
	mux.HandleFunc("POST /api/v1/issues/{id}/resolve", s.authed(s.resolveIssue))
	mux.HandleFunc("GET /api/v1/stats", s.authed(s.stats))
	mux.HandleFunc("GET /api/v1/dashboard", s.authed(s.dashboard))
	mux.HandleFunc("POST /api/v1/classify", s.authed(s.classify))

	mux.HandleFunc("GET /api/v1/admin/issues", s.authed(s.adminIssues))
	mux.HandleFunc("GET /api/v1/users", s.authed(s.listUsers))

	return requestLogger(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with an id and logs it on completion.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = ulid.Make().String()
		}
		w.Header().Set("X-Request-ID", id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		slog.Info("request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

// authed resolves the bearer token into a session before calling h.
func (s *Server) authed(h func(http.ResponseWriter, *http.Request, models.Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess, err := s.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h(w, r.WithContext(session.NewContext(r.Context(), sess)), sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type validationBody struct {
	Error  string              `json:"error"`
	Fields []issues.FieldError `json:"fields"`
}

// writeErr maps domain errors onto HTTP status codes.
func writeErr(w http.ResponseWriter, err error) {
	var ve *issues.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, validationBody{Error: ve.Error(), Fields: ve.Fields})
	case errors.Is(err, issues.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, issues.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, issues.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func fieldError(field, msg string) error {
	return &issues.ValidationError{Fields: []issues.FieldError{{Field: field, Message: msg}}}
}

func pathID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		return 0, fieldError("id", "must be a positive integer")
	}
	return id, nil
}

// queryFromRequest reads issue filters from URL parameters. Enum values are
// checked by the tracker.
func queryFromRequest(r *http.Request) issues.Query {
	q := r.URL.Query()
	return issues.Query{
		IssueListFilter: store.IssueListFilter{
			Status:            models.IssueStatus(q.Get("status")),
			Category:          models.IssueCategory(q.Get("category")),
			Search:            q.Get("search"),
			Location:          q.Get("location"),
			ReportedBy:        q.Get("reported_by"),
			ExcludeReportedBy: q.Get("exclude_reported_by"),
		},
		Tab: models.Tab(q.Get("tab")),
	}
}

package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/session"
)

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Session ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"` // accepted but not checked
	Role     string `json:"role"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Role == "" {
		req.Role = string(models.RoleUser)
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		writeErr(w, fieldError("role", err.Error()))
		return
	}

	sess, err := session.Login(r.Context(), s.store, req.Email, role)
	if err != nil {
		writeErr(w, err)
		return
	}
	token, exp, err := s.tokens.Issue(sess)
	if err != nil {
		writeErr(w, fmt.Errorf("issue token: %w", err))
		return
	}
	slog.Info("login", "user", sess.UserID(), "role", sess.User.Role)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: exp, User: sess.User})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, sess models.Session) {
	writeJSON(w, http.StatusOK, sess.User)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request, sess models.Session) {
	if !sess.IsAdmin() {
		writeErr(w, fmt.Errorf("list users: %w", issues.ErrForbidden))
		return
	}
	users, err := s.store.ListUsers(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// --- Issues ---

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Categories())
}

func (s *Server) listIssues(w http.ResponseWriter, r *http.Request, _ models.Session) {
	list, err := s.tracker.Query(r.Context(), queryFromRequest(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if list == nil {
		list = []*models.Issue{}
	}
	writeJSON(w, http.StatusOK, list)
}

type createIssueRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Location    string   `json:"location"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Image       string   `json:"image,omitempty"`
}

func (req createIssueRequest) input(reporter string) issues.CreateInput {
	location := req.Location
	if strings.TrimSpace(location) == "" && req.Latitude != nil && req.Longitude != nil {
		location = models.FormatCoordinates(*req.Latitude, *req.Longitude)
	}
	return issues.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    models.IssueCategory(req.Category),
		Location:    location,
		ReportedBy:  reporter,
		Image:       req.Image,
	}
}

func (s *Server) createIssue(w http.ResponseWriter, r *http.Request, sess models.Session) {
	var req createIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	in := req.input(sess.UserID())
	if err := in.Validate(); err != nil {
		writeErr(w, err)
		return
	}

	// Only well-formed submissions count against the limit. A limiter
	// outage lets the submission through.
	d, err := s.limiter.Allow(r.Context(), sess.UserID())
	if err != nil {
		slog.Warn("rate limiter unavailable", "user", sess.UserID(), "error", err)
	} else if !d.Allowed {
		secs := int(math.Ceil(d.RetryAfter.Seconds()))
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "rate limit exceeded",
			"limit":       d.Limit,
			"retry_after": secs,
		})
		return
	}

	issue, err := s.tracker.ReportAs(r.Context(), sess, in)
	if err != nil {
		if d.Allowed {
			if rerr := s.limiter.Release(r.Context(), sess.UserID()); rerr != nil {
				slog.Warn("rate limit slot not released", "user", sess.UserID(), "error", rerr)
			}
		}
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) getIssue(w http.ResponseWriter, r *http.Request, _ models.Session) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	issue, err := s.tracker.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) assignIssue(w http.ResponseWriter, r *http.Request, sess models.Session) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	issue, err := s.tracker.AssignAs(r.Context(), sess, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) resolveIssue(w http.ResponseWriter, r *http.Request, sess models.Session) {
	id, err := pathID(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	issue, err := s.tracker.ResolveAs(r.Context(), sess, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

// --- Views ---

func (s *Server) stats(w http.ResponseWriter, r *http.Request, sess models.Session) {
	var q issues.Query
	switch scope := r.URL.Query().Get("scope"); scope {
	case "", "all":
	case "mine":
		q.ReportedBy = sess.UserID()
	default:
		writeErr(w, fieldError("scope", fmt.Sprintf("unknown scope %q (use: all, mine)", scope)))
		return
	}
	st, err := s.tracker.Stats(r.Context(), q)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request, sess models.Session) {
	d, err := s.tracker.Dashboard(r.Context(), sess)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) adminIssues(w http.ResponseWriter, r *http.Request, sess models.Session) {
	c, err := s.tracker.AdminConsole(r.Context(), sess, queryFromRequest(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type classifyRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

func (s *Server) classify(w http.ResponseWriter, r *http.Request, _ models.Session) {
	var req classifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Description) == "" {
		writeErr(w, fieldError("title", "title or description is required"))
		return
	}
	writeJSON(w, http.StatusOK, s.classifier.Suggest(r.Context(), req.Title, req.Description))
}

// Package issues implements the civic issue lifecycle on top of a Store:
// submission, assignment, resolution, filtering and aggregation.
package issues

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

// Tracker is the authoritative issue store. Mutations are serialized within
// a process, and each write is conditional on the status that was read so a
// second process sharing the database cannot be overwritten.
type Tracker struct {
	store  store.Store
	logger *slog.Logger

	// Now supplies the submission date. Defaults to time.Now.
	Now func() time.Time

	mu sync.Mutex
}

// New returns a Tracker over s. A nil logger uses slog.Default().
func New(s store.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: s, logger: logger, Now: time.Now}
}

// CreateInput holds the citizen-supplied fields of a new issue.
type CreateInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    models.IssueCategory `json:"category"`
	Location    string               `json:"location"`
	ReportedBy  string               `json:"reportedBy"`
	Image       string               `json:"image,omitempty"`
}

// Validate checks that every required field is present and the category is known.
func (in CreateInput) Validate() error {
	v := &ValidationError{}
	required := []struct{ field, value string }{
		{"title", in.Title},
		{"description", in.Description},
		{"category", string(in.Category)},
		{"location", in.Location},
		{"reportedBy", in.ReportedBy},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			v.add(r.field, "is required")
		}
	}
	if in.Category != "" && !in.Category.Valid() {
		v.add("category", fmt.Sprintf("%q is not a known category", in.Category))
	}
	return v.err()
}

// Create validates in and appends a new Pending issue dated today.
func (t *Tracker) Create(ctx context.Context, in CreateInput) (*models.Issue, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	issue := &models.Issue{
		Title:        strings.TrimSpace(in.Title),
		Description:  strings.TrimSpace(in.Description),
		Category:     in.Category,
		Status:       models.IssueStatusPending,
		Location:     strings.TrimSpace(in.Location),
		DateReported: models.FormatDate(t.Now()),
		ReportedBy:   strings.TrimSpace(in.ReportedBy),
		Image:        strings.TrimSpace(in.Image),
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.CreateIssue(ctx, issue); err != nil {
		return nil, fmt.Errorf("create issue: %w", err)
	}
	t.logger.Info("issue created",
		"id", issue.ID, "category", issue.Category, "reported_by", issue.ReportedBy)
	return issue, nil
}

// Assign binds adminID to the issue. A Pending issue advances to In Progress;
// an In Progress issue is rebound without changing status.
func (t *Tracker) Assign(ctx context.Context, id int, adminID string) (*models.Issue, error) {
	adminID = strings.TrimSpace(adminID)
	if adminID == "" {
		v := &ValidationError{}
		v.add("adminId", "is required")
		return nil, v
	}

	var from models.IssueStatus
	issue, err := t.transition(ctx, id, "assign", func(issue *models.Issue) error {
		if issue.Status.Terminal() {
			return &InvalidTransitionError{ID: id, From: issue.Status, Op: "assign"}
		}
		from = issue.Status
		issue.AdminAssigned = adminID
		if issue.Status == models.IssueStatusPending {
			issue.Status = models.IssueStatusInProgress
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("issue assigned",
		"id", id, "admin", adminID, "from", from, "to", issue.Status)
	return issue, nil
}

// Resolve marks an In Progress issue Resolved.
func (t *Tracker) Resolve(ctx context.Context, id int) (*models.Issue, error) {
	issue, err := t.transition(ctx, id, "resolve", func(issue *models.Issue) error {
		if issue.Status != models.IssueStatusInProgress {
			return &InvalidTransitionError{ID: id, From: issue.Status, Op: "resolve"}
		}
		issue.Status = models.IssueStatusResolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.logger.Info("issue resolved", "id", id, "admin", issue.AdminAssigned)
	return issue, nil
}

// maxTransitionAttempts bounds re-reads after another writer changed the
// issue between our read and our write.
const maxTransitionAttempts = 3

// transition reads the issue, lets apply mutate it, and writes it back only
// if the stored status is unchanged. On a conflict the issue is re-read so
// apply sees the current status.
func (t *Tracker) transition(ctx context.Context, id int, op string, apply func(*models.Issue) error) (*models.Issue, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for attempt := 1; ; attempt++ {
		issue, err := t.get(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := issue.Status
		if err := apply(issue); err != nil {
			return nil, err
		}
		err = t.store.UpdateIssue(ctx, issue, expected)
		if err == nil {
			return issue, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == maxTransitionAttempts {
			return nil, t.mapStoreErr(id, fmt.Errorf("%s issue: %w", op, err))
		}
		t.logger.Debug("issue changed concurrently, retrying",
			"id", id, "op", op, "attempt", attempt)
	}
}

// Get returns one issue by id.
func (t *Tracker) Get(ctx context.Context, id int) (*models.Issue, error) {
	return t.get(ctx, id)
}

func (t *Tracker) get(ctx context.Context, id int) (*models.Issue, error) {
	issue, err := t.store.GetIssue(ctx, id)
	if err != nil {
		return nil, t.mapStoreErr(id, fmt.Errorf("get issue: %w", err))
	}
	return issue, nil
}

func (t *Tracker) mapStoreErr(id int, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	return err
}

// Query narrows the collection. Tab is an extra status selector ANDed with
// Status; the zero Query returns every issue in insertion order.
type Query struct {
	store.IssueListFilter
	Tab models.Tab
}

// Validate rejects enum values outside the closed sets.
func (q Query) Validate() error {
	v := &ValidationError{}
	if q.Status != "" && !q.Status.Valid() {
		v.add("status", fmt.Sprintf("%q is not a known status", q.Status))
	}
	if q.Category != "" && !q.Category.Valid() {
		v.add("category", fmt.Sprintf("%q is not a known category", q.Category))
	}
	if q.Tab != "" {
		if _, err := models.ParseTab(string(q.Tab)); err != nil {
			v.add("tab", err.Error())
		}
	}
	return v.err()
}

// Query returns the issues matching q. Each call reads current state.
func (t *Tracker) Query(ctx context.Context, q Query) ([]*models.Issue, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	filter := q.IssueListFilter
	tab, _ := models.ParseTab(string(q.Tab))
	if s := tab.Status(); s != "" {
		if filter.Status != "" && filter.Status != s {
			return nil, nil
		}
		filter.Status = s
	}

	issues, err := t.store.ListIssues(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	return issues, nil
}

// Stats aggregates the issues matching q.
func (t *Tracker) Stats(ctx context.Context, q Query) (models.Stats, error) {
	list, err := t.Query(ctx, q)
	if err != nil {
		return models.Stats{}, err
	}
	return Stats(list), nil
}

// Stats counts issues by status.
func Stats(list []*models.Issue) models.Stats {
	s := models.Stats{Total: len(list)}
	for _, issue := range list {
		switch issue.Status {
		case models.IssueStatusPending:
			s.Pending++
		case models.IssueStatusInProgress:
			s.InProgress++
		case models.IssueStatusResolved:
			s.Resolved++
		}
	}
	return s
}

// Import stores a fully formed issue, such as seed data, after checking the
// same invariants the lifecycle maintains. A zero ID is assigned max+1.
func (t *Tracker) Import(ctx context.Context, issue *models.Issue) error {
	if err := ValidateIssue(issue); err != nil {
		if issue.ID != 0 {
			return fmt.Errorf("import issue %d: %w", issue.ID, err)
		}
		return fmt.Errorf("import issue %q: %w", issue.Title, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.store.CreateIssue(ctx, issue); err != nil {
		return fmt.Errorf("import issue: %w", err)
	}
	t.logger.Debug("issue imported", "id", issue.ID, "status", issue.Status)
	return nil
}

// ValidateIssue checks a stored issue's invariants.
func ValidateIssue(issue *models.Issue) error {
	in := CreateInput{
		Title:       issue.Title,
		Description: issue.Description,
		Category:    issue.Category,
		Location:    issue.Location,
		ReportedBy:  issue.ReportedBy,
	}
	v := &ValidationError{}
	if err := in.Validate(); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			v.Fields = append(v.Fields, ve.Fields...)
		}
	}
	if issue.ID < 0 {
		v.add("id", "must not be negative")
	}
	if !issue.Status.Valid() {
		v.add("status", fmt.Sprintf("%q is not a known status", issue.Status))
	}
	if _, err := time.Parse(models.DateLayout, issue.DateReported); err != nil {
		v.add("dateReported", "must be a YYYY-MM-DD date")
	}
	switch {
	case issue.Status == models.IssueStatusPending && issue.Assigned():
		v.add("adminAssigned", "must be empty while Pending")
	case issue.Status.Valid() && issue.Status != models.IssueStatusPending && !issue.Assigned():
		v.add("adminAssigned", "is required once an issue leaves Pending")
	}
	return v.err()
}

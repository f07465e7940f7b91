package store

import (
	"context"
	"errors"
	"strings"

	"github.com/civicconnect/civic/internal/models"
)

var (
	// ErrNotFound is returned (wrapped) when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned (wrapped) by UpdateIssue when the stored
	// status no longer matches the expected one.
	ErrConflict = errors.New("conflict")
)

// IssueListFilter specifies filters for listing issues. Zero fields do not
// filter; set fields are combined with AND.
type IssueListFilter struct {
	Status            models.IssueStatus
	Category          models.IssueCategory
	Search            string // case-insensitive substring of title, description or location
	Location          string // case-insensitive substring of location
	ReportedBy        string
	ExcludeReportedBy string
}

// Match reports whether issue passes the filter.
func (f IssueListFilter) Match(issue *models.Issue) bool {
	if f.Status != "" && issue.Status != f.Status {
		return false
	}
	if f.Category != "" && issue.Category != f.Category {
		return false
	}
	if f.ReportedBy != "" && issue.ReportedBy != f.ReportedBy {
		return false
	}
	if f.ExcludeReportedBy != "" && issue.ReportedBy == f.ExcludeReportedBy {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !containsFold(issue.Title, q) && !containsFold(issue.Description, q) && !containsFold(issue.Location, q) {
			return false
		}
	}
	if f.Location != "" && !containsFold(issue.Location, strings.ToLower(f.Location)) {
		return false
	}
	return true
}

func containsFold(s, lowerSub string) bool {
	return strings.Contains(strings.ToLower(s), lowerSub)
}

// Store defines the persistence interface for civic.
type Store interface {
	// Issues. CreateIssue assigns max(id)+1 when issue.ID is zero.
	CreateIssue(ctx context.Context, issue *models.Issue) error
	GetIssue(ctx context.Context, id int) (*models.Issue, error)
	ListIssues(ctx context.Context, filter IssueListFilter) ([]*models.Issue, error)
	// UpdateIssue writes issue only if the stored status is still expected.
	UpdateIssue(ctx context.Context, issue *models.Issue, expected models.IssueStatus) error

	// Users
	UpsertUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]*models.User, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

package issues

import (
	"context"
	"fmt"

	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

// Session-scoped operations used by the CLI, REST and MCP surfaces. The acting
// user is always passed in explicitly.

// ReportAs creates an issue reported by the session user.
func (t *Tracker) ReportAs(ctx context.Context, sess models.Session, in CreateInput) (*models.Issue, error) {
	in.ReportedBy = sess.UserID()
	return t.Create(ctx, in)
}

// AssignAs assigns the issue to the session admin.
func (t *Tracker) AssignAs(ctx context.Context, sess models.Session, id int) (*models.Issue, error) {
	if !sess.IsAdmin() {
		return nil, fmt.Errorf("assign issue %d: %w", id, ErrForbidden)
	}
	return t.Assign(ctx, id, sess.UserID())
}

// ResolveAs resolves the issue on behalf of the session admin.
func (t *Tracker) ResolveAs(ctx context.Context, sess models.Session, id int) (*models.Issue, error) {
	if !sess.IsAdmin() {
		return nil, fmt.Errorf("resolve issue %d: %w", id, ErrForbidden)
	}
	return t.Resolve(ctx, id)
}

// MyIssues returns the issues the session user reported.
func (t *Tracker) MyIssues(ctx context.Context, sess models.Session) ([]*models.Issue, error) {
	return t.Query(ctx, Query{IssueListFilter: store.IssueListFilter{ReportedBy: sess.UserID()}})
}

// CommunityIssues returns every issue reported by someone else.
func (t *Tracker) CommunityIssues(ctx context.Context, sess models.Session) ([]*models.Issue, error) {
	return t.Query(ctx, Query{IssueListFilter: store.IssueListFilter{ExcludeReportedBy: sess.UserID()}})
}

// Dashboard is the citizen view.
type Dashboard struct {
	User            models.User     `json:"user"`
	MyIssues        []*models.Issue `json:"my_issues"`
	CommunityIssues []*models.Issue `json:"community_issues"`
	Stats           models.Stats    `json:"stats"` // over MyIssues
}

// Dashboard builds the citizen view for the session user.
func (t *Tracker) Dashboard(ctx context.Context, sess models.Session) (*Dashboard, error) {
	mine, err := t.MyIssues(ctx, sess)
	if err != nil {
		return nil, err
	}
	community, err := t.CommunityIssues(ctx, sess)
	if err != nil {
		return nil, err
	}
	return &Dashboard{
		User:            sess.User,
		MyIssues:        nonNil(mine),
		CommunityIssues: nonNil(community),
		Stats:           Stats(mine),
	}, nil
}

// AdminConsole is the administrator view: a filtered list plus stats over the
// whole collection.
type AdminConsole struct {
	Issues []*models.Issue `json:"issues"`
	Stats  models.Stats    `json:"stats"`
}

// AdminConsole builds the administrator view for q.
func (t *Tracker) AdminConsole(ctx context.Context, sess models.Session, q Query) (*AdminConsole, error) {
	if !sess.IsAdmin() {
		return nil, fmt.Errorf("admin console: %w", ErrForbidden)
	}
	list, err := t.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	stats, err := t.Stats(ctx, Query{})
	if err != nil {
		return nil, err
	}
	return &AdminConsole{Issues: nonNil(list), Stats: stats}, nil
}

func nonNil(list []*models.Issue) []*models.Issue {
	if list == nil {
		return []*models.Issue{}
	}
	return list
}

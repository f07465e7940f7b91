package mcp

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/seed"
	"github.com/civicconnect/civic/internal/store"
)

var (
	citizen = models.Session{User: models.User{ID: "user123", Name: "John Doe", Email: "john@example.com", Role: models.RoleUser}}
	admin   = models.Session{User: models.User{ID: "admin1", Name: "Mike Johnson", Email: "mike.admin@city.gov", Role: models.RoleAdmin}}
)

// newTestServer returns a server over a memory store holding the demo data.
func newTestServer(t *testing.T, sess models.Session) *Server {
	t.Helper()
	s := store.NewMemoryStore()
	tr := issues.New(s, slog.New(slog.NewTextHandler(io.Discard, nil)))
	tr.Now = func() time.Time { return time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC) }

	demo, err := seed.Demo()
	require.NoError(t, err)
	_, err = seed.Apply(context.Background(), s, tr, demo)
	require.NoError(t, err)

	return NewServer(tr, sess, "test")
}

// callToolReq builds a mcpgo.CallToolRequest with the given name and arguments.
func callToolReq(name string, args map[string]any) mcpgo.CallToolRequest {
	return mcpgo.CallToolRequest{
		Params: mcpgo.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// resultText extracts the concatenated text from a CallToolResult.
func resultText(t *testing.T, result *mcpgo.CallToolResult) string {
	t.Helper()
	var b strings.Builder
	for _, c := range result.Content {
		tc, ok := c.(mcpgo.TextContent)
		if ok {
			b.WriteString(tc.Text)
		}
	}
	return b.String()
}

// resultJSON parses the text result as JSON into the provided target.
func resultJSON(t *testing.T, result *mcpgo.CallToolResult, target any) {
	t.Helper()
	text := resultText(t, result)
	err := json.Unmarshal([]byte(text), target)
	require.NoError(t, err, "failed to parse result JSON: %s", text)
}

func issueIDs(list []*models.Issue) []int {
	var out []int
	for _, i := range list {
		out = append(out, i.ID)
	}
	return out
}

// ---------------------------------------------------------------------------
// Tests: civic_list_issues
// ---------------------------------------------------------------------------

func TestHandleListIssues_All(t *testing.T) {
	srv := newTestServer(t, citizen)

	result, err := srv.handleListIssues(context.Background(), callToolReq("civic_list_issues", nil))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var list []*models.Issue
	resultJSON(t, result, &list)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, issueIDs(list))
}

func TestHandleListIssues_Scopes(t *testing.T) {
	srv := newTestServer(t, citizen)
	ctx := context.Background()

	result, err := srv.handleListIssues(ctx, callToolReq("civic_list_issues", map[string]any{"scope": "mine"}))
	require.NoError(t, err)
	var mine []*models.Issue
	resultJSON(t, result, &mine)
	assert.Equal(t, []int{1}, issueIDs(mine))

	result, err = srv.handleListIssues(ctx, callToolReq("civic_list_issues", map[string]any{"scope": "community"}))
	require.NoError(t, err)
	var community []*models.Issue
	resultJSON(t, result, &community)
	assert.Equal(t, []int{2, 3, 4, 5}, issueIDs(community))

	result, err = srv.handleListIssues(ctx, callToolReq("civic_list_issues", map[string]any{"scope": "nearby"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListIssues_Filters(t *testing.T) {
	srv := newTestServer(t, admin)

	result, err := srv.handleListIssues(context.Background(), callToolReq("civic_list_issues", map[string]any{
		"category": "Utilities",
		"tab":      "in-progress",
		"search":   "light",
	}))
	require.NoError(t, err)
	var list []*models.Issue
	resultJSON(t, result, &list)
	assert.Equal(t, []int{2}, issueIDs(list))
}

func TestHandleListIssues_InvalidStatus(t *testing.T) {
	srv := newTestServer(t, admin)
	result, err := srv.handleListIssues(context.Background(), callToolReq("civic_list_issues", map[string]any{"status": "Closed"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "status")
}

func TestHandleListIssues_EmptyIsArray(t *testing.T) {
	srv := newTestServer(t, admin)
	result, err := srv.handleListIssues(context.Background(), callToolReq("civic_list_issues", map[string]any{"search": "volcano"}))
	require.NoError(t, err)
	assert.Equal(t, "[]", resultText(t, result))
}

// ---------------------------------------------------------------------------
// Tests: civic_report_issue
// ---------------------------------------------------------------------------

func TestHandleReportIssue(t *testing.T) {
	srv := newTestServer(t, citizen)

	result, err := srv.handleReportIssue(context.Background(), callToolReq("civic_report_issue", map[string]any{
		"title":       "Loud construction at night",
		"description": "Jackhammers after midnight",
		"category":    "Noise Complaints",
		"location":    "Elm Street",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.Equal(t, 6, issue.ID)
	assert.Equal(t, "user123", issue.ReportedBy)
	assert.Equal(t, models.IssueStatusPending, issue.Status)
	assert.Equal(t, "2025-01-20", issue.DateReported)
}

func TestHandleReportIssue_Coordinates(t *testing.T) {
	srv := newTestServer(t, citizen)

	result, err := srv.handleReportIssue(context.Background(), callToolReq("civic_report_issue", map[string]any{
		"title":       "Pothole",
		"description": "Deep",
		"category":    "Roads",
		"latitude":    40.7127759,
		"longitude":   -74.0059738,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))

	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.Equal(t, "40.712776, -74.005974", issue.Location)
}

func TestHandleReportIssue_Invalid(t *testing.T) {
	srv := newTestServer(t, citizen)

	result, err := srv.handleReportIssue(context.Background(), callToolReq("civic_report_issue", map[string]any{
		"title":    "Pothole",
		"category": "Potholes",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	text := resultText(t, result)
	assert.Contains(t, text, "description")
	assert.Contains(t, text, "category")
	assert.Contains(t, text, "location")
}

// ---------------------------------------------------------------------------
// Tests: civic_assign_issue / civic_resolve_issue
// ---------------------------------------------------------------------------

func TestHandleAssignAndResolve(t *testing.T) {
	srv := newTestServer(t, admin)
	ctx := context.Background()

	result, err := srv.handleResolveIssue(ctx, callToolReq("civic_resolve_issue", map[string]any{"id": float64(4)}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "pending issue cannot be resolved")
	assert.Contains(t, resultText(t, result), "assigned first")

	result, err = srv.handleAssignIssue(ctx, callToolReq("civic_assign_issue", map[string]any{"id": float64(4)}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	var issue models.Issue
	resultJSON(t, result, &issue)
	assert.Equal(t, models.IssueStatusInProgress, issue.Status)
	assert.Equal(t, "admin1", issue.AdminAssigned)

	result, err = srv.handleResolveIssue(ctx, callToolReq("civic_resolve_issue", map[string]any{"id": float64(4)}))
	require.NoError(t, err)
	require.False(t, result.IsError, resultText(t, result))
	resultJSON(t, result, &issue)
	assert.Equal(t, models.IssueStatusResolved, issue.Status)
}

func TestHandleAssign_CitizenForbidden(t *testing.T) {
	srv := newTestServer(t, citizen)

	result, err := srv.handleAssignIssue(context.Background(), callToolReq("civic_assign_issue", map[string]any{"id": float64(1)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "admin role required")
}

func TestHandleAssign_MissingID(t *testing.T) {
	srv := newTestServer(t, admin)

	result, err := srv.handleAssignIssue(context.Background(), callToolReq("civic_assign_issue", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleAssign_NotFound(t *testing.T) {
	srv := newTestServer(t, admin)

	result, err := srv.handleAssignIssue(context.Background(), callToolReq("civic_assign_issue", map[string]any{"id": float64(99)}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "not found")
}

// ---------------------------------------------------------------------------
// Tests: civic_issue_stats / civic_list_categories
// ---------------------------------------------------------------------------

func TestHandleIssueStats(t *testing.T) {
	srv := newTestServer(t, citizen)
	ctx := context.Background()

	result, err := srv.handleIssueStats(ctx, callToolReq("civic_issue_stats", nil))
	require.NoError(t, err)
	var st models.Stats
	resultJSON(t, result, &st)
	assert.Equal(t, models.Stats{Total: 5, Pending: 2, InProgress: 2, Resolved: 1}, st)

	result, err = srv.handleIssueStats(ctx, callToolReq("civic_issue_stats", map[string]any{"scope": "mine"}))
	require.NoError(t, err)
	resultJSON(t, result, &st)
	assert.Equal(t, models.Stats{Total: 1, Pending: 1}, st)
}

func TestHandleListCategories(t *testing.T) {
	srv := newTestServer(t, citizen)

	result, err := srv.handleListCategories(context.Background(), callToolReq("civic_list_categories", nil))
	require.NoError(t, err)
	var cats []models.IssueCategory
	resultJSON(t, result, &cats)
	assert.Equal(t, models.Categories(), cats)
}

// ---------------------------------------------------------------------------
// Tests: Integration -- verify all tools are registered via HandleMessage
// ---------------------------------------------------------------------------

func TestMCPIntegration_ListTools(t *testing.T) {
	srv := newTestServer(t, citizen)

	mcpSrv := srv.MCPServer()
	require.NotNil(t, mcpSrv)

	ctx := context.Background()
	reqJSON := []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	respMsg := mcpSrv.HandleMessage(ctx, reqJSON)
	require.NotNil(t, respMsg)

	respBytes, err := json.Marshal(respMsg)
	require.NoError(t, err)

	var rpcResp struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpcResp))

	toolNames := make(map[string]bool)
	for _, tool := range rpcResp.Result.Tools {
		toolNames[tool.Name] = true
	}

	expectedTools := []string{
		"civic_list_issues",
		"civic_report_issue",
		"civic_assign_issue",
		"civic_resolve_issue",
		"civic_issue_stats",
		"civic_list_categories",
	}
	for _, name := range expectedTools {
		assert.True(t, toolNames[name], "tool %s should be registered", name)
	}
	assert.Len(t, rpcResp.Result.Tools, len(expectedTools))
}

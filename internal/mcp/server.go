package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

// Server exposes the issue tracker as MCP tools. Every call acts as the
// session it was created with.
type Server struct {
	tracker *issues.Tracker
	session models.Session
	version string
}

// NewServer creates the MCP server wrapper bound to sess.
func NewServer(tr *issues.Tracker, sess models.Session, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{tracker: tr, session: sess, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("civic", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listIssuesTool())
	srv.AddTool(s.reportIssueTool())
	srv.AddTool(s.assignIssueTool())
	srv.AddTool(s.resolveIssueTool())
	srv.AddTool(s.issueStatsTool())
	srv.AddTool(s.listCategoriesTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// civic_list_issues
func (s *Server) listIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_list_issues",
		mcp.WithDescription("List civic issues. Filters combine with AND. Returns a JSON array of issues in report order."),
		mcp.WithString("scope", mcp.Description("all (default), mine (reported by you) or community (reported by others)")),
		mcp.WithString("status", mcp.Description("Pending, In Progress or Resolved")),
		mcp.WithString("category", mcp.Description("Exact category name, see civic_list_categories")),
		mcp.WithString("search", mcp.Description("Case-insensitive text in title, description or location")),
		mcp.WithString("location", mcp.Description("Case-insensitive text in location")),
		mcp.WithString("reported_by", mcp.Description("Reporter user id")),
		mcp.WithString("tab", mcp.Description("Admin tab: all, pending, in-progress, resolved")),
	)
	return tool, s.handleListIssues
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	q := issues.Query{
		IssueListFilter: store.IssueListFilter{
			Status:     models.IssueStatus(request.GetString("status", "")),
			Category:   models.IssueCategory(request.GetString("category", "")),
			Search:     request.GetString("search", ""),
			Location:   request.GetString("location", ""),
			ReportedBy: request.GetString("reported_by", ""),
		},
		Tab: models.Tab(request.GetString("tab", "")),
	}
	switch scope := request.GetString("scope", ""); scope {
	case "", "all":
	case "mine":
		q.ReportedBy = s.session.UserID()
	case "community":
		q.ExcludeReportedBy = s.session.UserID()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown scope %q (use: all, mine, community)", scope)), nil
	}

	list, err := s.tracker.Query(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list issues: %v", err)), nil
	}
	if list == nil {
		list = []*models.Issue{}
	}
	return jsonResult(list)
}

// civic_report_issue
func (s *Server) reportIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_report_issue",
		mcp.WithDescription("Report a new civic issue as the current user. It starts Pending and unassigned."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short title")),
		mcp.WithString("description", mcp.Required(), mcp.Description("What is wrong")),
		mcp.WithString("category", mcp.Required(), mcp.Description("Exact category name, see civic_list_categories")),
		mcp.WithString("location", mcp.Description("Street address or landmark; required unless latitude and longitude are given")),
		mcp.WithNumber("latitude", mcp.Description("GPS latitude, used when location is empty")),
		mcp.WithNumber("longitude", mcp.Description("GPS longitude, used when location is empty")),
		mcp.WithString("image", mcp.Description("Image URL")),
	)
	return tool, s.handleReportIssue
}

func (s *Server) handleReportIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	location := request.GetString("location", "")
	_, hasLat := args["latitude"]
	_, hasLon := args["longitude"]
	if location == "" && hasLat && hasLon {
		location = models.FormatCoordinates(request.GetFloat("latitude", 0), request.GetFloat("longitude", 0))
	}

	issue, err := s.tracker.ReportAs(ctx, s.session, issues.CreateInput{
		Title:       request.GetString("title", ""),
		Description: request.GetString("description", ""),
		Category:    models.IssueCategory(request.GetString("category", "")),
		Location:    location,
		Image:       request.GetString("image", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to report issue: %v", err)), nil
	}
	return jsonResult(issue)
}

// civic_assign_issue
func (s *Server) assignIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_assign_issue",
		mcp.WithDescription("Assign an issue to yourself (admins only). A Pending issue moves to In Progress; an In Progress issue is reassigned."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleAssignIssue
}

func (s *Server) handleAssignIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	issue, err := s.tracker.AssignAs(ctx, s.session, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to assign issue: %v", err)), nil
	}
	return jsonResult(issue)
}

// civic_resolve_issue
func (s *Server) resolveIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_resolve_issue",
		mcp.WithDescription("Mark an In Progress issue Resolved (admins only). Pending issues must be assigned first."),
		mcp.WithNumber("id", mcp.Required(), mcp.Description("Issue id")),
	)
	return tool, s.handleResolveIssue
}

func (s *Server) handleResolveIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: id"), nil
	}
	issue, err := s.tracker.ResolveAs(ctx, s.session, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to resolve issue: %v", err)), nil
	}
	return jsonResult(issue)
}

// civic_issue_stats
func (s *Server) issueStatsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_issue_stats",
		mcp.WithDescription("Count issues by status. Returns {total, pending, inProgress, resolved}."),
		mcp.WithString("scope", mcp.Description("all (default) or mine")),
	)
	return tool, s.handleIssueStats
}

func (s *Server) handleIssueStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var q issues.Query
	switch scope := request.GetString("scope", ""); scope {
	case "", "all":
	case "mine":
		q.ReportedBy = s.session.UserID()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown scope %q (use: all, mine)", scope)), nil
	}
	st, err := s.tracker.Stats(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to compute stats: %v", err)), nil
	}
	return jsonResult(st)
}

// civic_list_categories
func (s *Server) listCategoriesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("civic_list_categories",
		mcp.WithDescription("List the fixed issue categories."),
	)
	return tool, s.handleListCategories
}

func (s *Server) handleListCategories(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(models.Categories())
}

package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/civicconnect/civic/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server acting as one user",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

Every tool call acts as the user given with --as (or $CIVIC_USER), so an
assistant can report issues for a citizen or triage them for an admin.
Configure in an MCP client with:

  {
    "mcpServers": {
      "civic": { "command": "civic", "args": ["mcp", "--as", "admin1"] }
    }
  }

Available tools: civic_list_issues, civic_report_issue, civic_assign_issue,
civic_resolve_issue, civic_issue_stats, civic_list_categories`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mcpRun(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func mcpRun(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	// stdout carries the protocol.
	ui.Out = ui.ErrOut
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	tr, err := getTracker()
	if err != nil {
		return err
	}
	return mcp.NewServer(tr, sess, buildVersion).ServeStdio(ctx)
}

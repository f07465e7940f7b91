package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/output"
)

var (
	statsMine bool
	adminTab  string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count issues by status",
	Long:  "Count all issues by status, or only the acting user's with --mine.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return statsRun()
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the acting user's dashboard",
	Long:  "Show your reports with their stats, followed by issues reported by others.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboardRun()
	},
}

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Show the admin console (admin)",
	Long:  "Show issues for a tab with stats over the whole collection. Accepts the same filters as 'issue list'.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return adminRun()
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsMine, "mine", false, "Only issues you reported")

	adminCmd.Flags().StringVar(&adminTab, "tab", "all", "Tab: all, pending, in-progress, resolved")
	adminCmd.Flags().StringVar(&issueCategory, "category", "", "Filter by category")
	adminCmd.Flags().StringVar(&issueSearch, "search", "", "Text in title, description or location")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(adminCmd)
}

func statsRun() error {
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}

	var q issues.Query
	if statsMine {
		sess, err := currentSession(ctx)
		if err != nil {
			return err
		}
		q.ReportedBy = sess.UserID()
	}
	st, err := tr.Stats(ctx, q)
	if err != nil {
		return err
	}
	ui.Stats(st)
	return nil
}

func dashboardRun() error {
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	d, err := tr.Dashboard(ctx, sess)
	if err != nil {
		return err
	}

	fmt.Fprintf(ui.Out, "%s (%s, %s)\n\n", output.Cyan(d.User.Name), d.User.ID, output.RoleColor(d.User.Role))
	fmt.Fprintln(ui.Out, "My reports")
	ui.Stats(d.Stats)
	printIssueTable(d.MyIssues)
	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, "Community")
	printIssueTable(d.CommunityIssues)
	return nil
}

func adminRun() error {
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	q := listQuery()
	q.Tab = models.Tab(adminTab)
	c, err := tr.AdminConsole(ctx, sess, q)
	if err != nil {
		return err
	}
	ui.Stats(c.Stats)
	printIssueTable(c.Issues)
	return nil
}

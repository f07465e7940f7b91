package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/output"
	"github.com/civicconnect/civic/internal/store"
)

var (
	issueTitle      string
	issueDesc       string
	issueCategory   string
	issueLocation   string
	issueLat        float64
	issueLon        float64
	issueImage      string
	issueSuggest    bool
	issueStatus     string
	issueSearch     string
	issueReportedBy string
	issueTab        string
	issueJSON       bool
)

var issueCmd = &cobra.Command{
	Use:     "issue",
	Aliases: []string{"i"},
	Short:   "Report and manage civic issues",
	Long:    "Report civic issues, browse them, and (as an admin) assign and resolve them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueReportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report a new issue as the acting user",
	Long: `Report a new issue. It starts Pending with no admin assigned.

Location may be given as text (--location) or as GPS coordinates
(--lat/--lon). Without --category, --suggest picks one from the title and
description.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueReportRun(cmd)
	},
}

var issueListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List issues",
	Long:    "List issues in report order. Filters combine with AND.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueListRun()
	},
}

var issueShowCmd = &cobra.Command{
	Use:   "show <issue-id>",
	Short: "Show issue details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueShowRun(args[0])
	},
}

var issueAssignCmd = &cobra.Command{
	Use:   "assign <issue-id>",
	Short: "Assign an issue to yourself (admin)",
	Long:  "Assign an issue to the acting admin. A Pending issue moves to In Progress; an In Progress issue is reassigned.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueAssignRun(args[0])
	},
}

var issueResolveCmd = &cobra.Command{
	Use:   "resolve <issue-id>",
	Short: "Mark an In Progress issue resolved (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueResolveRun(args[0])
	},
}

var issueMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List issues you reported",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueMineRun()
	},
}

var issueCommunityCmd = &cobra.Command{
	Use:   "community",
	Short: "List issues reported by others",
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueCommunityRun()
	},
}

var issueClassifyCmd = &cobra.Command{
	Use:   "classify <title>",
	Short: "Suggest a category for a report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return issueClassifyRun(args[0])
	},
}

func init() {
	issueReportCmd.Flags().StringVar(&issueTitle, "title", "", "Issue title (required)")
	issueReportCmd.Flags().StringVar(&issueDesc, "desc", "", "What is wrong (required)")
	issueReportCmd.Flags().StringVar(&issueCategory, "category", "", "Category, see 'civic issue report --help'")
	issueReportCmd.Flags().StringVar(&issueLocation, "location", "", "Street address or landmark")
	issueReportCmd.Flags().Float64Var(&issueLat, "lat", 0, "GPS latitude, used when --location is empty")
	issueReportCmd.Flags().Float64Var(&issueLon, "lon", 0, "GPS longitude, used when --location is empty")
	issueReportCmd.Flags().StringVar(&issueImage, "image", "", "Image URL")
	issueReportCmd.Flags().BoolVar(&issueSuggest, "suggest", false, "Suggest a category when --category is empty")
	issueReportCmd.Long += "\n\nCategories: " + categoryList()

	issueListCmd.Flags().StringVar(&issueStatus, "status", "", "Filter by status: Pending, In Progress, Resolved")
	issueListCmd.Flags().StringVar(&issueCategory, "category", "", "Filter by category")
	issueListCmd.Flags().StringVar(&issueSearch, "search", "", "Text in title, description or location")
	issueListCmd.Flags().StringVar(&issueLocation, "location", "", "Text in location")
	issueListCmd.Flags().StringVar(&issueReportedBy, "reported-by", "", "Reporter user id")
	issueListCmd.Flags().StringVar(&issueTab, "tab", "", "Admin tab: all, pending, in-progress, resolved")
	issueListCmd.Flags().BoolVar(&issueJSON, "json", false, "Print JSON")

	issueShowCmd.Flags().BoolVar(&issueJSON, "json", false, "Print JSON")
	issueClassifyCmd.Flags().StringVar(&issueDesc, "desc", "", "Description")

	issueCmd.AddCommand(issueReportCmd)
	issueCmd.AddCommand(issueListCmd)
	issueCmd.AddCommand(issueShowCmd)
	issueCmd.AddCommand(issueAssignCmd)
	issueCmd.AddCommand(issueResolveCmd)
	issueCmd.AddCommand(issueMineCmd)
	issueCmd.AddCommand(issueCommunityCmd)
	issueCmd.AddCommand(issueClassifyCmd)
	rootCmd.AddCommand(issueCmd)
}

func categoryList() string {
	names := make([]string, 0, len(models.Categories()))
	for _, c := range models.Categories() {
		names = append(names, string(c))
	}
	return strings.Join(names, ", ")
}

func issueReportRun(cmd *cobra.Command) error {
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	location := issueLocation
	if strings.TrimSpace(location) == "" && cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
		location = models.FormatCoordinates(issueLat, issueLon)
	}

	category := issueCategory
	if category == "" && issueSuggest {
		res := newClassifier().Suggest(ctx, issueTitle, issueDesc)
		category = string(res.Category)
		ui.Info("Suggested category: %s (%s)", output.Cyan(category), res.Source)
	}

	in := issues.CreateInput{
		Title:       issueTitle,
		Description: issueDesc,
		Category:    models.IssueCategory(category),
		Location:    location,
		ReportedBy:  sess.UserID(),
		Image:       issueImage,
	}

	if dryRun {
		if err := in.Validate(); err != nil {
			return err
		}
		ui.DryRunMsg("Would report %q (%s) at %s as %s", in.Title, in.Category, in.Location, sess.UserID())
		return nil
	}

	issue, err := tr.ReportAs(ctx, sess, in)
	if err != nil {
		return err
	}
	ui.Success("Reported issue %s: %s", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.Title)
	return nil
}

func listQuery() issues.Query {
	return issues.Query{
		IssueListFilter: store.IssueListFilter{
			Status:     models.IssueStatus(issueStatus),
			Category:   models.IssueCategory(issueCategory),
			Search:     issueSearch,
			Location:   issueLocation,
			ReportedBy: issueReportedBy,
		},
		Tab: models.Tab(issueTab),
	}
}

func issueListRun() error {
	tr, err := getTracker()
	if err != nil {
		return err
	}
	list, err := tr.Query(context.Background(), listQuery())
	if err != nil {
		return err
	}
	if issueJSON {
		return printJSON(nonNilIssues(list))
	}
	printIssueTable(list)
	return nil
}

func issueShowRun(ref string) error {
	id, err := parseIssueID(ref)
	if err != nil {
		return err
	}
	tr, err := getTracker()
	if err != nil {
		return err
	}
	issue, err := tr.Get(context.Background(), id)
	if err != nil {
		return err
	}
	if issueJSON {
		return printJSON(issue)
	}

	fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(fmt.Sprintf("#%d", issue.ID)), issue.Title)
	fmt.Fprintf(ui.Out, "  Status:     %s\n", output.StatusColor(issue.Status))
	fmt.Fprintf(ui.Out, "  Category:   %s\n", issue.Category)
	fmt.Fprintf(ui.Out, "  Location:   %s\n", issue.Location)
	fmt.Fprintf(ui.Out, "  Reported:   %s by %s\n", issue.DateReported, issue.ReportedBy)
	fmt.Fprintf(ui.Out, "  Assigned:   %s\n", output.Dash(issue.AdminAssigned))
	if issue.Description != "" {
		fmt.Fprintf(ui.Out, "  Desc:       %s\n", issue.Description)
	}
	if issue.Image != "" {
		fmt.Fprintf(ui.Out, "  Image:      %s\n", issue.Image)
	}
	return nil
}

func issueAssignRun(ref string) error {
	return adminTransition(ref, "assign", func(ctx context.Context, tr *issues.Tracker, sess models.Session, id int) (*models.Issue, error) {
		return tr.AssignAs(ctx, sess, id)
	})
}

func issueResolveRun(ref string) error {
	return adminTransition(ref, "resolve", func(ctx context.Context, tr *issues.Tracker, sess models.Session, id int) (*models.Issue, error) {
		return tr.ResolveAs(ctx, sess, id)
	})
}

type transitionFunc func(ctx context.Context, tr *issues.Tracker, sess models.Session, id int) (*models.Issue, error)

func adminTransition(ref, verb string, apply transitionFunc) error {
	id, err := parseIssueID(ref)
	if err != nil {
		return err
	}
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		current, err := tr.Get(ctx, id)
		if err != nil {
			return err
		}
		ui.DryRunMsg("Would %s issue #%d (%s) as %s", verb, id, current.Status, sess.UserID())
		return nil
	}

	issue, err := apply(ctx, tr, sess, id)
	if err != nil {
		return err
	}
	ui.Success("Issue %s is now %s (admin %s)",
		output.Cyan(fmt.Sprintf("#%d", issue.ID)), output.StatusColor(issue.Status), issue.AdminAssigned)
	return nil
}

func issueMineRun() error {
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	list, err := tr.MyIssues(ctx, sess)
	if err != nil {
		return err
	}
	printIssueTable(list)
	return nil
}

func issueCommunityRun() error {
	ctx := context.Background()
	tr, err := getTracker()
	if err != nil {
		return err
	}
	sess, err := currentSession(ctx)
	if err != nil {
		return err
	}
	list, err := tr.CommunityIssues(ctx, sess)
	if err != nil {
		return err
	}
	printIssueTable(list)
	return nil
}

func issueClassifyRun(title string) error {
	res := newClassifier().Suggest(context.Background(), title, issueDesc)
	fmt.Fprintf(ui.Out, "%s  (%s)\n", output.Cyan(string(res.Category)), res.Source)
	if res.Reason != "" {
		fmt.Fprintf(ui.Out, "  %s\n", res.Reason)
	}
	return nil
}

func parseIssueID(ref string) (int, error) {
	id, err := strconv.Atoi(strings.TrimPrefix(ref, "#"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid issue id %q", ref)
	}
	return id, nil
}

func printIssueTable(list []*models.Issue) {
	if len(list) == 0 {
		ui.Info("No issues found.")
		return
	}
	table := ui.Table([]string{"ID", "Title", "Category", "Status", "Location", "Reported", "By", "Admin"})
	for _, issue := range list {
		_ = table.Append([]string{
			strconv.Itoa(issue.ID),
			issue.Title,
			string(issue.Category),
			output.StatusColor(issue.Status),
			issue.Location,
			issue.DateReported,
			issue.ReportedBy,
			output.Dash(issue.AdminAssigned),
		})
	}
	_ = table.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(ui.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNilIssues(list []*models.Issue) []*models.Issue {
	if list == nil {
		return []*models.Issue{}
	}
	return list
}

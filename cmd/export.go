package cmd

import (
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/store"
)

var (
	exportFormat string
	exportType   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export data as JSON, CSV, or Markdown",
	Long:  "Export issues or users in various formats. Issue exports accept the 'issue list' filters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRun()
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Output format: json, csv, markdown")
	exportCmd.Flags().StringVar(&exportType, "type", "issues", "Data type: issues, users")
	exportCmd.Flags().StringVar(&issueStatus, "status", "", "Filter issues by status")
	exportCmd.Flags().StringVar(&issueCategory, "category", "", "Filter issues by category")
	exportCmd.Flags().StringVar(&issueSearch, "search", "", "Filter issues by text")
	rootCmd.AddCommand(exportCmd)
}

func exportRun() error {
	ctx := context.Background()

	switch exportType {
	case "issues":
		tr, err := getTracker()
		if err != nil {
			return err
		}
		return exportIssues(ctx, tr)
	case "users":
		s, err := getStore()
		if err != nil {
			return err
		}
		return exportUsers(ctx, s)
	default:
		return fmt.Errorf("unknown export type: %s (use: issues, users)", exportType)
	}
}

func exportIssues(ctx context.Context, tr *issues.Tracker) error {
	list, err := tr.Query(ctx, listQuery())
	if err != nil {
		return err
	}

	switch exportFormat {
	case "json":
		return printJSON(nonNilIssues(list))
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Title", "Description", "Category", "Status", "Location", "DateReported", "ReportedBy", "AdminAssigned", "Image"})
		for _, i := range list {
			_ = w.Write([]string{
				strconv.Itoa(i.ID), i.Title, i.Description, string(i.Category), string(i.Status),
				i.Location, i.DateReported, i.ReportedBy, i.AdminAssigned, i.Image,
			})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Issues")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | Title | Category | Status | Location | Reported | By | Admin |")
		fmt.Fprintln(ui.Out, "|----|-------|----------|--------|----------|----------|----|-------|")
		for _, i := range list {
			fmt.Fprintf(ui.Out, "| %d | %s | %s | %s | %s | %s | %s | %s |\n",
				i.ID, mdCell(i.Title), i.Category, i.Status, mdCell(i.Location), i.DateReported, i.ReportedBy, i.AdminAssigned)
		}
		fmt.Fprintln(ui.Out)
		st := issues.Stats(list)
		fmt.Fprintf(ui.Out, "Total %d: %d pending, %d in progress, %d resolved\n", st.Total, st.Pending, st.InProgress, st.Resolved)
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}
}

func exportUsers(ctx context.Context, s store.Store) error {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if users == nil {
		users = []*models.User{}
	}

	switch exportFormat {
	case "json":
		return printJSON(users)
	case "csv":
		w := csv.NewWriter(ui.Out)
		_ = w.Write([]string{"ID", "Name", "Email", "Role"})
		for _, u := range users {
			_ = w.Write([]string{u.ID, u.Name, u.Email, string(u.Role)})
		}
		w.Flush()
		return w.Error()
	case "markdown":
		fmt.Fprintln(ui.Out, "# Users")
		fmt.Fprintln(ui.Out)
		fmt.Fprintln(ui.Out, "| ID | Name | Email | Role |")
		fmt.Fprintln(ui.Out, "|----|------|-------|------|")
		for _, u := range users {
			fmt.Fprintf(ui.Out, "| %s | %s | %s | %s |\n", u.ID, mdCell(u.Name), u.Email, u.Role)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s (use: json, csv, markdown)", exportFormat)
	}
}

// mdCell escapes pipes so a value stays in one table cell.
func mdCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/output"
	"github.com/civicconnect/civic/internal/session"
)

var (
	loginEmail string
	loginRole  string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Inspect the user directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userWhoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the acting user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userWhoamiRun()
	},
}

var userTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Log in by email and print an API bearer token",
	Long: `Log in the way the API does (email plus role; the role must match the
user's) and print a bearer token for 'Authorization: Bearer <token>'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return userTokenRun()
	},
}

func init() {
	userTokenCmd.Flags().StringVar(&loginEmail, "email", "", "User email (required)")
	userTokenCmd.Flags().StringVar(&loginRole, "role", string(models.RoleUser), "Role: user, admin")
	_ = userTokenCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userWhoamiCmd)
	userCmd.AddCommand(userTokenCmd)
	rootCmd.AddCommand(userCmd)
}

func userListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	users, err := s.ListUsers(context.Background())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		ui.Info("No users. Run 'civic seed' to load the demo users.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Email", "Role"})
	for _, u := range users {
		_ = table.Append([]string{u.ID, u.Name, u.Email, output.RoleColor(u.Role)})
	}
	_ = table.Render()
	return nil
}

func userWhoamiRun() error {
	sess, err := currentSession(context.Background())
	if err != nil {
		return err
	}
	fmt.Fprintf(ui.Out, "%s  %s <%s>  %s\n", output.Cyan(sess.User.ID), sess.User.Name, sess.User.Email, output.RoleColor(sess.User.Role))
	return nil
}

func userTokenRun() error {
	role, err := models.ParseRole(strings.TrimSpace(loginRole))
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}
	sess, err := session.Login(context.Background(), s, loginEmail, role)
	if err != nil {
		return err
	}

	issuer := session.NewTokenIssuer(viper.GetString("auth.jwt_secret"), viper.GetDuration("auth.token_ttl"))
	token, exp, err := issuer.Issue(sess)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}
	ui.VerboseLog("Token for %s expires %s", sess.UserID(), exp.Format("2006-01-02 15:04"))
	fmt.Fprintln(ui.Out, token)
	return nil
}

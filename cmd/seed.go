package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/civicconnect/civic/internal/seed"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load users and issues from YAML",
	Long: `Load users and issues into the store.

Without --file the built-in demo data is loaded. Users are upserted; issues
keep their ids, statuses and dates and must not already exist.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return seedRun()
	},
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "Seed YAML file (default: built-in demo data)")
	rootCmd.AddCommand(seedCmd)
}

func seedRun() error {
	f, err := seed.Demo()
	source := "demo data"
	if seedFile != "" {
		f, err = seed.LoadFile(seedFile)
		source = seedFile
	}
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would load %d users and %d issues from %s", len(f.Users), len(f.Issues), source)
		return nil
	}

	s, err := getStore()
	if err != nil {
		return err
	}
	tr, err := getTracker()
	if err != nil {
		return err
	}
	res, err := seed.Apply(context.Background(), s, tr, f)
	if err != nil {
		return err
	}
	ui.Success("Loaded %d users and %d issues from %s", res.Users, res.Issues, source)
	return nil
}

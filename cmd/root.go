package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/civicconnect/civic/internal/issues"
	"github.com/civicconnect/civic/internal/models"
	"github.com/civicconnect/civic/internal/output"
	"github.com/civicconnect/civic/internal/seed"
	"github.com/civicconnect/civic/internal/session"
	"github.com/civicconnect/civic/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	logger    *slog.Logger
	dataStore store.Store
	tracker   *issues.Tracker

	verbose bool
	dryRun  bool
	asUser  string
)

var rootCmd = &cobra.Command{
	Use:   "civic",
	Short: "Civic issue tracker - report, assign and resolve community issues",
	Long: `civic tracks community-reported civic issues such as potholes, broken
streetlights and missed garbage pickups.

Citizens report issues; administrators assign them to themselves and mark
them resolved. The same issue store is served over a REST API (civic serve)
and as MCP tools (civic mcp).`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/civic/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&asUser, "as", "", "Act as this user id (default $CIVIC_USER)")
}

func initConfig() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	configDir, err := configDirFunc()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
		os.Exit(1)
	}
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CIVIC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(configDir)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

// setDefaults registers the default of every config key.
func setDefaults(configDir string) {
	viper.SetDefault("state_dir", configDir)
	viper.SetDefault("user", "")
	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.db_path", filepath.Join(configDir, "civic.db"))
	viper.SetDefault("store.seed", true)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("auth.jwt_secret", "change-me")
	viper.SetDefault("auth.token_ttl", "72h")
	viper.SetDefault("ratelimit.redis_addr", "")
	viper.SetDefault("ratelimit.redis_password", "")
	viper.SetDefault("ratelimit.limit", 10)
	viper.SetDefault("ratelimit.window", "24h")
	viper.SetDefault("ratelimit.prefix", "civic:reports")
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	// Mutation logs are noise next to CLI output; serve raises the level.
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	setLogLevel(level)

	// Store is opened lazily so config/version commands run without a db.
}

func setLogLevel(level slog.Level) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// storeLabel describes the configured store for status output.
func storeLabel() string {
	driver := viper.GetString("store.driver")
	if driver == "sqlite" {
		return driver + ":" + viper.GetString("store.db_path")
	}
	return driver
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	var s store.Store
	switch driver := viper.GetString("store.driver"); driver {
	case "sqlite":
		sq, err := store.NewSQLiteStore(viper.GetString("store.db_path"))
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s = sq
	case "memory":
		s = store.NewMemoryStore()
	default:
		return nil, fmt.Errorf("unknown store driver %q (use: sqlite, memory)", driver)
	}

	ctx := context.Background()
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if viper.GetBool("store.seed") {
		demo, err := seed.Demo()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		seeded, err := seed.IfEmpty(ctx, s, issues.New(s, logger), demo)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		if seeded {
			ui.VerboseLog("Seeded demo data into %s", storeLabel())
		}
	}

	dataStore = s
	return dataStore, nil
}

// getTracker returns the shared issue tracker over the shared store.
func getTracker() (*issues.Tracker, error) {
	if tracker != nil {
		return tracker, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	tracker = issues.New(s, logger)
	return tracker, nil
}

// currentSession resolves --as (or $CIVIC_USER) into a session.
func currentSession(ctx context.Context) (models.Session, error) {
	id := asUser
	if id == "" {
		id = viper.GetString("user")
	}
	if id == "" {
		return models.Session{}, fmt.Errorf("no acting user: pass --as <user-id> or set CIVIC_USER")
	}
	s, err := getStore()
	if err != nil {
		return models.Session{}, err
	}
	sess, err := session.Lookup(ctx, s, id)
	if err != nil {
		return models.Session{}, fmt.Errorf("act as %q: %w", id, err)
	}
	return sess, nil
}

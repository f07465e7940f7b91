package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "civic"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage civic configuration.

Running bare 'civic config' is the same as 'civic config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# civic configuration
# See: civic config show (for effective values and sources)

# State/data directory (default: ~/.config/civic)
# state_dir: {{ .StateDir }}

# User id commands act as when --as is not given
# user: user123

store:
  # sqlite (persistent) or memory (lost on exit, useful with serve)
  driver: "{{ .StoreDriver }}"

  # SQLite database path (default: ~/.config/civic/civic.db)
  # db_path: {{ .DBPath }}

  # Load the demo users and issues into an empty store (default: true)
  seed: {{ .StoreSeed }}

server:
  port: {{ .ServerPort }}

auth:
  # HMAC secret for API session tokens; override in production
  # jwt_secret: change-me
  token_ttl: "{{ .TokenTTL }}"

# Per-user cap on reports submitted through the API (needs Redis)
ratelimit:
  redis_addr: "{{ .RedisAddr }}"
  limit: {{ .RateLimit }}
  window: "{{ .RateWindow }}"

# Category suggestions use Anthropic when a key is set (or $ANTHROPIC_API_KEY)
anthropic:
  # api_key: sk-ant-...
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	StateDir       string
	StoreDriver    string
	DBPath         string
	StoreSeed      bool
	ServerPort     int
	TokenTTL       string
	RedisAddr      string
	RateLimit      int
	RateWindow     string
	AnthropicModel string
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		StateDir:       viper.GetString("state_dir"),
		StoreDriver:    viper.GetString("store.driver"),
		DBPath:         viper.GetString("store.db_path"),
		StoreSeed:      viper.GetBool("store.seed"),
		ServerPort:     viper.GetInt("server.port"),
		TokenTTL:       viper.GetString("auth.token_ttl"),
		RedisAddr:      viper.GetString("ratelimit.redis_addr"),
		RateLimit:      viper.GetInt("ratelimit.limit"),
		RateWindow:     viper.GetString("ratelimit.window"),
		AnthropicModel: viper.GetString("anthropic.model"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
	Secret bool
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "CIVIC_STATE_DIR"},
	{Key: "user", EnvVar: "CIVIC_USER"},
	{Key: "store.driver", EnvVar: "CIVIC_STORE_DRIVER"},
	{Key: "store.db_path", EnvVar: "CIVIC_STORE_DB_PATH"},
	{Key: "store.seed", EnvVar: "CIVIC_STORE_SEED"},
	{Key: "server.port", EnvVar: "CIVIC_SERVER_PORT"},
	{Key: "auth.jwt_secret", EnvVar: "CIVIC_AUTH_JWT_SECRET", Secret: true},
	{Key: "auth.token_ttl", EnvVar: "CIVIC_AUTH_TOKEN_TTL"},
	{Key: "ratelimit.redis_addr", EnvVar: "CIVIC_RATELIMIT_REDIS_ADDR"},
	{Key: "ratelimit.redis_password", EnvVar: "CIVIC_RATELIMIT_REDIS_PASSWORD", Secret: true},
	{Key: "ratelimit.limit", EnvVar: "CIVIC_RATELIMIT_LIMIT"},
	{Key: "ratelimit.window", EnvVar: "CIVIC_RATELIMIT_WINDOW"},
	{Key: "ratelimit.prefix", EnvVar: "CIVIC_RATELIMIT_PREFIX"},
	{Key: "anthropic.api_key", EnvVar: "CIVIC_ANTHROPIC_API_KEY", Secret: true},
	{Key: "anthropic.model", EnvVar: "CIVIC_ANTHROPIC_MODEL"},
}

// displayValue masks secrets, showing only whether they are set.
func displayValue(k configKeyInfo) string {
	val := viper.GetString(k.Key)
	if k.Secret && val != "" {
		return "********"
	}
	if val == "" {
		return "-"
	}
	return val
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-26s %s  %s\n", k.Key, displayValue(k), source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'civic config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}

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
	return filepath.Join(home, ".config", "quorum"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage quorum configuration.

Running bare 'quorum config' is the same as 'quorum config show'.`,
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
const configTemplate = `# quorum configuration
# See: quorum config show (for effective values and sources)

# State/data directory (default: ~/.config/quorum)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/quorum/quorum.db)
# db_path: {{ .DBPath }}

# Directory for review reports and metadata sidecars
# report_dir: {{ .ReportDir }}

# Participants
ai:
  # Lead model spec: claude, codex, gemini, anthropic:<model>, or name=cmd args.
  # Empty means auto-detect installed AI CLIs.
  lead: "{{ .AILead }}"

  # Comma-separated peer model specs
  peers: "{{ .AIPeers }}"

# Anthropic API (used for anthropic:<model> specs)
anthropic:
  api_key: "{{ .AnthropicAPIKey }}"
  model: "{{ .AnthropicModel }}"

# Review settings
review:
  # Maximum consensus rounds before publishing without agreement
  max_rounds: {{ .ReviewMaxRounds }}

  # Token budget for curated diff content
  token_budget: {{ .ReviewTokenBudget }}

  # Per-invocation timeout for AI CLIs (Go duration, e.g. "10m")
  peer_timeout: "{{ .ReviewPeerTimeout }}"

  # Wall-clock bound for a whole session ("0" disables)
  session_timeout: "{{ .ReviewSessionTimeout }}"
`

type configTemplateData struct {
	StateDir             string
	DBPath               string
	ReportDir            string
	AILead               string
	AIPeers              string
	AnthropicAPIKey      string
	AnthropicModel       string
	ReviewMaxRounds      int
	ReviewTokenBudget    int
	ReviewPeerTimeout    string
	ReviewSessionTimeout string
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
		StateDir:             viper.GetString("state_dir"),
		DBPath:               viper.GetString("db_path"),
		ReportDir:            viper.GetString("report_dir"),
		AILead:               viper.GetString("ai.lead"),
		AIPeers:              viper.GetString("ai.peers"),
		AnthropicAPIKey:      viper.GetString("anthropic.api_key"),
		AnthropicModel:       viper.GetString("anthropic.model"),
		ReviewMaxRounds:      viper.GetInt("review.max_rounds"),
		ReviewTokenBudget:    viper.GetInt("review.token_budget"),
		ReviewPeerTimeout:    viper.GetString("review.peer_timeout"),
		ReviewSessionTimeout: viper.GetString("review.session_timeout"),
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
}

var configKeys = []configKeyInfo{
	{Key: "state_dir", EnvVar: "QUORUM_STATE_DIR"},
	{Key: "db_path", EnvVar: "QUORUM_DB_PATH"},
	{Key: "report_dir", EnvVar: "QUORUM_REPORT_DIR"},
	{Key: "ai.lead", EnvVar: "QUORUM_AI_LEAD"},
	{Key: "ai.peers", EnvVar: "QUORUM_AI_PEERS"},
	{Key: "anthropic.model", EnvVar: "QUORUM_ANTHROPIC_MODEL"},
	{Key: "review.max_rounds", EnvVar: "QUORUM_REVIEW_MAX_ROUNDS"},
	{Key: "review.token_budget", EnvVar: "QUORUM_REVIEW_TOKEN_BUDGET"},
	{Key: "review.peer_timeout", EnvVar: "QUORUM_REVIEW_PEER_TIMEOUT"},
	{Key: "review.session_timeout", EnvVar: "QUORUM_REVIEW_SESSION_TIMEOUT"},
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
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-24s %v  %s\n", k.Key, val, source)
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
		return fmt.Errorf("$EDITOR is not set — set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'quorum config init' first)", cfgPath)
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

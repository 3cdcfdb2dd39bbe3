// Package cmd wires the weave CLI. Environment credentials are read
// here and nowhere else; the core packages receive them through
// configuration.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/weave/internal/config"
	"github.com/zjrosen/weave/internal/log"
)

const (
	envAuthToken  = "ANTHROPIC_AUTH_TOKEN"
	envBaseURL    = "ANTHROPIC_BASE_URL"
	envAPITimeout = "API_TIMEOUT_MS"
)

var (
	version = "dev"
	cfgFile string
	debug   bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "weave",
	Short:   "An autonomous developer-story orchestrator",
	Long: `Weave turns work items into dependency graphs of developer stories,
schedules them, and runs a coding agent against each story in an
isolated git worktree.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: .weave/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging to .weave/weave.log")
	rootCmd.PersistentFlags().String("db", "",
		"sqlite database path")
	rootCmd.PersistentFlags().String("model", "",
		"executor model override")
	rootCmd.PersistentFlags().String("planner-model", "",
		"planner model override")
	rootCmd.PersistentFlags().String("api-key", "",
		"planner and executor credential (overrides "+envAuthToken+")")
	rootCmd.PersistentFlags().String("base-url", "",
		"planner and executor endpoint override (overrides "+envBaseURL+")")
	rootCmd.PersistentFlags().Int("timeout-ms", 0,
		"executor wall-clock limit in milliseconds")

	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("store.connection", flags.Lookup("db"))
	_ = viper.BindPFlag("executor.model", flags.Lookup("model"))
	_ = viper.BindPFlag("planner.model", flags.Lookup("planner-model"))
	_ = viper.BindPFlag("planner.api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("executor.api_key", flags.Lookup("api-key"))
	_ = viper.BindPFlag("planner.base_url", flags.Lookup("base-url"))
	_ = viper.BindPFlag("executor.base_url", flags.Lookup("base-url"))
	_ = viper.BindPFlag("executor.timeout_ms", flags.Lookup("timeout-ms"))
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("planner.max_tokens", defaults.Planner.MaxTokens)
	viper.SetDefault("planner.timeout_ms", defaults.Planner.TimeoutMs)
	viper.SetDefault("executor.timeout_ms", defaults.Executor.TimeoutMs)
	viper.SetDefault("repo.default_branch", defaults.Repo.DefaultBranch)
	viper.SetDefault("repo.worktree_base_path", defaults.Repo.WorktreeBasePath)
	viper.SetDefault("store.connection", defaults.Store.Connection)
	viper.SetDefault("recover.heartbeat_ttl_ms", defaults.Recover.HeartbeatTTLMs)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .weave/config.yaml (current directory)
		// 2. ~/.config/weave/config.yaml (user config)
		if _, err := os.Stat(".weave/config.yaml"); err == nil {
			viper.SetConfigFile(".weave/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "weave"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		// No config file found anywhere - create default at .weave/config.yaml
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := ".weave/config.yaml"
			if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
				viper.SetConfigFile(defaultPath)
				_ = viper.ReadInConfig()
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)
	applyEnvCredentials(&cfg)

	if debug {
		log.SetEnabled(true)
		log.SetMinLevel(log.LevelDebug)
		if _, err := log.Init(".weave/weave.log"); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file: %v\n", err)
		}
	}
}

// applyEnvCredentials fills credentials from the environment when the
// config file leaves them empty. This is the only place weave reads
// credential variables.
func applyEnvCredentials(c *config.Config) {
	if token := os.Getenv(envAuthToken); token != "" {
		if c.Planner.APIKey == "" {
			c.Planner.APIKey = token
		}
		if c.Executor.APIKey == "" {
			c.Executor.APIKey = token
		}
	}
	if base := os.Getenv(envBaseURL); base != "" {
		if c.Planner.BaseURL == "" {
			c.Planner.BaseURL = base
		}
		if c.Executor.BaseURL == "" {
			c.Executor.BaseURL = base
		}
	}
	if ms := os.Getenv(envAPITimeout); ms != "" && !rootCmd.PersistentFlags().Changed("timeout-ms") {
		if v, err := strconv.Atoi(ms); err == nil && v > 0 {
			c.Executor.TimeoutMs = v
		}
	}
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags)
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

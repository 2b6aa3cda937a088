package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	// Version is the current version of skylift
	Version = "1.0.0"
)

// Config holds the global configuration for the skylift CLI
type Config struct {
	ConfigDir string
	Debug     bool
}

// GlobalConfig is the shared configuration instance
var GlobalConfig = &Config{}

// NewRootCommand creates the root cobra command for skylift
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skylift",
		Short: "skylift - Serverless deployment orchestrator",
		Long: `skylift deploys serverless functions described by a serverless.yml file to
AWS Lambda or Vercel, keeps an append-only history of every deployment, and
can roll a project back to any recorded deployment by replaying its artifacts.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Initialize configuration
			if err := initConfig(); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			// Setup logging
			logrus.SetOutput(os.Stderr)
			if GlobalConfig.Debug {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}

			return nil
		},
	}

	// Persistent flags (available to all subcommands)
	cmd.PersistentFlags().BoolVar(&GlobalConfig.Debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().StringVar(&GlobalConfig.ConfigDir, "config-dir", "", "Configuration directory (default: ~/.skylift)")

	// Add subcommands
	cmd.AddCommand(NewInitCommand())
	cmd.AddCommand(NewValidateCommand())
	cmd.AddCommand(NewDeployCommand())
	cmd.AddCommand(NewListCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewRollbackCommand())
	cmd.AddCommand(NewCredentialCommand())

	return cmd
}

// initConfig initializes the skylift configuration directory
func initConfig() error {
	// Environment variable always takes priority (for testing)
	if envDir := os.Getenv("SKYLIFT_CONFIG_DIR"); envDir != "" {
		GlobalConfig.ConfigDir = envDir
	} else if GlobalConfig.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get user home directory: %w", err)
		}
		GlobalConfig.ConfigDir = filepath.Join(homeDir, ".skylift")
	}

	if err := os.MkdirAll(GlobalConfig.ConfigDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// GetConfigDir returns the configuration directory path
// Priority order: 1) SKYLIFT_CONFIG_DIR env var (for testing), 2) GlobalConfig.ConfigDir, 3) ~/.skylift
func GetConfigDir() string {
	if envDir := os.Getenv("SKYLIFT_CONFIG_DIR"); envDir != "" {
		return envDir
	}
	if GlobalConfig.ConfigDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			// Fallback to current directory if home dir cannot be determined
			return ".skylift"
		}
		return filepath.Join(homeDir, ".skylift")
	}
	return GlobalConfig.ConfigDir
}

// GetHistoryDBPath returns the path to the deployment history database
func GetHistoryDBPath() string {
	return filepath.Join(GetConfigDir(), "history.db")
}

// Execute runs the root command
func Execute() error {
	cmd := NewRootCommand()
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	return cmd.Execute()
}

// Package config implements the 'paramcapture config' command family.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coral-mesh/paramcapture/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage paramcapture configuration",
		Long: `Manage paramcapture configuration.

Configuration Priority:
  1. PARAMCAPTURE_* environment variables (highest)
  2. Config file (--config, $PARAMCAPTURE_CONFIG or ~/.paramcapture/paramcapture.yaml)
  3. Built-in defaults`,
	}

	cmd.AddCommand(newViewCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newInitCmd())

	return cmd
}

func newViewCmd() *cobra.Command {
	var (
		configFile string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show the effective configuration",
		Long: `Display the configuration after defaults, the config file and environment
overrides are merged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return writeConfig(cmd.OutOrStdout(), format, cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file")
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format (yaml, json)")

	return cmd
}

func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		Long: `Load the configuration and report the first problem found.

Checks:
- Durations are not negative and default_duration fits under max_duration
- The profiler socket, timeouts and retry count are usable
- The dispatch buffer holds at least one event
- The log level is known`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = config.DefaultPath()
			}
			if _, err := config.Load(configFile); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			cmd.Printf("✓ %s is valid\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file")

	return cmd
}

func newInitCmd() *cobra.Command {
	var (
		configFile string
		force      bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the built-in defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configFile
			if path == "" {
				path = config.DefaultPath()
			}
			if path == "" {
				return errors.New("no config path: pass --config")
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", path)
				}
			}

			if err := config.Save(path, config.DefaultCaptureConfig()); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file to create")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func writeConfig(w io.Writer, format string, cfg *config.CaptureConfig) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

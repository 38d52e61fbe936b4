// CareWatch Core - Radar Eldercare Dashboard Core
//
// This is the main entry point for the CareWatch command-line tool.
// `carewatch serve` runs the view server: it keeps the entity cache and
// the aggregation scope warm, relays radar telemetry and serves the
// dashboard API. The remaining commands are one-shot backend clients
// sharing the same configuration.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/carewatch-core/migrations"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config path.
const configEnv = "CAREWATCH_CONFIG"

func main() {
	// Cancel on Ctrl+C and SIGTERM so serve can shut down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can execute commands independently.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "carewatch",
		Short: "Radar eldercare dashboard core",
		Long: `carewatch serves the radar eldercare dashboard API and offers
one-shot commands against the monitoring backend.

Configuration is read from --config, then $CAREWATCH_CONFIG, then
configs/config.yaml. Client commands fall back to built-in defaults
when no file exists; serve requires one.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "config file path")
	root.PersistentFlags().Bool("json", false, "print JSON instead of a table")

	root.AddCommand(
		newServeCmd(),
		newHydrateCmd(),
		newPersonsCmd(),
		newDevicesCmd(),
		newMappingsCmd(),
		newAlertsCmd(),
		newDeviceStatusCmd(),
		newTokenCmd(),
	)
	return root
}

// getConfigPath returns the configuration file path and whether it was
// chosen explicitly (flag or environment) rather than defaulted.
func getConfigPath(cmd *cobra.Command) (string, bool) {
	if f := cmd.Flag("config"); f != nil && f.Value.String() != "" {
		return f.Value.String(), true
	}
	if path := os.Getenv(configEnv); path != "" {
		return path, true
	}
	return defaultConfigPath, false
}

// loadConfig loads the configuration for cmd. When the path was not
// chosen explicitly, the default file is missing and requireFile is
// false, the built-in defaults are used instead.
func loadConfig(cmd *cobra.Command, requireFile bool) (*config.Config, error) {
	path, explicit := getConfigPath(cmd)

	if !explicit && !requireFile {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			cfg := config.Default()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("validating default config: %w", err)
			}
			return cfg, nil
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// jsonOutput reports whether --json was given.
func jsonOutput(cmd *cobra.Command) bool {
	f := cmd.Flag("json")
	return f != nil && f.Value.String() == "true"
}

// Package cmd provides the CLI commands for the governance gate.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/web4/governance/internal/config"
)

var cfgFile string
var storageRoot string

var rootCmd = &cobra.Command{
	Use:   "governance-gate",
	Short: "Governance gate — policy, audit, and session inspection for an agent's tool calls",
	Long: `governance-gate is a pass-through CLI over the governance library.

It does not run a server: the library is called in-process by the host that
evaluates and records tool calls. This CLI exists to inspect what that host
has already written to disk.

Configuration:
  Config is loaded from governance-gate.yaml in the current directory,
  $HOME/.governance-gate/, or /etc/governance-gate/.

  Environment variables can override config values with the
  GOVERNANCE_GATE_ prefix, e.g. GOVERNANCE_GATE_STORAGE_ROOT=/data/gov.

Commands:
  verify      Verify a session's audit chain integrity and signatures
  filter      Filter and print a session's audit records
  last        Print the most recently appended records for a session
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./governance-gate.yaml)")
	rootCmd.PersistentFlags().StringVar(&storageRoot, "storage-root", "", "override storage.root from config")
}

func initConfig() {
	config.InitViper(cfgFile)
}

// loadConfig loads and validates the GovernanceConfig, applying any
// --storage-root override after defaults are computed.
func loadConfig() (*config.GovernanceConfig, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if storageRoot != "" {
		cfg.Storage.Root = storageRoot
	}
	return cfg, nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	auditadapter "github.com/web4/governance/internal/adapter/outbound/audit"
)

var (
	lastSessionID string
	lastCount     int
)

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "Print the most recently appended records for a session",
	Long: `last prints up to --count of a session's most recently appended audit
records, newest first, taken from the chain's in-memory ring-buffer cache,
which opening the chain fills by reading the session's log.`,
	RunE: runLast,
}

func init() {
	lastCmd.Flags().StringVar(&lastSessionID, "session", "", "session id to query (required)")
	lastCmd.Flags().IntVar(&lastCount, "count", 10, "number of records to print")
	_ = lastCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(lastCmd)
}

func runLast(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	auditPath := filepath.Join(cfg.Storage.Root, "audit", lastSessionID+".jsonl")
	chain, err := auditadapter.NewFileChain(auditPath, nil, nil)
	if err != nil {
		return fmt.Errorf("open audit chain: %w", err)
	}

	records := chain.Recent(lastCount)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

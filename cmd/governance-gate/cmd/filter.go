package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	auditadapter "github.com/web4/governance/internal/adapter/outbound/audit"
	"github.com/web4/governance/internal/domain/audit"
)

var (
	filterSessionID string
	filterTool      string
	filterCategory  string
	filterStatus    string
	filterTarget    string
	filterSince     string
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Filter and print a session's audit records",
	Long: `filter selects a subset of a session's audit log by tool, category,
status, a glob over target, and/or a relative or absolute "since" bound,
printing matching records as a JSON array.`,
	RunE: runFilter,
}

func init() {
	filterCmd.Flags().StringVar(&filterSessionID, "session", "", "session id to filter (required)")
	filterCmd.Flags().StringVar(&filterTool, "tool", "", "only records for this tool")
	filterCmd.Flags().StringVar(&filterCategory, "category", "", "only records in this category")
	filterCmd.Flags().StringVar(&filterStatus, "status", "", "only records with this status: success, error, blocked")
	filterCmd.Flags().StringVar(&filterTarget, "target", "", "glob pattern over the record's target")
	filterCmd.Flags().StringVar(&filterSince, "since", "", `only records at or after this time: ISO-8601 or "N(s|m|h|d)"`)
	_ = filterCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(filterCmd)
}

func runFilter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	auditPath := filepath.Join(cfg.Storage.Root, "audit", filterSessionID+".jsonl")
	chain, err := auditadapter.NewFileChain(auditPath, nil, nil)
	if err != nil {
		return fmt.Errorf("open audit chain: %w", err)
	}

	records, err := chain.Filter(audit.FilterCriteria{
		Tool:       filterTool,
		Category:   filterCategory,
		Status:     audit.Status(filterStatus),
		TargetGlob: filterTarget,
		Since:      filterSince,
	})
	if err != nil {
		return fmt.Errorf("filter records: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

package cmd

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	auditadapter "github.com/web4/governance/internal/adapter/outbound/audit"
	sessionadapter "github.com/web4/governance/internal/adapter/outbound/session"
)

var verifySessionID string

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a session's audit chain integrity and signatures",
	Long: `verify walks a session's audit log end to end, checking that each
record's prevRecordHash matches the previous record, that action indices
are dense, and that each record's signature verifies against the session's
public key. The result is printed as JSON.`,
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifySessionID, "session", "", "session id to verify (required)")
	_ = verifyCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	sessions := sessionadapter.NewFileStore(filepath.Join(cfg.Storage.Root, "sessions"), nil)
	if !sessions.Exists(verifySessionID) {
		return fmt.Errorf("unknown session %q", verifySessionID)
	}
	st, err := sessions.Load(verifySessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	auditPath := filepath.Join(cfg.Storage.Root, "audit", verifySessionID+".jsonl")
	chain, err := auditadapter.NewFileChain(auditPath, nil, nil)
	if err != nil {
		return fmt.Errorf("open audit chain: %w", err)
	}

	pubKey, err := hex.DecodeString(st.PublicKeyHex)
	if err != nil {
		return fmt.Errorf("decode session public key: %w", err)
	}
	publicKeys := map[string][]byte{st.SigningKeyID: pubKey}

	result, err := chain.Verify(publicKeys)
	if err != nil {
		return fmt.Errorf("verify chain: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

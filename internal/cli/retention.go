package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/observability"
	"github.com/memlayer/memlayer/internal/retention"
)

var (
	retentionTenant  string
	retentionDryRun  bool
	retentionActions []string
)

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Run the retention policy for a tenant",
	Long: "Evaluates the tenant's retention policy against the store and applies\n" +
		"archive/delete transitions. With --dry-run, prints the decisions without\n" +
		"mutating anything.",
	RunE: runRetention,
}

func init() {
	retentionCmd.Flags().StringVar(&retentionTenant, "tenant", "", "tenant to run retention for (required)")
	retentionCmd.Flags().BoolVar(&retentionDryRun, "dry-run", false, "evaluate without applying transitions")
	retentionCmd.Flags().StringSliceVar(&retentionActions, "actions", []string{"archive", "delete"}, "actions to apply")
	retentionCmd.MarkFlagRequired("tenant")
}

func runRetention(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	observability.Setup(cfg.Logging)

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	var actions retention.ActionSet
	for _, a := range retentionActions {
		switch a {
		case "archive":
			actions.Archive = true
		case "delete":
			actions.Delete = true
		default:
			return fmt.Errorf("unknown action %q (want archive or delete)", a)
		}
	}

	executor := retention.NewExecutor(st)
	run, err := executor.Run(cmd.Context(), retentionTenant, actions, retentionDryRun)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

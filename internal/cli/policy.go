package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/memory"
	"github.com/memlayer/memlayer/internal/observability"
)

var (
	policyTenant          string
	policyMaxAgeDays      int
	policyThreshold       float64
	policyMaxItems        int
	policyDeleteAfterDays int
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Manage per-tenant retention policies",
}

var policyGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print a tenant's retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
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

		policy, err := st.GetPolicy(cmd.Context(), policyTenant)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(policy)
	},
}

var policySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or replace a tenant's retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		observability.Setup(cfg.Logging)

		if policyThreshold < 0 || policyThreshold > 1 {
			return fmt.Errorf("importance-threshold must be in [0, 1], got %v", policyThreshold)
		}

		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		policy := &memory.Policy{
			TenantID:            policyTenant,
			MaxAgeDays:          policyMaxAgeDays,
			ImportanceThreshold: policyThreshold,
			MaxItems:            policyMaxItems,
			DeleteAfterDays:     policyDeleteAfterDays,
		}
		if err := st.PutPolicy(cmd.Context(), policy); err != nil {
			return err
		}
		fmt.Printf("policy set for tenant %s\n", policyTenant)
		return nil
	},
}

func init() {
	policyCmd.PersistentFlags().StringVar(&policyTenant, "tenant", "", "tenant id (required)")
	policyCmd.MarkPersistentFlagRequired("tenant")

	policySetCmd.Flags().IntVar(&policyMaxAgeDays, "max-age-days", 0, "archive active memories older than this (0 = disabled)")
	policySetCmd.Flags().Float64Var(&policyThreshold, "importance-threshold", 0, "archive active memories below this importance (0 = disabled)")
	policySetCmd.Flags().IntVar(&policyMaxItems, "max-items", 0, "archive least valuable memories beyond this count (0 = disabled)")
	policySetCmd.Flags().IntVar(&policyDeleteAfterDays, "delete-after-days", 0, "delete archived memories after this many days (0 = disabled)")

	policyCmd.AddCommand(policyGetCmd)
	policyCmd.AddCommand(policySetCmd)
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/embedding"
	"github.com/memlayer/memlayer/internal/engine"
	"github.com/memlayer/memlayer/internal/observability"
)

var scoreTenant string

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score memories whose importance is still pending",
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

		emb, err := embedding.New(cfg.Embedding)
		if err != nil {
			return fmt.Errorf("configure embedder: %w", err)
		}
		eng, err := engine.New(st, emb, cfg)
		if err != nil {
			return fmt.Errorf("configure engine: %w", err)
		}

		scored, err := eng.ScorePending(cmd.Context(), scoreTenant)
		if err != nil {
			return err
		}
		fmt.Printf("scored %d memories for tenant %s\n", scored, scoreTenant)
		return nil
	},
}

func init() {
	scoreCmd.Flags().StringVar(&scoreTenant, "tenant", "", "tenant id (required)")
	scoreCmd.MarkFlagRequired("tenant")
}

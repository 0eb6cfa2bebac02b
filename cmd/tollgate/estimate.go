package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tollgate/pkg/models"
	"github.com/pario-ai/tollgate/pkg/tokens"
)

func newEstimateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "estimate [text]",
		Short: "Estimate tokens and cost of a request on every tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			text, err := requestText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			est := tokens.New(cfg.Tokens, cfg.Tiers)
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tMODEL\tPROMPT\tRESPONSE\tTOTAL\tCOST")
			for _, tier := range models.Tiers {
				e := est.Estimate(text, tier)
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.6f\n",
					tier, cfg.Tiers.Get(tier).Model, e.PromptTokens, e.ResponseTokens, e.EstimatedTokens, e.EstimatedCost)
			}
			return w.Flush()
		},
	}
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tollgate/pkg/classify"
)

func newClassifyCmd(configPath *string) *cobra.Command {
	var rules bool

	cmd := &cobra.Command{
		Use:   "classify [text]",
		Short: "Classify request text without routing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			c := classify.New(cfg.Classifier)

			out := cmd.OutOrStdout()
			if rules {
				for i, r := range c.Rules() {
					fmt.Fprintf(out, "%2d. %-20s %s\n", i+1, r.Name, r.Label)
				}
				return nil
			}

			text, err := requestText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			v := c.Explain(text)
			f := classify.Measure(text)
			fmt.Fprintf(out, "%s (rule: %s)\n", v.Label, v.Rule)
			fmt.Fprintf(out, "  chars=%d words=%d alpha=%.2f questions=%d list_items=%d\n",
				f.Runes, len(f.Words), f.AlphaRatio(), f.QuestionMarks, f.ListItems)
			return nil
		},
	}

	cmd.Flags().BoolVar(&rules, "rules", false, "list the classification rules in evaluation order")
	return cmd
}

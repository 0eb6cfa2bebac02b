package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tollgate",
		Short:         "Tollgate: cost-aware routing decisions for LLM requests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (YAML or .toml)")

	root.AddCommand(
		newDecideCmd(&configPath),
		newRunCmd(&configPath),
		newClassifyCmd(&configPath),
		newEstimateCmd(&configPath),
		newStatsCmd(&configPath),
		newHistoryCmd(&configPath),
		newMCPCmd(&configPath),
		newConfigCmd(&configPath),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

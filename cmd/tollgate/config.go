package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "validate",
			Short: "Load and validate the config file",
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := loadConfig(*configPath); err != nil {
					return err
				}
				source := *configPath
				if source == "" {
					source = "built-in defaults"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", source)
				return nil
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(*configPath)
				if err != nil {
					return err
				}
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(cfg); err != nil {
					return fmt.Errorf("encode config: %w", err)
				}
				return enc.Close()
			},
		},
	)
	return cmd
}

package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tollgate/pkg/mcp"
)

func newMCPCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve routing decisions as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s, err := openSession(ctx, *configPath, sessionOpts{serve: true})
			if err != nil {
				return err
			}
			defer s.Close()

			var h mcp.History
			if s.history != nil {
				h = s.history
			}
			srv := mcp.New(s.engine, h, version).WithLogger(s.logger)
			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}
}

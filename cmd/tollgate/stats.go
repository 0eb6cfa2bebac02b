package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tollgate/pkg/render"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Replay a file of requests and print the session summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), *configPath, sessionOpts{})
			if err != nil {
				return err
			}
			defer s.Close()

			if file != "" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open requests: %w", err)
				}
				defer f.Close()

				src := newPipeSource(f)
				for {
					line, err := src.ReadLine("")
					if errors.Is(err, io.EOF) {
						break
					}
					if errors.Is(err, errLineTooLong) {
						fmt.Fprintf(cmd.ErrOrStderr(), "skipped: line longer than %d bytes\n", maxLineBytes)
						continue
					}
					if err != nil {
						return fmt.Errorf("read requests: %w", err)
					}
					s.decide(cmd.Context(), line)
				}
			}

			if asJSON {
				return render.StatsJSON(cmd.OutOrStdout(), s.engine.Stats())
			}
			return render.Stats(cmd.OutOrStdout(), s.engine.Stats(), render.Options{Color: render.ColorEnabled(os.Stdout)})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one request per line")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	return cmd
}

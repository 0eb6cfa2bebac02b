package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/tollgate/pkg/render"
)

// requestText joins args into one request, or reads stdin when args is
// empty or "-".
func requestText(args []string, stdin io.Reader) (string, error) {
	if len(args) == 0 || (len(args) == 1 && args[0] == "-") {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	return strings.Join(args, " "), nil
}

func newDecideCmd(configPath *string) *cobra.Command {
	var (
		asJSON  bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "decide [text]",
		Short: "Decide how a single request would be routed",
		Long:  "Classify, price and route one request. Reads stdin when no text is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := requestText(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			s, err := openSession(cmd.Context(), *configPath, sessionOpts{})
			if err != nil {
				return err
			}
			defer s.Close()

			rec := s.decide(cmd.Context(), text)
			if asJSON {
				return render.JSON(cmd.OutOrStdout(), rec)
			}
			return render.Decision(cmd.OutOrStdout(), rec, render.Options{
				Color:   render.ColorEnabled(os.Stdout),
				Verbose: verbose,
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the decision as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every field of the decision")
	return cmd
}

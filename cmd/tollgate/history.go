package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/pario-ai/tollgate/pkg/history"
	"github.com/pario-ai/tollgate/pkg/models"
)

func newHistoryCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query and manage the decision journal",
	}

	cmd.AddCommand(
		newHistorySearchCmd(configPath),
		newHistoryShowCmd(configPath),
		newHistoryStatsCmd(configPath),
		newHistoryCleanupCmd(configPath),
	)
	return cmd
}

func openHistory(configPath string) (*history.Store, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	st, err := history.Open(cfg.History)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	return st, nil
}

// parseSince accepts a lookback duration such as 24h or a YYYY-MM-DD date.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q (use a duration like 24h or YYYY-MM-DD)", s)
	}
	return t, nil
}

func newHistorySearchCmd(configPath *string) *cobra.Command {
	var (
		class  string
		status string
		tier   string
		since  string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search journaled decisions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}

			st, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Query(cmd.Context(), models.HistoryQueryOpts{
				Classification: models.Classification(strings.ToUpper(class)),
				Status:         models.Status(strings.ToUpper(status)),
				Tier:           models.Tier(strings.ToLower(tier)),
				Since:          sinceTime,
				Limit:          limit,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No decisions found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tID\tSTATUS\tCLASS\tTIER\tTOKENS\tCOST\tPROMPT")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t$%.6f\t%s\n",
					e.CreatedAt.Format("2006-01-02 15:04:05"), shortID(e.ID), e.Status, e.Classification,
					orDash(string(e.Tier)), e.EstimatedTokens, e.EstimatedCost,
					models.Truncate(strings.Join(strings.Fields(e.Prompt), " "), 40))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&class, "class", "", "filter by classification")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&tier, "tier", "", "filter by tier (cheap or strong)")
	cmd.Flags().StringVar(&since, "since", "", "lookback duration (24h) or start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max decisions to return")
	return cmd
}

func newHistoryShowCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a single journaled decision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Query(cmd.Context(), models.HistoryQueryOpts{ID: args[0], Limit: 1})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No decision found for that ID.")
				return nil
			}

			e := entries[0]
			fmt.Fprintf(out, "ID:             %s\n", e.ID)
			fmt.Fprintf(out, "Time:           %s\n", e.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "Status:         %s\n", e.Status)
			fmt.Fprintf(out, "Classification: %s\n", e.Classification)
			fmt.Fprintf(out, "Cache:          %s\n", e.CacheOutcome)
			fmt.Fprintf(out, "Budget:         %s\n", e.BudgetOutcome)
			fmt.Fprintf(out, "Tier:           %s\n", orDash(string(e.Tier)))
			fmt.Fprintf(out, "Model:          %s\n", orDash(e.Model))
			fmt.Fprintf(out, "Tokens:         %s\n", humanize.Comma(int64(e.EstimatedTokens)))
			fmt.Fprintf(out, "Cost:           $%.6f\n", e.EstimatedCost)
			fmt.Fprintf(out, "Remaining:      $%.6f\n", e.BudgetRemaining)
			if e.RejectReason != models.RejectNone {
				fmt.Fprintf(out, "Rejected:       %s\n", e.RejectReason)
			}
			fmt.Fprintf(out, "Reason:         %s\n", e.Reason)
			fmt.Fprintf(out, "\n--- Prompt ---\n%s\n", e.Prompt)
			return nil
		},
	}
}

func newHistoryStatsCmd(configPath *string) *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Aggregate journaled decisions by classification and tier",
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceTime, err := parseSince(since, time.Now())
			if err != nil {
				return err
			}

			st, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.Summary(cmd.Context(), sinceTime)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No decisions found.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CLASS\tTIER\tCOUNT\tCACHE HITS\tREJECTED\tTOKENS\tCOST")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\t$%.6f\n",
					r.Classification, orDash(string(r.Tier)), r.Count, r.CacheHits, r.Rejected,
					humanize.Comma(r.TotalTokens), r.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "lookback duration (24h) or start date (YYYY-MM-DD)")
	return cmd
}

func newHistoryCleanupCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete decisions older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openHistory(*configPath)
			if err != nil {
				return err
			}
			defer st.Close()

			deleted, err := st.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d decisions.\n", deleted)
			return nil
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Package render formats decision records and session statistics for people
// and machines.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/pario-ai/tollgate/pkg/models"
)

// PromptLimit is how many runes of a prompt are shown.
const PromptLimit = 100

var (
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	purple = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	bold   = lipgloss.NewStyle().Bold(true)
)

// Options control text rendering.
type Options struct {
	Color   bool
	Verbose bool
}

// ColorEnabled reports whether f is a terminal that should get color output.
func ColorEnabled(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type painter struct{ on bool }

func (p painter) paint(s lipgloss.Style, text string) string {
	if !p.on {
		return text
	}
	return s.Render(text)
}

func statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusProcessed, models.StatusCacheHit:
		return green
	case models.StatusProcessedWithWarning:
		return yellow
	default:
		return red
	}
}

func classStyle(c models.Classification) lipgloss.Style {
	switch c {
	case models.ClassSimple:
		return cyan
	case models.ClassComplex:
		return purple
	case models.ClassExtremelyLong:
		return yellow
	default:
		return red
	}
}

// Decision writes a human-readable rendering of rec.
func Decision(w io.Writer, rec models.DecisionRecord, opts Options) error {
	if opts.Verbose {
		_, err := io.WriteString(w, decisionBlock(rec, painter{opts.Color}))
		return err
	}
	_, err := io.WriteString(w, DecisionLine(rec, opts)+"\n")
	return err
}

// DecisionLine renders rec on a single line.
func DecisionLine(rec models.DecisionRecord, opts Options) string {
	p := painter{opts.Color}
	status := rec.Status()

	parts := []string{
		fmt.Sprintf("#%d", rec.Sequence),
		p.paint(statusStyle(status), string(status)),
		p.paint(classStyle(rec.Classification), string(rec.Classification)),
		"cache=" + strings.ToLower(string(rec.CacheOutcome)),
	}
	if rec.Tier != "" {
		parts = append(parts, fmt.Sprintf("tier=%s(%s)", rec.Tier, rec.Model))
	}
	if rec.Estimate != nil {
		parts = append(parts,
			fmt.Sprintf("tokens=%s", humanize.Comma(int64(rec.Estimate.EstimatedTokens))),
			fmt.Sprintf("cost=$%.6f", rec.Estimate.EstimatedCost))
	}
	parts = append(parts, fmt.Sprintf("remaining=$%.4f", rec.BudgetRemaining))
	if rec.RejectReason != models.RejectNone {
		parts = append(parts, "reject="+string(rec.RejectReason))
	}
	parts = append(parts, "reason="+fmt.Sprintf("%q", rec.Reason))
	return strings.Join(parts, " ")
}

func decisionBlock(rec models.DecisionRecord, p painter) string {
	status := rec.Status()
	style := statusStyle(status)
	rule := p.paint(style, strings.Repeat("-", 70))

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n%s\n", p.paint(bold, fmt.Sprintf("REQUEST #%d - %s", rec.Sequence, status)), rule)
	fmt.Fprintf(&b, "ID:              %s\n", rec.ID)
	fmt.Fprintf(&b, "Timestamp:       %s\n", rec.Request.ReceivedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Prompt:          %s\n", models.Truncate(rec.Request.Text, PromptLimit))
	fmt.Fprintf(&b, "Classification:  %s\n", p.paint(classStyle(rec.Classification), string(rec.Classification)))

	switch rec.CacheOutcome {
	case models.CacheHit:
		fmt.Fprintf(&b, "Cache:           %s\n", p.paint(green, "HIT"))
	default:
		fmt.Fprintf(&b, "Cache:           %s\n", rec.CacheOutcome)
	}
	if rec.Estimate != nil {
		fmt.Fprintf(&b, "Tokens:          %s\n", humanize.Comma(int64(rec.Estimate.EstimatedTokens)))
	}
	if rec.Tier != "" {
		fmt.Fprintf(&b, "Model:           %s (%s tier)\n", rec.Model, rec.Tier)
	}
	switch {
	case rec.CacheOutcome == models.CacheHit:
		fmt.Fprintf(&b, "Cost:            %s\n", p.paint(green, "$0.00 (cache hit)"))
	case rec.Estimate != nil:
		fmt.Fprintf(&b, "Cost:            $%.6f\n", rec.Estimate.EstimatedCost)
	}
	fmt.Fprintf(&b, "Budget left:     $%.4f\n", rec.BudgetRemaining)
	if rec.RejectReason != models.RejectNone {
		fmt.Fprintf(&b, "Rejected:        %s\n", p.paint(red, string(rec.RejectReason)))
	}
	if rec.Shortfall > 0 {
		fmt.Fprintf(&b, "Shortfall:       $%.6f\n", rec.Shortfall)
	}
	if rec.Warning != "" {
		fmt.Fprintf(&b, "Warning:         %s\n", p.paint(yellow, rec.Warning))
	}
	fmt.Fprintf(&b, "Reason:          %s\n", rec.Reason)
	fmt.Fprintf(&b, "%s\n", rule)
	return b.String()
}

// JSON writes rec as a single-line machine-readable record.
func JSON(w io.Writer, rec models.DecisionRecord) error {
	return json.NewEncoder(w).Encode(rec.Log(PromptLimit))
}

// Stats writes the end-of-session summary.
func Stats(w io.Writer, s models.EngineStats, opts Options) error {
	p := painter{opts.Color}

	budgetStyle := green
	switch pct := s.Budget.PercentageUsed; {
	case pct >= 80:
		budgetStyle = red
	case pct >= 50:
		budgetStyle = yellow
	}
	hitRate := s.Cache.HitRate()
	hitStyle := yellow
	if hitRate > 30 {
		hitStyle = green
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", p.paint(bold, "SESSION STATISTICS"))
	fmt.Fprintf(&b, "Total requests:  %s\n", humanize.Comma(s.TotalRequests))
	fmt.Fprintf(&b, "\nBudget (%s, since %s)\n", s.Budget.Period, s.Budget.PeriodStart.Format("2006-01-02"))
	fmt.Fprintf(&b, "  Limit:         $%.2f\n", s.Budget.DailyLimit)
	fmt.Fprintf(&b, "  Spent:         $%.6f\n", s.Budget.Spent)
	fmt.Fprintf(&b, "  Remaining:     %s\n", p.paint(budgetStyle, fmt.Sprintf("$%.6f", s.Budget.Remaining)))
	fmt.Fprintf(&b, "  Used:          %s\n", p.paint(budgetStyle, fmt.Sprintf("%.1f%%", s.Budget.PercentageUsed)))
	fmt.Fprintf(&b, "\nCache\n")
	fmt.Fprintf(&b, "  Entries:       %s\n", humanize.Comma(s.Cache.Entries))
	fmt.Fprintf(&b, "  Hits:          %s\n", humanize.Comma(s.Cache.Hits))
	fmt.Fprintf(&b, "  Misses:        %s\n", humanize.Comma(s.Cache.Misses))
	fmt.Fprintf(&b, "  Hit rate:      %s\n", p.paint(hitStyle, fmt.Sprintf("%.1f%%", hitRate)))
	fmt.Fprintf(&b, "  Tokens saved:  %s\n", humanize.Comma(s.Cache.TokensSaved))
	fmt.Fprintf(&b, "  Cost saved:    %s\n", p.paint(green, fmt.Sprintf("$%.6f", s.Cache.CostSaved)))

	_, err := io.WriteString(w, b.String())
	return err
}

// StatsJSON writes the summary as indented JSON.
func StatsJSON(w io.Writer, s models.EngineStats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

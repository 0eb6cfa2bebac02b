package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/pario-ai/tollgate/pkg/models"
	"github.com/pario-ai/tollgate/pkg/render"
)

// Tool argument structs. Fields without omitempty are required.

type textArgs struct {
	Text string `json:"text" jsonschema:"description=The request text as a client would send it"`
}

type statsArgs struct{}

type historyArgs struct {
	Classification string `json:"classification,omitempty" jsonschema:"enum=EMPTY,enum=GARBAGE,enum=SIMPLE,enum=COMPLEX,enum=EXTREMELY_LONG,description=Only show decisions with this classification"`
	Status         string `json:"status,omitempty" jsonschema:"enum=PROCESSED,enum=PROCESSED_WITH_WARNING,enum=CACHE_HIT,enum=REJECTED,description=Only show decisions with this status"`
	Since          string `json:"since,omitempty" jsonschema:"description=Lookback window as a Go duration such as 24h"`
	Limit          int    `json:"limit,omitempty" jsonschema:"minimum=1,description=Maximum number of decisions to return"`
}

type historySummaryArgs struct {
	Since string `json:"since,omitempty" jsonschema:"description=Lookback window as a Go duration such as 24h"`
}

// toolHandler handles one tools/call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

type tool struct {
	name        string
	description string
	args        any
	handler     toolHandler
}

var tools = []tool{
	{
		name:        "tollgate_decide",
		description: "Run a request through classification, cache, estimation, budget and routing. Charges the budget when the request is approved.",
		args:        &textArgs{},
		handler:     handleDecide,
	},
	{
		name:        "tollgate_classify",
		description: "Classify request text and name the rule that decided it. Does not touch the cache or budget.",
		args:        &textArgs{},
		handler:     handleClassify,
	},
	{
		name:        "tollgate_estimate",
		description: "Estimate tokens and cost of request text on every model tier. Does not touch the cache or budget.",
		args:        &textArgs{},
		handler:     handleEstimate,
	},
	{
		name:        "tollgate_stats",
		description: "Show request count, budget state and cache statistics for this session.",
		args:        &statsArgs{},
		handler:     handleStats,
	},
	{
		name:        "tollgate_history",
		description: "Search journaled decisions, newest first.",
		args:        &historyArgs{},
		handler:     handleHistory,
	},
	{
		name:        "tollgate_history_summary",
		description: "Aggregate journaled decisions by classification and tier.",
		args:        &historySummaryArgs{},
		handler:     handleHistorySummary,
	},
}

var schemaReflector = &jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// toolDefinitions returns the tools/list payload.
func toolDefinitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(tools))
	for _, t := range tools {
		schema := schemaReflector.Reflect(t.args)
		schema.Version = ""
		defs = append(defs, ToolDefinition{
			Name:        t.name,
			Description: t.description,
			InputSchema: schema,
		})
	}
	return defs
}

func toolByName(name string) (tool, bool) {
	for _, t := range tools {
		if t.name == name {
			return t, true
		}
	}
	return tool{}, false
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: text}}}
}

func errorResult(msg string) ToolCallResult {
	return ToolCallResult{Content: []ContentBlock{{Type: "text", Text: msg}}, IsError: true}
}

func parseText(raw json.RawMessage) (string, error) {
	var a textArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	return a.Text, nil
}

func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid since %q: %w", s, err)
	}
	return now.Add(-d), nil
}

func handleDecide(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	text, err := parseText(raw)
	if err != nil {
		return errorResult(err.Error())
	}

	rec := s.engine.Decide(text)
	if s.history != nil {
		if err := s.history.Record(ctx, rec); err != nil {
			s.logger.Warn("record decision", "id", rec.ID, "error", err)
		}
	}

	data, err := json.MarshalIndent(rec.Log(render.PromptLimit), "", "  ")
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(render.DecisionLine(rec, render.Options{}) + "\n\n" + string(data))
}

func handleClassify(_ context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	text, err := parseText(raw)
	if err != nil {
		return errorResult(err.Error())
	}
	v := s.engine.Classify(text)
	return textResult(fmt.Sprintf("%s (rule: %s)", v.Label, v.Rule))
}

func handleEstimate(_ context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	text, err := parseText(raw)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatEstimates(s.engine.Estimate(text)))
}

func handleStats(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	var b strings.Builder
	if err := render.Stats(&b, s.engine.Stats(), render.Options{}); err != nil {
		return errorResult(err.Error())
	}
	return textResult(b.String())
}

func handleHistory(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.history == nil {
		return errorResult("Decision history is not enabled.")
	}
	var a historyArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	since, err := parseSince(a.Since, time.Now())
	if err != nil {
		return errorResult(err.Error())
	}

	entries, err := s.history.Query(ctx, models.HistoryQueryOpts{
		Classification: models.Classification(a.Classification),
		Status:         models.Status(a.Status),
		Since:          since,
		Limit:          a.Limit,
	})
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatHistory(entries))
}

func handleHistorySummary(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.history == nil {
		return errorResult("Decision history is not enabled.")
	}
	var a historySummaryArgs
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &a); err != nil {
			return errorResult(fmt.Sprintf("invalid arguments: %v", err))
		}
	}
	since, err := parseSince(a.Since, time.Now())
	if err != nil {
		return errorResult(err.Error())
	}

	rows, err := s.history.Summary(ctx, since)
	if err != nil {
		return errorResult(err.Error())
	}
	return textResult(formatHistorySummary(rows))
}

// Package mcp serves the decision engine as MCP tools over stdio JSON-RPC.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pario-ai/tollgate/pkg/classify"
	"github.com/pario-ai/tollgate/pkg/models"
)

// Decider is the engine surface the tools use.
type Decider interface {
	Decide(text string) models.DecisionRecord
	Classify(text string) classify.Verdict
	Estimate(text string) []models.TokenEstimate
	Stats() models.EngineStats
}

// History is the optional decision journal.
type History interface {
	Record(ctx context.Context, rec models.DecisionRecord) error
	Query(ctx context.Context, opts models.HistoryQueryOpts) ([]models.HistoryEntry, error)
	Summary(ctx context.Context, since time.Time) ([]models.HistorySummary, error)
}

// Server answers JSON-RPC requests read line by line.
type Server struct {
	engine  Decider
	history History
	version string
	logger  *slog.Logger
}

// New creates a Server. history may be nil.
func New(engine Decider, history History, version string) *Server {
	return &Server{
		engine:  engine,
		history: history,
		version: version,
		logger:  slog.Default().With("component", "mcp"),
	}
}

// WithLogger replaces the server's logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l.With("component", "mcp")
	return s
}

// Run reads requests from r and writes responses to w until r is exhausted
// or ctx is cancelled.
func (s *Server) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(w, errorResponse(nil, CodeParseError, "parse error"))
			continue
		}
		if req.JSONRPC != jsonrpcVersion {
			s.writeResponse(w, errorResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""))
			continue
		}

		if resp := s.dispatch(ctx, &req); resp != nil {
			s.writeResponse(w, resp)
		}
	}
	return scanner.Err()
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case "initialize":
		return resultResponse(req.ID, InitializeResult{
			ProtocolVersion: protocolVersion,
			ServerInfo:      ServerInfo{Name: "tollgate", Version: s.version},
			Capabilities:    map[string]any{"tools": map[string]any{}},
		})
	case "notifications/initialized":
		return nil
	case "ping":
		return resultResponse(req.ID, map[string]any{})
	case "tools/list":
		return resultResponse(req.ID, ToolsListResult{Tools: toolDefinitions()})
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	default:
		return errorResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, CodeInvalidParams, "invalid params")
	}

	t, ok := toolByName(params.Name)
	if !ok {
		return resultResponse(req.ID, errorResult(fmt.Sprintf("unknown tool: %s", params.Name)))
	}
	return resultResponse(req.ID, t.handler(ctx, s, params.Arguments))
}

func (s *Server) writeResponse(w io.Writer, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("marshal response", "error", err)
		return
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/trace"
)

// ===== TRACE TOOLS =====

type traceInput struct {
	Action string `json:"action,omitempty" jsonschema:"create (default) or distill"`

	// create
	Query         string          `json:"query,omitempty" jsonschema:"The question that started the dig (required for create)"`
	QueryType     string          `json:"queryType,omitempty" jsonschema:"Free-form query classification"`
	DigPoints     store.DigPoints `json:"digPoints,omitempty" jsonschema:"Evidence collected: files commits issues retros learnings resonance"`
	ParentTraceID string          `json:"parentTraceId,omitempty" jsonschema:"Parent trace id for a follow-up dig"`
	Project       *string         `json:"project,omitempty" jsonschema:"Explicit project scope"`
	Cwd           string          `json:"cwd,omitempty" jsonschema:"Working directory for project auto-detection"`

	// distill
	TraceID           string `json:"traceId,omitempty" jsonschema:"Trace to distill (required for distill)"`
	Awakening         string `json:"awakening,omitempty" jsonschema:"The insight the dig produced (required for distill)"`
	PromoteToLearning bool   `json:"promoteToLearning,omitempty" jsonschema:"Also capture the awakening as a learning"`
}

type traceListInput struct {
	Status    string `json:"status,omitempty" jsonschema:"Filter: raw reviewed distilling distilled"`
	QueryType string `json:"queryType,omitempty" jsonschema:"Filter by query classification"`
	Limit     int    `json:"limit,omitempty" jsonschema:"Maximum traces (default: 20)"`
	Offset    int    `json:"offset,omitempty" jsonschema:"Pagination offset"`
}

type traceListOutput struct {
	Traces []store.TraceSummary `json:"traces" jsonschema:"Trace summaries, newest first"`
}

type traceGetInput struct {
	TraceID   string `json:"traceId" jsonschema:"required,Trace id"`
	Direction string `json:"direction,omitempty" jsonschema:"Chain walk: up down or both; omit for the single trace"`
}

type traceGetOutput struct {
	Trace *store.Trace `json:"trace,omitempty"`
	Chain *trace.Chain `json:"chain,omitempty" jsonschema:"Present when a direction was requested"`
}

func (s *Server) registerTraceTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_trace",
		Description: "Record a discovery dig. action=create starts a trace (optionally as a child); action=distill closes one out with its awakening.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args traceInput) (*mcp.CallToolResult, *store.Trace, error) {
		t, err := s.runTrace(args)
		observe("oracle_trace", err)
		return nil, t, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_trace_list",
		Description: "List trace summaries, optionally filtered by status and query type.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args traceListInput) (*mcp.CallToolResult, traceListOutput, error) {
		traces, err := s.traceSvc.List(store.TraceStatus(args.Status), args.QueryType, args.Limit, args.Offset)
		observe("oracle_trace_list", err)
		if err != nil {
			return nil, traceListOutput{}, err
		}
		return nil, traceListOutput{Traces: traces}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_trace_get",
		Description: "Read one trace, or walk its chain of ancestors and descendants.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args traceGetInput) (*mcp.CallToolResult, traceGetOutput, error) {
		out, err := s.getTrace(args)
		observe("oracle_trace_get", err)
		return nil, out, err
	})
}

func (s *Server) runTrace(args traceInput) (*store.Trace, error) {
	switch args.Action {
	case "", "create":
		return s.traceSvc.Create(trace.CreateRequest{
			Query:         args.Query,
			QueryType:     args.QueryType,
			DigPoints:     args.DigPoints,
			ParentTraceID: args.ParentTraceID,
			Project:       args.Project,
			Cwd:           args.Cwd,
		})
	case "distill":
		return s.traceSvc.Distill(trace.DistillRequest{
			TraceID:           args.TraceID,
			Awakening:         args.Awakening,
			PromoteToLearning: args.PromoteToLearning,
		})
	default:
		return nil, oracle.Invalidf("action %q is not one of create, distill", args.Action)
	}
}

func (s *Server) getTrace(args traceGetInput) (traceGetOutput, error) {
	if args.Direction == "" {
		t, err := s.traceSvc.Get(args.TraceID)
		if err != nil {
			return traceGetOutput{}, err
		}
		return traceGetOutput{Trace: t}, nil
	}
	chain, err := s.traceSvc.GetChain(args.TraceID, args.Direction)
	if err != nil {
		return traceGetOutput{}, err
	}
	return traceGetOutput{Chain: chain}, nil
}

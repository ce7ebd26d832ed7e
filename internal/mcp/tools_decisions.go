package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xaxixak/oracle-v2/internal/decision"
	"github.com/xaxixak/oracle-v2/internal/store"
)

// ===== DECISION TOOLS =====

type decisionsListInput struct {
	Status  string `json:"status,omitempty" jsonschema:"Filter: pending parked researching decided implemented closed"`
	Project string `json:"project,omitempty" jsonschema:"Project filter"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Maximum decisions (default: 20)"`
	Offset  int    `json:"offset,omitempty" jsonschema:"Pagination offset"`
}

type decisionsListOutput struct {
	Decisions []store.Decision `json:"decisions" jsonschema:"Decisions, newest first"`
}

type decisionsCreateInput struct {
	Title   string   `json:"title" jsonschema:"required,What is being decided"`
	Context string   `json:"context,omitempty" jsonschema:"Background for the decision"`
	Options []string `json:"options,omitempty" jsonschema:"Candidate options"`
	Project string   `json:"project,omitempty" jsonschema:"Project scope"`
	Tags    []string `json:"tags,omitempty" jsonschema:"Free-form tags"`
}

type decisionsGetInput struct {
	ID int64 `json:"id" jsonschema:"required,Decision id"`
}

type decisionsUpdateInput struct {
	ID        int64    `json:"id" jsonschema:"required,Decision id"`
	Title     *string  `json:"title,omitempty" jsonschema:"New title"`
	Context   *string  `json:"context,omitempty" jsonschema:"New context"`
	Options   []string `json:"options,omitempty" jsonschema:"Replacement option list"`
	Decision  *string  `json:"decision,omitempty" jsonschema:"The chosen option"`
	Rationale *string  `json:"rationale,omitempty" jsonschema:"Why it was chosen"`
	Tags      []string `json:"tags,omitempty" jsonschema:"Replacement tag list"`
	Status    string   `json:"status,omitempty" jsonschema:"Transition target; illegal transitions are rejected"`
	DecidedBy string   `json:"decidedBy,omitempty" jsonschema:"Who decided (stamped when entering decided)"`
}

func (s *Server) registerDecisionTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_decisions_list",
		Description: "List decision records, optionally filtered by status and project.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args decisionsListInput) (*mcp.CallToolResult, decisionsListOutput, error) {
		decisions, err := s.decisionSvc.List(store.DecisionStatus(args.Status), args.Project, args.Limit, args.Offset)
		observe("oracle_decisions_list", err)
		if err != nil {
			return nil, decisionsListOutput{}, err
		}
		return nil, decisionsListOutput{Decisions: decisions}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_decisions_create",
		Description: "Open a new decision record in pending state.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args decisionsCreateInput) (*mcp.CallToolResult, *store.Decision, error) {
		d, err := s.decisionSvc.Create(decision.CreateRequest{
			Title:   args.Title,
			Context: args.Context,
			Options: args.Options,
			Project: args.Project,
			Tags:    args.Tags,
		})
		observe("oracle_decisions_create", err)
		return nil, d, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_decisions_get",
		Description: "Read one decision record.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args decisionsGetInput) (*mcp.CallToolResult, *store.Decision, error) {
		d, err := s.decisionSvc.Get(args.ID)
		observe("oracle_decisions_get", err)
		return nil, d, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_decisions_update",
		Description: "Update a decision's fields and/or transition its status along a legal edge.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args decisionsUpdateInput) (*mcp.CallToolResult, *store.Decision, error) {
		d, err := s.updateDecision(args)
		observe("oracle_decisions_update", err)
		return nil, d, err
	})
}

func (s *Server) updateDecision(args decisionsUpdateInput) (*store.Decision, error) {
	d, err := s.decisionSvc.Update(args.ID, store.DecisionUpdate{
		Title:     args.Title,
		Context:   args.Context,
		Options:   args.Options,
		Decision:  args.Decision,
		Rationale: args.Rationale,
		Tags:      args.Tags,
	})
	if err != nil {
		return nil, err
	}
	if args.Status != "" {
		return s.decisionSvc.Transition(args.ID, store.DecisionStatus(args.Status), args.DecidedBy)
	}
	return d, nil
}

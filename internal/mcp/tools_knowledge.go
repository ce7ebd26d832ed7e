package mcp

import (
	"context"
	"sort"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/dashboard"
	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/search"
)

// ===== KNOWLEDGE TOOLS =====

type searchInput struct {
	Query   string  `json:"query" jsonschema:"required,Search query"`
	Type    string  `json:"type,omitempty" jsonschema:"Document type filter: principle pattern learning retro or all (default: all)"`
	Limit   int     `json:"limit,omitempty" jsonschema:"Maximum results (default: 10, max: 100)"`
	Offset  int     `json:"offset,omitempty" jsonschema:"Pagination offset"`
	Mode    string  `json:"mode,omitempty" jsonschema:"Retrieval mode: hybrid fts or vector (default: hybrid)"`
	Project *string `json:"project,omitempty" jsonschema:"Explicit project scope; empty string means universal documents only"`
	Cwd     string  `json:"cwd,omitempty" jsonschema:"Working directory for project auto-detection"`
}

type consultInput struct {
	Decision string  `json:"decision" jsonschema:"required,The decision being weighed"`
	Context  string  `json:"context,omitempty" jsonschema:"Additional context for the decision"`
	Project  *string `json:"project,omitempty" jsonschema:"Explicit project scope"`
	Cwd      string  `json:"cwd,omitempty" jsonschema:"Working directory for project auto-detection"`
}

type reflectInput struct{}

type reflectOutput struct {
	Document *oracle.Document `json:"document" jsonschema:"One randomly chosen principle or learning with full content"`
}

type learnInput struct {
	Pattern  string   `json:"pattern" jsonschema:"required,The pattern text to capture"`
	Source   string   `json:"source,omitempty" jsonschema:"Where the pattern came from"`
	Concepts []string `json:"concepts,omitempty" jsonschema:"Concept tags (auto-extracted when omitted)"`
	Origin   string   `json:"origin,omitempty" jsonschema:"Origin persona: mother arthur volt or human"`
	Project  *string  `json:"project,omitempty" jsonschema:"Explicit project scope"`
	Cwd      string   `json:"cwd,omitempty" jsonschema:"Working directory for project auto-detection"`
}

type listInput struct {
	Type        string `json:"type,omitempty" jsonschema:"Document type filter"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum results (default: 20)"`
	Offset      int    `json:"offset,omitempty" jsonschema:"Pagination offset"`
	GroupByFile *bool  `json:"groupByFile,omitempty" jsonschema:"Collapse chunks to one row per source file (default: true)"`
}

type listOutput struct {
	Documents []oracle.Document `json:"documents" jsonschema:"Document rows"`
	Total     int               `json:"total" jsonschema:"Total rows before pagination"`
}

type statsInput struct{}

type conceptsInput struct {
	Type  string `json:"type,omitempty" jsonschema:"Document type filter"`
	Limit int    `json:"limit,omitempty" jsonschema:"Maximum concepts returned (default: 50)"`
}

type conceptsOutput struct {
	Concepts []dashboard.ConceptCount `json:"concepts" jsonschema:"Concept tags with counts, descending"`
}

func (s *Server) registerKnowledgeTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_search",
		Description: "Search the knowledge base with hybrid keyword + semantic retrieval. Returns scored, deduplicated results.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, *search.Response, error) {
		resp, err := s.searchSvc.Search(ctx, search.Request{
			Query:   args.Query,
			Type:    args.Type,
			Limit:   args.Limit,
			Offset:  args.Offset,
			Mode:    args.Mode,
			Project: args.Project,
			Cwd:     args.Cwd,
		})
		observe("oracle_search", err)
		return nil, resp, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_consult",
		Description: "Consult the oracle before a decision. Returns the most relevant principles and patterns plus synthesized guidance.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args consultInput) (*mcp.CallToolResult, *consult.Response, error) {
		resp, err := s.consultSvc.Consult(ctx, consult.Request{
			Decision: args.Decision,
			Context:  args.Context,
			Project:  args.Project,
			Cwd:      args.Cwd,
		})
		observe("oracle_consult", err)
		return nil, resp, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_reflect",
		Description: "Return one randomly chosen principle or learning for reflection.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args reflectInput) (*mcp.CallToolResult, reflectOutput, error) {
		doc, err := s.store.RandomReflectDocument()
		observe("oracle_reflect", err)
		if err != nil {
			return nil, reflectOutput{}, err
		}
		return nil, reflectOutput{Document: doc}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_learn",
		Description: "Capture a new pattern as a learning: writes a markdown file and indexes it for keyword search immediately.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args learnInput) (*mcp.CallToolResult, *learn.Response, error) {
		resp, err := s.learnSvc.Learn(learn.Request{
			Pattern:  args.Pattern,
			Source:   args.Source,
			Concepts: args.Concepts,
			Origin:   args.Origin,
			Project:  args.Project,
			Cwd:      args.Cwd,
		})
		observe("oracle_learn", err)
		return nil, resp, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_list",
		Description: "Browse indexed documents. Groups by source file by default so multi-chunk files appear once.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args listInput) (*mcp.CallToolResult, listOutput, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 20
		}
		group := true
		if args.GroupByFile != nil {
			group = *args.GroupByFile
		}
		docType, err := docTypeArg(args.Type)
		if err != nil {
			observe("oracle_list", err)
			return nil, listOutput{}, err
		}
		docs, total, err := s.store.ListDocuments(docType, limit, args.Offset, group)
		observe("oracle_list", err)
		if err != nil {
			return nil, listOutput{}, err
		}
		return nil, listOutput{Documents: docs, Total: total}, nil
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_stats",
		Description: "Knowledge base statistics: document totals, concept distribution, recent activity, index health.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args statsInput) (*mcp.CallToolResult, *dashboard.Summary, error) {
		sum, err := s.dashboardSvc.Summary()
		observe("oracle_stats", err)
		return nil, sum, err
	})

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "oracle_concepts",
		Description: "Concept tag counts across the knowledge base, sorted descending.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args conceptsInput) (*mcp.CallToolResult, conceptsOutput, error) {
		limit := args.Limit
		if limit <= 0 {
			limit = 50
		}
		docType, err := docTypeArg(args.Type)
		if err != nil {
			observe("oracle_concepts", err)
			return nil, conceptsOutput{}, err
		}
		counts, err := s.store.ConceptCounts(docType, limit)
		observe("oracle_concepts", err)
		if err != nil {
			return nil, conceptsOutput{}, err
		}
		return nil, conceptsOutput{Concepts: sortConcepts(counts, limit)}, nil
	})
}

func docTypeArg(t string) (oracle.DocType, error) {
	if t == "" || t == "all" {
		return "", nil
	}
	dt := oracle.DocType(t)
	if !oracle.ValidDocType(dt) {
		return "", oracle.Invalidf("type %q is not one of principle, pattern, learning, retro, all", t)
	}
	return dt, nil
}

func sortConcepts(counts map[string]int, limit int) []dashboard.ConceptCount {
	out := make([]dashboard.ConceptCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, dashboard.ConceptCount{Concept: c, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Concept < out[j].Concept
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

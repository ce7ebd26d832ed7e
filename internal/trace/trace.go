// Package trace records discovery sessions as a directed forest. Children
// link to parents at creation time only, so the structure is cycle-free by
// construction.
package trace

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/projects"
	"github.com/xaxixak/oracle-v2/internal/store"
)

// Service manages traces.
type Service struct {
	store    *store.Store
	learner  *learn.Service
	detector *projects.Detector
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

// New creates a trace Service. learner may be nil when promotion to a
// learning is not wired (promoteToLearning then fails with Invalid).
func New(st *store.Store, learner *learn.Service, detector *projects.Detector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = projects.NewDetector(nil)
	}
	return &Service{
		store:    st,
		learner:  learner,
		detector: detector,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return "trace_" + uuid.NewString() },
	}
}

// CreateRequest starts a new trace, optionally as a child of an existing one.
type CreateRequest struct {
	Query         string
	QueryType     string
	DigPoints     store.DigPoints
	ParentTraceID string

	Project *string
	Cwd     string
}

// Create inserts a new raw trace. Depth and the evidence counts are derived
// here and stored; hand-edited arrays are not re-counted on read.
func (s *Service) Create(req CreateRequest) (*store.Trace, error) {
	if req.Query == "" {
		return nil, oracle.Invalidf("query is required")
	}
	project, _ := s.resolveProject(req.Project, req.Cwd)

	depth := 0
	if req.ParentTraceID != "" {
		parent, err := s.store.GetTrace(req.ParentTraceID)
		if err != nil {
			return nil, err
		}
		depth = parent.Depth + 1
	}

	t := &store.Trace{
		TraceID:       s.newID(),
		Query:         req.Query,
		QueryType:     req.QueryType,
		DigPoints:     req.DigPoints,
		FileCount:     len(req.DigPoints.Files),
		CommitCount:   len(req.DigPoints.Commits),
		IssueCount:    len(req.DigPoints.Issues),
		Depth:         depth,
		ParentTraceID: req.ParentTraceID,
		ChildTraceIDs: []string{},
		Status:        store.TraceStatusRaw,
		Project:       project,
		CreatedAt:     s.now(),
	}
	if err := s.store.InsertTrace(t); err != nil {
		return nil, err
	}
	s.logger.Info("trace created",
		zap.String("trace_id", t.TraceID), zap.Int("depth", t.Depth))
	return t, nil
}

// Get returns one trace.
func (s *Service) Get(traceID string) (*store.Trace, error) {
	return s.store.GetTrace(traceID)
}

// List returns trace summaries, newest first.
func (s *Service) List(status store.TraceStatus, queryType string, limit, offset int) ([]store.TraceSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListTraces(status, queryType, limit, offset)
}

// Chain is a walk through related traces.
type Chain struct {
	TraceID          string        `json:"trace_id"`
	Direction        string        `json:"direction"`
	Traces           []store.Trace `json:"traces"`
	TotalDepth       int           `json:"totalDepth"`
	HasAwakening     bool          `json:"hasAwakening"`
	AwakeningTraceID string        `json:"awakeningTraceId,omitempty"`
}

// GetChain walks ancestors ("up"), descendants ("down"), or both with the
// requested trace in the middle. Ancestors come root-first; descendants in
// BFS order.
func (s *Service) GetChain(traceID, direction string) (*Chain, error) {
	switch direction {
	case "", "both":
		direction = "both"
	case "up", "down":
	default:
		return nil, oracle.Invalidf("direction %q is not one of up, down, both", direction)
	}
	self, err := s.store.GetTrace(traceID)
	if err != nil {
		return nil, err
	}

	var traces []store.Trace
	if direction == "up" || direction == "both" {
		ancestors, err := s.ancestors(self)
		if err != nil {
			return nil, err
		}
		traces = append(traces, ancestors...)
	}
	traces = append(traces, *self)
	if direction == "down" || direction == "both" {
		descendants, err := s.descendants(self)
		if err != nil {
			return nil, err
		}
		traces = append(traces, descendants...)
	}

	chain := &Chain{TraceID: traceID, Direction: direction, Traces: traces}
	for _, t := range traces {
		if t.Depth+1 > chain.TotalDepth {
			chain.TotalDepth = t.Depth + 1
		}
		if t.Awakening != "" && !chain.HasAwakening {
			chain.HasAwakening = true
			chain.AwakeningTraceID = t.TraceID
		}
	}
	return chain, nil
}

// ancestors follows parent links transitively, returned root-first.
func (s *Service) ancestors(t *store.Trace) ([]store.Trace, error) {
	var up []store.Trace
	seen := map[string]bool{t.TraceID: true}
	for parentID := t.ParentTraceID; parentID != "" && !seen[parentID]; {
		seen[parentID] = true
		parent, err := s.store.GetTrace(parentID)
		if err != nil {
			if oracle.IsNotFound(err) {
				break
			}
			return nil, err
		}
		up = append([]store.Trace{*parent}, up...)
		parentID = parent.ParentTraceID
	}
	return up, nil
}

// descendants runs BFS over child_trace_ids.
func (s *Service) descendants(t *store.Trace) ([]store.Trace, error) {
	var down []store.Trace
	seen := map[string]bool{t.TraceID: true}
	queue := append([]string{}, t.ChildTraceIDs...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		child, err := s.store.GetTrace(id)
		if err != nil {
			if oracle.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		down = append(down, *child)
		queue = append(queue, child.ChildTraceIDs...)
	}
	return down, nil
}

// DistillRequest closes out a trace with its awakening.
type DistillRequest struct {
	TraceID           string
	Awakening         string
	PromoteToLearning bool
}

// Distill marks a trace distilled. With PromoteToLearning the awakening is
// also captured as a learning, and the trace records the new document id.
func (s *Service) Distill(req DistillRequest) (*store.Trace, error) {
	if req.Awakening == "" {
		return nil, oracle.Invalidf("awakening is required")
	}
	t, err := s.store.GetTrace(req.TraceID)
	if err != nil {
		return nil, err
	}

	distilledToID := ""
	if req.PromoteToLearning {
		if s.learner == nil {
			return nil, oracle.Invalidf("learning promotion is not available")
		}
		resp, err := s.learner.Learn(learn.Request{
			Pattern: req.Awakening,
			Source:  "trace:" + t.TraceID,
			Project: &t.Project,
		})
		if err != nil {
			return nil, err
		}
		distilledToID = resp.ID
	}

	if err := s.store.MarkTraceDistilled(req.TraceID, req.Awakening, distilledToID, s.now()); err != nil {
		return nil, err
	}
	return s.store.GetTrace(req.TraceID)
}

func (s *Service) resolveProject(project *string, cwd string) (string, bool) {
	if project != nil {
		return *project, true
	}
	if cwd != "" {
		if p := s.detector.Detect(cwd); p != "" {
			return p, true
		}
	}
	return "", false
}

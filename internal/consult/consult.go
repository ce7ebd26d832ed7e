// Package consult answers "should I do X" questions by pulling the most
// relevant principles and patterns from both indices and synthesizing a
// guidance string.
package consult

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/metrics"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/projects"
	"github.com/xaxixak/oracle-v2/internal/search"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

const (
	bucketFetch = 5  // per-bucket candidates from each backend
	bucketKeep  = 3  // per-bucket results returned
	vectorTopK  = 15 // untyped vector candidates, classified after the fact

	snippetLen = 150

	// closing is appended to every non-empty guidance string.
	closing = "Remember: The Oracle Keeps the Human Human."
)

// Service runs consultations.
type Service struct {
	store      *store.Store
	backend    vector.Backend
	collection string
	detector   *projects.Detector
	logger     *zap.Logger
}

// New creates a consult Service.
func New(st *store.Store, backend vector.Backend, collection string, detector *projects.Detector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = projects.NewDetector(nil)
	}
	return &Service{store: st, backend: backend, collection: collection, detector: detector, logger: logger}
}

// Request is one consultation.
type Request struct {
	Decision string
	Context  string

	Project *string
	Cwd     string
}

// Match is one supporting document.
type Match struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	Content    string  `json:"content"`
	SourceFile string  `json:"source_file"`
	Score      float64 `json:"score"`
	Source     string  `json:"source"`
}

// Response is the consultation result.
type Response struct {
	Decision   string  `json:"decision"`
	Principles []Match `json:"principles"`
	Patterns   []Match `json:"patterns"`
	Guidance   string  `json:"guidance"`
}

// candidate carries per-backend evidence for one document.
type candidate struct {
	Match
	ftsScore    float64
	vectorScore float64
	hasFTS      bool
	hasVector   bool
}

// Consult retrieves supporting principles and patterns for a decision.
func (s *Service) Consult(ctx context.Context, req Request) (*Response, error) {
	if req.Decision == "" {
		return nil, oracle.Invalidf("decision is required")
	}
	project, hasProject := s.resolveProject(req)

	text := req.Decision
	if req.Context != "" {
		text += " " + req.Context
	}
	// Decisions are sentences, not search queries; implicit-AND matching
	// would demand every word. OR the terms and let bm25 rank overlap.
	match := orTerms(search.Sanitize(text))

	principles := map[string]*candidate{}
	patterns := map[string]*candidate{}

	ftsPrinciples, err := s.store.SearchFTS(match, oracle.DocTypePrinciple, project, hasProject, bucketFetch)
	if err != nil {
		return nil, err
	}
	for _, r := range ftsPrinciples {
		addFTS(principles, r)
	}
	ftsLearnings, err := s.store.SearchFTS(match, oracle.DocTypeLearning, project, hasProject, bucketFetch)
	if err != nil {
		return nil, err
	}
	for _, r := range ftsLearnings {
		addFTS(patterns, r)
	}

	// Vector side is untyped; rows are classified by stored metadata and
	// its loss degrades the consultation rather than failing it.
	if err := s.addVector(ctx, text, project, hasProject, principles, patterns); err != nil {
		s.logger.Warn("consulting without vector backend", zap.Error(err))
	}

	resp := &Response{
		Decision:   req.Decision,
		Principles: topMatches(principles, bucketKeep),
		Patterns:   topMatches(patterns, bucketKeep),
	}
	resp.Guidance = s.guidance(req.Decision, resp.Principles, resp.Patterns)

	metrics.ConsultRequests.Inc()
	err = s.store.LogConsult(store.ConsultLogEntry{
		Decision:        req.Decision,
		Context:         req.Context,
		PrinciplesFound: len(resp.Principles),
		PatternsFound:   len(resp.Patterns),
		Guidance:        resp.Guidance,
		Project:         project,
	})
	if err != nil {
		s.logger.Debug("consult_log append failed", zap.Error(err))
	}
	return resp, nil
}

func (s *Service) addVector(ctx context.Context, text, project string, hasProject bool, principles, patterns map[string]*candidate) error {
	qr, err := s.backend.Query(ctx, s.collection, text, vectorTopK, nil)
	if err != nil {
		return err
	}
	meta, err := s.store.DocumentMeta(qr.IDs)
	if err != nil {
		return err
	}
	counts := map[oracle.DocType]int{}
	for i, id := range qr.IDs {
		m, ok := meta[id]
		if !ok {
			continue
		}
		if hasProject && m.Project != "" && m.Project != project {
			continue
		}
		var bucket map[string]*candidate
		switch m.Type {
		case oracle.DocTypePrinciple:
			bucket = principles
		case oracle.DocTypeLearning, oracle.DocTypePattern:
			bucket = patterns
		default:
			continue
		}
		if counts[m.Type] >= bucketFetch {
			continue
		}
		counts[m.Type]++

		distance := 2.0
		if i < len(qr.Distances) {
			distance = qr.Distances[i]
		}
		content := ""
		if i < len(qr.Documents) {
			content = qr.Documents[i]
		}
		sim := search.VectorSimilarity(distance)
		if c, ok := bucket[id]; ok {
			c.vectorScore = sim
			c.hasVector = true
			c.Source = "hybrid"
			continue
		}
		bucket[id] = &candidate{
			Match: Match{
				ID:         id,
				Type:       string(m.Type),
				Content:    content,
				SourceFile: m.SourceFile,
				Source:     "vector",
			},
			vectorScore: sim,
			hasVector:   true,
		}
	}
	return nil
}

func addFTS(bucket map[string]*candidate, r store.FTSRow) {
	bucket[r.ID] = &candidate{
		Match: Match{
			ID:         r.ID,
			Type:       string(r.Type),
			Content:    r.Content,
			SourceFile: r.SourceFile,
			Source:     "fts",
		},
		ftsScore: search.FTSScore(r.Rank),
		hasFTS:   true,
	}
}

// topMatches scores each candidate and keeps the best n. A document seen by
// both backends scores max of the two plus a 0.1 boost, capped at 1.0.
func topMatches(bucket map[string]*candidate, n int) []Match {
	ranked := make([]*candidate, 0, len(bucket))
	for _, c := range bucket {
		switch {
		case c.hasFTS && c.hasVector:
			c.Score = c.ftsScore
			if c.vectorScore > c.Score {
				c.Score = c.vectorScore
			}
			c.Score += 0.1
			if c.Score > 1.0 {
				c.Score = 1.0
			}
		case c.hasFTS:
			c.Score = c.ftsScore
		default:
			c.Score = c.vectorScore
		}
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	out := make([]Match, len(ranked))
	for i, c := range ranked {
		out[i] = c.Match
	}
	return out
}

// guidance renders the fixed consultation template.
func (s *Service) guidance(decision string, principles, patterns []Match) string {
	if len(principles) == 0 && len(patterns) == 0 {
		return fmt.Sprintf("No matching principles or patterns for: %q", decision)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "The Oracle has consulted the knowledge base on: %q\n", decision)
	if len(principles) > 0 {
		b.WriteString("\nRelevant principles:\n")
		for i, p := range principles {
			fmt.Fprintf(&b, "%d. %s\n", i+1, snippet(p.Content))
		}
	}
	if len(patterns) > 0 {
		b.WriteString("\nRelevant patterns:\n")
		for i, p := range patterns {
			fmt.Fprintf(&b, "%d. %s\n", i+1, snippet(p.Content))
		}
	}
	b.WriteString("\n" + closing)
	return b.String()
}

func orTerms(match string) string {
	return strings.Join(strings.Fields(match), " OR ")
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= snippetLen {
		return s
	}
	return string(runes[:snippetLen]) + "..."
}

func (s *Service) resolveProject(req Request) (string, bool) {
	if req.Project != nil {
		return *req.Project, true
	}
	if req.Cwd != "" {
		if p := s.detector.Detect(req.Cwd); p != "" {
			return p, true
		}
	}
	return "", false
}

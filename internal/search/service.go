// Package search implements hybrid retrieval: keyword and vector backends
// queried concurrently, normalized onto [0, 1], fused, and paginated.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/xaxixak/oracle-v2/internal/metrics"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/projects"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

const (
	defaultLimit = 10
	maxLimit     = 100

	// contentPreview caps result content length.
	contentPreview = 500
)

// Service runs searches against both backends.
type Service struct {
	store      *store.Store
	backend    vector.Backend
	collection string
	detector   *projects.Detector
	logger     *zap.Logger
}

// New creates a search Service.
func New(st *store.Store, backend vector.Backend, collection string, detector *projects.Detector, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if detector == nil {
		detector = projects.NewDetector(nil)
	}
	return &Service{store: st, backend: backend, collection: collection, detector: detector, logger: logger}
}

// Request is one search call.
type Request struct {
	Query  string
	Type   string // principle, pattern, learning, retro, or all
	Limit  int
	Offset int
	Mode   string // hybrid, fts, or vector

	// Project, when non-nil, is an explicit scope; the empty string means
	// universal documents only. When nil and Cwd is set, the project is
	// detected from Cwd.
	Project *string
	Cwd     string
}

// Result is one scored hit.
type Result struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	SourceFile  string   `json:"source_file"`
	Concepts    []string `json:"concepts"`
	Project     *string  `json:"project"`
	Source      string   `json:"source"` // fts, vector, or hybrid
	Score       float64  `json:"score"`
	FTSScore    *float64 `json:"ftsScore,omitempty"`
	VectorScore *float64 `json:"vectorScore,omitempty"`
}

// Response is the search result page.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
	Mode    string   `json:"mode"`
	Warning string   `json:"warning,omitempty"`
}

// candidate accumulates per-backend scores for one id before fusion.
// Insertion order is preserved so ties break keyword-first.
type candidate struct {
	Result
	ftsScore    float64
	vectorScore float64
	hasFTS      bool
	hasVector   bool
}

// Search executes one retrieval request.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Query == "" {
		return nil, oracle.Invalidf("query is required")
	}
	if req.Limit == 0 {
		req.Limit = defaultLimit
	}
	if req.Limit < 1 || req.Limit > maxLimit {
		return nil, oracle.Invalidf("limit %d is out of range [1, %d]", req.Limit, maxLimit)
	}
	if req.Offset < 0 {
		return nil, oracle.Invalidf("offset %d is negative", req.Offset)
	}
	if req.Mode == "" {
		req.Mode = "hybrid"
	}
	if req.Mode != "hybrid" && req.Mode != "fts" && req.Mode != "vector" {
		return nil, oracle.Invalidf("mode %q is not one of hybrid, fts, vector", req.Mode)
	}
	docType, err := resolveType(req.Type)
	if err != nil {
		return nil, err
	}
	project, hasProject := s.resolveProject(req)

	weights := Weights{FTS: 0.5, Vector: 0.5, Mode: req.Mode}
	if req.Mode == "hybrid" {
		weights = QueryWeights(req.Query)
	}

	k := 2 * req.Limit

	// The vector query runs while the keyword side hits the store.
	type vectorOutcome struct {
		rows []candidate
		err  error
	}
	var vectorCh chan vectorOutcome
	if req.Mode != "fts" {
		vectorCh = make(chan vectorOutcome, 1)
		go func() {
			rows, err := s.queryVector(ctx, req.Query, k, docType, project, hasProject)
			vectorCh <- vectorOutcome{rows: rows, err: err}
		}()
	}

	var (
		combined     []candidate
		byID         = map[string]int{}
		keywordTotal int
	)
	if req.Mode != "vector" {
		match := Sanitize(req.Query)
		ftsRows, err := s.store.SearchFTS(match, docType, project, hasProject, k)
		if err != nil {
			return nil, err
		}
		keywordTotal, err = s.store.CountFTS(match, docType, project, hasProject)
		if err != nil {
			return nil, err
		}
		for _, r := range ftsRows {
			c := candidate{
				Result: Result{
					ID:         r.ID,
					Type:       string(r.Type),
					Content:    truncate(r.Content, contentPreview),
					SourceFile: r.SourceFile,
					Concepts:   r.Concepts,
					Project:    nullable(r.Project),
					Source:     "fts",
				},
				ftsScore: FTSScore(r.Rank),
				hasFTS:   true,
			}
			byID[r.ID] = len(combined)
			combined = append(combined, c)
		}
	}

	warning := ""
	if vectorCh != nil {
		out := <-vectorCh
		switch {
		case out.err != nil && req.Mode == "vector":
			return nil, oracle.Degradedf("vector search: %v", out.err)
		case out.err != nil:
			metrics.VectorFailures.Inc()
			warning = fmt.Sprintf("Vector search unavailable: %v. Using FTS5 only.", out.err)
			s.logger.Warn("vector backend unavailable, degrading to keyword-only", zap.Error(out.err))
		default:
			for _, v := range out.rows {
				if i, ok := byID[v.ID]; ok {
					combined[i].vectorScore = v.vectorScore
					combined[i].hasVector = true
					combined[i].Source = "hybrid"
					continue
				}
				byID[v.ID] = len(combined)
				combined = append(combined, v)
			}
		}
	}

	for i := range combined {
		c := &combined[i]
		if req.Mode == "hybrid" {
			c.Score = FuseScore(weights, c.ftsScore, c.vectorScore, c.hasFTS, c.hasVector)
		} else if c.hasFTS {
			c.Score = c.ftsScore
		} else {
			c.Score = c.vectorScore
		}
		if c.hasFTS {
			f := c.ftsScore
			c.FTSScore = &f
		}
		if c.hasVector {
			v := c.vectorScore
			c.VectorScore = &v
		}
	}
	sort.SliceStable(combined, func(i, j int) bool {
		return combined[i].Score > combined[j].Score
	})

	total := keywordTotal
	switch req.Mode {
	case "vector":
		total = len(combined)
	case "hybrid":
		if len(combined) > total {
			total = len(combined)
		}
	}

	page := paginate(combined, req.Offset, req.Limit)
	results := make([]Result, len(page))
	for i, c := range page {
		results[i] = c.Result
	}

	resp := &Response{
		Results: results,
		Total:   total,
		Offset:  req.Offset,
		Limit:   req.Limit,
		Mode:    weights.Mode,
		Warning: warning,
	}

	elapsed := time.Since(start)
	metrics.SearchRequests.WithLabelValues(resp.Mode).Inc()
	metrics.SearchDuration.Observe(elapsed.Seconds())
	s.logTelemetry(req, resp, project, elapsed)
	return resp, nil
}

// queryVector runs the top-k vector query and applies the type and project
// filters by joining ids back against document metadata.
func (s *Service) queryVector(ctx context.Context, query string, k int, docType oracle.DocType, project string, hasProject bool) ([]candidate, error) {
	var where map[string]string
	if docType != "" {
		where = map[string]string{"type": string(docType)}
	}
	qr, err := s.backend.Query(ctx, s.collection, query, k, where)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.DocumentMeta(qr.IDs)
	if err != nil {
		return nil, err
	}

	var out []candidate
	for i, id := range qr.IDs {
		m, ok := meta[id]
		if !ok {
			continue
		}
		if docType != "" && m.Type != docType {
			continue
		}
		if hasProject && m.Project != "" && m.Project != project {
			continue
		}
		content := ""
		if i < len(qr.Documents) {
			content = qr.Documents[i]
		}
		distance := 2.0
		if i < len(qr.Distances) {
			distance = qr.Distances[i]
		}
		out = append(out, candidate{
			Result: Result{
				ID:         id,
				Type:       string(m.Type),
				Content:    truncate(content, contentPreview),
				SourceFile: m.SourceFile,
				Concepts:   m.Concepts,
				Project:    nullable(m.Project),
				Source:     "vector",
			},
			vectorScore: VectorSimilarity(distance),
			hasVector:   true,
		})
	}
	return out, nil
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

func (s *Service) logTelemetry(req Request, resp *Response, project string, elapsed time.Duration) {
	err := s.store.LogSearch(store.SearchLogEntry{
		Query:        req.Query,
		Type:         req.Type,
		Mode:         resp.Mode,
		ResultsCount: resp.Total,
		SearchTimeMS: elapsed.Milliseconds(),
		Project:      project,
	})
	if err != nil {
		s.logger.Debug("search_log append failed", zap.Error(err))
	}
	for _, r := range resp.Results {
		if err := s.store.LogAccess(r.ID, "search", project); err != nil {
			s.logger.Debug("document_access append failed", zap.Error(err))
		}
	}
}

func resolveType(t string) (oracle.DocType, error) {
	if t == "" || t == "all" {
		return "", nil
	}
	dt := oracle.DocType(t)
	if !oracle.ValidDocType(dt) {
		return "", oracle.Invalidf("type %q is not one of principle, pattern, learning, retro, all", t)
	}
	return dt, nil
}

func paginate(rows []candidate, offset, limit int) []candidate {
	if offset >= len(rows) {
		return nil
	}
	end := offset + limit
	if end > len(rows) {
		end = len(rows)
	}
	return rows[offset:end]
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

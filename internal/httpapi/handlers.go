package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/search"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSearch(c echo.Context) error {
	req := search.Request{
		Query:  c.QueryParam("q"),
		Type:   c.QueryParam("type"),
		Limit:  intParam(c, "limit", 0),
		Offset: intParam(c, "offset", 0),
		Mode:   c.QueryParam("mode"),
		Cwd:    c.QueryParam("cwd"),
	}
	// An explicit project param, even empty, scopes the search; its absence
	// leaves scoping to cwd detection.
	if project, ok := queryParamPresent(c, "project"); ok {
		req.Project = &project
	}
	resp, err := s.deps.Search.Search(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleConsult(c echo.Context) error {
	var project *string
	if p, ok := queryParamPresent(c, "project"); ok {
		project = &p
	}
	resp, err := s.deps.Consult.Consult(c.Request().Context(), consultRequest(c, project))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleReflect(c echo.Context) error {
	doc, err := s.deps.Store.RandomReflectDocument()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"document": doc})
}

func (s *Server) handleStats(c echo.Context) error {
	sum, err := s.deps.Dashboard.Summary()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sum)
}

func (s *Server) handleList(c echo.Context) error {
	docType, err := docTypeParam(c.QueryParam("type"))
	if err != nil {
		return err
	}
	limit := intParam(c, "limit", 20)
	group := true
	if raw, ok := queryParamPresent(c, "group"); ok {
		group = raw != "false" && raw != "0"
	}
	docs, total, err := s.deps.Store.ListDocuments(docType, limit, intParam(c, "offset", 0), group)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"documents": docs,
		"total":     total,
	})
}

// graphNode and graphEdge form the shared-concept graph the dashboard draws.
type graphNode struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	SourceFile string   `json:"source_file"`
	Concepts   []string `json:"concepts"`
}

type graphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

const graphLearningSample = 100

func (s *Server) handleGraph(c echo.Context) error {
	docs, err := s.deps.Store.GraphDocuments(graphLearningSample)
	if err != nil {
		return err
	}

	nodes := make([]graphNode, len(docs))
	for i, d := range docs {
		nodes[i] = graphNode{
			ID:         d.ID,
			Type:       string(d.Type),
			SourceFile: d.SourceFile,
			Concepts:   d.Concepts,
		}
	}

	// Edge weight is the shared-concept count between two documents.
	edges := []graphEdge{}
	for i := range docs {
		for j := i + 1; j < len(docs); j++ {
			if w := sharedConcepts(docs[i].Concepts, docs[j].Concepts); w > 0 {
				edges = append(edges, graphEdge{
					Source: docs[i].ID,
					Target: docs[j].ID,
					Weight: w,
				})
			}
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes, "edges": edges})
}

func sharedConcepts(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c] = true
	}
	n := 0
	for _, c := range b {
		if set[c] {
			n++
		}
	}
	return n
}

func (s *Server) handleConcepts(c echo.Context) error {
	docType, err := docTypeParam(c.QueryParam("type"))
	if err != nil {
		return err
	}
	limit := intParam(c, "limit", 50)
	counts, err := s.deps.Store.ConceptCounts(docType, limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"concepts": counts})
}

type learnBody struct {
	Pattern  string   `json:"pattern"`
	Source   string   `json:"source"`
	Concepts []string `json:"concepts"`
	Origin   string   `json:"origin"`
	Project  *string  `json:"project"`
	Cwd      string   `json:"cwd"`
}

func (s *Server) handleLearn(c echo.Context) error {
	var body learnBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	resp, err := s.deps.Learn.Learn(learn.Request{
		Pattern:  body.Pattern,
		Source:   body.Source,
		Concepts: body.Concepts,
		Origin:   body.Origin,
		Project:  body.Project,
		Cwd:      body.Cwd,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, resp)
}

// handleFile serves a file from inside the repository root. Both sides of
// the containment check go through EvalSymlinks so a symlink cannot escape.
func (s *Server) handleFile(c echo.Context) error {
	rel := c.QueryParam("path")
	if rel == "" {
		return oracle.Invalidf("path is required")
	}

	root, err := filepath.EvalSymlinks(s.cfg.RepoRoot)
	if err != nil {
		return oracle.NotFoundf("repository root is unavailable")
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(root, rel))
	if err != nil {
		return oracle.NotFoundf("file %s", rel)
	}
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return oracle.Invalidf("path escapes the repository root")
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return oracle.NotFoundf("file %s", rel)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"path":    rel,
		"content": string(raw),
	})
}

func (s *Server) handleProjects(c echo.Context) error {
	projects, err := s.deps.Store.ListProjects()
	if err != nil {
		return err
	}
	// Configured projects appear even before any document references them.
	seen := map[string]bool{}
	for _, p := range projects {
		seen[p.ID] = true
	}
	for _, p := range s.cfg.Projects {
		if !seen[p.ID] {
			projects = append(projects, oracle.Project{
				ID: p.ID, Name: p.Name, Color: p.Color, Path: p.Path,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]any{"projects": projects})
}

// ---- param helpers ----

func intParam(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func queryParamPresent(c echo.Context, name string) (string, bool) {
	values, ok := c.QueryParams()[name]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func docTypeParam(t string) (oracle.DocType, error) {
	if t == "" || t == "all" {
		return "", nil
	}
	dt := oracle.DocType(t)
	if !oracle.ValidDocType(dt) {
		return "", oracle.Invalidf("type %q is not one of principle, pattern, learning, retro, all", t)
	}
	return dt, nil
}

func idParam(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, oracle.Invalidf("id %q is not numeric", c.Param("id"))
	}
	return id, nil
}

package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/config"
	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/dashboard"
	"github.com/xaxixak/oracle-v2/internal/decision"
	"github.com/xaxixak/oracle-v2/internal/forum"
	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/search"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/trace"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

type noopBackend struct{}

func (noopBackend) EnsureCollection(ctx context.Context, name string) error            { return nil }
func (noopBackend) Upsert(ctx context.Context, name string, items []vector.Item) error { return nil }
func (noopBackend) Query(ctx context.Context, name, text string, k int, where map[string]string) (*vector.QueryResult, error) {
	return &vector.QueryResult{}, nil
}
func (noopBackend) CollectionStats(ctx context.Context, name string) (*vector.Stats, error) {
	return &vector.Stats{}, nil
}
func (noopBackend) DeleteCollection(ctx context.Context, name string) error { return nil }
func (noopBackend) Close() error                                            { return nil }

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	backend := noopBackend{}
	consultSvc := consult.New(st, backend, "oracle_knowledge", nil, nil)
	learnSvc := learn.New(st, filepath.Join(t.TempDir(), "learnings"), nil, nil)
	cfg := &config.Config{
		Port:     0,
		DataDir:  t.TempDir(),
		RepoRoot: t.TempDir(),
	}
	srv, err := NewServer(cfg, Deps{
		Store:     st,
		Search:    search.New(st, backend, "oracle_knowledge", nil, nil),
		Consult:   consultSvc,
		Learn:     learnSvc,
		Trace:     trace.New(st, learnSvc, nil, nil),
		Forum:     forum.New(st, consultSvc, nil),
		Decision:  decision.New(st, nil),
		Dashboard: dashboard.New(st, nil),
	}, nil)
	require.NoError(t, err)
	return srv, st
}

func doJSON(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded),
			"body: %s", rec.Body.String())
	}
	return rec, decoded
}

func seedDoc(t *testing.T, st *store.Store, id string, dt oracle.DocType, project, content string) {
	t.Helper()
	require.NoError(t, st.InsertDocument(&oracle.Document{
		ID:         id,
		Type:       dt,
		SourceFile: "seed.md",
		Concepts:   []string{"git", "safety"},
		Provenance: oracle.Provenance{Project: project},
	}, id, content))
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestSearchEndpoint(t *testing.T) {
	srv, st := testServer(t)
	seedDoc(t, st, "p1", oracle.DocTypePrinciple, "", "never force push to shared branches")
	seedDoc(t, st, "p2", oracle.DocTypePrinciple, "alpha", "force multipliers for alpha work")

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/search?q=force+push", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	results := body["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	assert.Equal(t, "p1", first["id"])
	assert.Equal(t, float64(1), body["total"])
}

func TestSearchEndpointProjectParamPresence(t *testing.T) {
	srv, st := testServer(t)
	seedDoc(t, st, "u1", oracle.DocTypePrinciple, "", "release checklists prevent surprises")
	seedDoc(t, st, "a1", oracle.DocTypePrinciple, "alpha", "release trains for alpha surprises")

	// Explicit empty project restricts to universal rows.
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/search?q=surprises&project=", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, body["results"].([]any), 1)
	assert.Equal(t, "u1", body["results"].([]any)[0].(map[string]any)["id"])

	// Absent project leaves the search unscoped.
	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/api/search?q=surprises", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["results"].([]any), 2)
}

func TestSearchEndpointValidation(t *testing.T) {
	srv, _ := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, body["error"])
}

func TestConsultEndpoint(t *testing.T) {
	srv, st := testServer(t)
	seedDoc(t, st, "pr1", oracle.DocTypePrinciple, "", "always rebase onto a clean upstream")

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/consult?q=should+I+rebase", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, body["guidance"], "The Oracle")
}

func TestLearnEndpoint(t *testing.T) {
	srv, st := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/learn",
		`{"pattern":"# Retry budgets\n\nGive every client a retry budget.","origin":"human"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotEmpty(t, body["id"])

	total, _, err := st.CountDocuments()
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestFileEndpointContainment(t *testing.T) {
	srv, _ := testServer(t)
	notePath := filepath.Join(srv.cfg.RepoRoot, "note.md")
	require.NoError(t, os.WriteFile(notePath, []byte("# hello\n"), 0o644))

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/file?path=note.md", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "# hello\n", body["content"])

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/api/file?path=../../etc/hosts", "")
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestGraphEndpoint(t *testing.T) {
	srv, st := testServer(t)
	seedDoc(t, st, "g1", oracle.DocTypePrinciple, "", "branch protection")
	seedDoc(t, st, "g2", oracle.DocTypeLearning, "", "signed commits")

	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/graph", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["nodes"].([]any), 2)
	// Both seeds share the concepts {git, safety}.
	edges := body["edges"].([]any)
	require.Len(t, edges, 1)
	assert.Equal(t, float64(2), edges[0].(map[string]any)["weight"])
}

func TestThreadLifecycleEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/thread",
		`{"message":"should we pin compiler versions in CI"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, body["thread"])

	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/api/thread/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	// Human post plus the oracle's reply.
	assert.Len(t, body["messages"].([]any), 2)

	rec, body = doJSON(t, srv.Handler(), http.MethodPatch, "/api/thread/1/status",
		`{"status":"answered"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "answered", body["status"])

	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/api/threads?status=answered", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["threads"].([]any), 1)
}

func TestDecisionEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/decisions",
		`{"title":"pick a message broker","options":["nats","kafka"]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "pending", body["status"])

	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/api/decisions/1/transition",
		`{"status":"decided","decided_by":"sam"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "decided", body["status"])
	assert.Equal(t, "sam", body["decided_by"])

	// decided cannot go back to pending.
	rec, _ = doJSON(t, srv.Handler(), http.MethodPost, "/api/decisions/1/transition",
		`{"status":"pending"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, body = doJSON(t, srv.Handler(), http.MethodPatch, "/api/decisions/1",
		`{"rationale":"managed kafka is overkill here"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "managed kafka is overkill here", body["rationale"])

	rec, _ = doJSON(t, srv.Handler(), http.MethodGet, "/api/decisions/99", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTraceEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	rec, body := doJSON(t, srv.Handler(), http.MethodPost, "/api/trace",
		`{"query":"why does startup take 40s"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	traceID := body["trace_id"].(string)

	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/api/trace/"+traceID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raw", body["status"])

	rec, body = doJSON(t, srv.Handler(), http.MethodPost, "/api/trace",
		`{"trace_id":"`+traceID+`","awakening":"cold template cache"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "distilled", body["status"])

	rec, body = doJSON(t, srv.Handler(), http.MethodGet, "/api/trace/"+traceID+"?direction=both", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["totalDepth"])
}

func TestErrorBodyShape(t *testing.T) {
	srv, _ := testServer(t)
	rec, body := doJSON(t, srv.Handler(), http.MethodGet, "/api/thread/not-a-number", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, body, 1)
	assert.NotEmpty(t, body["error"])
}

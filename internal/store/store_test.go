package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/oracle"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testDoc(id string, typ oracle.DocType, project string) *oracle.Document {
	now := time.Now()
	return &oracle.Document{
		ID:         id,
		Type:       typ,
		SourceFile: "resonance/core.md",
		Concepts:   []string{"append", "history"},
		CreatedAt:  now,
		UpdatedAt:  now,
		IndexedAt:  now,
		Provenance: oracle.Provenance{Project: project},
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	// Second run must not fail on the ADD COLUMN migrations.
	require.NoError(t, s.migrate())
}

func TestInsertAndGetDocument(t *testing.T) {
	s := openTestStore(t)

	doc := testDoc("resonance_core_0", oracle.DocTypePrinciple, "")
	require.NoError(t, s.InsertDocument(doc, "Nothing is Deleted", "Nothing is Deleted: append only, preserve history"))

	got, err := s.GetDocument("resonance_core_0")
	require.NoError(t, err)
	assert.Equal(t, oracle.DocTypePrinciple, got.Type)
	assert.Equal(t, []string{"append", "history"}, got.Concepts)
	assert.Contains(t, got.Content, "append only")

	_, err = s.GetDocument("missing")
	assert.True(t, oracle.IsNotFound(err))
}

func TestInsertDocumentReplacesFTSRow(t *testing.T) {
	s := openTestStore(t)
	doc := testDoc("d1", oracle.DocTypeLearning, "")
	require.NoError(t, s.InsertDocument(doc, "t", "first version"))
	require.NoError(t, s.InsertDocument(doc, "t", "second version"))

	ftsIDs, err := s.FTSIDs()
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ftsIDs)
}

func TestSearchFTSRankAndFilters(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertDocument(testDoc("d1", oracle.DocTypePrinciple, "alpha"), "t1", "git safety force push rules"))
	require.NoError(t, s.InsertDocument(testDoc("d2", oracle.DocTypeLearning, ""), "t2", "git workflow notes and safety"))
	require.NoError(t, s.InsertDocument(testDoc("d3", oracle.DocTypeLearning, "beta"), "t3", "cooking recipes"))

	rows, err := s.SearchFTS("git safety", "", "", false, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1, "no-project filter returns universal rows only")
	assert.Equal(t, "d2", rows[0].ID)
	assert.Less(t, rows[0].Rank, 0.0, "bm25 rank is negative")

	rows, err = s.SearchFTS("git safety", "", "alpha", true, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2, "project filter returns project + universal")

	rows, err = s.SearchFTS("git safety", oracle.DocTypePrinciple, "alpha", true, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "d1", rows[0].ID)

	n, err := s.CountFTS("git safety", "", "alpha", true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestClearIndexParity(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertDocument(testDoc("a", oracle.DocTypePrinciple, ""), "t", "one"))
	require.NoError(t, s.InsertDocument(testDoc("b", oracle.DocTypeLearning, ""), "t", "two"))

	docIDs, _ := s.DocumentIDs()
	ftsIDs, _ := s.FTSIDs()
	assert.Equal(t, docIDs, ftsIDs)

	require.NoError(t, s.ClearIndex())
	docIDs, _ = s.DocumentIDs()
	ftsIDs, _ = s.FTSIDs()
	assert.Empty(t, docIDs)
	assert.Empty(t, ftsIDs)
}

func TestIndexingStatusLifecycle(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.BeginIndexing(10))
	st, err := s.GetIndexingStatus()
	require.NoError(t, err)
	assert.True(t, st.IsIndexing)
	assert.Equal(t, 10, st.ProgressTotal)

	require.NoError(t, s.SetIndexingProgress(5, 10))
	require.NoError(t, s.FinishIndexing(10, ""))
	st, _ = s.GetIndexingStatus()
	assert.False(t, st.IsIndexing)
	assert.Equal(t, 10, st.ProgressCurrent)
	assert.NotNil(t, st.CompletedAt)
	assert.Empty(t, st.Error)

	require.NoError(t, s.BeginIndexing(3))
	require.NoError(t, s.ResetIndexing())
	st, _ = s.GetIndexingStatus()
	assert.False(t, st.IsIndexing, "startup reset clears stale is_indexing")
}

func TestTraceChainBookkeeping(t *testing.T) {
	s := openTestStore(t)

	parent := &Trace{TraceID: "t0", Query: "shared soul", Status: TraceStatusRaw, CreatedAt: time.Now()}
	require.NoError(t, s.InsertTrace(parent))

	child := &Trace{TraceID: "t1", Query: "awakening", Status: TraceStatusRaw,
		ParentTraceID: "t0", Depth: 1, CreatedAt: time.Now()}
	require.NoError(t, s.InsertTrace(child))

	got, err := s.GetTrace("t0")
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, got.ChildTraceIDs)

	orphan := &Trace{TraceID: "t2", Query: "x", Status: TraceStatusRaw,
		ParentTraceID: "missing", Depth: 1, CreatedAt: time.Now()}
	err = s.InsertTrace(orphan)
	assert.True(t, oracle.IsNotFound(err))
	_, err = s.GetTrace("t2")
	assert.Error(t, err, "failed child insert must not leave a row behind")

	require.NoError(t, s.MarkTraceDistilled("t1", "Freedom IS unity", "learning_x", time.Now()))
	dist, err := s.GetTrace("t1")
	require.NoError(t, err)
	assert.Equal(t, TraceStatusDistilled, dist.Status)
	assert.Equal(t, "Freedom IS unity", dist.Awakening)
	assert.NotNil(t, dist.DistilledAt)
}

func TestDecisionRoundtrip(t *testing.T) {
	s := openTestStore(t)

	id, err := s.InsertDecision(&Decision{
		Title: "Adopt WAL mode", Status: DecisionPending,
		Options: []string{"wal", "delete"}, Tags: []string{"storage"},
	})
	require.NoError(t, err)

	d, err := s.GetDecision(id)
	require.NoError(t, err)
	assert.Equal(t, DecisionPending, d.Status)
	assert.Equal(t, []string{"wal", "delete"}, d.Options)
	assert.Nil(t, d.DecidedAt)

	require.NoError(t, s.SetDecisionStatus(id, DecisionDecided, "arthur"))
	d, _ = s.GetDecision(id)
	assert.Equal(t, DecisionDecided, d.Status)
	assert.NotNil(t, d.DecidedAt)
	assert.Equal(t, "arthur", d.DecidedBy)
}

func TestForumThreadAndMessages(t *testing.T) {
	s := openTestStore(t)

	tid, err := s.InsertThread(&Thread{Title: "rm -rf question", Status: ThreadActive, CreatedBy: "human"})
	require.NoError(t, err)

	pf := 2
	_, err = s.InsertMessage(&Message{ThreadID: tid, Role: "human", Content: "should I?"})
	require.NoError(t, err)
	_, err = s.InsertMessage(&Message{ThreadID: tid, Role: "oracle", Content: "guidance",
		Author: "oracle", PrinciplesFound: &pf, SearchQuery: "should I?"})
	require.NoError(t, err)

	msgs, err := s.ListMessages(tid)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "human", msgs[0].Role)
	require.NotNil(t, msgs[1].PrinciplesFound)
	assert.Equal(t, 2, *msgs[1].PrinciplesFound)

	require.NoError(t, s.SetThreadStatus(tid, ThreadAnswered))
	th, _ := s.GetThread(tid)
	assert.Equal(t, ThreadAnswered, th.Status)

	assert.True(t, oracle.IsNotFound(s.SetThreadStatus(999, ThreadClosed)))
}

func TestTelemetryAndDashboard(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.InsertDocument(testDoc("d1", oracle.DocTypePrinciple, ""), "t", "x"))

	require.NoError(t, s.LogSearch(SearchLogEntry{Query: "q", Mode: "hybrid", ResultsCount: 1}))
	require.NoError(t, s.LogConsult(ConsultLogEntry{Decision: "d", PrinciplesFound: 1}))
	require.NoError(t, s.LogLearn(LearnLogEntry{DocumentID: "d1", PatternPreview: "p"}))
	require.NoError(t, s.LogAccess("d1", "search", ""))

	rc, err := s.CountRecent(time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, RecentCounts{Consultations: 1, Searches: 1, Learnings: 1}, rc)

	act, err := s.RecentActivity(time.Now().AddDate(0, 0, -1))
	require.NoError(t, err)
	assert.Len(t, act["searches"], 1)

	growth, err := s.Growth(7)
	require.NoError(t, err)
	assert.Len(t, growth, 7)

	last, err := s.LastIndexedAt()
	require.NoError(t, err)
	assert.False(t, last.IsZero())
}

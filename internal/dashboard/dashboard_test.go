package dashboard

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil), st
}

func seedDoc(t *testing.T, st *store.Store, id string, typ oracle.DocType, concepts []string) {
	t.Helper()
	now := time.Now()
	doc := oracle.Document{
		ID: id, Type: typ, SourceFile: "x.md", Concepts: concepts,
		CreatedAt: now, UpdatedAt: now, IndexedAt: now,
	}
	require.NoError(t, st.InsertDocument(&doc, id, "content of "+id))
}

func TestSummary(t *testing.T) {
	svc, st := newService(t)
	seedDoc(t, st, "resonance_a", oracle.DocTypePrinciple, []string{"trust", "history"})
	seedDoc(t, st, "learning_b", oracle.DocTypeLearning, []string{"history"})
	require.NoError(t, st.LogSearch(store.SearchLogEntry{Query: "q", Mode: "hybrid"}))
	require.NoError(t, st.LogConsult(store.ConsultLogEntry{Decision: "d"}))

	sum, err := svc.Summary()
	require.NoError(t, err)

	assert.Equal(t, 2, sum.TotalDocuments)
	assert.Equal(t, 1, sum.ByType["principle"])
	assert.Equal(t, 1, sum.ByType["learning"])
	assert.Equal(t, 2, sum.TotalConcepts)
	require.NotEmpty(t, sum.TopConcepts)
	assert.Equal(t, "history", sum.TopConcepts[0].Concept)
	assert.Equal(t, 2, sum.TopConcepts[0].Count)
	assert.Equal(t, 1, sum.Recent.Searches)
	assert.Equal(t, 1, sum.Recent.Consultations)
	assert.Equal(t, "ok", sum.FTSStatus)
	require.NotNil(t, sum.LastIndexed)
}

func TestSummaryFTSStatusWhileIndexing(t *testing.T) {
	svc, st := newService(t)
	require.NoError(t, st.BeginIndexing(10))

	sum, err := svc.Summary()
	require.NoError(t, err)
	assert.Equal(t, "indexing", sum.FTSStatus)

	require.NoError(t, st.FinishIndexing(10, "walk failed"))
	sum, err = svc.Summary()
	require.NoError(t, err)
	assert.Equal(t, "error", sum.FTSStatus)
}

func TestTopConceptsCapped(t *testing.T) {
	svc, st := newService(t)
	for i := 0; i < 12; i++ {
		seedDoc(t, st, fmt.Sprintf("learning_%d", i), oracle.DocTypeLearning,
			[]string{fmt.Sprintf("concept%02d", i)})
	}
	sum, err := svc.Summary()
	require.NoError(t, err)
	assert.Len(t, sum.TopConcepts, 10)
	assert.Equal(t, 12, sum.TotalConcepts)
}

func TestActivity(t *testing.T) {
	svc, st := newService(t)
	require.NoError(t, st.LogSearch(store.SearchLogEntry{Query: "recent query", Mode: "hybrid"}))

	activity, err := svc.Activity(7)
	require.NoError(t, err)
	require.Len(t, activity["searches"], 1)
	assert.Equal(t, "recent query", activity["searches"][0].Text)
}

func TestActivityTruncatesOnRuneBoundary(t *testing.T) {
	svc, st := newService(t)
	long := strings.Repeat("ψ", 150)
	require.NoError(t, st.LogSearch(store.SearchLogEntry{Query: long, Mode: "hybrid"}))

	activity, err := svc.Activity(7)
	require.NoError(t, err)
	require.Len(t, activity["searches"], 1)
	got := activity["searches"][0].Text
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("ψ", 100), got)
}

func TestGrowthPeriods(t *testing.T) {
	svc, st := newService(t)
	seedDoc(t, st, "learning_a", oracle.DocTypeLearning, nil)

	for period, days := range map[string]int{"week": 7, "month": 30, "quarter": 90} {
		points, err := svc.Growth(period)
		require.NoError(t, err)
		assert.Len(t, points, days, "period %s", period)
	}

	_, err := svc.Growth("decade")
	assert.True(t, oracle.IsInvalid(err))
}

func TestSessionStats(t *testing.T) {
	svc, st := newService(t)
	require.NoError(t, st.LogLearn(store.LearnLogEntry{DocumentID: "learning_x"}))

	stats, err := svc.SessionStats(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Learnings)

	stats, err = svc.SessionStats(time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, stats.Learnings)
}

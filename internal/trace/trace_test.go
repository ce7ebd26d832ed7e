package trace

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/learn"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	learner := learn.New(st, filepath.Join(t.TempDir(), "learnings"), nil, nil)
	svc := New(st, learner, nil, nil)
	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("trace_%04d", n)
	}
	return svc, st
}

func mustCreate(t *testing.T, svc *Service, query, parent string) *store.Trace {
	t.Helper()
	tr, err := svc.Create(CreateRequest{Query: query, ParentTraceID: parent})
	require.NoError(t, err)
	return tr
}

func TestCreateRootAndChild(t *testing.T) {
	svc, st := newService(t)

	root, err := svc.Create(CreateRequest{
		Query:     "why did the deploy fail",
		QueryType: "incident",
		DigPoints: store.DigPoints{
			Files:   []string{"deploy.sh", "ci.yml"},
			Commits: []string{"abc123"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, root.Depth)
	assert.Equal(t, store.TraceStatusRaw, root.Status)
	assert.Equal(t, 2, root.FileCount)
	assert.Equal(t, 1, root.CommitCount)

	child := mustCreate(t, svc, "narrow to the ci config", root.TraceID)
	assert.Equal(t, 1, child.Depth)

	// Parent bookkeeping is transactional with the child insert.
	got, err := st.GetTrace(root.TraceID)
	require.NoError(t, err)
	assert.Equal(t, []string{child.TraceID}, got.ChildTraceIDs)
}

func TestCreateMissingParent(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(CreateRequest{Query: "x", ParentTraceID: "trace_nope"})
	assert.True(t, oracle.IsNotFound(err))
}

func TestCreateRequiresQuery(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Create(CreateRequest{})
	assert.True(t, oracle.IsInvalid(err))
}

func TestChainDirections(t *testing.T) {
	svc, _ := newService(t)
	root := mustCreate(t, svc, "root", "")
	mid := mustCreate(t, svc, "mid", root.TraceID)
	leafA := mustCreate(t, svc, "leaf a", mid.TraceID)
	leafB := mustCreate(t, svc, "leaf b", mid.TraceID)

	up, err := svc.GetChain(leafA.TraceID, "up")
	require.NoError(t, err)
	assert.Equal(t, []string{root.TraceID, mid.TraceID, leafA.TraceID}, chainIDs(up))

	down, err := svc.GetChain(root.TraceID, "down")
	require.NoError(t, err)
	assert.Equal(t, []string{root.TraceID, mid.TraceID, leafA.TraceID, leafB.TraceID}, chainIDs(down))

	both, err := svc.GetChain(mid.TraceID, "both")
	require.NoError(t, err)
	assert.Equal(t, []string{root.TraceID, mid.TraceID, leafA.TraceID, leafB.TraceID}, chainIDs(both))
	assert.Equal(t, 3, both.TotalDepth)
	assert.False(t, both.HasAwakening)

	_, err = svc.GetChain(mid.TraceID, "sideways")
	assert.True(t, oracle.IsInvalid(err))
}

func TestDistill(t *testing.T) {
	svc, _ := newService(t)
	tr := mustCreate(t, svc, "root question", "")

	got, err := svc.Distill(DistillRequest{TraceID: tr.TraceID, Awakening: "always read the logs first"})
	require.NoError(t, err)
	assert.Equal(t, store.TraceStatusDistilled, got.Status)
	assert.Equal(t, "always read the logs first", got.Awakening)
	assert.NotNil(t, got.DistilledAt)
	assert.Empty(t, got.DistilledToID)

	chain, err := svc.GetChain(tr.TraceID, "both")
	require.NoError(t, err)
	assert.True(t, chain.HasAwakening)
	assert.Equal(t, tr.TraceID, chain.AwakeningTraceID)
}

func TestDistillPromotesToLearning(t *testing.T) {
	svc, st := newService(t)
	tr := mustCreate(t, svc, "root question", "")

	got, err := svc.Distill(DistillRequest{
		TraceID:           tr.TraceID,
		Awakening:         "always read the logs first",
		PromoteToLearning: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, got.DistilledToID)

	doc, err := st.GetDocument(got.DistilledToID)
	require.NoError(t, err)
	assert.Equal(t, oracle.DocTypeLearning, doc.Type)
	assert.Contains(t, doc.Content, "always read the logs first")
}

func TestDistillValidation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.Distill(DistillRequest{TraceID: "trace_x"})
	assert.True(t, oracle.IsInvalid(err))

	_, err = svc.Distill(DistillRequest{TraceID: "trace_x", Awakening: "a"})
	assert.True(t, oracle.IsNotFound(err))
}

func TestList(t *testing.T) {
	svc, _ := newService(t)
	for i := 0; i < 3; i++ {
		mustCreate(t, svc, fmt.Sprintf("q%d", i), "")
		time.Sleep(2 * time.Millisecond) // created_at ordering
	}

	all, err := svc.List("", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "q2", all[0].Query)
}

func chainIDs(c *Chain) []string {
	ids := make([]string, len(c.Traces))
	for i, t := range c.Traces {
		ids[i] = t.TraceID
	}
	return ids
}

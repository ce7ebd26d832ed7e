package decision

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, nil)
}

func TestCreateStartsPending(t *testing.T) {
	svc := newService(t)
	d, err := svc.Create(CreateRequest{
		Title:   "pick a message broker",
		Options: []string{"nats", "kafka"},
		Tags:    []string{"infra"},
	})
	require.NoError(t, err)
	assert.Equal(t, store.DecisionPending, d.Status)
	assert.Equal(t, []string{"nats", "kafka"}, d.Options)
	assert.Nil(t, d.DecidedAt)
}

func TestTransitionGraph(t *testing.T) {
	legal := []struct{ from, to store.DecisionStatus }{
		{store.DecisionPending, store.DecisionParked},
		{store.DecisionPending, store.DecisionResearching},
		{store.DecisionPending, store.DecisionDecided},
		{store.DecisionPending, store.DecisionClosed},
		{store.DecisionParked, store.DecisionPending},
		{store.DecisionResearching, store.DecisionDecided},
		{store.DecisionDecided, store.DecisionImplemented},
		{store.DecisionDecided, store.DecisionClosed},
		{store.DecisionImplemented, store.DecisionClosed},
	}
	for _, e := range legal {
		assert.True(t, CanTransition(e.from, e.to), "%s -> %s", e.from, e.to)
	}

	illegal := []struct{ from, to store.DecisionStatus }{
		{store.DecisionPending, store.DecisionImplemented},
		{store.DecisionParked, store.DecisionImplemented},
		{store.DecisionDecided, store.DecisionPending},
		{store.DecisionImplemented, store.DecisionPending},
		{store.DecisionClosed, store.DecisionPending},
		{store.DecisionClosed, store.DecisionClosed},
	}
	for _, e := range illegal {
		assert.False(t, CanTransition(e.from, e.to), "%s -> %s", e.from, e.to)
	}
}

func TestTransitionDecidedStampsFields(t *testing.T) {
	svc := newService(t)
	d, err := svc.Create(CreateRequest{Title: "storage engine"})
	require.NoError(t, err)

	got, err := svc.Transition(d.ID, store.DecisionDecided, "sam")
	require.NoError(t, err)
	assert.Equal(t, store.DecisionDecided, got.Status)
	assert.Equal(t, "sam", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)

	// decided → implemented → closed, then terminal.
	_, err = svc.Transition(d.ID, store.DecisionImplemented, "")
	require.NoError(t, err)
	got, err = svc.Transition(d.ID, store.DecisionClosed, "")
	require.NoError(t, err)
	assert.Equal(t, store.DecisionClosed, got.Status)

	_, err = svc.Transition(d.ID, store.DecisionPending, "")
	assert.True(t, oracle.IsConflict(err))
}

func TestTransitionIllegalEdgeRejected(t *testing.T) {
	svc := newService(t)
	d, err := svc.Create(CreateRequest{Title: "x"})
	require.NoError(t, err)

	_, err = svc.Transition(d.ID, store.DecisionImplemented, "")
	require.Error(t, err)
	assert.True(t, oracle.IsConflict(err))
}

func TestUpdateFields(t *testing.T) {
	svc := newService(t)
	d, err := svc.Create(CreateRequest{Title: "caching layer"})
	require.NoError(t, err)

	decisionText := "use the embedded cache"
	rationale := "fewer moving parts"
	got, err := svc.Update(d.ID, store.DecisionUpdate{
		Decision:  &decisionText,
		Rationale: &rationale,
	})
	require.NoError(t, err)
	assert.Equal(t, decisionText, got.Decision)
	assert.Equal(t, rationale, got.Rationale)
	assert.Equal(t, store.DecisionPending, got.Status)
}

func TestListFilters(t *testing.T) {
	svc := newService(t)
	a, err := svc.Create(CreateRequest{Title: "a", Project: "alpha"})
	require.NoError(t, err)
	_, err = svc.Create(CreateRequest{Title: "b", Project: "beta"})
	require.NoError(t, err)
	_, err = svc.Transition(a.ID, store.DecisionClosed, "")
	require.NoError(t, err)

	closed, err := svc.List(store.DecisionClosed, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, a.ID, closed[0].ID)

	beta, err := svc.List("", "beta", 10, 0)
	require.NoError(t, err)
	require.Len(t, beta, 1)
	assert.Equal(t, "b", beta[0].Title)
}

func TestGetMissing(t *testing.T) {
	svc := newService(t)
	_, err := svc.Get(42)
	assert.True(t, oracle.IsNotFound(err))
}

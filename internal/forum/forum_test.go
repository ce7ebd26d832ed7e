package forum

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xaxixak/oracle-v2/internal/consult"
	"github.com/xaxixak/oracle-v2/internal/oracle"
	"github.com/xaxixak/oracle-v2/internal/store"
	"github.com/xaxixak/oracle-v2/internal/vector"
)

type noopBackend struct{}

func (noopBackend) EnsureCollection(ctx context.Context, name string) error          { return nil }
func (noopBackend) Upsert(ctx context.Context, name string, items []vector.Item) error { return nil }
func (noopBackend) Query(ctx context.Context, name, text string, k int, where map[string]string) (*vector.QueryResult, error) {
	return &vector.QueryResult{}, nil
}
func (noopBackend) CollectionStats(ctx context.Context, name string) (*vector.Stats, error) {
	return &vector.Stats{}, nil
}
func (noopBackend) DeleteCollection(ctx context.Context, name string) error { return nil }
func (noopBackend) Close() error                                            { return nil }

func newService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "oracle.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	consulter := consult.New(st, noopBackend{}, "oracle_knowledge", nil, nil)
	return New(st, consulter, nil), st
}

func seedPrinciple(t *testing.T, st *store.Store, id, content string) {
	t.Helper()
	now := time.Now()
	doc := oracle.Document{
		ID: id, Type: oracle.DocTypePrinciple, SourceFile: "resonance/core.md",
		CreatedAt: now, UpdatedAt: now, IndexedAt: now,
	}
	require.NoError(t, st.InsertDocument(&doc, id, content))
}

func TestHandleMessageCreatesThreadAndOracleReply(t *testing.T) {
	svc, st := newService(t)
	seedPrinciple(t, st, "resonance_core_0", "force push rewrites shared history")

	resp, err := svc.HandleMessage(context.Background(), MessageRequest{
		Message: "should I force push to main after a botched rebase of the release branch",
	})
	require.NoError(t, err)

	require.NotNil(t, resp.Thread)
	assert.Equal(t, store.ThreadActive, resp.Thread.Status)
	// Thread title defaults to the first 50 characters of the message.
	assert.Equal(t, "should I force push to main after a botched rebase", resp.Thread.Title)
	assert.Equal(t, "human", resp.Message.Role)

	require.NotNil(t, resp.Reply)
	assert.Equal(t, "oracle", resp.Reply.Role)
	assert.Equal(t, "oracle", resp.Reply.Author)
	require.NotNil(t, resp.Reply.PrinciplesFound)
	assert.Equal(t, 1, *resp.Reply.PrinciplesFound)
	assert.Equal(t, resp.Message.Content, resp.Reply.SearchQuery)

	msgs, err := st.ListMessages(resp.Thread.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestHandleMessageAppendsToExistingThread(t *testing.T) {
	svc, _ := newService(t)
	first, err := svc.HandleMessage(context.Background(), MessageRequest{Message: "first question"})
	require.NoError(t, err)

	second, err := svc.HandleMessage(context.Background(), MessageRequest{
		Message:  "follow up question",
		ThreadID: first.Thread.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, first.Thread.ID, second.Thread.ID)

	_, msgs, err := svc.Thread(first.Thread.ID)
	require.NoError(t, err)
	assert.Len(t, msgs, 4) // two questions, two oracle replies
}

func TestHandleMessageOracleRoleGetsNoReply(t *testing.T) {
	svc, _ := newService(t)
	resp, err := svc.HandleMessage(context.Background(), MessageRequest{
		Message: "a pronouncement",
		Role:    "oracle",
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Reply)
}

func TestHandleMessageUnknownThread(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.HandleMessage(context.Background(), MessageRequest{Message: "x", ThreadID: 999})
	assert.True(t, oracle.IsNotFound(err))
}

func TestThreadStatusAnyTransitionLegal(t *testing.T) {
	svc, _ := newService(t)
	thread, err := svc.CreateThread("lifecycle", "", "human")
	require.NoError(t, err)

	for _, status := range []store.ThreadStatus{
		store.ThreadClosed, store.ThreadPending, store.ThreadAnswered, store.ThreadActive,
	} {
		got, err := svc.SetStatus(thread.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}

	_, err = svc.SetStatus(thread.ID, "bogus")
	assert.True(t, oracle.IsInvalid(err))
}

func TestThreadsFilterByStatus(t *testing.T) {
	svc, _ := newService(t)
	a, err := svc.CreateThread("open one", "", "human")
	require.NoError(t, err)
	b, err := svc.CreateThread("closed one", "", "human")
	require.NoError(t, err)
	_, err = svc.SetStatus(b.ID, store.ThreadClosed)
	require.NoError(t, err)

	open, err := svc.Threads(store.ThreadActive, 10, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, a.ID, open[0].ID)
}

func TestHandleMessageValidation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.HandleMessage(context.Background(), MessageRequest{Message: "  "})
	assert.True(t, oracle.IsInvalid(err))
}
